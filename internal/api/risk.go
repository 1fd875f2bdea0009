package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/verdict/internal/domain"
)

// AssessRisk handles POST /risk/assess for an attempt whose primary
// credentials were already verified.
func (h *Handler) AssessRisk(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		unavailable(w, "risk service")
		return
	}

	var req domain.LoginAttempt
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validAttempt(w, &req) {
		return
	}

	result, err := h.risk.Assess(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CompleteStepUp handles POST /risk/step-up/complete. The body names the
// pending attempt by id together with its actor and device.
func (h *Handler) CompleteStepUp(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		unavailable(w, "risk service")
		return
	}

	var req domain.LoginAttempt
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validAttempt(w, &req) {
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id of the pending attempt is required",
		})
		return
	}

	result, err := h.risk.CompleteStepUp(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListTrustedDevices handles GET /risk/actors/{actorID}/devices.
func (h *Handler) ListTrustedDevices(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		unavailable(w, "risk service")
		return
	}

	devices, err := h.risk.TrustedDevices(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "actorID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if devices == nil {
		devices = []domain.TrustedDevice{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}

// TrustDevice handles PUT /risk/actors/{actorID}/devices/{deviceID}, the
// manual trust toggle.
func (h *Handler) TrustDevice(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		unavailable(w, "risk service")
		return
	}

	device, err := h.risk.Trust(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "actorID"), chi.URLParam(r, "deviceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// RevokeDevice handles DELETE /risk/actors/{actorID}/devices/{deviceID}.
func (h *Handler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		unavailable(w, "risk service")
		return
	}

	ok, err := h.risk.Revoke(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "actorID"), chi.URLParam(r, "deviceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "device not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func validAttempt(w http.ResponseWriter, req *domain.LoginAttempt) bool {
	if req.ActorID == "" || req.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actorId and deviceId are required",
		})
		return false
	}
	return true
}
