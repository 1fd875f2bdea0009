package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PlaceHoldRequest is the request body for POST /holds.
type PlaceHoldRequest struct {
	ResourceID string `json:"resourceId"`
	ActorID    string `json:"actorId"`
}

// PlaceHold claims a resource for the configured hold lifetime.
func (h *Handler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	if h.holds == nil {
		unavailable(w, "hold manager")
		return
	}

	var req PlaceHoldRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ResourceID == "" || req.ActorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "resourceId and actorId are required",
		})
		return
	}

	held, err := h.holds.Place(r.Context(), GetTenantID(r.Context()), req.ResourceID, req.ActorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, held)
}

// GetHold returns a live hold or 409 asking the client to re-select.
func (h *Handler) GetHold(w http.ResponseWriter, r *http.Request) {
	if h.holds == nil {
		unavailable(w, "hold manager")
		return
	}

	held, err := h.holds.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, held)
}

// FinalizeHold consumes a hold at the moment of use.
func (h *Handler) FinalizeHold(w http.ResponseWriter, r *http.Request) {
	if h.holds == nil {
		unavailable(w, "hold manager")
		return
	}

	held, err := h.holds.Finalize(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"finalized": true,
		"hold":      held,
	})
}

// ReleaseHold drops a hold. Releasing an unknown hold succeeds.
func (h *Handler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	if h.holds == nil {
		unavailable(w, "hold manager")
		return
	}

	if err := h.holds.Release(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": true})
}
