package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/verdict/internal/approval"
	"github.com/opensource-finance/verdict/internal/domain"
)

// DecideRequest is the request body for POST /approvals/{id}/decide.
type DecideRequest struct {
	Approver string `json:"approver"`
	Event    string `json:"event"`
	Note     string `json:"note,omitempty"`
}

// OpenApprovalResponse pairs the new request with the decision behind it.
type OpenApprovalResponse struct {
	Approval *domain.ApprovalRequest    `json:"approval"`
	Decision *domain.EvaluationResponse `json:"decision"`
}

// OpenApproval re-evaluates the posted context and opens an approval
// request when the outcome is APPROVAL_REQUIRED.
func (h *Handler) OpenApproval(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.approvals == nil || h.processor == nil {
		unavailable(w, "approval service")
		return
	}

	var req domain.PolicyContext
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validPolicyContext(w, &req) {
		return
	}

	eval := h.evaluate(r, req, start)
	opened, err := h.approvals.Open(r.Context(), GetTenantID(r.Context()), eval)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, OpenApprovalResponse{
		Approval: opened,
		Decision: eval.ToResponse(),
	})
}

// GetApproval returns an approval request.
func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if h.approvals == nil {
		unavailable(w, "approval service")
		return
	}

	req, err := h.approvals.Get(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DecideApproval applies APPROVE, REJECT or EXPIRE to a pending request.
func (h *Handler) DecideApproval(w http.ResponseWriter, r *http.Request) {
	if h.approvals == nil {
		unavailable(w, "approval service")
		return
	}

	var req DecideRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	event, err := approval.ParseEvent(req.Event)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "event must be APPROVE, REJECT or EXPIRE",
		})
		return
	}

	decided, err := h.approvals.Decide(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Approver, event, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decided)
}
