package api

import (
	"net/http"
	"time"

	"github.com/opensource-finance/verdict/internal/decision"
	"github.com/opensource-finance/verdict/internal/domain"
)

// Evaluate handles POST /evaluate. Every policy outcome, BLOCKED included,
// is a 200 response; only malformed requests fail.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.processor == nil {
		unavailable(w, "policy engine")
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
	writeJSON(w, http.StatusOK, eval.ToResponse())
}

func (h *Handler) evaluate(r *http.Request, policyCtx domain.PolicyContext, start time.Time) *domain.Evaluation {
	ctx := r.Context()
	return h.processor.Process(ctx, &decision.DecisionInput{
		TenantID:  GetTenantID(ctx),
		TraceID:   GetTraceID(ctx),
		Context:   policyCtx,
		StartTime: start,
	})
}

func validPolicyContext(w http.ResponseWriter, req *domain.PolicyContext) bool {
	if req.ActorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actorId is required",
		})
		return false
	}
	if req.Total < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "total must not be negative",
		})
		return false
	}
	return true
}
