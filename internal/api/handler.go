package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/opensource-finance/verdict/internal/approval"
	"github.com/opensource-finance/verdict/internal/audit"
	"github.com/opensource-finance/verdict/internal/decision"
	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/hold"
	"github.com/opensource-finance/verdict/internal/repository"
	"github.com/opensource-finance/verdict/internal/risk"
	"github.com/opensource-finance/verdict/internal/window"
)

// Dependencies are the services the API exposes. Nil services disable their
// routes with 503.
type Dependencies struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Processor *decision.Processor
	Risk      *risk.Service
	Holds     *hold.Manager
	Approvals *approval.Service
	Audit     *audit.Recorder
	Version   string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	processor *decision.Processor
	risk      *risk.Service
	holds     *hold.Manager
	approvals *approval.Service
	audit     *audit.Recorder
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		processor: deps.Processor,
		risk:      deps.Risk,
		holds:     deps.Holds,
		approvals: deps.Approvals,
		audit:     deps.Audit,
		version:   deps.Version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error": what + " not available",
	})
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *window.ConflictError

	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":            err.Error(),
			"conflictingPairs": conflict.Pairs,
		})
	case errors.Is(err, hold.ErrHoldExpired):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":    err.Error(),
			"reselect": true,
		})
	case errors.Is(err, hold.ErrResourceHeld),
		errors.Is(err, approval.ErrInvalidTransition),
		errors.Is(err, risk.ErrAttemptCompleted),
		errors.Is(err, risk.ErrTrustCapReached):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, risk.ErrAttemptRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, risk.ErrAttemptNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, approval.ErrSelfApproval),
		errors.Is(err, risk.ErrAttemptMismatch):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, approval.ErrNotApprovalRequired):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}
