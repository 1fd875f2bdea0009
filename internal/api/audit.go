package api

import (
	"net/http"
	"strconv"

	"github.com/opensource-finance/verdict/internal/domain"
)

// ListAudit handles GET /audit?actor=&limit=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		unavailable(w, "audit trail")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	records, err := h.audit.Trail(r.Context(), GetTenantID(r.Context()), r.URL.Query().Get("actor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}
