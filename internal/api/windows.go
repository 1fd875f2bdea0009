package api

import (
	"net/http"

	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/window"
)

// OverlapsRequest is the request body for POST /windows/overlaps.
type OverlapsRequest struct {
	Windows []domain.TimeWindow `json:"windows"`
}

// ValidateWindowRequest is the request body for POST /windows/validate.
type ValidateWindowRequest struct {
	Candidate domain.TimeWindow   `json:"candidate"`
	Existing  []domain.TimeWindow `json:"existing"`
}

// WindowOverlaps reports every conflicting pair in a rule set.
func (h *Handler) WindowOverlaps(w http.ResponseWriter, r *http.Request) {
	var req OverlapsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, window.Check(req.Windows))
}

// ValidateWindow rejects a candidate that overlaps an existing window with 409.
func (h *Handler) ValidateWindow(w http.ResponseWriter, r *http.Request) {
	var req ValidateWindowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Candidate.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "candidate.id is required",
		})
		return
	}

	if err := window.ValidateCandidate(req.Candidate, req.Existing); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":            true,
		"conflictingPairs": []window.Pair{},
	})
}
