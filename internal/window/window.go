// Package window detects conflicts between day-set and time-range rules.
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
)

// ErrWindowConflict is returned when a candidate window overlaps a sibling.
var ErrWindowConflict = errors.New("time window conflicts with existing rule")

// Pair is an unordered pair of conflicting window IDs.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Report is the set-level conflict summary for a rule set.
type Report struct {
	Overlaps         bool   `json:"overlaps"`
	ConflictingPairs []Pair `json:"conflictingPairs"`
}

// Overlaps reports whether two windows conflict.
//
// A window never conflicts with itself (same ID). Windows sharing no day never
// conflict. An invalid window (start >= end) conflicts with every window it
// shares a day with. Otherwise the half-open ranges [start, end) must intersect,
// so windows that only touch do not overlap.
func Overlaps(a, b domain.TimeWindow) bool {
	if a.ID == b.ID {
		return false
	}
	if !sharesDay(a, b) {
		return false
	}
	if !a.Valid() || !b.Valid() {
		return true
	}
	return a.StartMinute < b.EndMinute && b.StartMinute < a.EndMinute
}

func sharesDay(a, b domain.TimeWindow) bool {
	for _, d := range a.Days {
		if b.HasDay(d) {
			return true
		}
	}
	return false
}

// Conflicts compares every unordered pair in windows.
// Pairs are returned in (i, j) order with i < j.
func Conflicts(windows []domain.TimeWindow) []Pair {
	var pairs []Pair
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if Overlaps(windows[i], windows[j]) {
				pairs = append(pairs, Pair{A: windows[i].ID, B: windows[j].ID})
			}
		}
	}
	return pairs
}

// ConflictsWith compares candidate against every other window in existing.
// An existing entry with the candidate's ID is the version being edited and is skipped.
func ConflictsWith(candidate domain.TimeWindow, existing []domain.TimeWindow) []Pair {
	var pairs []Pair
	for _, w := range existing {
		if Overlaps(candidate, w) {
			pairs = append(pairs, Pair{A: candidate.ID, B: w.ID})
		}
	}
	return pairs
}

// ValidateCandidate returns an error wrapping ErrWindowConflict when candidate
// cannot be saved alongside existing.
func ValidateCandidate(candidate domain.TimeWindow, existing []domain.TimeWindow) error {
	pairs := ConflictsWith(candidate, existing)
	if len(pairs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, p.B)
	}
	return &ConflictError{Candidate: candidate.ID, Pairs: pairs, msg: strings.Join(ids, ", ")}
}

// ConflictError lists the windows a candidate overlaps.
type ConflictError struct {
	Candidate string
	Pairs     []Pair
	msg       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s overlaps %s", ErrWindowConflict, e.Candidate, e.msg)
}

func (e *ConflictError) Unwrap() error { return ErrWindowConflict }

// Check builds the standing conflict report for a rule set.
func Check(windows []domain.TimeWindow) Report {
	pairs := Conflicts(windows)
	if pairs == nil {
		pairs = []Pair{}
	}
	return Report{Overlaps: len(pairs) > 0, ConflictingPairs: pairs}
}

// Contains reports whether minute on day falls inside a valid window.
func Contains(w domain.TimeWindow, day time.Weekday, minute int) bool {
	return w.Valid() && w.HasDay(day) && minute >= w.StartMinute && minute < w.EndMinute
}

// SlotWithin reports whether slot lies entirely inside one of windows.
// An empty window list places no constraint on the slot.
func SlotWithin(windows []domain.TimeWindow, slot domain.Slot) bool {
	if len(windows) == 0 {
		return true
	}
	if slot.StartMinute >= slot.EndMinute {
		return false
	}
	for _, w := range windows {
		if w.Valid() && w.HasDay(slot.Day) && slot.StartMinute >= w.StartMinute && slot.EndMinute <= w.EndMinute {
			return true
		}
	}
	return false
}
