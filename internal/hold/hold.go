// Package hold places time-boxed advisory holds on schedulable resources.
package hold

import (
	"errors"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
)

var (
	// ErrHoldExpired means the hold lapsed or never existed. Callers should
	// ask the actor to re-select.
	ErrHoldExpired = errors.New("hold expired")

	// ErrResourceHeld means another live hold already claims the resource.
	ErrResourceHeld = errors.New("resource already held")
)

// Check returns ErrHoldExpired when the hold has lapsed at now.
func Check(h domain.Hold, now time.Time) error {
	if h.ExpiredAt(now) {
		return ErrHoldExpired
	}
	return nil
}
