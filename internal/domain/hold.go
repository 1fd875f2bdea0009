package domain

import "time"

// Hold is a time-boxed advisory claim on a schedulable resource.
type Hold struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resourceId"`
	ActorID    string    `json:"actorId"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ExpiredAt reports whether the hold has lapsed at now.
func (h Hold) ExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}
