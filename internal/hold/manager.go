package hold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/verdict/internal/domain"
)

// Manager stores holds in the cache. Each hold lives under its own key and
// claims its resource under a second key, both expiring with the hold.
type Manager struct {
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a hold manager. A non-positive ttl uses the default.
func NewManager(cache domain.Cache, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = domain.DefaultHoldTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Place claims resourceID for actorID. A resource under another live hold
// returns ErrResourceHeld.
func (m *Manager) Place(ctx context.Context, tenantID, resourceID, actorID string) (*domain.Hold, error) {
	if tenantID == "" || resourceID == "" || actorID == "" {
		return nil, fmt.Errorf("tenantID, resourceID and actorID are required")
	}

	now := m.now().UTC()
	h := &domain.Hold{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
		ActorID:    actorID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}

	claimed, err := m.claim(ctx, tenantID, h, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrResourceHeld
	}

	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hold: %w", err)
	}
	if err := m.cache.Set(ctx, tenantID, holdKey(h.ID), data, m.ttl); err != nil {
		_, _ = m.cache.DeleteIfValue(ctx, tenantID, resourceKey(resourceID), []byte(h.ID))
		return nil, fmt.Errorf("failed to store hold: %w", err)
	}

	m.logger.Debug("hold placed",
		"tenant_id", tenantID,
		"hold_id", h.ID,
		"resource_id", resourceID,
		"actor_id", actorID,
		"expires_at", h.ExpiresAt,
	)
	return h, nil
}

// Get returns a live hold. Missing or lapsed holds return ErrHoldExpired.
func (m *Manager) Get(ctx context.Context, tenantID, id string) (*domain.Hold, error) {
	h, err := m.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := Check(*h, m.now()); err != nil {
		return nil, err
	}
	return h, nil
}

// Finalize consumes the hold. Expiry is re-checked at the moment of use; a
// lapsed hold is cleaned up and ErrHoldExpired returned.
func (m *Manager) Finalize(ctx context.Context, tenantID, id string) (*domain.Hold, error) {
	h, err := m.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	checkErr := Check(*h, m.now())
	if err := m.remove(ctx, tenantID, h); err != nil {
		return nil, err
	}
	if checkErr != nil {
		return nil, checkErr
	}

	m.logger.Info("hold finalized",
		"tenant_id", tenantID,
		"hold_id", h.ID,
		"resource_id", h.ResourceID,
	)
	return h, nil
}

// Release drops the hold. Releasing an unknown hold is a no-op.
func (m *Manager) Release(ctx context.Context, tenantID, id string) error {
	h, err := m.load(ctx, tenantID, id)
	if errors.Is(err, ErrHoldExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.remove(ctx, tenantID, h)
}

// claim takes the resource key. A claim left by a hold that has already
// lapsed is cleared with a compare-and-delete, so a claim taken meanwhile
// by another placer survives.
func (m *Manager) claim(ctx context.Context, tenantID string, h *domain.Hold, now time.Time) (bool, error) {
	key := resourceKey(h.ResourceID)

	ok, err := m.cache.SetIfAbsent(ctx, tenantID, key, []byte(h.ID), m.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim resource: %w", err)
	}
	if ok {
		return true, nil
	}

	owner, err := m.cache.Get(ctx, tenantID, key)
	if err != nil {
		return false, fmt.Errorf("failed to read resource claim: %w", err)
	}
	if owner != nil {
		existing, err := m.load(ctx, tenantID, string(owner))
		if err == nil && !existing.ExpiredAt(now) {
			return false, nil
		}
		if err != nil && !errors.Is(err, ErrHoldExpired) {
			return false, err
		}
		if _, err := m.cache.DeleteIfValue(ctx, tenantID, key, owner); err != nil {
			return false, fmt.Errorf("failed to clear stale claim: %w", err)
		}
	}

	ok, err = m.cache.SetIfAbsent(ctx, tenantID, key, []byte(h.ID), m.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to claim resource: %w", err)
	}
	return ok, nil
}

func (m *Manager) load(ctx context.Context, tenantID, id string) (*domain.Hold, error) {
	if tenantID == "" || id == "" {
		return nil, fmt.Errorf("tenantID and hold id are required")
	}

	data, err := m.cache.Get(ctx, tenantID, holdKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read hold: %w", err)
	}
	if data == nil {
		return nil, ErrHoldExpired
	}

	var h domain.Hold
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode hold: %w", err)
	}
	return &h, nil
}

// remove deletes the hold and its resource claim, leaving claims owned by
// other holds in place.
func (m *Manager) remove(ctx context.Context, tenantID string, h *domain.Hold) error {
	if err := m.cache.Delete(ctx, tenantID, holdKey(h.ID)); err != nil {
		return fmt.Errorf("failed to delete hold: %w", err)
	}

	if _, err := m.cache.DeleteIfValue(ctx, tenantID, resourceKey(h.ResourceID), []byte(h.ID)); err != nil {
		return fmt.Errorf("failed to release resource: %w", err)
	}
	return nil
}

func holdKey(id string) string {
	return "hold:" + id
}

func resourceKey(resourceID string) string {
	return "resource:" + resourceID
}
