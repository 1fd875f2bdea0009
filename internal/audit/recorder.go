// Package audit records finalized decisions to an append-only trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/verdict/internal/domain"
)

// Recorder publishes audit records on the event bus, or writes them straight
// to the repository when no bus is configured.
type Recorder struct {
	bus    domain.EventBus
	repo   domain.Repository
	logger *slog.Logger
}

// NewRecorder creates a recorder. bus may be nil.
func NewRecorder(bus domain.EventBus, repo domain.Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{bus: bus, repo: repo, logger: logger}
}

// Record appends rec to the trail, filling in ID and Timestamp when unset.
func (r *Recorder) Record(ctx context.Context, tenantID string, rec *domain.AuditRecord) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.TenantID = tenantID

	if r.bus == nil {
		if r.repo == nil {
			return fmt.Errorf("no audit destination configured")
		}
		if err := r.repo.AppendAudit(ctx, tenantID, rec); err != nil {
			return fmt.Errorf("failed to append audit record: %w", err)
		}
		return nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	if err := r.bus.Publish(ctx, tenantID, domain.TopicAuditRecord, payload); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}

	r.logger.Debug("audit record published",
		"audit_id", rec.ID,
		"tenant_id", tenantID,
		"kind", rec.Kind,
	)
	return nil
}

// Trail reads back recorded entries for an actor, oldest first.
func (r *Recorder) Trail(ctx context.Context, tenantID, actor string, limit int) ([]*domain.AuditRecord, error) {
	if r.repo == nil {
		return nil, fmt.Errorf("no audit store configured")
	}
	return r.repo.ListAudit(ctx, tenantID, actor, limit)
}
