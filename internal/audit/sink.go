package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/verdict/internal/domain"
)

var (
	// ErrNoSubscriptions is returned by Start when no tenant could subscribe.
	ErrNoSubscriptions = errors.New("audit sink has no subscriptions")

	// ErrTenantMismatch is returned for a record that names a tenant other
	// than the one it was published under.
	ErrTenantMismatch = errors.New("audit record tenant does not match message tenant")
)

// Sink consumes audit records from the EventBus and appends them to the
// repository.
type Sink struct {
	bus    domain.EventBus
	repo   domain.Repository
	logger *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	appended atomic.Int64
	failed   atomic.Int64
}

// Config holds sink configuration.
type Config struct {
	// TenantIDs restricts the sink to these tenants (empty = all tenants)
	TenantIDs []string
}

// NewSink creates a new audit sink.
func NewSink(bus domain.EventBus, repo domain.Repository, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sink{
		bus:    bus,
		repo:   repo,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the audit topic for the configured tenants. Tenants
// that fail to subscribe are logged; ErrNoSubscriptions is returned when
// none succeeded.
func (s *Sink) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tenantID := range tenants {
		sub, err := s.bus.Subscribe(s.ctx, tenantID, domain.TopicAuditRecord, s.handleMessage)
		if err != nil {
			s.logger.Error("failed to start audit sink for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		s.subscriptions = append(s.subscriptions, sub)
	}

	if len(s.subscriptions) == 0 {
		return fmt.Errorf("%w: tried %d tenants", ErrNoSubscriptions, len(tenants))
	}

	s.logger.Info("audit sink started",
		"subscription_count", len(s.subscriptions),
		"topic", domain.TopicAuditRecord,
	)
	return nil
}

// handleMessage appends one published record.
func (s *Sink) handleMessage(ctx context.Context, msg *domain.Message) error {
	var rec domain.AuditRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		s.failed.Add(1)
		s.logger.Error("failed to parse audit message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// The subject tenant is authoritative; the payload may only repeat it.
	tenantID := msg.TenantID
	if rec.TenantID != "" && rec.TenantID != tenantID {
		s.failed.Add(1)
		s.logger.Error("rejected audit record for another tenant",
			"audit_id", rec.ID,
			"tenant_id", tenantID,
			"record_tenant_id", rec.TenantID,
		)
		return ErrTenantMismatch
	}

	if err := s.repo.AppendAudit(ctx, tenantID, &rec); err != nil {
		s.failed.Add(1)
		s.logger.Error("failed to append audit record",
			"audit_id", rec.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	s.appended.Add(1)
	s.logger.Debug("audit record appended",
		"audit_id", rec.ID,
		"tenant_id", tenantID,
		"kind", rec.Kind,
		"trace_id", msg.Metadata["trace_id"],
	)
	return nil
}

// Stop unsubscribes from the bus.
func (s *Sink) Stop() error {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	s.subscriptions = nil

	s.logger.Info("audit sink stopped")
	return nil
}

// Stats returns sink statistics.
type Stats struct {
	SubscriptionCount int   `json:"subscriptionCount"`
	Appended          int64 `json:"appended"`
	Failed            int64 `json:"failed"`
}

// GetStats returns current sink statistics.
func (s *Sink) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SubscriptionCount: len(s.subscriptions),
		Appended:          s.appended.Load(),
		Failed:            s.failed.Load(),
	}
}
