// Package bus provides event bus implementations for Verdict.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/verdict/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrTenantRequired is returned when a publish names no concrete tenant.
	ErrTenantRequired = errors.New("a concrete tenantID is required")
	// ErrClosed is returned by a bus after Close.
	ErrClosed = errors.New("bus is closed")
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
// Type "none" returns a nil bus; callers then work synchronously.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// checkPublishTenant rejects the wildcard and anything that would split a
// subject token.
func checkPublishTenant(tenantID string) error {
	if tenantID == "" || tenantID == domain.AllTenants {
		return ErrTenantRequired
	}
	if strings.ContainsAny(tenantID, ". *>") {
		return fmt.Errorf("%w: invalid tenantID %q", ErrTenantRequired, tenantID)
	}
	return nil
}

// newMessage builds the envelope both buses deliver.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  messageMetadata(ctx),
		Timestamp: time.Now().UnixNano(),
	}
}

// messageMetadata carries the publisher's trace ID so subscribers can
// correlate their work with the originating request.
func messageMetadata(ctx context.Context) map[string]string {
	md := make(map[string]string)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		md["trace_id"] = sc.TraceID().String()
	}
	return md
}
