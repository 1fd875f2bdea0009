// Package decision wraps policy engine results in an auditable envelope.
package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EngineVersion identifies the rule table revision in evaluation metadata.
const EngineVersion = "verdict-1.0"

var tracer = otel.Tracer("verdict-decision")

// Recorder receives one audit record per finalized decision.
type Recorder interface {
	Record(ctx context.Context, tenantID string, rec *domain.AuditRecord) error
}

// Processor evaluates a context and produces an identified Evaluation.
type Processor struct {
	engine   *rules.Engine
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor creates a processor. recorder may be nil to skip auditing.
func NewProcessor(engine *rules.Engine, recorder Recorder, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		engine:   engine,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	TenantID  string
	TraceID   string
	Context   domain.PolicyContext
	StartTime time.Time
}

// Process evaluates the input and records the result.
// Every call mints a new decision ID; Outcome and Reasons depend only on the
// context. A zero EvaluatedAt is stamped with the current time first.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Evaluation {
	start := p.now()
	if input.StartTime.IsZero() {
		input.StartTime = start
	}

	policyCtx := input.Context
	if policyCtx.EvaluatedAt.IsZero() {
		policyCtx.EvaluatedAt = start.UTC()
	}

	ctx, span := tracer.Start(ctx, "policy.evaluate",
		trace.WithAttributes(
			attribute.String("tenant.id", input.TenantID),
			attribute.String("actor.id", policyCtx.ActorID),
		),
	)
	defer span.End()

	decision := p.engine.Evaluate(policyCtx)

	eval := &domain.Evaluation{
		ID:        uuid.New().String(),
		TenantID:  input.TenantID,
		ActorID:   policyCtx.ActorID,
		Timestamp: start.UTC(),
		Decision:  decision,
	}

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:        input.TraceID,
		RulesEvaluated: p.engine.RulesCount(),
		DecisionMs:     p.now().Sub(start).Milliseconds(),
		TotalMs:        p.now().Sub(input.StartTime).Milliseconds(),
		EngineVersion:  EngineVersion,
	}

	span.SetAttributes(
		attribute.String("decision.id", eval.ID),
		attribute.String("decision.outcome", string(eval.Outcome)),
		attribute.Int("decision.reasons", len(eval.Reasons)),
		attribute.Int("decision.alternatives", len(eval.Alternatives)),
	)

	if p.recorder != nil {
		rec := eval.AuditRecord()
		if err := p.recorder.Record(ctx, input.TenantID, &rec); err != nil {
			span.RecordError(err)
			p.logger.Error("failed to record decision",
				"decision_id", eval.ID,
				"tenant_id", input.TenantID,
				"error", err,
			)
		}
	}

	p.logger.Debug("policy evaluated",
		"decision_id", eval.ID,
		"tenant_id", input.TenantID,
		"actor_id", eval.ActorID,
		"outcome", eval.Outcome,
		"reasons", len(eval.Reasons),
		"alternatives", len(eval.Alternatives),
	)

	return eval
}

// Engine exposes the underlying rule engine.
func (p *Processor) Engine() *rules.Engine {
	return p.engine
}

// RequiresApproval reports whether the evaluation must go through approval.
func RequiresApproval(eval *domain.Evaluation) bool {
	return eval.Outcome == domain.OutcomeApprovalRequired
}

// ReasonTitles extracts human-readable reason titles, worst severity first.
func ReasonTitles(eval *domain.Evaluation) []string {
	titles := make([]string, 0, len(eval.Reasons))
	for _, sev := range []domain.Severity{domain.SeverityCritical, domain.SeverityWarning, domain.SeverityInfo} {
		for _, r := range eval.Reasons {
			if r.Severity == sev {
				titles = append(titles, r.Title)
			}
		}
	}
	return titles
}
