// Package rules provides the policy decision engine: an ordered rule table
// evaluated against a context snapshot, an outcome resolver, and CEL-based
// expression rules that extend the table.
package rules

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/verdict/internal/alternative"
	"github.com/opensource-finance/verdict/internal/domain"
)

// Engine evaluates one fixed rule table. It holds no per-evaluation state and
// is safe for concurrent use once built.
type Engine struct {
	cfg    domain.PolicyConfig
	table  []Rule
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules appends domain-specific rules after the program checklist.
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.table = append(e.table, rules...)
	}
}

// WithTable replaces the program checklist with another domain's table.
func WithTable(rules []Rule) Option {
	return func(e *Engine) {
		e.table = append([]Rule(nil), rules...)
	}
}

// WithLogger sets the logger used for expression evaluation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine builds the rule table for cfg and compiles its expression rules.
func NewEngine(cfg domain.PolicyConfig, opts ...Option) (*Engine, error) {
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = domain.DefaultMaxAlternatives
	}

	e := &Engine{
		cfg:    cfg,
		table:  ProgramTable(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, r := range e.table {
		if r.Predicate == nil || r.Build == nil {
			return nil, fmt.Errorf("rule %s: predicate and reason builder are required", r.ID)
		}
	}

	if len(cfg.ExpressionRules) > 0 {
		env, err := newExpressionEnv()
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(cfg.ExpressionRules))
		for _, rc := range cfg.ExpressionRules {
			if seen[rc.ID] {
				return nil, fmt.Errorf("duplicate expression rule %s", rc.ID)
			}
			seen[rc.ID] = true

			compiled, err := compileExpressionRule(env, rc, e.logger)
			if err != nil {
				return nil, err
			}
			e.table = append(e.table, compiled)
		}
	}

	return e, nil
}

// Reasons runs the rule table against ctx.
// Personal funding bypasses program policy and yields a single Info reason.
// When no rule fires, a single Info "within policy" reason is returned.
func (e *Engine) Reasons(ctx domain.PolicyContext) []domain.Reason {
	if !ctx.FundingMethod.ProgramGoverned() {
		return []domain.Reason{personalPaymentReason()}
	}

	var reasons []domain.Reason
	for _, r := range e.table {
		if reason, ok := r.apply(&ctx, &e.cfg); ok {
			reasons = append(reasons, reason)
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, withinPolicyReason())
	}
	return reasons
}

// Outcome evaluates ctx without generating alternatives.
func (e *Engine) Outcome(ctx domain.PolicyContext) domain.Outcome {
	outcome, _ := ResolveOutcome(e.Reasons(ctx))
	return outcome
}

// Evaluate produces the outcome, reasons and alternatives for ctx.
// It is a pure function of ctx and the engine's configuration.
func (e *Engine) Evaluate(ctx domain.PolicyContext) domain.Decision {
	reasons := e.Reasons(ctx)
	// Reasons is never empty, so the resolver cannot fail here.
	outcome, _ := ResolveOutcome(reasons)

	alts := alternative.Generate(alternative.Input{
		Context: ctx,
		Config:  e.cfg,
		Outcome: outcome,
		Reasons: reasons,
	}, e.Outcome)
	if alts == nil {
		alts = []domain.Alternative{}
	}

	return domain.Decision{
		Outcome:      outcome,
		Reasons:      reasons,
		Alternatives: alts,
	}
}

// RulesCount returns the number of rules in the table.
func (e *Engine) RulesCount() int {
	return len(e.table)
}

// RuleIDs lists the table's rule IDs in evaluation order.
func (e *Engine) RuleIDs() []string {
	ids := make([]string, 0, len(e.table))
	for _, r := range e.table {
		ids = append(ids, r.ID)
	}
	return ids
}

// Config returns the policy configuration the engine was built with.
func (e *Engine) Config() domain.PolicyConfig {
	return e.cfg
}
