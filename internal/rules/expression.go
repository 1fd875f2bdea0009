package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/verdict/internal/domain"
)

// newExpressionEnv declares the variables expression rules may reference.
func newExpressionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("actor_id", cel.StringType),
		cel.Variable("total", cel.IntType),
		cel.Variable("funding_method", cel.StringType),
		cel.Variable("program_status", cel.StringType),
		cel.Variable("in_grace", cel.BoolType),
		cel.Variable("recipient_id", cel.StringType),
		cel.Variable("recipient_tier", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("missing_fields", cel.ListType(cel.StringType)),
		cel.Variable("has_slot", cel.BoolType),
		cel.Variable("slot_day", cel.IntType),
		cel.Variable("slot_start", cel.IntType),
		cel.Variable("slot_end", cel.IntType),
		cel.Variable("in_region", cel.BoolType),
		cel.Variable("region", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// activation maps a context onto the expression variables.
// A context with no geo constraint reports in_region as true.
func activation(ctx *domain.PolicyContext) map[string]any {
	vars := map[string]any{
		"actor_id":       ctx.ActorID,
		"total":          ctx.Total,
		"funding_method": string(ctx.FundingMethod),
		"program_status": string(ctx.ProgramStatus),
		"in_grace":       ctx.InGrace(),
		"recipient_id":   ctx.RecipientID,
		"recipient_tier": string(ctx.RecipientTier),
		"category":       ctx.Category,
		"missing_fields": append([]string{}, ctx.MissingFields...),
		"has_slot":       ctx.Slot != nil,
		"slot_day":       int64(-1),
		"slot_start":     int64(0),
		"slot_end":       int64(0),
		"in_region":      ctx.InRegion == nil || *ctx.InRegion,
		"region":         ctx.Region,
	}
	if ctx.Slot != nil {
		vars["slot_day"] = int64(ctx.Slot.Day)
		vars["slot_start"] = int64(ctx.Slot.StartMinute)
		vars["slot_end"] = int64(ctx.Slot.EndMinute)
	}
	return vars
}

// compileExpressionRule turns a configured CEL predicate into a table Rule.
func compileExpressionRule(env *cel.Env, cfg domain.ExpressionRuleConfig, logger *slog.Logger) (Rule, error) {
	if cfg.ID == "" {
		return Rule{}, fmt.Errorf("expression rule id is required")
	}
	if !cfg.Code.Valid() || cfg.Code == domain.CodeOK {
		return Rule{}, fmt.Errorf("rule %s: invalid reason code %q", cfg.ID, cfg.Code)
	}
	if cfg.Severity < domain.SeverityInfo || cfg.Severity > domain.SeverityCritical {
		return Rule{}, fmt.Errorf("rule %s: invalid severity %d", cfg.ID, cfg.Severity)
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return Rule{}, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return Rule{}, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	title := cfg.Title
	if title == "" {
		title = cfg.ID
	}

	return Rule{
		ID:       cfg.ID,
		Code:     cfg.Code,
		Severity: cfg.Severity,
		Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
			out, _, err := program.Eval(activation(ctx))
			if err != nil {
				logger.Warn("expression rule evaluation failed", "rule_id", cfg.ID, "error", err)
				return false
			}
			fired, ok := out.(types.Bool)
			return ok && bool(fired)
		},
		Build: func(_ *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
			return domain.Reason{Title: title, Detail: cfg.Detail}
		},
	}, nil
}
