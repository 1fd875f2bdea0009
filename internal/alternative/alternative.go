// Package alternative proposes minimal context changes that would improve a
// policy outcome.
package alternative

import (
	"fmt"

	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/window"
)

// DefaultLimit caps the alternative list when the config does not.
const DefaultLimit = 8

// Evaluator re-evaluates a patched context.
type Evaluator func(ctx domain.PolicyContext) domain.Outcome

// Input is the evaluated state alternatives are generated for.
type Input struct {
	Context domain.PolicyContext
	Config  domain.PolicyConfig
	Outcome domain.Outcome
	Reasons []domain.Reason
}

type candidate struct {
	title       string
	description string
	patch       domain.ContextPatch
	// assumed skips re-evaluation; set when the outcome is known by definition.
	assumed domain.Outcome
}

// Generate returns deduplicated alternatives for in, best first.
//
// Switching to personal payment is always offered for program-governed
// contexts that are not already allowed. Targeted fixes are derived from each
// reason and kept only when re-evaluating the patched context yields a
// strictly better outcome. Duplicates by (title, patch) collapse to one.
func Generate(in Input, evaluate Evaluator) []domain.Alternative {
	ctx := in.Context
	if !ctx.FundingMethod.ProgramGoverned() || in.Outcome == domain.OutcomeAllowed {
		return nil
	}

	limit := in.Config.MaxAlternatives
	if limit <= 0 {
		limit = DefaultLimit
	}

	personal := domain.FundingPersonal
	candidates := []candidate{{
		title:       "Pay personally",
		description: "Use a personal payment method; program policy will not apply.",
		patch:       domain.ContextPatch{FundingMethod: &personal},
		assumed:     domain.OutcomeAllowed,
	}}

	var targeted []candidate
	for _, r := range in.Reasons {
		targeted = append(targeted, forReason(r, &ctx, &in.Config)...)
	}
	candidates = append(candidates, targeted...)
	if combined, ok := combine(targeted); ok {
		candidates = append(candidates, combined)
	}

	var (
		out  []domain.Alternative
		seen = make(map[string]bool)
	)
	for _, c := range candidates {
		if len(out) >= limit {
			break
		}
		key := c.title + "|" + c.patch.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		expected := c.assumed
		if expected == "" {
			expected = evaluate(c.patch.Apply(ctx))
			if !expected.Better(in.Outcome) {
				continue
			}
		}

		out = append(out, domain.Alternative{
			ID:              fmt.Sprintf("alt-%d", len(out)+1),
			Title:           c.title,
			Description:     c.description,
			ExpectedOutcome: expected,
			Patch:           c.patch,
		})
	}
	return out
}

func forReason(r domain.Reason, ctx *domain.PolicyContext, cfg *domain.PolicyConfig) []candidate {
	if r.Severity == domain.SeverityInfo {
		return nil
	}
	switch r.Code {
	case domain.CodeTime:
		if slot, ok := compliantSlot(ctx, cfg); ok {
			return []candidate{{
				title:       "Pick a policy-compliant slot",
				description: fmt.Sprintf("Switch to slot %s on %s (%d-%d).", slot.ID, slot.Day, slot.StartMinute, slot.EndMinute),
				patch:       domain.ContextPatch{Slot: &slot},
			}}
		}
	case domain.CodeRecipient:
		if ctx.SuggestedRecipientID != "" && ctx.SuggestedRecipientID != ctx.RecipientID {
			id := ctx.SuggestedRecipientID
			tier := domain.TierApproved
			return []candidate{{
				title:       "Choose an approved recipient",
				description: fmt.Sprintf("Pay approved recipient %s instead.", id),
				patch:       domain.ContextPatch{RecipientID: &id, RecipientTier: &tier},
			}}
		}
	case domain.CodeAmount:
		if limit := cfg.ApprovalThreshold; limit > 0 && ctx.Total > limit {
			return []candidate{{
				title:       "Reduce the total",
				description: fmt.Sprintf("Lower the total to %d or less, for example by dropping an add-on.", limit),
				patch:       domain.ContextPatch{Total: &limit},
			}}
		}
	}
	return nil
}

// compliantSlot returns the first offered slot inside policy hours.
func compliantSlot(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) (domain.Slot, bool) {
	for _, s := range ctx.CompliantSlots {
		if ctx.Slot != nil && s == *ctx.Slot {
			continue
		}
		if window.SlotWithin(cfg.PolicyWindows, s) {
			return s, true
		}
	}
	return domain.Slot{}, false
}

// combine merges two or more targeted fixes into one suggestion, for cases
// where no single fix improves the outcome on its own.
func combine(targeted []candidate) (candidate, bool) {
	var patch domain.ContextPatch
	distinct := make(map[string]bool)
	for _, c := range targeted {
		distinct[c.title] = true
		if c.patch.Slot != nil {
			patch.Slot = c.patch.Slot
		}
		if c.patch.RecipientID != nil {
			patch.RecipientID = c.patch.RecipientID
			patch.RecipientTier = c.patch.RecipientTier
		}
		if c.patch.Total != nil {
			patch.Total = c.patch.Total
		}
	}
	if len(distinct) < 2 {
		return candidate{}, false
	}
	return candidate{
		title:       "Apply all suggested changes",
		description: "Combine the suggested slot, recipient and amount changes.",
		patch:       patch,
	}, true
}
