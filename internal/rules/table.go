package rules

import (
	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/window"
)

// Rule is one declarative entry of a rule table: when Predicate holds, the
// rule contributes the Reason built by Build, carrying Severity.
type Rule struct {
	ID        string
	Code      domain.ReasonCode
	Severity  domain.Severity
	Predicate func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) bool
	Build     func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) domain.Reason
}

func (r Rule) apply(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) (domain.Reason, bool) {
	if !r.Predicate(ctx, cfg) {
		return domain.Reason{}, false
	}
	reason := r.Build(ctx, cfg)
	reason.Code = r.Code
	reason.Severity = r.Severity
	return reason, true
}

// blockingStatuses are program statuses that always block.
var blockingStatuses = map[domain.ProgramStatus]bool{
	domain.StatusNotLinked:           true,
	domain.StatusNotEligible:         true,
	domain.StatusDepositDepleted:     true,
	domain.StatusCreditLimitExceeded: true,
}

func knownStatus(s domain.ProgramStatus) bool {
	return s == domain.StatusEligible || s == domain.StatusDelinquent || blockingStatuses[s]
}

// ProgramTable is the ordered checklist for program-governed funding.
// A zero threshold in the config disables the corresponding check.
func ProgramTable() []Rule {
	return []Rule{
		// 1. Program/account standing
		{
			ID: "program.blocked", Code: domain.CodeProgram, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return blockingStatuses[ctx.ProgramStatus]
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return programReason(ctx.ProgramStatus, domain.SeverityCritical)
			},
		},
		{
			ID: "program.unknown", Code: domain.CodeProgram, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return !knownStatus(ctx.ProgramStatus)
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return programReason(ctx.ProgramStatus, domain.SeverityCritical)
			},
		},
		{
			ID: "program.delinquent", Code: domain.CodeProgram, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return ctx.ProgramStatus == domain.StatusDelinquent && !ctx.InGrace()
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return programReason(ctx.ProgramStatus, domain.SeverityCritical)
			},
		},
		{
			ID: "program.grace", Code: domain.CodeProgram, Severity: domain.SeverityWarning,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return ctx.ProgramStatus == domain.StatusDelinquent && ctx.InGrace()
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return programReason(ctx.ProgramStatus, domain.SeverityWarning)
			},
		},

		// 2. Required fields
		{
			ID: "fields.missing", Code: domain.CodeFields, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return len(ctx.MissingFields) > 0
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return missingFieldsReason(ctx.MissingFields)
			},
		},

		// 3. Location
		{
			ID: "location.outside", Code: domain.CodeLocation, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return ctx.InRegion != nil && !*ctx.InRegion
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return outsideRegionReason(ctx.Region)
			},
		},

		// 4. Time
		{
			ID: "time.missing", Code: domain.CodeTime, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return ctx.Slot == nil
			},
			Build: func(_ *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return noSlotReason()
			},
		},
		{
			ID: "time.outside_hours", Code: domain.CodeTime, Severity: domain.SeverityWarning,
			Predicate: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) bool {
				return ctx.Slot != nil && !window.SlotWithin(cfg.PolicyWindows, *ctx.Slot)
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return outsideHoursReason(ctx.Slot)
			},
		},

		// 5. Recipient trust tier
		{
			ID: "recipient.denylisted", Code: domain.CodeRecipient, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) bool {
				return ctx.RecipientTier == domain.TierDenylisted
			},
			Build: func(ctx *domain.PolicyContext, _ *domain.PolicyConfig) domain.Reason {
				return denylistedReason(ctx.RecipientID)
			},
		},
		{
			ID: "recipient.unapproved_block", Code: domain.CodeRecipient, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) bool {
				return ctx.RecipientTier == domain.TierUnapproved &&
					cfg.UnapprovedBlockAbove > 0 && ctx.Total > cfg.UnapprovedBlockAbove
			},
			Build: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) domain.Reason {
				return unapprovedReason(ctx.RecipientID, ctx.Total, cfg.UnapprovedBlockAbove, domain.SeverityCritical)
			},
		},
		{
			ID: "recipient.unapproved_warn", Code: domain.CodeRecipient, Severity: domain.SeverityWarning,
			Predicate: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) bool {
				if ctx.RecipientTier != domain.TierUnapproved || cfg.UnapprovedWarnAbove <= 0 {
					return false
				}
				blocked := cfg.UnapprovedBlockAbove > 0 && ctx.Total > cfg.UnapprovedBlockAbove
				return ctx.Total > cfg.UnapprovedWarnAbove && !blocked
			},
			Build: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) domain.Reason {
				return unapprovedReason(ctx.RecipientID, ctx.Total, cfg.UnapprovedWarnAbove, domain.SeverityWarning)
			},
		},

		// 6. Category routing
		{
			ID: "category.routed", Code: domain.CodeCategory, Severity: domain.SeverityWarning,
			Predicate: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) bool {
				_, ok := cfg.CategoryRoutes[ctx.Category]
				return ctx.Category != "" && ok
			},
			Build: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) domain.Reason {
				return categoryRouteReason(ctx.Category, cfg.CategoryRoutes[ctx.Category])
			},
		},

		// 7. Monetary threshold
		{
			ID: "amount.hard_limit", Code: domain.CodeAmount, Severity: domain.SeverityCritical,
			Predicate: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) bool {
				return cfg.HardLimit > 0 && ctx.Total > cfg.HardLimit
			},
			Build: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) domain.Reason {
				return amountReason(ctx.Total, cfg.HardLimit, domain.SeverityCritical)
			},
		},
		{
			ID: "amount.approval", Code: domain.CodeAmount, Severity: domain.SeverityWarning,
			Predicate: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) bool {
				if cfg.ApprovalThreshold <= 0 || ctx.Total <= cfg.ApprovalThreshold {
					return false
				}
				return cfg.HardLimit <= 0 || ctx.Total <= cfg.HardLimit
			},
			Build: func(ctx *domain.PolicyContext, cfg *domain.PolicyConfig) domain.Reason {
				return amountReason(ctx.Total, cfg.ApprovalThreshold, domain.SeverityWarning)
			},
		},
	}
}
