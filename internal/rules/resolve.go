package rules

import (
	"errors"

	"github.com/opensource-finance/verdict/internal/domain"
)

// ErrNoReasons is returned when the resolver is given nothing to reason about.
var ErrNoReasons = errors.New("at least one reason is required")

// ResolveOutcome folds reason severities into an outcome.
// Any Critical blocks; otherwise any Warning requires approval; otherwise allowed.
// The result depends only on the set of severities, not their order.
func ResolveOutcome(reasons []domain.Reason) (domain.Outcome, error) {
	if len(reasons) == 0 {
		return "", ErrNoReasons
	}
	worst := domain.SeverityInfo
	for _, r := range reasons {
		if r.Severity > worst {
			worst = r.Severity
		}
	}
	switch {
	case worst >= domain.SeverityCritical:
		return domain.OutcomeBlocked, nil
	case worst == domain.SeverityWarning:
		return domain.OutcomeApprovalRequired, nil
	default:
		return domain.OutcomeAllowed, nil
	}
}
