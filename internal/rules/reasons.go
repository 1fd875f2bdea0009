package rules

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/verdict/internal/domain"
)

// Reason constructors. Amounts are reported as raw integers; formatting is
// left to the presentation layer.

func programReason(status domain.ProgramStatus, sev domain.Severity) domain.Reason {
	r := domain.Reason{Code: domain.CodeProgram, Severity: sev}
	switch status {
	case domain.StatusNotLinked:
		r.Title = "Program not linked"
		r.Detail = "No program account is linked to this actor."
	case domain.StatusNotEligible:
		r.Title = "Not eligible"
		r.Detail = "The actor is not eligible for this program."
	case domain.StatusDepositDepleted:
		r.Title = "Deposit depleted"
		r.Detail = "The program deposit has been used up."
	case domain.StatusCreditLimitExceeded:
		r.Title = "Credit limit exceeded"
		r.Detail = "The program credit limit has been exceeded."
	case domain.StatusDelinquent:
		if sev == domain.SeverityCritical {
			r.Title = "Billing delinquent"
			r.Detail = "The program account is delinquent and no grace period is active."
		} else {
			r.Title = "Billing delinquent (grace period)"
			r.Detail = "The program account is delinquent; a grace period is active."
		}
	default:
		r.Title = "Program status unknown"
		r.Detail = fmt.Sprintf("Program status %q is not recognised.", status)
	}
	return r
}

func missingFieldsReason(fields []string) domain.Reason {
	return domain.Reason{
		Code:     domain.CodeFields,
		Title:    "Required fields missing",
		Detail:   "Missing: " + strings.Join(fields, ", ") + ".",
		Severity: domain.SeverityCritical,
	}
}

func outsideRegionReason(region string) domain.Reason {
	detail := "The location is outside the allowed service region."
	if region != "" {
		detail = fmt.Sprintf("The location is outside the allowed region %s.", region)
	}
	return domain.Reason{
		Code:     domain.CodeLocation,
		Title:    "Outside allowed region",
		Detail:   detail,
		Severity: domain.SeverityCritical,
	}
}

func noSlotReason() domain.Reason {
	return domain.Reason{
		Code:     domain.CodeTime,
		Title:    "No time slot selected",
		Detail:   "Select a time slot before continuing.",
		Severity: domain.SeverityCritical,
	}
}

func outsideHoursReason(slot *domain.Slot) domain.Reason {
	return domain.Reason{
		Code:     domain.CodeTime,
		Title:    "Outside policy hours",
		Detail:   fmt.Sprintf("Slot %s on %s (%d-%d) is outside policy hours.", slot.ID, slot.Day, slot.StartMinute, slot.EndMinute),
		Severity: domain.SeverityWarning,
	}
}

func denylistedReason(recipientID string) domain.Reason {
	return domain.Reason{
		Code:     domain.CodeRecipient,
		Title:    "Recipient denylisted",
		Detail:   fmt.Sprintf("Recipient %s may not be paid with program funds.", recipientID),
		Severity: domain.SeverityCritical,
	}
}

func unapprovedReason(recipientID string, total, limit int64, sev domain.Severity) domain.Reason {
	return domain.Reason{
		Code:     domain.CodeRecipient,
		Title:    "Unapproved recipient",
		Detail:   fmt.Sprintf("Recipient %s is not approved for totals above %d (total %d).", recipientID, limit, total),
		Severity: sev,
	}
}

func categoryRouteReason(category, flow string) domain.Reason {
	return domain.Reason{
		Code:     domain.CodeCategory,
		Title:    "Handled by another flow",
		Detail:   fmt.Sprintf("Category %s should go through %s.", category, flow),
		Severity: domain.SeverityWarning,
	}
}

func amountReason(total, limit int64, sev domain.Severity) domain.Reason {
	title := "Approval threshold exceeded"
	if sev == domain.SeverityCritical {
		title = "Hard limit exceeded"
	}
	return domain.Reason{
		Code:     domain.CodeAmount,
		Title:    title,
		Detail:   fmt.Sprintf("Total %d exceeds %d.", total, limit),
		Severity: sev,
	}
}

func personalPaymentReason() domain.Reason {
	return domain.Reason{
		Code:     domain.CodePayment,
		Title:    "Personal payment",
		Detail:   "Paid with a personal method; program policy does not apply.",
		Severity: domain.SeverityInfo,
	}
}

func withinPolicyReason() domain.Reason {
	return domain.Reason{
		Code:     domain.CodeOK,
		Title:    "Within policy",
		Detail:   "All program checks passed.",
		Severity: domain.SeverityInfo,
	}
}
