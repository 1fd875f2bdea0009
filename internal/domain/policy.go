package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Severity ranks how strongly a Reason pushes a decision.
// The zero value is SeverityInfo.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "severity(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown severity %d", int(s))
	}
}

// UnmarshalText decodes a severity name, case-insensitively.
func (s *Severity) UnmarshalText(b []byte) error {
	sev, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ParseSeverity converts "info", "warning" or "critical" to a Severity.
func ParseSeverity(v string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", v)
	}
}

// ReasonCode identifies which policy dimension produced a Reason.
type ReasonCode string

const (
	CodeProgram   ReasonCode = "PROGRAM"
	CodeFields    ReasonCode = "FIELDS"
	CodeLocation  ReasonCode = "LOCATION"
	CodeTime      ReasonCode = "TIME"
	CodeRecipient ReasonCode = "RECIPIENT"
	CodeCategory  ReasonCode = "CATEGORY"
	CodeAmount    ReasonCode = "AMOUNT"
	CodePayment   ReasonCode = "PAYMENT"
	CodeOK        ReasonCode = "OK"
)

// Valid reports whether c belongs to the closed set of reason codes.
func (c ReasonCode) Valid() bool {
	switch c {
	case CodeProgram, CodeFields, CodeLocation, CodeTime, CodeRecipient,
		CodeCategory, CodeAmount, CodePayment, CodeOK:
		return true
	}
	return false
}

// Reason is one explanatory fact contributing to a decision.
type Reason struct {
	Code     ReasonCode `json:"code"`
	Title    string     `json:"title"`
	Detail   string     `json:"detail"`
	Severity Severity   `json:"severity"`
}

// Outcome is the final tri-state decision.
type Outcome string

const (
	OutcomeAllowed          Outcome = "ALLOWED"
	OutcomeApprovalRequired Outcome = "APPROVAL_REQUIRED"
	OutcomeBlocked          Outcome = "BLOCKED"
)

// Rank orders outcomes from best (0) to worst (2).
func (o Outcome) Rank() int {
	switch o {
	case OutcomeAllowed:
		return 0
	case OutcomeApprovalRequired:
		return 1
	default:
		return 2
	}
}

// Better reports whether o is a strictly better outcome than other.
func (o Outcome) Better(other Outcome) bool {
	return o.Rank() < other.Rank()
}

// FundingMethod is how the action is paid for.
type FundingMethod string

const (
	FundingProgram  FundingMethod = "PROGRAM"
	FundingPersonal FundingMethod = "PERSONAL"
)

// ProgramGoverned reports whether program policy applies to the method.
// Anything other than an explicit personal method is treated as governed.
func (f FundingMethod) ProgramGoverned() bool {
	return f != FundingPersonal
}

// ProgramStatus is the account/program standing of the actor.
type ProgramStatus string

const (
	StatusEligible            ProgramStatus = "ELIGIBLE"
	StatusNotLinked           ProgramStatus = "NOT_LINKED"
	StatusNotEligible         ProgramStatus = "NOT_ELIGIBLE"
	StatusDepositDepleted     ProgramStatus = "DEPOSIT_DEPLETED"
	StatusCreditLimitExceeded ProgramStatus = "CREDIT_LIMIT_EXCEEDED"
	StatusDelinquent          ProgramStatus = "DELINQUENT"
)

// RecipientTier is the trust tier of the vendor or recipient.
type RecipientTier string

const (
	TierApproved   RecipientTier = "APPROVED"
	TierUnapproved RecipientTier = "UNAPPROVED"
	TierDenylisted RecipientTier = "DENYLISTED"
)

// Slot is a selected time slot, in minutes since midnight.
type Slot struct {
	ID          string       `json:"id"`
	Day         time.Weekday `json:"day"`
	StartMinute int          `json:"startMinute"`
	EndMinute   int          `json:"endMinute"`
}

// PolicyContext is the snapshot of facts a decision is made against.
// It is rebuilt by the caller for every evaluation and never mutated by the engine.
type PolicyContext struct {
	ActorID       string        `json:"actorId"`
	FundingMethod FundingMethod `json:"fundingMethod"`
	ProgramStatus ProgramStatus `json:"programStatus"`
	GraceUntil    *time.Time    `json:"graceUntil,omitempty"`

	RecipientID          string        `json:"recipientId"`
	RecipientTier        RecipientTier `json:"recipientTier"`
	SuggestedRecipientID string        `json:"suggestedRecipientId,omitempty"`

	Category string `json:"category,omitempty"`

	// Total is a non-negative amount in a single currency.
	Total int64 `json:"total"`

	MissingFields []string `json:"missingFields,omitempty"`

	Slot           *Slot  `json:"slot,omitempty"`
	CompliantSlots []Slot `json:"compliantSlots,omitempty"`

	// InRegion is nil when no geo constraint applies.
	InRegion *bool  `json:"inRegion,omitempty"`
	Region   string `json:"region,omitempty"`

	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// InGrace reports whether a grace period is active at EvaluatedAt.
func (c *PolicyContext) InGrace() bool {
	return c.GraceUntil != nil && c.GraceUntil.After(c.EvaluatedAt)
}

// ContextPatch is the minimal change an Alternative proposes.
// Nil fields are left untouched when applied.
type ContextPatch struct {
	FundingMethod *FundingMethod `json:"fundingMethod,omitempty"`
	RecipientID   *string        `json:"recipientId,omitempty"`
	RecipientTier *RecipientTier `json:"recipientTier,omitempty"`
	Slot          *Slot          `json:"slot,omitempty"`
	Total         *int64         `json:"total,omitempty"`
}

// Apply returns a copy of ctx with the patch applied.
func (p ContextPatch) Apply(ctx PolicyContext) PolicyContext {
	out := ctx
	out.MissingFields = append([]string(nil), ctx.MissingFields...)
	out.CompliantSlots = append([]Slot(nil), ctx.CompliantSlots...)
	if p.FundingMethod != nil {
		out.FundingMethod = *p.FundingMethod
	}
	if p.RecipientID != nil {
		out.RecipientID = *p.RecipientID
	}
	if p.RecipientTier != nil {
		out.RecipientTier = *p.RecipientTier
	}
	if p.Slot != nil {
		s := *p.Slot
		out.Slot = &s
	}
	if p.Total != nil {
		out.Total = *p.Total
	}
	return out
}

// Key is a canonical string identifying the patch's semantic content.
func (p ContextPatch) Key() string {
	var parts []string
	if p.FundingMethod != nil {
		parts = append(parts, "funding="+string(*p.FundingMethod))
	}
	if p.RecipientID != nil {
		parts = append(parts, "recipient="+*p.RecipientID)
	}
	if p.RecipientTier != nil {
		parts = append(parts, "tier="+string(*p.RecipientTier))
	}
	if p.Slot != nil {
		parts = append(parts, fmt.Sprintf("slot=%s/%d/%d-%d", p.Slot.ID, p.Slot.Day, p.Slot.StartMinute, p.Slot.EndMinute))
	}
	if p.Total != nil {
		parts = append(parts, "total="+strconv.FormatInt(*p.Total, 10))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// Alternative is an advisory change that would plausibly improve the outcome.
type Alternative struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	ExpectedOutcome Outcome      `json:"expectedOutcome"`
	Patch           ContextPatch `json:"contextPatch"`
}

// Decision is the pure result of evaluating one context.
type Decision struct {
	Outcome      Outcome       `json:"outcome"`
	Reasons      []Reason      `json:"reasons"`
	Alternatives []Alternative `json:"alternatives"`
}
