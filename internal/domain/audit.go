package domain

import "time"

// AuditKind labels what produced an audit record.
type AuditKind string

const (
	AuditPolicyDecision AuditKind = "policy_decision"
	AuditRiskAssessment AuditKind = "risk_assessment"
	AuditStepUp         AuditKind = "step_up"
	AuditDeviceTrust    AuditKind = "device_trust"
	AuditApproval       AuditKind = "approval"
)

// AuditRecord is a flat, serializable trace of one finalized decision.
type AuditRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Kind      AuditKind `json:"kind"`
	Actor     string    `json:"actor"`
	SubjectID string    `json:"subjectId"`
	Outcome   string    `json:"outcome"`
	Reasons   []Reason  `json:"reasons,omitempty"`
	Codes     []string  `json:"codes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
