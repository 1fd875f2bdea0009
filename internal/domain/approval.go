package domain

import "time"

// ApprovalState is a state of the approval lifecycle.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "PENDING"
	ApprovalApproved ApprovalState = "APPROVED"
	ApprovalRejected ApprovalState = "REJECTED"
	ApprovalExpired  ApprovalState = "EXPIRED"
)

// ApprovalRequest tracks a decision that requires approval.
type ApprovalRequest struct {
	ID         string        `json:"id"`
	DecisionID string        `json:"decisionId"`
	ActorID    string        `json:"actorId"`
	State      ApprovalState `json:"state"`
	Approver   string        `json:"approver,omitempty"`
	Note       string        `json:"note,omitempty"`
	Reasons    []Reason      `json:"reasons"`
	CreatedAt  time.Time     `json:"createdAt"`
	DecidedAt  *time.Time    `json:"decidedAt,omitempty"`
}
