// Package approval runs the approval lifecycle for decisions that require it.
package approval

import (
	"errors"
	"strings"

	"github.com/opensource-finance/verdict/internal/domain"
)

var (
	ErrInvalidTransition   = errors.New("invalid approval transition")
	ErrSelfApproval        = errors.New("approver must differ from requester")
	ErrNotApprovalRequired = errors.New("decision does not require approval")
)

// Event drives the approval state machine.
type Event string

const (
	EventApprove Event = "APPROVE"
	EventReject  Event = "REJECT"
	EventExpire  Event = "EXPIRE"
)

// CanTransition reports whether from may move to to. Only PENDING moves.
func CanTransition(from, to domain.ApprovalState) bool {
	if from != domain.ApprovalPending {
		return false
	}
	return to == domain.ApprovalApproved || to == domain.ApprovalRejected || to == domain.ApprovalExpired
}

func Transition(from, to domain.ApprovalState) (domain.ApprovalState, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidTransition
	}
	return to, nil
}

// Next applies event to state. On error the state is returned unchanged.
func Next(from domain.ApprovalState, event Event) (domain.ApprovalState, error) {
	switch event {
	case EventApprove:
		return Transition(from, domain.ApprovalApproved)
	case EventReject:
		return Transition(from, domain.ApprovalRejected)
	case EventExpire:
		return Transition(from, domain.ApprovalExpired)
	default:
		return from, ErrInvalidTransition
	}
}

func IsTerminal(state domain.ApprovalState) bool {
	switch state {
	case domain.ApprovalApproved, domain.ApprovalRejected, domain.ApprovalExpired:
		return true
	default:
		return false
	}
}

// ParseEvent accepts event names case-insensitively.
func ParseEvent(s string) (Event, error) {
	switch e := Event(strings.ToUpper(strings.TrimSpace(s))); e {
	case EventApprove, EventReject, EventExpire:
		return e, nil
	default:
		return "", ErrInvalidTransition
	}
}

// ApproverAllowed enforces separation of duties for human decisions.
func ApproverAllowed(approver, requester string, event Event) error {
	if event == EventExpire {
		return nil
	}
	if strings.TrimSpace(approver) == "" {
		return errors.New("approver is required")
	}
	if strings.EqualFold(strings.TrimSpace(approver), strings.TrimSpace(requester)) {
		return ErrSelfApproval
	}
	return nil
}
