package domain

import (
	"time"
)

// Evaluation wraps a Decision with identity and processing metadata.
type Evaluation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	ActorID   string    `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`

	Decision

	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	DecisionMs     int64  `json:"decisionMs"`
	TotalMs        int64  `json:"totalMs"`
	EngineVersion  string `json:"engineVersion"`
}

// EvaluationResponse is the API response for a policy evaluation.
type EvaluationResponse struct {
	DecisionID   string             `json:"decisionId"`
	TenantID     string             `json:"tenantId"`
	Outcome      Outcome            `json:"outcome"`
	Reasons      []Reason           `json:"reasons"`
	Alternatives []Alternative      `json:"alternatives"`
	Metadata     EvaluationMetadata `json:"metadata"`
}

// ToResponse converts an Evaluation to an API response.
func (e *Evaluation) ToResponse() *EvaluationResponse {
	alts := e.Alternatives
	if alts == nil {
		alts = []Alternative{}
	}
	return &EvaluationResponse{
		DecisionID:   e.ID,
		TenantID:     e.TenantID,
		Outcome:      e.Outcome,
		Reasons:      e.Reasons,
		Alternatives: alts,
		Metadata:     e.Metadata,
	}
}

// AuditRecord flattens the evaluation for the audit trail.
func (e *Evaluation) AuditRecord() AuditRecord {
	return AuditRecord{
		ID:        e.ID,
		TenantID:  e.TenantID,
		Kind:      AuditPolicyDecision,
		Actor:     e.ActorID,
		SubjectID: e.ID,
		Outcome:   string(e.Outcome),
		Reasons:   e.Reasons,
		Timestamp: e.Timestamp,
	}
}
