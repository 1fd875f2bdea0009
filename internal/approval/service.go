package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/verdict/internal/domain"
)

// Recorder receives audit records for approval decisions.
type Recorder interface {
	Record(ctx context.Context, tenantID string, rec *domain.AuditRecord) error
}

// Service persists approval requests and applies decisions to them.
type Service struct {
	repo     domain.Repository
	bus      domain.EventBus
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates an approval service. bus and recorder may be nil.
func NewService(repo domain.Repository, bus domain.EventBus, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		bus:      bus,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Open creates a pending request for an APPROVAL_REQUIRED evaluation.
func (s *Service) Open(ctx context.Context, tenantID string, eval *domain.Evaluation) (*domain.ApprovalRequest, error) {
	if eval == nil || eval.Outcome != domain.OutcomeApprovalRequired {
		return nil, ErrNotApprovalRequired
	}

	req := &domain.ApprovalRequest{
		ID:         uuid.New().String(),
		DecisionID: eval.ID,
		ActorID:    eval.ActorID,
		State:      domain.ApprovalPending,
		Reasons:    eval.Reasons,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.SaveApproval(ctx, tenantID, req); err != nil {
		return nil, fmt.Errorf("failed to save approval: %w", err)
	}

	s.logger.Info("approval opened",
		"tenant_id", tenantID,
		"approval_id", req.ID,
		"decision_id", req.DecisionID,
		"actor_id", req.ActorID,
	)
	return req, nil
}

// Get loads a request.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.ApprovalRequest, error) {
	return s.repo.GetApproval(ctx, tenantID, id)
}

// Decide applies event to the request. Terminal requests reject every event
// with ErrInvalidTransition, including a request another caller decided
// between the read and the write.
func (s *Service) Decide(ctx context.Context, tenantID, id, approver string, event Event, note string) (*domain.ApprovalRequest, error) {
	req, err := s.repo.GetApproval(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	next, err := Next(req.State, event)
	if err != nil {
		return nil, fmt.Errorf("%w: %s on %s", err, event, req.State)
	}
	if err := ApproverAllowed(approver, req.ActorID, event); err != nil {
		return nil, err
	}

	decidedAt := s.now().UTC()
	req.State = next
	req.Approver = approver
	req.Note = note
	req.DecidedAt = &decidedAt

	ok, err := s.repo.DecideApproval(ctx, tenantID, req)
	if err != nil {
		return nil, fmt.Errorf("failed to save approval: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s on a request decided concurrently", ErrInvalidTransition, event)
	}

	s.audit(ctx, tenantID, req)
	s.publish(ctx, tenantID, req)

	s.logger.Info("approval decided",
		"tenant_id", tenantID,
		"approval_id", req.ID,
		"state", req.State,
		"approver", approver,
	)
	return req, nil
}

func (s *Service) audit(ctx context.Context, tenantID string, req *domain.ApprovalRequest) {
	if s.recorder == nil {
		return
	}
	rec := &domain.AuditRecord{
		Kind:      domain.AuditApproval,
		Actor:     req.ActorID,
		SubjectID: req.DecisionID,
		Outcome:   string(req.State),
		Reasons:   req.Reasons,
		Timestamp: *req.DecidedAt,
	}
	if req.Approver != "" {
		rec.Codes = []string{"approver:" + req.Approver}
	}
	if err := s.recorder.Record(ctx, tenantID, rec); err != nil {
		s.logger.Error("failed to record approval",
			"tenant_id", tenantID,
			"approval_id", req.ID,
			"error", err,
		)
	}
}

func (s *Service) publish(ctx context.Context, tenantID string, req *domain.ApprovalRequest) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(req)
	if err != nil {
		s.logger.Error("failed to encode approval", "approval_id", req.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, domain.TopicApprovalDecided, payload); err != nil {
		s.logger.Error("failed to publish approval",
			"tenant_id", tenantID,
			"approval_id", req.ID,
			"error", err,
		)
	}
}
