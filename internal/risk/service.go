package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/verdict/internal/domain"
)

var (
	// ErrAttemptRequired is returned when step-up completion names no attempt.
	ErrAttemptRequired = errors.New("attemptId is required")

	// ErrAttemptNotFound is returned for an unknown attempt ID.
	ErrAttemptNotFound = errors.New("login attempt not found")

	// ErrAttemptMismatch is returned when the attempt belongs to another
	// actor or device.
	ErrAttemptMismatch = errors.New("login attempt does not match actor and device")

	// ErrAttemptCompleted is returned when the attempt is not awaiting step-up.
	ErrAttemptCompleted = errors.New("login attempt is not awaiting step-up")
)

// Recorder receives audit records for risk decisions.
type Recorder interface {
	Record(ctx context.Context, tenantID string, rec *domain.AuditRecord) error
}

// Service runs risk assessment against stored login history.
type Service struct {
	repo     domain.Repository
	recorder Recorder
	locator  Locator
	cfg      domain.RiskConfig
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocator enables IP enrichment.
func WithLocator(l Locator) Option {
	return func(s *Service) {
		s.locator = l
	}
}

// WithRecorder sets the audit recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a risk service.
func NewService(repo domain.Repository, cfg domain.RiskConfig, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the outcome of assessing one attempt.
type Result struct {
	AttemptID string `json:"attemptId"`
	domain.RiskAssessment
	StepUpRequired bool `json:"stepUpRequired"`
	TrustedDevice  bool `json:"trustedDevice"`
}

// StepUpResult is the outcome of completing a step-up challenge.
type StepUpResult struct {
	AttemptID      string     `json:"attemptId"`
	LoginSucceeded bool       `json:"loginSucceeded"`
	TrustGranted   bool       `json:"trustGranted"`
	TrustExpiresAt *time.Time `json:"trustExpiresAt,omitempty"`
	TrustMessage   string     `json:"trustMessage,omitempty"`
}

// Assess evaluates an attempt whose primary credentials have been verified.
// A currently trusted device skips step-up unless travel is impossible.
// Attempts that need no step-up are recorded as successful logins.
func (s *Service) Assess(ctx context.Context, tenantID string, attempt domain.LoginAttempt) (*Result, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if attempt.ActorID == "" || attempt.DeviceID == "" {
		return nil, fmt.Errorf("actor and device are required")
	}

	now := s.now().UTC()
	s.prepare(&attempt, now)

	last, err := s.repo.LastSuccessfulLogin(ctx, tenantID, attempt.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load login history: %w", err)
	}
	known, err := s.repo.KnownDevices(ctx, tenantID, attempt.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load known devices: %w", err)
	}
	attempt.KnownDevices = append(attempt.KnownDevices, known...)

	devices, err := s.repo.ListTrustedDevices(ctx, tenantID, attempt.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trusted devices: %w", err)
	}

	assessment := EvaluateRisk(attempt, last, s.cfg.TravelThreshold)
	trusted := IsTrusted(devices, attempt.DeviceID, now)

	stepUp := RequiresStepUp(s.cfg.StepUp, assessment.Codes)
	if stepUp && trusted && !assessment.Has(domain.RiskImpossibleTravel) {
		stepUp = false
	}

	attempt.Success = !stepUp
	if err := s.repo.SaveLoginAttempt(ctx, tenantID, &attempt); err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}

	result := &Result{
		AttemptID:      attempt.ID,
		RiskAssessment: assessment,
		StepUpRequired: stepUp,
		TrustedDevice:  trusted,
	}

	codes := codeStrings(assessment.Codes)
	if stepUp {
		codes = append(codes, "step_up_required")
	}
	s.audit(ctx, tenantID, &domain.AuditRecord{
		Kind:      domain.AuditRiskAssessment,
		Actor:     attempt.ActorID,
		SubjectID: attempt.DeviceID,
		Outcome:   string(assessment.Level),
		Codes:     codes,
		Timestamp: now,
	})

	s.logger.Info("risk assessed",
		"tenant_id", tenantID,
		"actor_id", attempt.ActorID,
		"attempt_id", attempt.ID,
		"level", assessment.Level,
		"codes", codes,
		"step_up", stepUp,
	)

	return result, nil
}

// CompleteStepUp promotes the pending attempt Assess recorded to a
// successful login and, when policy allows, trusts its device. Only the
// attempt ID, actor and device are read from the caller; location and time
// come from the stored attempt. A failed trust grant never fails the login.
func (s *Service) CompleteStepUp(ctx context.Context, tenantID string, claim domain.LoginAttempt) (*StepUpResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if claim.ID == "" {
		return nil, ErrAttemptRequired
	}

	attempt, err := s.repo.GetLoginAttempt(ctx, tenantID, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load login attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}
	if attempt.ActorID != claim.ActorID || attempt.DeviceID != claim.DeviceID {
		s.logger.Warn("step-up completion does not match attempt",
			"tenant_id", tenantID,
			"attempt_id", attempt.ID,
			"actor_id", claim.ActorID,
			"device_id", claim.DeviceID,
		)
		return nil, ErrAttemptMismatch
	}
	if attempt.Success {
		return nil, ErrAttemptCompleted
	}

	promoted, err := s.repo.PromoteLoginAttempt(ctx, tenantID, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}
	if !promoted {
		return nil, ErrAttemptCompleted
	}

	now := s.now().UTC()
	result := &StepUpResult{AttemptID: attempt.ID, LoginSucceeded: true}
	codes := []string{"step_up_completed"}

	granted, err := s.grant(ctx, tenantID, attempt.ActorID, attempt.DeviceID, now, GrantTrust)
	switch {
	case err == nil:
		result.TrustGranted = true
		result.TrustExpiresAt = granted.TrustExpiresAt
		codes = append(codes, "trust_granted")
	case errors.Is(err, ErrTrustDisabled):
	case errors.Is(err, ErrTrustCapReached):
		result.TrustMessage = err.Error()
		codes = append(codes, "trust_cap_reached")
	default:
		result.TrustMessage = "device could not be trusted"
		codes = append(codes, "trust_failed")
		s.logger.Error("failed to grant device trust",
			"tenant_id", tenantID,
			"actor_id", attempt.ActorID,
			"device_id", attempt.DeviceID,
			"error", err,
		)
	}

	s.audit(ctx, tenantID, &domain.AuditRecord{
		Kind:      domain.AuditStepUp,
		Actor:     attempt.ActorID,
		SubjectID: attempt.DeviceID,
		Outcome:   "LOGIN_SUCCEEDED",
		Codes:     codes,
		Timestamp: now,
	})

	return result, nil
}

// TrustedDevices lists the actor's device trust records.
func (s *Service) TrustedDevices(ctx context.Context, tenantID, actorID string) ([]domain.TrustedDevice, error) {
	return s.repo.ListTrustedDevices(ctx, tenantID, actorID)
}

// Revoke withdraws trust from a device. Reports false for unknown devices.
func (s *Service) Revoke(ctx context.Context, tenantID, actorID, deviceID string) (bool, error) {
	devices, err := s.repo.ListTrustedDevices(ctx, tenantID, actorID)
	if err != nil {
		return false, fmt.Errorf("failed to load trusted devices: %w", err)
	}

	updated, ok := RevokeTrust(devices, deviceID, s.now().UTC())
	if !ok {
		return false, nil
	}
	device, _ := Find(updated, deviceID)
	if err := s.repo.SaveTrustedDevice(ctx, tenantID, &device); err != nil {
		return false, fmt.Errorf("failed to revoke device: %w", err)
	}
	return true, nil
}

// Trust is the manual toggle: it trusts deviceID for the policy duration
// without a step-up, still bounded by the trusted-device cap.
func (s *Service) Trust(ctx context.Context, tenantID, actorID, deviceID string) (*domain.TrustedDevice, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if actorID == "" || deviceID == "" {
		return nil, fmt.Errorf("actor and device are required")
	}

	now := s.now().UTC()
	device, err := s.grant(ctx, tenantID, actorID, deviceID, now, ManualTrust)
	if errors.Is(err, ErrTrustCapReached) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to trust device: %w", err)
	}

	s.audit(ctx, tenantID, &domain.AuditRecord{
		Kind:      domain.AuditDeviceTrust,
		Actor:     actorID,
		SubjectID: deviceID,
		Outcome:   "TRUSTED",
		Codes:     []string{"manual_trust"},
		Timestamp: now,
	})

	s.logger.Info("device trusted",
		"tenant_id", tenantID,
		"actor_id", actorID,
		"device_id", deviceID,
		"expires_at", device.TrustExpiresAt,
	)
	return &device, nil
}

type trustFunc func(devices []domain.TrustedDevice, actorID, deviceID string, now time.Time, policy domain.TrustPolicy) ([]domain.TrustedDevice, error)

// grant checks the cap against the current list, then writes through
// GrantTrustedDevice, which re-checks it atomically.
func (s *Service) grant(ctx context.Context, tenantID, actorID, deviceID string, now time.Time, trust trustFunc) (domain.TrustedDevice, error) {
	devices, err := s.repo.ListTrustedDevices(ctx, tenantID, actorID)
	if err != nil {
		return domain.TrustedDevice{}, err
	}

	updated, err := trust(devices, actorID, deviceID, now, s.cfg.Trust)
	if err != nil {
		return domain.TrustedDevice{}, err
	}

	device, _ := Find(updated, deviceID)
	ok, err := s.repo.GrantTrustedDevice(ctx, tenantID, &device, s.cfg.Trust.MaxTrusted, now)
	if err != nil {
		return domain.TrustedDevice{}, err
	}
	if !ok {
		return domain.TrustedDevice{}, ErrTrustCapReached
	}
	return device, nil
}

// prepare assigns a fresh attempt ID and fills time and location.
func (s *Service) prepare(attempt *domain.LoginAttempt, now time.Time) {
	attempt.ID = uuid.New().String()
	if attempt.At.IsZero() {
		attempt.At = now
	}
	if err := Enrich(s.locator, attempt); err != nil {
		s.logger.Warn("geoip enrichment failed",
			"ip", attempt.IPAddress,
			"error", err,
		)
	}
}

func (s *Service) audit(ctx context.Context, tenantID string, rec *domain.AuditRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, tenantID, rec); err != nil {
		s.logger.Error("failed to record risk decision",
			"tenant_id", tenantID,
			"kind", rec.Kind,
			"error", err,
		)
	}
}

func codeStrings(codes []domain.RiskCode) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, string(c))
	}
	return out
}
