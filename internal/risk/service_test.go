package risk

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/repository"
)

type captureRecorder struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (c *captureRecorder) Record(ctx context.Context, tenantID string, rec *domain.AuditRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, *rec)
	return nil
}

type fakeLocator map[string]Location

func (f fakeLocator) Locate(ip string) (Location, error) {
	loc, ok := f[ip]
	if !ok {
		return Location{}, errors.New("not found")
	}
	return loc, nil
}

type fixture struct {
	svc   *Service
	repo  domain.Repository
	audit *captureRecorder
	now   time.Time
}

func newFixture(t *testing.T, cfg domain.RiskConfig) *fixture {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "risk.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	f := &fixture{repo: repo, audit: &captureRecorder{}, now: t0}
	f.svc = NewService(repo, cfg,
		WithRecorder(f.audit),
		WithLocator(fakeLocator{"81.2.69.142": {City: "London", Country: "GB"}}),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) seedLogin(t *testing.T, attempt domain.LoginAttempt) {
	t.Helper()
	attempt.Success = true
	if err := f.repo.SaveLoginAttempt(context.Background(), "tenant-001", &attempt); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

// pendingAttempt runs Assess for a first login on deviceID and returns the
// attempt ID awaiting step-up.
func (f *fixture) pendingAttempt(t *testing.T, actorID, deviceID string) string {
	t.Helper()
	res, err := f.svc.Assess(context.Background(), "tenant-001", domain.LoginAttempt{ActorID: actorID, DeviceID: deviceID, City: "Berlin", Country: "DE"})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}
	if !res.StepUpRequired {
		t.Fatalf("expected step-up for %s on %s, got %+v", actorID, deviceID, res)
	}
	return res.AttemptID
}

// listBarrier holds the first two trusted-device reads until both callers
// have read, so both cap checks see the same list.
type listBarrier struct {
	domain.Repository
	arrived sync.WaitGroup
}

func (b *listBarrier) ListTrustedDevices(ctx context.Context, tenantID, actorID string) ([]domain.TrustedDevice, error) {
	devices, err := b.Repository.ListTrustedDevices(ctx, tenantID, actorID)
	b.arrived.Done()
	b.arrived.Wait()
	return devices, err
}

func TestAssess(t *testing.T) {
	ctx := context.Background()

	t.Run("impossible travel requires step-up", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		f.seedLogin(t, domain.LoginAttempt{ID: "l1", ActorID: "actor-001", DeviceID: "laptop", City: "Berlin", Country: "DE", At: t0})
		f.now = t0.Add(30 * time.Minute)

		res, err := f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "laptop", City: "Lima", Country: "PE"})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		if res.Level != domain.RiskHigh || !res.Has(domain.RiskNewCountry) || !res.Has(domain.RiskImpossibleTravel) {
			t.Errorf("unexpected assessment: %+v", res.RiskAssessment)
		}
		if !res.StepUpRequired {
			t.Error("expected step-up")
		}

		// Pending attempts are not known-good history.
		last, _ := f.repo.LastSuccessfulLogin(ctx, "tenant-001", "actor-001")
		if last.ID != "l1" {
			t.Errorf("expected l1 to remain the last success, got %s", last.ID)
		}

		if len(f.audit.records) != 1 || f.audit.records[0].Kind != domain.AuditRiskAssessment || f.audit.records[0].Outcome != "high" {
			t.Errorf("unexpected audit: %+v", f.audit.records)
		}
	})

	t.Run("low risk login is recorded", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		f.seedLogin(t, domain.LoginAttempt{ID: "l1", ActorID: "actor-001", DeviceID: "laptop", City: "Berlin", Country: "DE", At: t0})
		f.now = t0.Add(time.Hour)

		res, err := f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "laptop", City: "Berlin", Country: "DE"})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		if res.Level != domain.RiskLow || res.StepUpRequired {
			t.Errorf("unexpected result: %+v", res)
		}

		last, _ := f.repo.LastSuccessfulLogin(ctx, "tenant-001", "actor-001")
		if last == nil || last.ID != res.AttemptID {
			t.Errorf("expected the new attempt to be the last success, got %+v", last)
		}
	})

	t.Run("trusted device bypasses geo step-up", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		f.seedLogin(t, domain.LoginAttempt{ID: "l1", ActorID: "actor-001", DeviceID: "laptop", City: "Berlin", Country: "DE", At: t0})
		expires := t0.Add(48 * time.Hour)
		_ = f.repo.SaveTrustedDevice(ctx, "tenant-001", &domain.TrustedDevice{ID: "laptop", ActorID: "actor-001", Trusted: true, TrustExpiresAt: &expires})

		f.now = t0.Add(6 * time.Hour)
		res, err := f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "laptop", City: "Paris", Country: "FR"})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		if !res.TrustedDevice || res.StepUpRequired {
			t.Errorf("expected trusted bypass, got %+v", res)
		}

		f.now = t0.Add(6*time.Hour + 10*time.Minute)
		res, _ = f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "laptop", City: "Lima", Country: "PE"})
		if !res.StepUpRequired {
			t.Error("expected impossible travel to override trust")
		}
	})

	t.Run("enriches location from ip", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		f.seedLogin(t, domain.LoginAttempt{ID: "l1", ActorID: "actor-001", DeviceID: "laptop", City: "London", Country: "GB", At: t0})
		f.now = t0.Add(time.Hour)

		res, err := f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "laptop", IPAddress: "81.2.69.142"})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		if res.Level != domain.RiskLow {
			t.Errorf("expected enriched location to match history, got %+v", res.RiskAssessment)
		}
	})

	t.Run("validates input", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		if _, err := f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001"}); err == nil {
			t.Error("expected error without device")
		}
		if _, err := f.svc.Assess(ctx, "", domain.LoginAttempt{ActorID: "a", DeviceID: "d"}); err == nil {
			t.Error("expected error without tenant")
		}
	})
}

func TestCompleteStepUp(t *testing.T) {
	ctx := context.Background()

	t.Run("grants trust", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		res, err := f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "phone", City: "Berlin", Country: "DE"})
		if err != nil || !res.StepUpRequired {
			t.Fatalf("expected step-up for a first login, got %+v, %v", res, err)
		}

		done, err := f.svc.CompleteStepUp(ctx, "tenant-001", domain.LoginAttempt{ID: res.AttemptID, ActorID: "actor-001", DeviceID: "phone", City: "Berlin", Country: "DE"})
		if err != nil {
			t.Fatalf("CompleteStepUp failed: %v", err)
		}
		if !done.LoginSucceeded || !done.TrustGranted || done.TrustExpiresAt == nil {
			t.Errorf("unexpected result: %+v", done)
		}

		last, _ := f.repo.LastSuccessfulLogin(ctx, "tenant-001", "actor-001")
		if last == nil || last.ID != res.AttemptID {
			t.Errorf("expected the attempt to be promoted to success, got %+v", last)
		}

		devices, _ := f.svc.TrustedDevices(ctx, "tenant-001", "actor-001")
		if !IsTrusted(devices, "phone", f.now) {
			t.Error("expected phone to be trusted")
		}
	})

	t.Run("cap reached still logs in", func(t *testing.T) {
		cfg := domain.DefaultRiskConfig()
		cfg.Trust.MaxTrusted = 1
		f := newFixture(t, cfg)
		expires := t0.Add(time.Hour)
		_ = f.repo.SaveTrustedDevice(ctx, "tenant-001", &domain.TrustedDevice{ID: "laptop", ActorID: "actor-001", Trusted: true, TrustExpiresAt: &expires})

		id := f.pendingAttempt(t, "actor-001", "phone")
		done, err := f.svc.CompleteStepUp(ctx, "tenant-001", domain.LoginAttempt{ID: id, ActorID: "actor-001", DeviceID: "phone"})
		if err != nil {
			t.Fatalf("CompleteStepUp failed: %v", err)
		}
		if !done.LoginSucceeded || done.TrustGranted {
			t.Errorf("expected login without trust, got %+v", done)
		}
		if done.TrustMessage != ErrTrustCapReached.Error() {
			t.Errorf("expected cap message, got %q", done.TrustMessage)
		}

		last := f.audit.records[len(f.audit.records)-1]
		if last.Kind != domain.AuditStepUp || last.Codes[len(last.Codes)-1] != "trust_cap_reached" {
			t.Errorf("unexpected audit: %+v", last)
		}
	})

	t.Run("concurrent completions respect the cap", func(t *testing.T) {
		cfg := domain.DefaultRiskConfig()
		cfg.Trust.MaxTrusted = 1
		f := newFixture(t, cfg)

		devices := []string{"phone", "tablet"}
		ids := []string{f.pendingAttempt(t, "actor-001", "phone"), f.pendingAttempt(t, "actor-001", "tablet")}

		gated := &listBarrier{Repository: f.repo}
		gated.arrived.Add(2)
		svc := NewService(gated, cfg, WithRecorder(f.audit), WithClock(func() time.Time { return f.now }))

		results := make([]*StepUpResult, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range devices {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = svc.CompleteStepUp(ctx, "tenant-001", domain.LoginAttempt{ID: ids[i], ActorID: "actor-001", DeviceID: devices[i]})
			}(i)
		}
		wg.Wait()

		granted := 0
		for i, res := range results {
			if errs[i] != nil {
				t.Fatalf("%s: CompleteStepUp failed: %v", devices[i], errs[i])
			}
			if !res.LoginSucceeded {
				t.Errorf("%s: expected login to succeed", devices[i])
			}
			if res.TrustGranted {
				granted++
			} else if res.TrustMessage != ErrTrustCapReached.Error() {
				t.Errorf("%s: expected cap message, got %q", devices[i], res.TrustMessage)
			}
		}
		if granted != 1 {
			t.Errorf("expected exactly one grant, got %d", granted)
		}

		stored, _ := f.svc.TrustedDevices(ctx, "tenant-001", "actor-001")
		if n := ActiveCount(stored, f.now); n != 1 {
			t.Errorf("expected 1 active trusted device, got %d: %+v", n, stored)
		}
	})

	t.Run("requires a pending attempt", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())

		if _, err := f.svc.CompleteStepUp(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "evil"}); !errors.Is(err, ErrAttemptRequired) {
			t.Errorf("expected ErrAttemptRequired, got %v", err)
		}
		if _, err := f.svc.CompleteStepUp(ctx, "tenant-001", domain.LoginAttempt{ID: "forged", ActorID: "actor-001", DeviceID: "evil"}); !errors.Is(err, ErrAttemptNotFound) {
			t.Errorf("expected ErrAttemptNotFound, got %v", err)
		}

		devices, _ := f.svc.TrustedDevices(ctx, "tenant-001", "actor-001")
		if len(devices) != 0 {
			t.Errorf("expected no trust without a step-up, got %+v", devices)
		}
		if last, _ := f.repo.LastSuccessfulLogin(ctx, "tenant-001", "actor-001"); last != nil {
			t.Errorf("expected no successful login, got %+v", last)
		}
	})

	t.Run("attempt that needed no step-up cannot be completed", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		f.seedLogin(t, domain.LoginAttempt{ID: "l1", ActorID: "actor-001", DeviceID: "laptop", City: "Berlin", Country: "DE", At: t0})
		f.now = t0.Add(time.Hour)

		res, err := f.svc.Assess(ctx, "tenant-001", domain.LoginAttempt{ActorID: "actor-001", DeviceID: "laptop", City: "Berlin", Country: "DE"})
		if err != nil || res.StepUpRequired {
			t.Fatalf("expected a low-risk login, got %+v, %v", res, err)
		}

		_, err = f.svc.CompleteStepUp(ctx, "tenant-001", domain.LoginAttempt{ID: res.AttemptID, ActorID: "actor-001", DeviceID: "laptop"})
		if !errors.Is(err, ErrAttemptCompleted) {
			t.Errorf("expected ErrAttemptCompleted, got %v", err)
		}
		devices, _ := f.svc.TrustedDevices(ctx, "tenant-001", "actor-001")
		if len(devices) != 0 {
			t.Errorf("expected no trust granted, got %+v", devices)
		}
	})

	t.Run("another actor's attempt is refused", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		id := f.pendingAttempt(t, "alice", "phone")

		for _, claim := range []domain.LoginAttempt{
			{ID: id, ActorID: "mallory", DeviceID: "phone"},
			{ID: id, ActorID: "mallory", DeviceID: "evil"},
			{ID: id, ActorID: "alice", DeviceID: "evil"},
		} {
			if _, err := f.svc.CompleteStepUp(ctx, "tenant-001", claim); !errors.Is(err, ErrAttemptMismatch) {
				t.Errorf("%s/%s: expected ErrAttemptMismatch, got %v", claim.ActorID, claim.DeviceID, err)
			}
		}

		if last, _ := f.repo.LastSuccessfulLogin(ctx, "tenant-001", "alice"); last != nil {
			t.Errorf("expected alice's attempt to stay pending, got %+v", last)
		}
		if devices, _ := f.svc.TrustedDevices(ctx, "tenant-001", "mallory"); len(devices) != 0 {
			t.Errorf("expected no trust for mallory, got %+v", devices)
		}
	})

	t.Run("completes once with the stored location", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		id := f.pendingAttempt(t, "actor-001", "phone")

		claim := domain.LoginAttempt{ID: id, ActorID: "actor-001", DeviceID: "phone", City: "Lima", Country: "PE", At: t0.Add(-24 * time.Hour)}
		if _, err := f.svc.CompleteStepUp(ctx, "tenant-001", claim); err != nil {
			t.Fatalf("CompleteStepUp failed: %v", err)
		}
		if _, err := f.svc.CompleteStepUp(ctx, "tenant-001", claim); !errors.Is(err, ErrAttemptCompleted) {
			t.Errorf("expected second completion to fail, got %v", err)
		}

		last, _ := f.repo.LastSuccessfulLogin(ctx, "tenant-001", "actor-001")
		if last == nil || last.City != "Berlin" || last.Country != "DE" || !last.At.Equal(t0) {
			t.Errorf("expected the assessed Berlin attempt at %v, got %+v", t0, last)
		}
	})

	t.Run("revoke", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		id := f.pendingAttempt(t, "actor-001", "phone")
		if _, err := f.svc.CompleteStepUp(ctx, "tenant-001", domain.LoginAttempt{ID: id, ActorID: "actor-001", DeviceID: "phone"}); err != nil {
			t.Fatalf("CompleteStepUp failed: %v", err)
		}

		ok, err := f.svc.Revoke(ctx, "tenant-001", "actor-001", "phone")
		if err != nil || !ok {
			t.Fatalf("expected revoke to succeed, got %v, %v", ok, err)
		}
		devices, _ := f.svc.TrustedDevices(ctx, "tenant-001", "actor-001")
		if IsTrusted(devices, "phone", f.now) {
			t.Error("expected phone to lose trust")
		}

		if ok, _ := f.svc.Revoke(ctx, "tenant-001", "actor-001", "missing"); ok {
			t.Error("expected false for unknown device")
		}
	})
}

func TestTrust(t *testing.T) {
	ctx := context.Background()

	t.Run("manual toggle skips the step-up gate", func(t *testing.T) {
		cfg := domain.DefaultRiskConfig()
		cfg.Trust.TrustAfterStepUp = false
		f := newFixture(t, cfg)

		device, err := f.svc.Trust(ctx, "tenant-001", "actor-001", "laptop")
		if err != nil {
			t.Fatalf("Trust failed: %v", err)
		}
		want := t0.Add(cfg.Trust.TrustDuration)
		if device.TrustExpiresAt == nil || !device.TrustExpiresAt.Equal(want) {
			t.Errorf("expected trust until %v, got %+v", want, device)
		}

		devices, _ := f.svc.TrustedDevices(ctx, "tenant-001", "actor-001")
		if !IsTrusted(devices, "laptop", f.now) {
			t.Error("expected laptop to be trusted")
		}
		if IsTrusted(devices, "laptop", want) {
			t.Error("expected trust to lapse at its expiry")
		}

		last := f.audit.records[len(f.audit.records)-1]
		if last.Kind != domain.AuditDeviceTrust || last.SubjectID != "laptop" || last.Outcome != "TRUSTED" {
			t.Errorf("unexpected audit: %+v", last)
		}
	})

	t.Run("manual toggle respects the cap", func(t *testing.T) {
		cfg := domain.DefaultRiskConfig()
		cfg.Trust.MaxTrusted = 1
		f := newFixture(t, cfg)

		if _, err := f.svc.Trust(ctx, "tenant-001", "actor-001", "laptop"); err != nil {
			t.Fatalf("Trust failed: %v", err)
		}
		if _, err := f.svc.Trust(ctx, "tenant-001", "actor-001", "phone"); !errors.Is(err, ErrTrustCapReached) {
			t.Errorf("expected ErrTrustCapReached, got %v", err)
		}
		if _, err := f.svc.Trust(ctx, "tenant-001", "actor-001", "laptop"); err != nil {
			t.Errorf("expected re-trusting laptop to extend it, got %v", err)
		}

		if ok, _ := f.svc.Revoke(ctx, "tenant-001", "actor-001", "laptop"); !ok {
			t.Fatal("expected revoke to succeed")
		}
		if _, err := f.svc.Trust(ctx, "tenant-001", "actor-001", "phone"); err != nil {
			t.Errorf("expected a freed slot to be usable, got %v", err)
		}
	})

	t.Run("validates input", func(t *testing.T) {
		f := newFixture(t, domain.DefaultRiskConfig())
		if _, err := f.svc.Trust(ctx, "tenant-001", "actor-001", ""); err == nil {
			t.Error("expected error without device")
		}
		if _, err := f.svc.Trust(ctx, "", "actor-001", "laptop"); err == nil {
			t.Error("expected error without tenant")
		}
	})
}

func TestEnrich(t *testing.T) {
	loc := fakeLocator{"1.2.3.4": {City: "Paris", Country: "FR"}}

	a := domain.LoginAttempt{IPAddress: "1.2.3.4", City: "Versailles"}
	if err := Enrich(loc, &a); err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if a.City != "Versailles" || a.Country != "FR" {
		t.Errorf("expected only missing fields filled, got %+v", a)
	}

	b := domain.LoginAttempt{IPAddress: "9.9.9.9"}
	if err := Enrich(loc, &b); err == nil {
		t.Error("expected lookup error")
	}

	if err := Enrich(nil, &b); err != nil {
		t.Errorf("expected nil locator to be a no-op, got %v", err)
	}
}

func TestOpenGeoIPMissingFile(t *testing.T) {
	if _, err := OpenGeoIP(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("expected error for missing database")
	}
}
