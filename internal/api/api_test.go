package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/verdict/internal/approval"
	"github.com/opensource-finance/verdict/internal/audit"
	"github.com/opensource-finance/verdict/internal/cache"
	"github.com/opensource-finance/verdict/internal/decision"
	"github.com/opensource-finance/verdict/internal/domain"
	"github.com/opensource-finance/verdict/internal/hold"
	"github.com/opensource-finance/verdict/internal/repository"
	"github.com/opensource-finance/verdict/internal/risk"
	"github.com/opensource-finance/verdict/internal/rules"
	"github.com/opensource-finance/verdict/internal/window"
)

type testEnv struct {
	server *Server
	holds  *hold.Manager
}

// createTestServer wires every service against a temp SQLite file and an
// in-process cache, with direct audit writes.
func createTestServer(t *testing.T) *testEnv {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	engine, err := rules.NewEngine(domain.DefaultPolicyConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	recorder := audit.NewRecorder(nil, repo, nil)
	holds := hold.NewManager(lru, time.Minute, nil)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	server := NewServer(cfg, Dependencies{
		Repo:      repo,
		Cache:     lru,
		Processor: decision.NewProcessor(engine, recorder, nil),
		Risk:      risk.NewService(repo, domain.DefaultRiskConfig(), risk.WithRecorder(recorder)),
		Holds:     holds,
		Approvals: approval.NewService(repo, nil, recorder, nil),
		Audit:     recorder,
		Version:   "test-v1",
	})
	return &testEnv{server: server, holds: holds}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func policyContext(total int64) domain.PolicyContext {
	inRegion := true
	return domain.PolicyContext{
		ActorID:       "actor-001",
		FundingMethod: domain.FundingProgram,
		ProgramStatus: domain.StatusEligible,
		RecipientID:   "vendor-001",
		RecipientTier: domain.TierApproved,
		Total:         total,
		Slot:          &domain.Slot{ID: "slot-1", Day: time.Monday, StartMinute: 600, EndMinute: 660},
		InRegion:      &inRegion,
		EvaluatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	env := createTestServer(t)

	t.Run("Allowed", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/evaluate", policyContext(10_000))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.EvaluationResponse
		decode(t, rr, &resp)

		if resp.DecisionID == "" {
			t.Error("expected decisionId in response")
		}
		if resp.Outcome != domain.OutcomeAllowed {
			t.Errorf("expected ALLOWED, got %s", resp.Outcome)
		}
		if len(resp.Reasons) != 1 || resp.Reasons[0].Code != domain.CodeOK {
			t.Errorf("expected single OK reason, got %+v", resp.Reasons)
		}
		if resp.Alternatives == nil || len(resp.Alternatives) != 0 {
			t.Errorf("expected empty alternatives, got %+v", resp.Alternatives)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
	})

	t.Run("BlockedIsStill200", func(t *testing.T) {
		ctx := policyContext(450_000)
		ctx.ProgramStatus = domain.StatusNotEligible

		rr := env.do(t, http.MethodPost, "/evaluate", ctx)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp domain.EvaluationResponse
		decode(t, rr, &resp)
		if resp.Outcome != domain.OutcomeBlocked {
			t.Errorf("expected BLOCKED, got %s", resp.Outcome)
		}
		if len(resp.Alternatives) == 0 || resp.Alternatives[0].Title != "Pay personally" {
			t.Errorf("expected pay personally first, got %+v", resp.Alternatives)
		}
	})

	t.Run("AmountOnlyWarning", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/evaluate", policyContext(300_001))

		var resp domain.EvaluationResponse
		decode(t, rr, &resp)
		if resp.Outcome != domain.OutcomeApprovalRequired {
			t.Errorf("expected APPROVAL_REQUIRED, got %s", resp.Outcome)
		}
		if len(resp.Reasons) != 1 || resp.Reasons[0].Code != domain.CodeAmount {
			t.Errorf("expected one AMOUNT reason, got %+v", resp.Reasons)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("{}"))
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("WildcardTenantRejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("{}"))
		req.Header.Set("X-Tenant-ID", "*")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/evaluate", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeTotal", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/evaluate", policyContext(-1))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("RecordsAudit", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/audit?actor=actor-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Records []domain.AuditRecord `json:"records"`
			Count   int                  `json:"count"`
		}
		decode(t, rr, &resp)
		if resp.Count != 3 {
			t.Errorf("expected 3 decisions in the trail, got %d", resp.Count)
		}
		for _, rec := range resp.Records {
			if rec.Kind != domain.AuditPolicyDecision {
				t.Errorf("unexpected record kind %s", rec.Kind)
			}
		}
	})
}

func TestWindowEndpoints(t *testing.T) {
	env := createTestServer(t)

	weekday := []time.Weekday{time.Monday, time.Tuesday}
	existing := []domain.TimeWindow{
		{ID: "morning", Days: weekday, StartMinute: 540, EndMinute: 720},
		{ID: "afternoon", Days: weekday, StartMinute: 720, EndMinute: 1020},
	}

	t.Run("Overlaps", func(t *testing.T) {
		windows := append(existing, domain.TimeWindow{ID: "lunch", Days: []time.Weekday{time.Monday}, StartMinute: 690, EndMinute: 750})
		rr := env.do(t, http.MethodPost, "/windows/overlaps", OverlapsRequest{Windows: windows})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var report window.Report
		decode(t, rr, &report)
		if !report.Overlaps || len(report.ConflictingPairs) != 2 {
			t.Errorf("expected two conflicts, got %+v", report)
		}
	})

	t.Run("TouchingWindowsValidate", func(t *testing.T) {
		candidate := domain.TimeWindow{ID: "evening", Days: weekday, StartMinute: 1020, EndMinute: 1140}
		rr := env.do(t, http.MethodPost, "/windows/validate", ValidateWindowRequest{Candidate: candidate, Existing: existing})
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ConflictReturns409", func(t *testing.T) {
		candidate := domain.TimeWindow{ID: "late", Days: []time.Weekday{time.Tuesday}, StartMinute: 1000, EndMinute: 1100}
		rr := env.do(t, http.MethodPost, "/windows/validate", ValidateWindowRequest{Candidate: candidate, Existing: existing})
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rr.Code)
		}

		var resp struct {
			ConflictingPairs []window.Pair `json:"conflictingPairs"`
		}
		decode(t, rr, &resp)
		if len(resp.ConflictingPairs) != 1 || resp.ConflictingPairs[0].B != "afternoon" {
			t.Errorf("unexpected pairs: %+v", resp.ConflictingPairs)
		}
	})
}

func TestRiskEndpoints(t *testing.T) {
	env := createTestServer(t)

	attempt := domain.LoginAttempt{ActorID: "actor-001", DeviceID: "phone", City: "Berlin", Country: "DE"}

	rr := env.do(t, http.MethodPost, "/risk/assess", attempt)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var assessed risk.Result
	decode(t, rr, &assessed)
	if !assessed.StepUpRequired || !assessed.Has(domain.RiskNewDevice) {
		t.Errorf("expected new device step-up, got %+v", assessed)
	}

	attempt.ID = assessed.AttemptID
	rr = env.do(t, http.MethodPost, "/risk/step-up/complete", attempt)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var done risk.StepUpResult
	decode(t, rr, &done)
	if !done.LoginSucceeded || !done.TrustGranted {
		t.Errorf("unexpected step-up result: %+v", done)
	}

	rr = env.do(t, http.MethodGet, "/risk/actors/actor-001/devices", nil)
	var listed struct {
		Devices []domain.TrustedDevice `json:"devices"`
	}
	decode(t, rr, &listed)
	if len(listed.Devices) != 1 || listed.Devices[0].ID != "phone" {
		t.Errorf("unexpected devices: %+v", listed.Devices)
	}

	rr = env.do(t, http.MethodDelete, "/risk/actors/actor-001/devices/phone", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, "/risk/actors/actor-001/devices/tablet", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/risk/assess", domain.LoginAttempt{ActorID: "actor-001"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without device, got %d", rr.Code)
	}
}

func TestStepUpCompletionIsBoundToAttempt(t *testing.T) {
	env := createTestServer(t)

	rr := env.do(t, http.MethodPost, "/risk/assess", domain.LoginAttempt{ActorID: "alice", DeviceID: "phone", City: "Berlin", Country: "DE"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var assessed risk.Result
	decode(t, rr, &assessed)
	if !assessed.StepUpRequired {
		t.Fatalf("expected step-up, got %+v", assessed)
	}

	tests := []struct {
		name   string
		body   domain.LoginAttempt
		status int
	}{
		{"missing attempt id", domain.LoginAttempt{ActorID: "mallory", DeviceID: "evil"}, http.StatusBadRequest},
		{"unknown attempt", domain.LoginAttempt{ID: "forged", ActorID: "mallory", DeviceID: "evil"}, http.StatusNotFound},
		{"another actor's attempt", domain.LoginAttempt{ID: assessed.AttemptID, ActorID: "mallory", DeviceID: "phone"}, http.StatusForbidden},
		{"owner completes", domain.LoginAttempt{ID: assessed.AttemptID, ActorID: "alice", DeviceID: "phone"}, http.StatusOK},
		{"completed twice", domain.LoginAttempt{ID: assessed.AttemptID, ActorID: "alice", DeviceID: "phone"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/risk/step-up/complete", tt.body)
			if rr.Code != tt.status {
				t.Errorf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}

	rr = env.do(t, http.MethodGet, "/risk/actors/mallory/devices", nil)
	var listed struct {
		Count int `json:"count"`
	}
	decode(t, rr, &listed)
	if listed.Count != 0 {
		t.Errorf("expected mallory to hold no trusted devices, got %d", listed.Count)
	}
}

func TestManualTrustEndpoint(t *testing.T) {
	env := createTestServer(t)

	rr := env.do(t, http.MethodPut, "/risk/actors/actor-001/devices/laptop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var device domain.TrustedDevice
	decode(t, rr, &device)
	if !device.Trusted || device.TrustExpiresAt == nil || device.ID != "laptop" {
		t.Errorf("unexpected device: %+v", device)
	}

	for i := 1; i < domain.DefaultMaxTrustedDevices; i++ {
		rr = env.do(t, http.MethodPut, fmt.Sprintf("/risk/actors/actor-001/devices/device-%d", i), nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 for device-%d, got %d", i, rr.Code)
		}
	}

	rr = env.do(t, http.MethodPut, "/risk/actors/actor-001/devices/one-too-many", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409 at the cap, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHoldEndpoints(t *testing.T) {
	env := createTestServer(t)

	rr := env.do(t, http.MethodPost, "/holds", PlaceHoldRequest{ResourceID: "slot-1", ActorID: "actor-001"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var placed domain.Hold
	decode(t, rr, &placed)

	rr = env.do(t, http.MethodPost, "/holds", PlaceHoldRequest{ResourceID: "slot-1", ActorID: "actor-002"})
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409 for held resource, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/holds/"+placed.ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/holds/"+placed.ID+"/finalize", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/holds/"+placed.ID+"/finalize", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["reselect"] != true {
		t.Errorf("expected reselect flag, got %+v", resp)
	}

	t.Run("ExpiredHoldAsksToReselect", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/holds", PlaceHoldRequest{ResourceID: "slot-2", ActorID: "actor-001"})
		var h domain.Hold
		decode(t, rr, &h)

		env.holds.SetClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
		defer env.holds.SetClock(time.Now)

		rr = env.do(t, http.MethodPost, "/holds/"+h.ID+"/finalize", nil)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rr.Code)
		}
	})

	t.Run("Release", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/holds", PlaceHoldRequest{ResourceID: "slot-3", ActorID: "actor-001"})
		var h domain.Hold
		decode(t, rr, &h)

		rr = env.do(t, http.MethodDelete, "/holds/"+h.ID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
		rr = env.do(t, http.MethodGet, "/holds/"+h.ID, nil)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409 after release, got %d", rr.Code)
		}
	})
}

func TestApprovalEndpoints(t *testing.T) {
	env := createTestServer(t)

	rr := env.do(t, http.MethodPost, "/approvals", policyContext(10_000))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422 for allowed decision, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/approvals", policyContext(450_000))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var opened OpenApprovalResponse
	decode(t, rr, &opened)
	if opened.Approval.State != domain.ApprovalPending || opened.Approval.DecisionID != opened.Decision.DecisionID {
		t.Errorf("unexpected approval: %+v", opened.Approval)
	}
	id := opened.Approval.ID

	rr = env.do(t, http.MethodPost, "/approvals/"+id+"/decide", DecideRequest{Approver: "actor-001", Event: "approve"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("expected status 403 for self approval, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/approvals/"+id+"/decide", DecideRequest{Approver: "manager-001", Event: "escalate"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown event, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/approvals/"+id+"/decide", DecideRequest{Approver: "manager-001", Event: "approve", Note: "within budget"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/approvals/"+id+"/decide", DecideRequest{Approver: "manager-001", Event: "reject"})
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409 for terminal state, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/approvals/"+id, nil)
	var got domain.ApprovalRequest
	decode(t, rr, &got)
	if got.State != domain.ApprovalApproved || got.Approver != "manager-001" {
		t.Errorf("unexpected approval: %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/approvals/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("NotReadyWithoutEngine", func(t *testing.T) {
		server := NewServer(domain.ServerConfig{}, Dependencies{})
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TenantMiddlewareRejectsDottedID", func(t *testing.T) {
		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "acme.eu")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("TenantMiddlewareRejectsColon", func(t *testing.T) {
		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "acme:eu")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CORSWithoutAllowList", func(t *testing.T) {
		handler := CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodOptions, "/evaluate", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected preflight 204, got %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("expected wildcard origin, got %q", got)
		}
		if rr.Header().Get("Access-Control-Allow-Credentials") != "" {
			t.Error("credentials must not be allowed for a wildcard origin")
		}
	})

	t.Run("CORSAllowList", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		for origin, want := range map[string]string{
			"https://app.example.com":  "https://app.example.com",
			"https://evil.example.com": "",
		} {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != want {
				t.Errorf("origin %s: expected %q, got %q", origin, want, got)
			}
		}
	})

	t.Run("TracingMiddlewareKeepsStatus", func(t *testing.T) {
		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusTeapot {
			t.Errorf("expected status 418, got %d", rr.Code)
		}
		if rr.Header().Get("X-Request-ID") != "req-42" {
			t.Errorf("expected request ID to be echoed, got %q", rr.Header().Get("X-Request-ID"))
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
