// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/verdict/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// AppendAudit appends an audit record. Records are never updated.
func (r *SQLRepository) AppendAudit(ctx context.Context, tenantID string, rec *domain.AuditRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: audit record id is required", ErrInvalidInput)
	}

	reasons, err := json.Marshal(nonNilReasons(rec.Reasons))
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}
	codes, err := json.Marshal(nonNilStrings(rec.Codes))
	if err != nil {
		return fmt.Errorf("failed to encode codes: %w", err)
	}

	query := `
		INSERT INTO audit_records (
			id, tenant_id, kind, actor, subject_id, outcome, reasons, codes, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, string(rec.Kind), rec.Actor, rec.SubjectID, rec.Outcome,
		string(reasons), string(codes), rec.Timestamp.UTC(),
	)
	return err
}

// ListAudit returns audit records oldest first. An empty actor lists all actors.
func (r *SQLRepository) ListAudit(ctx context.Context, tenantID string, actor string, limit int) ([]*domain.AuditRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, kind, actor, subject_id, outcome, reasons, codes, timestamp
		FROM audit_records
		WHERE tenant_id = ?
	`
	args := []any{tenantID}
	if actor != "" {
		query += " AND actor = ?"
		args = append(args, actor)
	}
	query += " ORDER BY timestamp, id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var kind, reasons, codes string

		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &kind, &rec.Actor, &rec.SubjectID, &rec.Outcome,
			&reasons, &codes, &rec.Timestamp,
		); err != nil {
			return nil, err
		}

		rec.Kind = domain.AuditKind(kind)
		if err := json.Unmarshal([]byte(reasons), &rec.Reasons); err != nil {
			return nil, fmt.Errorf("failed to parse reasons for %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(codes), &rec.Codes); err != nil {
			return nil, fmt.Errorf("failed to parse codes for %s: %w", rec.ID, err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveApproval inserts or updates an approval request.
func (r *SQLRepository) SaveApproval(ctx context.Context, tenantID string, req *domain.ApprovalRequest) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if req == nil || req.ID == "" {
		return fmt.Errorf("%w: approval id is required", ErrInvalidInput)
	}

	reasons, err := json.Marshal(nonNilReasons(req.Reasons))
	if err != nil {
		return fmt.Errorf("failed to encode reasons: %w", err)
	}

	query := `
		INSERT INTO approvals (
			id, tenant_id, decision_id, actor_id, state, approver, note, reasons, created_at, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			state = excluded.state,
			approver = excluded.approver,
			note = excluded.note,
			decided_at = excluded.decided_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		req.ID, tenantID, req.DecisionID, req.ActorID, string(req.State),
		req.Approver, req.Note, string(reasons), req.CreatedAt.UTC(), nullTime(req.DecidedAt),
	)
	return err
}

// GetApproval retrieves an approval request with tenant isolation.
func (r *SQLRepository) GetApproval(ctx context.Context, tenantID string, id string) (*domain.ApprovalRequest, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, decision_id, actor_id, state, approver, note, reasons, created_at, decided_at
		FROM approvals
		WHERE tenant_id = ? AND id = ?
	`

	var req domain.ApprovalRequest
	var state, reasons string
	var approver, note sql.NullString
	var decidedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&req.ID, &req.DecisionID, &req.ActorID, &state, &approver, &note,
		&reasons, &req.CreatedAt, &decidedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	req.State = domain.ApprovalState(state)
	req.Approver = approver.String
	req.Note = note.String
	req.DecidedAt = timePtr(decidedAt)
	if err := json.Unmarshal([]byte(reasons), &req.Reasons); err != nil {
		return nil, fmt.Errorf("failed to parse approval reasons: %w", err)
	}

	return &req, nil
}

// DecideApproval applies a decision to a pending request. A request that
// has already left PENDING is left untouched and false is returned.
func (r *SQLRepository) DecideApproval(ctx context.Context, tenantID string, req *domain.ApprovalRequest) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if req == nil || req.ID == "" {
		return false, fmt.Errorf("%w: approval id is required", ErrInvalidInput)
	}

	query := `
		UPDATE approvals
		SET state = ?, approver = ?, note = ?, decided_at = ?
		WHERE tenant_id = ? AND id = ? AND state = ?
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		string(req.State), req.Approver, req.Note, nullTime(req.DecidedAt),
		tenantID, req.ID, string(domain.ApprovalPending),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SaveLoginAttempt records a new login attempt. Attempt IDs are never reused;
// a pending attempt becomes successful only through PromoteLoginAttempt.
func (r *SQLRepository) SaveLoginAttempt(ctx context.Context, tenantID string, attempt *domain.LoginAttempt) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if attempt == nil || attempt.ID == "" || attempt.ActorID == "" {
		return fmt.Errorf("%w: attempt id and actor are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO login_records (
			id, tenant_id, actor_id, device_id, ip_address, city, country, at, success
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		attempt.ID, tenantID, attempt.ActorID, attempt.DeviceID, attempt.IPAddress,
		attempt.City, attempt.Country, attempt.At.UTC(), boolInt(attempt.Success),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: login attempt %s already recorded", ErrInvalidInput, attempt.ID)
	}
	return nil
}

// GetLoginAttempt retrieves one attempt with tenant isolation.
func (r *SQLRepository) GetLoginAttempt(ctx context.Context, tenantID string, id string) (*domain.LoginAttempt, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, actor_id, device_id, ip_address, city, country, at, success
		FROM login_records
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.LoginAttempt
	var ip, city, country sql.NullString
	var success int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(
		&a.ID, &a.ActorID, &a.DeviceID, &ip, &city, &country, &a.At, &success,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.IPAddress = ip.String
	a.City = city.String
	a.Country = country.String
	a.Success = success == 1
	return &a, nil
}

// PromoteLoginAttempt flips a pending attempt to successful. Reports false
// when the attempt is missing or already successful.
func (r *SQLRepository) PromoteLoginAttempt(ctx context.Context, tenantID string, id string) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE login_records
		SET success = 1
		WHERE tenant_id = ? AND id = ? AND success = 0
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// LastSuccessfulLogin returns the actor's most recent successful login.
func (r *SQLRepository) LastSuccessfulLogin(ctx context.Context, tenantID string, actorID string) (*domain.LoginAttempt, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, actor_id, device_id, ip_address, city, country, at
		FROM login_records
		WHERE tenant_id = ? AND actor_id = ? AND success = 1
		ORDER BY at DESC
		LIMIT 1
	`

	var a domain.LoginAttempt
	var ip, city, country sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, actorID).Scan(
		&a.ID, &a.ActorID, &a.DeviceID, &ip, &city, &country, &a.At,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.IPAddress = ip.String
	a.City = city.String
	a.Country = country.String
	a.Success = true
	return &a, nil
}

// KnownDevices lists devices the actor has logged in from successfully.
func (r *SQLRepository) KnownDevices(ctx context.Context, tenantID string, actorID string) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT DISTINCT device_id
		FROM login_records
		WHERE tenant_id = ? AND actor_id = ? AND success = 1
		ORDER BY device_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		devices = append(devices, id)
	}

	return devices, rows.Err()
}

// SaveTrustedDevice inserts or updates a device's trust state.
func (r *SQLRepository) SaveTrustedDevice(ctx context.Context, tenantID string, device *domain.TrustedDevice) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if device == nil || device.ID == "" || device.ActorID == "" {
		return fmt.Errorf("%w: device id and actor are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO trusted_devices (
			id, tenant_id, actor_id, trusted, trust_expires_at, revoked_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, actor_id, id) DO UPDATE SET
			trusted = excluded.trusted,
			trust_expires_at = excluded.trust_expires_at,
			revoked_at = excluded.revoked_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		device.ID, tenantID, device.ActorID, boolInt(device.Trusted),
		nullTime(device.TrustExpiresAt), nullTime(device.RevokedAt), time.Now().UTC(),
	)
	return err
}

// GrantTrustedDevice trusts device until device.TrustExpiresAt unless the
// actor already has maxActive other devices under effective trust at now.
// The count and the write are one statement; postgres additionally takes a
// per-actor advisory lock so concurrent grants are serialized.
// A non-positive maxActive means no cap.
func (r *SQLRepository) GrantTrustedDevice(ctx context.Context, tenantID string, device *domain.TrustedDevice, maxActive int, now time.Time) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if device == nil || device.ID == "" || device.ActorID == "" || device.TrustExpiresAt == nil {
		return false, fmt.Errorf("%w: device id, actor and expiry are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if r.driver == "postgres" {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", tenantID+"/"+device.ActorID); err != nil {
			return false, fmt.Errorf("failed to lock trusted devices: %w", err)
		}
	}

	query := `
		INSERT INTO trusted_devices (
			id, tenant_id, actor_id, trusted, trust_expires_at, revoked_at, updated_at
		)
		SELECT ?, ?, ?, 1, ?, NULL, ?
		WHERE ? <= 0 OR (
			SELECT COUNT(*) FROM trusted_devices
			WHERE tenant_id = ? AND actor_id = ? AND id <> ?
				AND trusted = 1 AND revoked_at IS NULL AND trust_expires_at > ?
		) < ?
		ON CONFLICT(tenant_id, actor_id, id) DO UPDATE SET
			trusted = 1,
			trust_expires_at = excluded.trust_expires_at,
			revoked_at = NULL,
			updated_at = excluded.updated_at
	`

	now = now.UTC()
	res, err := tx.ExecContext(ctx, r.rebind(query),
		device.ID, tenantID, device.ActorID, device.TrustExpiresAt.UTC(), now,
		maxActive,
		tenantID, device.ActorID, device.ID, now,
		maxActive,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListTrustedDevices returns every device row recorded for the actor.
func (r *SQLRepository) ListTrustedDevices(ctx context.Context, tenantID string, actorID string) ([]domain.TrustedDevice, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, actor_id, trusted, trust_expires_at, revoked_at
		FROM trusted_devices
		WHERE tenant_id = ? AND actor_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.TrustedDevice
	for rows.Next() {
		var d domain.TrustedDevice
		var trusted int
		var expiresAt, revokedAt sql.NullTime

		if err := rows.Scan(&d.ID, &d.ActorID, &trusted, &expiresAt, &revokedAt); err != nil {
			return nil, err
		}

		d.Trusted = trusted == 1
		d.TrustExpiresAt = timePtr(expiresAt)
		d.RevokedAt = timePtr(revokedAt)
		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nonNilReasons(r []domain.Reason) []domain.Reason {
	if r == nil {
		return []domain.Reason{}
	}
	return r
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
