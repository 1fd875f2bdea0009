// Package domain defines the core interfaces and types for Verdict.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
// Rules are never persisted; only audit, approval and login history are.
type Repository interface {
	// Audit trail (append-only)
	AppendAudit(ctx context.Context, tenantID string, rec *AuditRecord) error
	ListAudit(ctx context.Context, tenantID string, actor string, limit int) ([]*AuditRecord, error)

	// Approval requests
	SaveApproval(ctx context.Context, tenantID string, req *ApprovalRequest) error
	GetApproval(ctx context.Context, tenantID string, id string) (*ApprovalRequest, error)
	// DecideApproval stores the decision only while the request is still
	// pending and reports whether it did.
	DecideApproval(ctx context.Context, tenantID string, req *ApprovalRequest) (bool, error)

	// Login history
	SaveLoginAttempt(ctx context.Context, tenantID string, attempt *LoginAttempt) error
	// GetLoginAttempt returns nil, nil when the attempt does not exist.
	GetLoginAttempt(ctx context.Context, tenantID string, id string) (*LoginAttempt, error)
	// PromoteLoginAttempt marks a pending attempt successful and reports
	// whether it was still pending.
	PromoteLoginAttempt(ctx context.Context, tenantID string, id string) (bool, error)
	// LastSuccessfulLogin returns nil, nil when the actor has no successful login.
	LastSuccessfulLogin(ctx context.Context, tenantID string, actorID string) (*LoginAttempt, error)
	KnownDevices(ctx context.Context, tenantID string, actorID string) ([]string, error)

	// Trusted devices
	SaveTrustedDevice(ctx context.Context, tenantID string, device *TrustedDevice) error
	// GrantTrustedDevice trusts device unless the actor already has
	// maxActive other devices trusted at now. Reports whether it was granted.
	GrantTrustedDevice(ctx context.Context, tenantID string, device *TrustedDevice, maxActive int, now time.Time) (bool, error)
	ListTrustedDevices(ctx context.Context, tenantID string, actorID string) ([]TrustedDevice, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
