package repository

// Schema definitions for the Verdict database.
// Compatible with both SQLite and PostgreSQL.

const schemaAuditRecords = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    actor TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    outcome TEXT NOT NULL,
    reasons TEXT NOT NULL,
    codes TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_audit_records_actor ON audit_records(tenant_id, actor);
CREATE INDEX IF NOT EXISTS idx_audit_records_timestamp ON audit_records(tenant_id, timestamp);
`

const schemaApprovals = `
CREATE TABLE IF NOT EXISTS approvals (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    decision_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    state TEXT NOT NULL,
    approver TEXT,
    note TEXT,
    reasons TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    decided_at TIMESTAMP,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_approvals_state ON approvals(tenant_id, state);
`

const schemaLoginRecords = `
CREATE TABLE IF NOT EXISTS login_records (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    ip_address TEXT,
    city TEXT,
    country TEXT,
    at TIMESTAMP NOT NULL,
    success INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_login_records_actor ON login_records(tenant_id, actor_id, success, at);
`

// schemaTrustedDevices holds time-boxed step-up exemptions.
// Revocation keeps the row so that the history is preserved.
const schemaTrustedDevices = `
CREATE TABLE IF NOT EXISTS trusted_devices (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    trusted INTEGER NOT NULL DEFAULT 0,
    trust_expires_at TIMESTAMP,
    revoked_at TIMESTAMP,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, actor_id, id)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAuditRecords,
		schemaApprovals,
		schemaLoginRecords,
		schemaTrustedDevices,
	}
}
