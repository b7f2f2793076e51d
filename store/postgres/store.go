// Package postgres is the relational store adapter. It honors the same
// contract as the Neo4j DAOs: every mutation commits together with its
// audit record inside one transaction, and reads over-return candidates
// for the resolver to filter authoritatively.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/store"
)

type Store struct {
	DB *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// EnsureSchema creates the tables and indexes on first use. Safe to call on
// every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS permission_policies (
      id TEXT PRIMARY KEY,
      name TEXT NOT NULL,
      description TEXT NOT NULL DEFAULT '',
      scope_kind TEXT NOT NULL,
      target_department TEXT NOT NULL DEFAULT '',
      target_position TEXT NOT NULL DEFAULT '',
      target_employee_id TEXT NOT NULL DEFAULT '',
      priority INT NOT NULL,
      allowed_device_types JSONB,
      max_devices_per_type JSONB,
      allowed_software JSONB,
      restricted_software JSONB,
      max_licenses_per_software JSONB,
      auto_approve BOOLEAN NOT NULL DEFAULT FALSE,
      require_manager_approval BOOLEAN NOT NULL DEFAULT FALSE,
      active BOOLEAN NOT NULL,
      effective_from TIMESTAMPTZ NOT NULL,
      effective_until TIMESTAMPTZ,
      created_at TIMESTAMPTZ NOT NULL,
      updated_at TIMESTAMPTZ NOT NULL,
      created_by TEXT NOT NULL DEFAULT '',
      updated_by TEXT NOT NULL DEFAULT ''
    )`,
		`CREATE INDEX IF NOT EXISTS idx_policies_scope ON permission_policies (scope_kind)`,
		`CREATE TABLE IF NOT EXISTS permission_overrides (
      id TEXT PRIMARY KEY,
      employee_id TEXT NOT NULL,
      override_kind TEXT NOT NULL,
      resource_kind TEXT NOT NULL,
      resource_id TEXT NOT NULL,
      effective_from TIMESTAMPTZ NOT NULL,
      effective_until TIMESTAMPTZ NOT NULL,
      reason TEXT NOT NULL DEFAULT '',
      active BOOLEAN NOT NULL,
      created_at TIMESTAMPTZ NOT NULL,
      updated_at TIMESTAMPTZ NOT NULL,
      created_by TEXT NOT NULL DEFAULT '',
      updated_by TEXT NOT NULL DEFAULT ''
    )`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_employee ON permission_overrides (employee_id)`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_expiry ON permission_overrides (effective_until) WHERE active`,
		`CREATE TABLE IF NOT EXISTS audit_records (
      id TEXT PRIMARY KEY,
      action TEXT NOT NULL,
      employee_id TEXT NOT NULL DEFAULT '',
      resource_kind TEXT NOT NULL DEFAULT '',
      resource_id TEXT NOT NULL DEFAULT '',
      result TEXT NOT NULL DEFAULT '',
      details JSONB,
      occurred_at TIMESTAMPTZ NOT NULL,
      actor TEXT NOT NULL DEFAULT '',
      remote_addr TEXT NOT NULL DEFAULT '',
      user_agent TEXT NOT NULL DEFAULT ''
    )`,
		`CREATE INDEX IF NOT EXISTS idx_audit_occurred ON audit_records (occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_employee ON audit_records (employee_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.DB.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// appendRecordTx inserts one ledger record inside an already-open
// transaction, so the record commits or rolls back with the mutation.
func appendRecordTx(ctx context.Context, tx pgx.Tx, record *audit.Record) error {
	if record == nil {
		return nil
	}
	_, err := tx.Exec(ctx, `
    INSERT INTO audit_records (id, action, employee_id, resource_kind, resource_id, result, details, occurred_at, actor, remote_addr, user_agent)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  `, record.ID, string(record.Action), record.EmployeeID, string(record.ResourceKind), record.ResourceID,
		string(record.Result), jsonOrNil(record.Details), record.Timestamp, record.Actor, record.RemoteAddr, record.UserAgent)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	return nil
}

func marshalJSON(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}

// jsonOrNil maps an empty blob to SQL NULL so jsonb columns never see a
// zero-length document.
func jsonOrNil(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return data
}

func unmarshalColumn(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
