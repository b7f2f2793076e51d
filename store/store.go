package store

import (
	"context"
	"time"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

// PolicyStore persists permission policies. Every mutation takes the audit
// record that witnesses it and MUST commit both in one atomic write: a
// mutation that lands without its record is an invariant violation, so
// backends without multi-write transactions cannot implement this interface
// honestly and should not try.
//
// PoliciesForEmployee returns scope candidates; the resolver re-applies the
// active, window, and scope filters authoritatively, so backends may
// over-return but never omit.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, policy *model.PermissionPolicy, record *audit.Record) error
	UpdatePolicy(ctx context.Context, policy *model.PermissionPolicy, record *audit.Record) error
	DeletePolicy(ctx context.Context, policyID string, record *audit.Record) error
	GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error)
	ListPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.PermissionPolicy, error)
	PoliciesForEmployee(ctx context.Context, employee model.EmployeeRef) ([]*model.PermissionPolicy, error)
}

// OverrideStore persists per-employee overrides under the same atomic
// mutation+record contract as PolicyStore.
type OverrideStore interface {
	CreateOverride(ctx context.Context, override *model.PermissionOverride, record *audit.Record) error
	UpdateOverride(ctx context.Context, override *model.PermissionOverride, record *audit.Record) error
	DeleteOverride(ctx context.Context, overrideID string, record *audit.Record) error
	GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error)
	ListOverrides(ctx context.Context, criteria model.OverrideSearchCriteria) ([]*model.PermissionOverride, error)
	OverridesForEmployee(ctx context.Context, employeeID string) ([]*model.PermissionOverride, error)

	// ListExpiredActive returns overrides still flagged active whose window
	// ended before asOf. DeactivateOverride clears the flag together with its
	// auto-update record; housekeeping calls both and stays idempotent.
	ListExpiredActive(ctx context.Context, asOf time.Time) ([]*model.PermissionOverride, error)
	DeactivateOverride(ctx context.Context, overrideID string, record *audit.Record) error
}

// Store is the full persistence surface a backend provides: both rule stores
// plus the append-only audit ledger.
type Store interface {
	PolicyStore
	OverrideStore
	audit.Repository
}
