package model

import "time"

// Event types published on the in-process bus.
const (
	EventPolicyCreated       = "policy.created"
	EventPolicyUpdated       = "policy.updated"
	EventPolicyDeleted       = "policy.deleted"
	EventOverrideCreated     = "override.created"
	EventOverrideUpdated     = "override.updated"
	EventOverrideDeleted     = "override.deleted"
	EventPermissionChanged   = "permission.changed"
	EventAccessDenied        = "access.denied"
	EventEmployeeRoleChanged = "employee.role_changed"
	EventAuditRecorded       = "audit.recorded"
)

// PermissionChangedEvent announces that the effective permissions of some
// employees may have shifted because a rule was created, updated, or removed.
// EmployeeID is set for INDIVIDUAL-scoped rules and overrides; broader scopes
// carry the scope instead, since enumerating members is the subscriber's job.
type PermissionChangedEvent struct {
	SourceKind  string    `json:"source_kind"` // "policy" or "override"
	SourceID    string    `json:"source_id"`
	EmployeeID  string    `json:"employee_id,omitempty"`
	ScopeKind   ScopeKind `json:"scope_kind,omitempty"`
	ScopeTarget string    `json:"scope_target,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

// AccessDeniedEvent is emitted after a denial decision so external channels
// can notify or alert. It never feeds back into decisions.
type AccessDeniedEvent struct {
	EmployeeID   string       `json:"employee_id"`
	ResourceKind ResourceKind `json:"resource_kind"`
	ResourceID   string       `json:"resource_id"`
	Reason       string       `json:"reason"`
	RuleKind     string       `json:"rule_kind"`
	DecidedAt    time.Time    `json:"decided_at"`
}

// EmployeeRoleChangedEvent is published by whatever mutates the employee
// directory when a department or position changes, replacing save-hook side
// effects with an explicit signal subscribers can act on (cache drops,
// permission re-sync, notifications).
type EmployeeRoleChangedEvent struct {
	EmployeeID    string    `json:"employee_id"`
	OldDepartment string    `json:"old_department"`
	NewDepartment string    `json:"new_department"`
	OldPosition   string    `json:"old_position"`
	NewPosition   string    `json:"new_position"`
	ChangedAt     time.Time `json:"changed_at"`
}
