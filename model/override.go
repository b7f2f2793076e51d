package model

import (
	"time"
)

// OverrideKind says whether an override opens or closes access.
type OverrideKind string

const (
	OverrideGrant    OverrideKind = "GRANT"
	OverrideRestrict OverrideKind = "RESTRICT"
)

// ValidOverrideKind reports whether k is GRANT or RESTRICT.
func ValidOverrideKind(k OverrideKind) bool {
	return k == OverrideGrant || k == OverrideRestrict
}

// ResourceKind distinguishes the two resource namespaces the engine rules on.
type ResourceKind string

const (
	ResourceDevice   ResourceKind = "DEVICE"
	ResourceSoftware ResourceKind = "SOFTWARE"
)

// ValidResourceKind reports whether k is DEVICE or SOFTWARE.
func ValidResourceKind(k ResourceKind) bool {
	return k == ResourceDevice || k == ResourceSoftware
}

// PermissionOverride is a time-bounded per-employee exception for one
// resource. Overrides outrank every policy. The window is a closed interval:
// EffectiveUntil is mandatory and inclusive.
type PermissionOverride struct {
	ID           string       `json:"id"`
	EmployeeID   string       `json:"employee_id"`
	OverrideKind OverrideKind `json:"override_kind"`
	ResourceKind ResourceKind `json:"resource_kind"`
	ResourceID   string       `json:"resource_id"`

	EffectiveFrom  time.Time `json:"effective_from"`
	EffectiveUntil time.Time `json:"effective_until"`
	Reason         string    `json:"reason"`

	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// InEffect reports whether asOf falls inside the override's closed window.
// Recomputed on every read; the Active flag going stale after expiry never
// changes a decision.
func (o *PermissionOverride) InEffect(asOf time.Time) bool {
	return OnOrBefore(o.EffectiveFrom, asOf) && OnOrBefore(asOf, o.EffectiveUntil)
}

// Expired reports whether the override's window has fully passed.
func (o *PermissionOverride) Expired(asOf time.Time) bool {
	return !OnOrBefore(asOf, o.EffectiveUntil)
}

// Matches reports whether the override speaks for the given resource.
func (o *PermissionOverride) Matches(kind ResourceKind, resourceID string) bool {
	return o.ResourceKind == kind && o.ResourceID == resourceID
}

// OverrideSearchCriteria narrows administrative override listings.
type OverrideSearchCriteria struct {
	EmployeeID   string
	ResourceKind ResourceKind
	ResourceID   string
	Active       *bool
	Limit        int
	Offset       int
}
