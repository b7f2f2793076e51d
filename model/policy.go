package model

import (
	"time"
)

// ScopeKind selects which slice of the workforce a policy speaks for.
type ScopeKind string

const (
	ScopeGlobal     ScopeKind = "GLOBAL"
	ScopeDepartment ScopeKind = "DEPARTMENT"
	ScopePosition   ScopeKind = "POSITION"
	ScopeIndividual ScopeKind = "INDIVIDUAL"
)

// ValidScopeKind reports whether k is one of the four known scope kinds.
func ValidScopeKind(k ScopeKind) bool {
	switch k {
	case ScopeGlobal, ScopeDepartment, ScopePosition, ScopeIndividual:
		return true
	}
	return false
}

// PermissionPolicy is a layered access rule. Lower Priority means stronger
// precedence. The scope target fields are mutually exclusive: exactly the one
// matching ScopeKind is populated, and none for GLOBAL.
type PermissionPolicy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ScopeKind   ScopeKind `json:"scope_kind"`

	TargetDepartment string `json:"target_department,omitempty"`
	TargetPosition   string `json:"target_position,omitempty"`
	TargetEmployeeID string `json:"target_employee_id,omitempty"`

	Priority int `json:"priority"`

	AllowedDeviceTypes     []string       `json:"allowed_device_types,omitempty"`
	MaxDevicesPerType      map[string]int `json:"max_devices_per_type,omitempty"`
	AllowedSoftware        []string       `json:"allowed_software,omitempty"`
	RestrictedSoftware     []string       `json:"restricted_software,omitempty"`
	MaxLicensesPerSoftware map[string]int `json:"max_licenses_per_software,omitempty"`

	AutoApprove            bool `json:"auto_approve"`
	RequireManagerApproval bool `json:"require_manager_approval"`

	Active         bool       `json:"active"`
	EffectiveFrom  time.Time  `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// ScopeTarget returns the populated target for the policy's scope kind.
func (p *PermissionPolicy) ScopeTarget() string {
	switch p.ScopeKind {
	case ScopeDepartment:
		return p.TargetDepartment
	case ScopePosition:
		return p.TargetPosition
	case ScopeIndividual:
		return p.TargetEmployeeID
	}
	return ""
}

// AppliesTo reports whether the policy's scope covers the employee.
// Date and active checks are separate concerns (see InEffect).
func (p *PermissionPolicy) AppliesTo(employee EmployeeRef) bool {
	switch p.ScopeKind {
	case ScopeGlobal:
		return true
	case ScopeDepartment:
		return p.TargetDepartment == employee.Department
	case ScopePosition:
		return p.TargetPosition == employee.Position
	case ScopeIndividual:
		return p.TargetEmployeeID == employee.ID
	}
	return false
}

// InEffect reports whether asOf falls inside the policy's validity window.
// Expiry is always computed here, never stored: a policy past its window is
// simply not in effect, whatever its Active flag says.
func (p *PermissionPolicy) InEffect(asOf time.Time) bool {
	if !OnOrBefore(p.EffectiveFrom, asOf) {
		return false
	}
	if p.EffectiveUntil != nil && !OnOrBefore(asOf, *p.EffectiveUntil) {
		return false
	}
	return true
}

// AllowsDeviceType reports membership of deviceType in the allowed set.
func (p *PermissionPolicy) AllowsDeviceType(deviceType string) bool {
	for _, dt := range p.AllowedDeviceTypes {
		if dt == deviceType {
			return true
		}
	}
	return false
}

// RestrictsSoftware reports membership of software in the restricted set.
func (p *PermissionPolicy) RestrictsSoftware(software string) bool {
	for _, s := range p.RestrictedSoftware {
		if s == software {
			return true
		}
	}
	return false
}

// PermitsSoftware is the per-policy software verdict: not explicitly
// restricted, and either no allow-list is declared or the title is on it.
func (p *PermissionPolicy) PermitsSoftware(software string) bool {
	if p.RestrictsSoftware(software) {
		return false
	}
	if len(p.AllowedSoftware) == 0 {
		return true
	}
	for _, s := range p.AllowedSoftware {
		if s == software {
			return true
		}
	}
	return false
}

// PolicySearchCriteria narrows administrative policy listings.
type PolicySearchCriteria struct {
	Name        string
	ScopeKind   ScopeKind
	ScopeTarget string
	Active      *bool
	MinPriority int
	MaxPriority int
	Limit       int
	Offset      int
}
