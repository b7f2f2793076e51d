package util

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

type ValidationUtil struct{}

func NewValidationUtil() *ValidationUtil {
	return &ValidationUtil{}
}

// violations collects every problem found in a payload so the caller gets the
// whole list in one response, sorted by field for stable output.
type violations struct {
	list []apperrors.FieldViolation
}

func (v *violations) add(field, format string, args ...interface{}) {
	v.list = append(v.list, apperrors.FieldViolation{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *violations) err() error {
	if len(v.list) == 0 {
		return nil
	}
	sort.Slice(v.list, func(i, j int) bool {
		if v.list[i].Field != v.list[j].Field {
			return v.list[i].Field < v.list[j].Field
		}
		return v.list[i].Message < v.list[j].Message
	})
	return apperrors.NewValidationError(v.list)
}

// ValidatePolicy checks a policy before it is persisted. Nothing invalid is
// ever written; the returned error carries all violations found.
func (v *ValidationUtil) ValidatePolicy(policy model.PermissionPolicy) error {
	var vs violations

	if strings.TrimSpace(policy.Name) == "" {
		vs.add("name", "name cannot be empty")
	}

	if !model.ValidScopeKind(policy.ScopeKind) {
		vs.add("scope_kind", "scope_kind must be one of GLOBAL, DEPARTMENT, POSITION, INDIVIDUAL")
	} else {
		v.checkScopeTargets(&vs, policy)
	}

	if policy.EffectiveFrom.IsZero() {
		vs.add("effective_from", "effective_from is required")
	}
	if policy.EffectiveUntil != nil && !policy.EffectiveFrom.IsZero() &&
		!model.OnOrAfter(*policy.EffectiveUntil, policy.EffectiveFrom) {
		vs.add("effective_until", "effective_until must not precede effective_from")
	}

	restricted := make(map[string]bool, len(policy.RestrictedSoftware))
	for _, s := range policy.RestrictedSoftware {
		restricted[s] = true
	}
	for _, s := range policy.AllowedSoftware {
		if restricted[s] {
			vs.add("allowed_software", "%q appears in both allowed_software and restricted_software", s)
		}
	}

	allowedDevices := make(map[string]bool, len(policy.AllowedDeviceTypes))
	for _, dt := range policy.AllowedDeviceTypes {
		allowedDevices[dt] = true
	}
	for key := range policy.MaxDevicesPerType {
		if !allowedDevices[key] {
			vs.add("max_devices_per_type", "limit key %q is not in allowed_device_types", key)
		}
	}

	allowedSoftware := make(map[string]bool, len(policy.AllowedSoftware))
	for _, s := range policy.AllowedSoftware {
		allowedSoftware[s] = true
	}
	for key := range policy.MaxLicensesPerSoftware {
		if !allowedSoftware[key] {
			vs.add("max_licenses_per_software", "limit key %q is not in allowed_software", key)
		}
	}

	return vs.err()
}

func (v *ValidationUtil) checkScopeTargets(vs *violations, policy model.PermissionPolicy) {
	requireSet := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			vs.add(field, "%s is required for scope_kind %s", field, policy.ScopeKind)
		}
	}
	requireEmpty := func(field, value string) {
		if value != "" {
			vs.add(field, "%s must be empty for scope_kind %s", field, policy.ScopeKind)
		}
	}

	switch policy.ScopeKind {
	case model.ScopeGlobal:
		requireEmpty("target_department", policy.TargetDepartment)
		requireEmpty("target_position", policy.TargetPosition)
		requireEmpty("target_employee_id", policy.TargetEmployeeID)
	case model.ScopeDepartment:
		requireSet("target_department", policy.TargetDepartment)
		requireEmpty("target_position", policy.TargetPosition)
		requireEmpty("target_employee_id", policy.TargetEmployeeID)
	case model.ScopePosition:
		requireEmpty("target_department", policy.TargetDepartment)
		requireSet("target_position", policy.TargetPosition)
		requireEmpty("target_employee_id", policy.TargetEmployeeID)
	case model.ScopeIndividual:
		requireEmpty("target_department", policy.TargetDepartment)
		requireEmpty("target_position", policy.TargetPosition)
		requireSet("target_employee_id", policy.TargetEmployeeID)
	}
}

// ValidateOverride checks an override before it is persisted.
func (v *ValidationUtil) ValidateOverride(override model.PermissionOverride) error {
	var vs violations

	if strings.TrimSpace(override.EmployeeID) == "" {
		vs.add("employee_id", "employee_id cannot be empty")
	}
	if !model.ValidOverrideKind(override.OverrideKind) {
		vs.add("override_kind", "override_kind must be GRANT or RESTRICT")
	}
	if !model.ValidResourceKind(override.ResourceKind) {
		vs.add("resource_kind", "resource_kind must be DEVICE or SOFTWARE")
	}
	if strings.TrimSpace(override.ResourceID) == "" {
		vs.add("resource_id", "resource_id cannot be empty")
	}
	if strings.TrimSpace(override.Reason) == "" {
		vs.add("reason", "reason cannot be empty")
	}

	if override.EffectiveFrom.IsZero() {
		vs.add("effective_from", "effective_from is required")
	}
	if override.EffectiveUntil.IsZero() {
		vs.add("effective_until", "effective_until is required")
	}
	if !override.EffectiveFrom.IsZero() && !override.EffectiveUntil.IsZero() &&
		!model.OnOrBefore(override.EffectiveFrom, override.EffectiveUntil) {
		vs.add("effective_until", "effective_until must not precede effective_from")
	}

	return vs.err()
}
