package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/model"
	pdp_model "github.com/piwdev/member-management-kiro-sub000/pdp/model"
)

// Engine decides one access question by merging the two resolvers' outputs
// under the precedence rules. Overrides always outrank policies. The two
// resource kinds then differ deliberately: device access is closed by
// default (no policy speaks for a device type, nobody gets it), software is
// open by default (nothing restricts it, everyone gets it).
//
// Engine is stateless and side-effect-free; audit writes belong to the
// caller. Decisions are recomputed from the stores on every call, which is
// what makes two identical calls with no intervening writes provably
// identical.
type Engine struct {
	policyResolver   *PolicyResolver
	overrideResolver *OverrideResolver
}

func NewEngine(policyResolver *PolicyResolver, overrideResolver *OverrideResolver) *Engine {
	return &Engine{
		policyResolver:   policyResolver,
		overrideResolver: overrideResolver,
	}
}

// CheckAccess dispatches on resource kind. An unknown kind is a denial with
// its own reason, not an error: callers asked a well-formed question the
// rule set simply has no namespace for.
func (e *Engine) CheckAccess(ctx context.Context, employee model.EmployeeRef, kind model.ResourceKind, resourceID string, asOf time.Time) (*pdp_model.Decision, error) {
	switch kind {
	case model.ResourceDevice:
		return e.CheckDeviceAccess(ctx, employee, resourceID, asOf)
	case model.ResourceSoftware:
		return e.CheckSoftwareAccess(ctx, employee, resourceID, asOf)
	default:
		logger.Debug("Access check for unknown resource kind",
			zap.String("employeeID", employee.ID),
			zap.String("resourceKind", string(kind)))
		return &pdp_model.Decision{
			Allowed:  false,
			RuleKind: pdp_model.RuleDefault,
			Reason:   pdp_model.ReasonUnknownResourceType,
		}, nil
	}
}

// CheckDeviceAccess decides device-type access:
//
//  1. The first active override for this device type wins outright.
//  2. Otherwise the first applicable policy that declares a non-empty
//     allowed-device-type set decides by membership. A policy with an empty
//     set makes no device statement and is skipped, it does not mean
//     "allow all".
//  3. No override and no policy with a device list: denied.
func (e *Engine) CheckDeviceAccess(ctx context.Context, employee model.EmployeeRef, deviceType string, asOf time.Time) (*pdp_model.Decision, error) {
	overrides, err := e.overrideResolver.GetActiveOverrides(ctx, employee.ID, asOf)
	if err != nil {
		return nil, err
	}
	if decision := decideByOverride(overrides, model.ResourceDevice, deviceType); decision != nil {
		return decision, nil
	}

	policies, err := e.policyResolver.GetApplicablePolicies(ctx, employee, asOf)
	if err != nil {
		return nil, err
	}
	for _, policy := range policies {
		if len(policy.AllowedDeviceTypes) == 0 {
			continue
		}
		if policy.AllowsDeviceType(deviceType) {
			return &pdp_model.Decision{
				Allowed:       true,
				RuleKind:      pdp_model.RulePolicy,
				Reason:        "device type allowed by policy",
				MatchedRuleID: policy.ID,
			}, nil
		}
		return &pdp_model.Decision{
			Allowed:       false,
			RuleKind:      pdp_model.RulePolicy,
			Reason:        "device type not in policy allow list",
			MatchedRuleID: policy.ID,
		}, nil
	}

	return &pdp_model.Decision{
		Allowed:  false,
		RuleKind: pdp_model.RuleDefault,
		Reason:   pdp_model.ReasonNoApplicablePolicy,
	}, nil
}

// CheckSoftwareAccess decides software access:
//
//  1. The first active override for this title wins outright.
//  2. Otherwise scan applicable policies in priority order for the first one
//     that does NOT permit the title (explicit restriction, or an allow-list
//     that omits it); that policy denies, even if a weaker policy would
//     allow.
//  3. If none denies, the first policy that permits allows.
//  4. No applicable policies at all: allowed.
func (e *Engine) CheckSoftwareAccess(ctx context.Context, employee model.EmployeeRef, software string, asOf time.Time) (*pdp_model.Decision, error) {
	overrides, err := e.overrideResolver.GetActiveOverrides(ctx, employee.ID, asOf)
	if err != nil {
		return nil, err
	}
	if decision := decideByOverride(overrides, model.ResourceSoftware, software); decision != nil {
		return decision, nil
	}

	policies, err := e.policyResolver.GetApplicablePolicies(ctx, employee, asOf)
	if err != nil {
		return nil, err
	}

	for _, policy := range policies {
		if policy.PermitsSoftware(software) {
			continue
		}
		reason := "software not in policy allow list"
		if policy.RestrictsSoftware(software) {
			reason = "software restricted by policy"
		}
		return &pdp_model.Decision{
			Allowed:       false,
			RuleKind:      pdp_model.RulePolicy,
			Reason:        reason,
			MatchedRuleID: policy.ID,
		}, nil
	}

	for _, policy := range policies {
		if policy.PermitsSoftware(software) {
			return &pdp_model.Decision{
				Allowed:       true,
				RuleKind:      pdp_model.RulePolicy,
				Reason:        "software permitted by policy",
				MatchedRuleID: policy.ID,
			}, nil
		}
	}

	return &pdp_model.Decision{
		Allowed:  true,
		RuleKind: pdp_model.RuleDefault,
		Reason:   pdp_model.ReasonNoRestrictingPolicy,
	}, nil
}

// decideByOverride returns the decision of the first override matching the
// resource, or nil when none matches. GRANT allows, RESTRICT denies.
func decideByOverride(overrides []*model.PermissionOverride, kind model.ResourceKind, resourceID string) *pdp_model.Decision {
	for _, override := range overrides {
		if !override.Matches(kind, resourceID) {
			continue
		}
		if override.OverrideKind == model.OverrideGrant {
			return &pdp_model.Decision{
				Allowed:       true,
				RuleKind:      pdp_model.RuleOverride,
				Reason:        "granted by override",
				MatchedRuleID: override.ID,
			}
		}
		return &pdp_model.Decision{
			Allowed:       false,
			RuleKind:      pdp_model.RuleOverride,
			Reason:        "restricted by override",
			MatchedRuleID: override.ID,
		}
	}
	return nil
}

// GetMaxDevicesForType returns the strongest applicable policy's device
// limit for deviceType: first policy in priority order that declares one.
// ok is false when no applicable policy sets a limit.
func (e *Engine) GetMaxDevicesForType(ctx context.Context, employee model.EmployeeRef, deviceType string, asOf time.Time) (limit int, ok bool, err error) {
	policies, err := e.policyResolver.GetApplicablePolicies(ctx, employee, asOf)
	if err != nil {
		return 0, false, err
	}
	for _, policy := range policies {
		if value, found := policy.MaxDevicesPerType[deviceType]; found {
			return value, true, nil
		}
	}
	return 0, false, nil
}

// GetMaxLicensesForSoftware is the software counterpart of
// GetMaxDevicesForType.
func (e *Engine) GetMaxLicensesForSoftware(ctx context.Context, employee model.EmployeeRef, software string, asOf time.Time) (limit int, ok bool, err error) {
	policies, err := e.policyResolver.GetApplicablePolicies(ctx, employee, asOf)
	if err != nil {
		return 0, false, err
	}
	for _, policy := range policies {
		if value, found := policy.MaxLicensesPerSoftware[software]; found {
			return value, true, nil
		}
	}
	return 0, false, nil
}
