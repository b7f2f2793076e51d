package engine

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/piwdev/member-management-kiro-sub000/model"
	pdp_model "github.com/piwdev/member-management-kiro-sub000/pdp/model"
)

// SummaryBuilder produces the consolidated capability view. Its semantics
// are intentionally NOT the engine's: sets are unioned across all applicable
// policies instead of stopping at the first match, and colliding limit keys
// resolve to the last-iterated (weakest) policy. The two algorithms serve
// different purposes (display vs. decision) and must not be unified.
type SummaryBuilder struct {
	policyResolver   *PolicyResolver
	overrideResolver *OverrideResolver
}

func NewSummaryBuilder(policyResolver *PolicyResolver, overrideResolver *OverrideResolver) *SummaryBuilder {
	return &SummaryBuilder{
		policyResolver:   policyResolver,
		overrideResolver: overrideResolver,
	}
}

// BuildSummary aggregates every applicable policy and live override into one
// view of what the employee can hold on asOf.
func (b *SummaryBuilder) BuildSummary(ctx context.Context, employee model.EmployeeRef, asOf time.Time) (*pdp_model.PermissionSummary, error) {
	var (
		policies  []*model.PermissionPolicy
		overrides []*model.PermissionOverride
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		policies, err = b.policyResolver.GetApplicablePolicies(gctx, employee, asOf)
		return err
	})
	g.Go(func() error {
		var err error
		overrides, err = b.overrideResolver.GetActiveOverrides(gctx, employee.ID, asOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allowedDevices := map[string]bool{}
	restrictedDevices := map[string]bool{}
	allowedSoftware := map[string]bool{}
	restrictedSoftware := map[string]bool{}
	maxDevices := map[string]int{}
	maxLicenses := map[string]int{}

	summary := &pdp_model.PermissionSummary{
		EmployeeID: employee.ID,
		AsOf:       model.Day(asOf),
	}

	// Policies arrive priority-ascending; later iterations overwrite limit
	// keys, so the weakest policy's limit survives a collision.
	for _, policy := range policies {
		for _, dt := range policy.AllowedDeviceTypes {
			allowedDevices[dt] = true
		}
		for _, s := range policy.AllowedSoftware {
			allowedSoftware[s] = true
		}
		for _, s := range policy.RestrictedSoftware {
			restrictedSoftware[s] = true
		}
		for key, value := range policy.MaxDevicesPerType {
			maxDevices[key] = value
		}
		for key, value := range policy.MaxLicensesPerSoftware {
			maxLicenses[key] = value
		}
		if policy.AutoApprove {
			summary.AutoApproveRequests = true
		}
		if policy.RequireManagerApproval {
			summary.RequireManagerApproval = true
		}
	}

	// Overrides adjust the sets. Applied weakest-first so the override the
	// decision engine would pick (resolver order, strongest first) lands
	// last and controls the final membership.
	for i := len(overrides) - 1; i >= 0; i-- {
		override := overrides[i]
		allowed, restricted := allowedSoftware, restrictedSoftware
		if override.ResourceKind == model.ResourceDevice {
			allowed, restricted = allowedDevices, restrictedDevices
		}
		if override.OverrideKind == model.OverrideGrant {
			delete(restricted, override.ResourceID)
			allowed[override.ResourceID] = true
		} else {
			delete(allowed, override.ResourceID)
			restricted[override.ResourceID] = true
		}
	}

	summary.AllowedDeviceTypes = sortedKeys(allowedDevices)
	summary.RestrictedDeviceTypes = sortedKeys(restrictedDevices)
	summary.AllowedSoftware = sortedKeys(allowedSoftware)
	summary.RestrictedSoftware = sortedKeys(restrictedSoftware)
	summary.MaxDevicesPerType = maxDevices
	summary.MaxLicensesPerSoftware = maxLicenses

	return summary, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
