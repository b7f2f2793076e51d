package engine

import (
	"context"
	"sort"
	"time"

	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/store"
)

// PolicyResolver answers "which policies speak for this employee on this
// date, in what order". It is a pure read: any number of callers may resolve
// concurrently.
type PolicyResolver struct {
	policies store.PolicyStore
}

func NewPolicyResolver(policies store.PolicyStore) *PolicyResolver {
	return &PolicyResolver{policies: policies}
}

// GetApplicablePolicies filters to policies that are active, inside their
// effective window on asOf, and scoped to the employee; ordered by priority
// ascending, then creation time, then ID. The ID tie-break makes the order
// total even when two policies share a creation timestamp.
func (r *PolicyResolver) GetApplicablePolicies(ctx context.Context, employee model.EmployeeRef, asOf time.Time) ([]*model.PermissionPolicy, error) {
	candidates, err := r.policies.PoliciesForEmployee(ctx, employee)
	if err != nil {
		return nil, err
	}

	applicable := make([]*model.PermissionPolicy, 0, len(candidates))
	for _, policy := range candidates {
		if !policy.Active {
			continue
		}
		if !policy.InEffect(asOf) {
			continue
		}
		if !policy.AppliesTo(employee) {
			continue
		}
		applicable = append(applicable, policy)
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		a, b := applicable[i], applicable[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return applicable, nil
}

// OverrideResolver answers "which overrides are live for this employee on
// this date, strongest first". Pure read, same concurrency freedom.
type OverrideResolver struct {
	overrides store.OverrideStore
}

func NewOverrideResolver(overrides store.OverrideStore) *OverrideResolver {
	return &OverrideResolver{overrides: overrides}
}

// GetActiveOverrides filters to overrides that are active and whose closed
// window contains asOf; ordered by effective-from descending (most recently
// started first), then creation time descending, then ID descending for a
// total order. Effectiveness is recomputed from the dates on every call, so
// a stale active flag on an expired row never resurrects it.
func (r *OverrideResolver) GetActiveOverrides(ctx context.Context, employeeID string, asOf time.Time) ([]*model.PermissionOverride, error) {
	candidates, err := r.overrides.OverridesForEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	active := make([]*model.PermissionOverride, 0, len(candidates))
	for _, override := range candidates {
		if !override.Active {
			continue
		}
		if !override.InEffect(asOf) {
			continue
		}
		active = append(active, override)
	}

	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		dayA, dayB := model.Day(a.EffectiveFrom), model.Day(b.EffectiveFrom)
		if !dayA.Equal(dayB) {
			return dayA.After(dayB)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return active, nil
}
