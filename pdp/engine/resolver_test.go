// pdp/engine/resolver_test.go
package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/pdp/engine"
	"github.com/piwdev/member-management-kiro-sub000/store/memory"
)

func seedPolicies(t *testing.T, policies []model.PermissionPolicy) *memory.Store {
	t.Helper()
	st := memory.New()
	for i := range policies {
		require.NoError(t, st.CreatePolicy(context.Background(), &policies[i], nil))
	}
	return st
}

func seedOverrides(t *testing.T, overrides []model.PermissionOverride) *memory.Store {
	t.Helper()
	st := memory.New()
	for i := range overrides {
		require.NoError(t, st.CreateOverride(context.Background(), &overrides[i], nil))
	}
	return st
}

func policyIDs(policies []*model.PermissionPolicy) []string {
	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestGetApplicablePolicies_ScopeMatrix(t *testing.T) {
	global := basePolicy("pol-global", 1)

	engDept := basePolicy("pol-eng", 2)
	engDept.ScopeKind = model.ScopeDepartment
	engDept.TargetDepartment = "Eng"

	salesDept := basePolicy("pol-sales", 3)
	salesDept.ScopeKind = model.ScopeDepartment
	salesDept.TargetDepartment = "Sales"

	engineerPos := basePolicy("pol-engineer", 4)
	engineerPos.ScopeKind = model.ScopePosition
	engineerPos.TargetPosition = "Engineer"

	managerPos := basePolicy("pol-manager", 5)
	managerPos.ScopeKind = model.ScopePosition
	managerPos.TargetPosition = "Manager"

	me := basePolicy("pol-me", 6)
	me.ScopeKind = model.ScopeIndividual
	me.TargetEmployeeID = "emp-1"

	someoneElse := basePolicy("pol-else", 7)
	someoneElse.ScopeKind = model.ScopeIndividual
	someoneElse.TargetEmployeeID = "emp-2"

	st := seedPolicies(t, []model.PermissionPolicy{
		global, engDept, salesDept, engineerPos, managerPos, me, someoneElse,
	})
	resolver := engine.NewPolicyResolver(st)

	applicable, err := resolver.GetApplicablePolicies(context.Background(), testEmployee(), asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"pol-global", "pol-eng", "pol-engineer", "pol-me"}, policyIDs(applicable))
}

func TestGetApplicablePolicies_Ordering(t *testing.T) {
	early := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)
	late := time.Date(2024, time.March, 2, 9, 0, 0, 0, time.UTC)

	third := basePolicy("pol-c", 3)
	first := basePolicy("pol-a", 1)

	// Same priority: creation time breaks the tie, then the ID.
	secondNewer := basePolicy("pol-z", 2)
	secondNewer.CreatedAt = late
	secondOlder := basePolicy("pol-m", 2)
	secondOlder.CreatedAt = early
	secondTwin := basePolicy("pol-n", 2)
	secondTwin.CreatedAt = early

	st := seedPolicies(t, []model.PermissionPolicy{third, first, secondNewer, secondOlder, secondTwin})
	resolver := engine.NewPolicyResolver(st)

	applicable, err := resolver.GetApplicablePolicies(context.Background(), testEmployee(), asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"pol-a", "pol-m", "pol-n", "pol-z", "pol-c"}, policyIDs(applicable))
}

func TestGetApplicablePolicies_FiltersInactiveAndOutOfWindow(t *testing.T) {
	live := basePolicy("pol-live", 1)

	inactive := basePolicy("pol-inactive", 2)
	inactive.Active = false

	future := basePolicy("pol-future", 3)
	future.EffectiveFrom = model.Day(asOf).AddDate(0, 0, 1)

	until := model.Day(asOf).AddDate(0, 0, -1)
	expired := basePolicy("pol-expired", 4)
	expired.EffectiveUntil = &until

	st := seedPolicies(t, []model.PermissionPolicy{live, inactive, future, expired})
	resolver := engine.NewPolicyResolver(st)

	applicable, err := resolver.GetApplicablePolicies(context.Background(), testEmployee(), asOf)
	require.NoError(t, err)
	assert.Equal(t, []string{"pol-live"}, policyIDs(applicable))
}

func TestGetActiveOverrides_Ordering(t *testing.T) {
	earlyCreated := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	lateCreated := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

	older := baseOverride("ovr-old", model.OverrideGrant, model.ResourceSoftware, "Adobe")
	older.EffectiveFrom = time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	newest := baseOverride("ovr-new", model.OverrideGrant, model.ResourceSoftware, "Slack")
	newest.EffectiveFrom = time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)

	// Same start day: later creation wins, then the higher ID.
	twinA := baseOverride("ovr-twin-a", model.OverrideGrant, model.ResourceDevice, "LAPTOP")
	twinA.EffectiveFrom = time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC)
	twinA.CreatedAt = earlyCreated
	twinB := baseOverride("ovr-twin-b", model.OverrideGrant, model.ResourceDevice, "TABLET")
	twinB.EffectiveFrom = time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC)
	twinB.CreatedAt = lateCreated
	twinC := baseOverride("ovr-twin-c", model.OverrideGrant, model.ResourceDevice, "PHONE")
	twinC.EffectiveFrom = time.Date(2024, time.June, 5, 0, 0, 0, 0, time.UTC)
	twinC.CreatedAt = lateCreated

	st := seedOverrides(t, []model.PermissionOverride{older, newest, twinA, twinB, twinC})
	resolver := engine.NewOverrideResolver(st)

	active, err := resolver.GetActiveOverrides(context.Background(), "emp-1", asOf)
	require.NoError(t, err)

	ids := make([]string, 0, len(active))
	for _, o := range active {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"ovr-new", "ovr-twin-c", "ovr-twin-b", "ovr-twin-a", "ovr-old"}, ids)
}

func TestGetActiveOverrides_Filters(t *testing.T) {
	live := baseOverride("ovr-live", model.OverrideGrant, model.ResourceDevice, "LAPTOP")

	off := baseOverride("ovr-off", model.OverrideGrant, model.ResourceDevice, "TABLET")
	off.Active = false

	// Stale row: the flag was never cleared but the window has passed.
	stale := baseOverride("ovr-stale", model.OverrideGrant, model.ResourceDevice, "PHONE")
	stale.EffectiveUntil = model.Day(asOf).AddDate(0, 0, -10)

	other := baseOverride("ovr-other", model.OverrideGrant, model.ResourceDevice, "LAPTOP")
	other.EmployeeID = "emp-2"

	st := seedOverrides(t, []model.PermissionOverride{live, off, stale, other})
	resolver := engine.NewOverrideResolver(st)

	active, err := resolver.GetActiveOverrides(context.Background(), "emp-1", asOf)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ovr-live", active[0].ID)
}
