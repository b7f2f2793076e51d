// pdp/engine/engine_test.go
package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/pdp/engine"
	pdp_model "github.com/piwdev/member-management-kiro-sub000/pdp/model"
	"github.com/piwdev/member-management-kiro-sub000/store/memory"
)

var (
	asOf        = time.Date(2024, time.June, 15, 12, 30, 0, 0, time.UTC)
	windowStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
)

func testEmployee() model.EmployeeRef {
	return model.EmployeeRef{ID: "emp-1", Department: "Eng", Position: "Engineer", Active: true}
}

func basePolicy(id string, priority int) model.PermissionPolicy {
	created := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)
	return model.PermissionPolicy{
		ID:            id,
		Name:          "policy " + id,
		ScopeKind:     model.ScopeGlobal,
		Priority:      priority,
		Active:        true,
		EffectiveFrom: windowStart,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func baseOverride(id string, kind model.OverrideKind, resourceKind model.ResourceKind, resourceID string) model.PermissionOverride {
	created := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	return model.PermissionOverride{
		ID:             id,
		EmployeeID:     "emp-1",
		OverrideKind:   kind,
		ResourceKind:   resourceKind,
		ResourceID:     resourceID,
		EffectiveFrom:  windowStart,
		EffectiveUntil: windowEnd,
		Reason:         "temporary exception",
		Active:         true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func newTestEngine(t *testing.T, policies []model.PermissionPolicy, overrides []model.PermissionOverride) *engine.Engine {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	for i := range policies {
		require.NoError(t, st.CreatePolicy(ctx, &policies[i], nil))
	}
	for i := range overrides {
		require.NoError(t, st.CreateOverride(ctx, &overrides[i], nil))
	}
	return engine.NewEngine(engine.NewPolicyResolver(st), engine.NewOverrideResolver(st))
}

func TestCheckAccess_UnknownResourceKind(t *testing.T) {
	eng := newTestEngine(t, nil, nil)

	decision, err := eng.CheckAccess(context.Background(), testEmployee(), model.ResourceKind("PRINTER"), "hp-4000", asOf)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, pdp_model.RuleDefault, decision.RuleKind)
	assert.Equal(t, pdp_model.ReasonUnknownResourceType, decision.Reason)
}

func TestCheckDeviceAccess_Defaults(t *testing.T) {
	t.Run("NoPoliciesNoOverrides_Denied", func(t *testing.T) {
		eng := newTestEngine(t, nil, nil)

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "ANYTHING", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, pdp_model.RuleDefault, decision.RuleKind)
		assert.Equal(t, pdp_model.ReasonNoApplicablePolicy, decision.Reason)
		assert.Empty(t, decision.MatchedRuleID)
	})

	t.Run("OnlyDeviceSilentPolicies_Denied", func(t *testing.T) {
		// Policies that say nothing about device types leave the default in place.
		p := basePolicy("pol-sw", 1)
		p.AllowedSoftware = []string{"Slack"}
		eng := newTestEngine(t, []model.PermissionPolicy{p}, nil)

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "LAPTOP", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, pdp_model.RuleDefault, decision.RuleKind)
		assert.Equal(t, pdp_model.ReasonNoApplicablePolicy, decision.Reason)
	})
}

func TestCheckSoftwareAccess_DefaultAllow(t *testing.T) {
	eng := newTestEngine(t, nil, nil)

	decision, err := eng.CheckSoftwareAccess(context.Background(), testEmployee(), "ANYTHING", asOf)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, pdp_model.RuleDefault, decision.RuleKind)
	assert.Equal(t, pdp_model.ReasonNoRestrictingPolicy, decision.Reason)
}

func TestCheckDeviceAccess_DepartmentPolicy(t *testing.T) {
	p := basePolicy("pol-eng", 2)
	p.ScopeKind = model.ScopeDepartment
	p.TargetDepartment = "Eng"
	p.AllowedDeviceTypes = []string{"LAPTOP"}
	eng := newTestEngine(t, []model.PermissionPolicy{p}, nil)

	t.Run("ListedType_Allowed", func(t *testing.T) {
		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "LAPTOP", asOf)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, pdp_model.RulePolicy, decision.RuleKind)
		assert.Equal(t, "pol-eng", decision.MatchedRuleID)
	})

	t.Run("UnlistedType_Denied", func(t *testing.T) {
		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "TABLET", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, pdp_model.RulePolicy, decision.RuleKind)
		assert.Equal(t, "pol-eng", decision.MatchedRuleID)
		assert.Equal(t, "device type not in policy allow list", decision.Reason)
	})

	t.Run("OtherDepartment_DefaultDenied", func(t *testing.T) {
		sales := model.EmployeeRef{ID: "emp-2", Department: "Sales", Position: "Rep", Active: true}
		decision, err := eng.CheckDeviceAccess(context.Background(), sales, "LAPTOP", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, pdp_model.RuleDefault, decision.RuleKind)
		assert.Equal(t, pdp_model.ReasonNoApplicablePolicy, decision.Reason)
	})
}

func TestCheckDeviceAccess_EmptySetSkipsToNextPolicy(t *testing.T) {
	// The stronger policy declares no device types, so it makes no device
	// statement at all; the weaker one decides.
	silent := basePolicy("pol-silent", 1)
	silent.AllowedSoftware = []string{"Slack"}
	speaking := basePolicy("pol-speaking", 2)
	speaking.AllowedDeviceTypes = []string{"LAPTOP"}
	eng := newTestEngine(t, []model.PermissionPolicy{silent, speaking}, nil)

	decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "LAPTOP", asOf)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, pdp_model.RulePolicy, decision.RuleKind)
	assert.Equal(t, "pol-speaking", decision.MatchedRuleID)
}

func TestCheckDeviceAccess_OverrideGrantBeatsPolicy(t *testing.T) {
	p := basePolicy("pol-eng", 2)
	p.ScopeKind = model.ScopeDepartment
	p.TargetDepartment = "Eng"
	p.AllowedDeviceTypes = []string{"LAPTOP"}

	o := baseOverride("ovr-tablet", model.OverrideGrant, model.ResourceDevice, "TABLET")
	o.EffectiveFrom = model.Day(asOf)
	o.EffectiveUntil = model.Day(asOf).AddDate(0, 0, 30)

	eng := newTestEngine(t, []model.PermissionPolicy{p}, []model.PermissionOverride{o})

	decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "TABLET", asOf)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, pdp_model.RuleOverride, decision.RuleKind)
	assert.Equal(t, "ovr-tablet", decision.MatchedRuleID)
}

func TestCheckDeviceAccess_OverrideRestrictBeatsPolicy(t *testing.T) {
	p := basePolicy("pol-eng", 2)
	p.AllowedDeviceTypes = []string{"LAPTOP"}
	o := baseOverride("ovr-laptop", model.OverrideRestrict, model.ResourceDevice, "LAPTOP")
	eng := newTestEngine(t, []model.PermissionPolicy{p}, []model.PermissionOverride{o})

	decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "LAPTOP", asOf)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, pdp_model.RuleOverride, decision.RuleKind)
	assert.Equal(t, "ovr-laptop", decision.MatchedRuleID)
}

func TestCheckSoftwareAccess_RestrictionWinsOverWeakerAllow(t *testing.T) {
	// An Eng manager matches both: the position policy restricts Adobe at
	// priority 1, the department policy allows it at priority 2. The
	// restriction wins.
	restrict := basePolicy("pol-manager", 1)
	restrict.ScopeKind = model.ScopePosition
	restrict.TargetPosition = "Manager"
	restrict.RestrictedSoftware = []string{"Adobe"}

	allow := basePolicy("pol-eng", 2)
	allow.ScopeKind = model.ScopeDepartment
	allow.TargetDepartment = "Eng"
	allow.AllowedSoftware = []string{"Adobe"}

	eng := newTestEngine(t, []model.PermissionPolicy{restrict, allow}, nil)
	manager := model.EmployeeRef{ID: "emp-3", Department: "Eng", Position: "Manager", Active: true}

	decision, err := eng.CheckSoftwareAccess(context.Background(), manager, "Adobe", asOf)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, pdp_model.RulePolicy, decision.RuleKind)
	assert.Equal(t, "pol-manager", decision.MatchedRuleID)
	assert.Equal(t, "software restricted by policy", decision.Reason)
}

func TestCheckSoftwareAccess_AllowListOmissionDenies(t *testing.T) {
	// A policy with an allow list that omits the title denies it, even when
	// a weaker policy would allow.
	narrow := basePolicy("pol-narrow", 1)
	narrow.AllowedSoftware = []string{"Slack"}
	broad := basePolicy("pol-broad", 2)
	broad.AllowedSoftware = []string{"Adobe", "Slack"}
	eng := newTestEngine(t, []model.PermissionPolicy{narrow, broad}, nil)

	decision, err := eng.CheckSoftwareAccess(context.Background(), testEmployee(), "Adobe", asOf)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, pdp_model.RulePolicy, decision.RuleKind)
	assert.Equal(t, "pol-narrow", decision.MatchedRuleID)
	assert.Equal(t, "software not in policy allow list", decision.Reason)
}

func TestCheckSoftwareAccess_FirstPermittingPolicyAllows(t *testing.T) {
	first := basePolicy("pol-first", 1)
	first.AllowedSoftware = []string{"Adobe"}
	second := basePolicy("pol-second", 2)
	second.AllowedSoftware = []string{"Adobe", "Slack"}
	eng := newTestEngine(t, []model.PermissionPolicy{first, second}, nil)

	decision, err := eng.CheckSoftwareAccess(context.Background(), testEmployee(), "Adobe", asOf)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, pdp_model.RulePolicy, decision.RuleKind)
	assert.Equal(t, "pol-first", decision.MatchedRuleID)
	assert.Equal(t, "software permitted by policy", decision.Reason)
}

func TestCheckSoftwareAccess_OverrideBeatsRestriction(t *testing.T) {
	restrict := basePolicy("pol-restrict", 1)
	restrict.RestrictedSoftware = []string{"Adobe"}
	o := baseOverride("ovr-adobe", model.OverrideGrant, model.ResourceSoftware, "Adobe")
	eng := newTestEngine(t, []model.PermissionPolicy{restrict}, []model.PermissionOverride{o})

	decision, err := eng.CheckSoftwareAccess(context.Background(), testEmployee(), "Adobe", asOf)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, pdp_model.RuleOverride, decision.RuleKind)
	assert.Equal(t, "ovr-adobe", decision.MatchedRuleID)
}

func TestOverrideWindowBoundaries(t *testing.T) {
	t.Run("UntilEqualsAsOfDay_StillEffective", func(t *testing.T) {
		// The until bound is midnight of the asOf day while the check runs
		// at 12:30; day granularity keeps the override live all day.
		o := baseOverride("ovr-edge", model.OverrideGrant, model.ResourceDevice, "TABLET")
		o.EffectiveUntil = model.Day(asOf)
		eng := newTestEngine(t, nil, []model.PermissionOverride{o})

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "TABLET", asOf)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, pdp_model.RuleOverride, decision.RuleKind)
	})

	t.Run("UntilYesterday_Expired", func(t *testing.T) {
		o := baseOverride("ovr-gone", model.OverrideGrant, model.ResourceDevice, "TABLET")
		o.EffectiveUntil = model.Day(asOf).AddDate(0, 0, -1)
		eng := newTestEngine(t, nil, []model.PermissionOverride{o})

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "TABLET", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, pdp_model.RuleDefault, decision.RuleKind)
		assert.Equal(t, pdp_model.ReasonNoApplicablePolicy, decision.Reason)
	})

	t.Run("FromTomorrow_NotYetEffective", func(t *testing.T) {
		o := baseOverride("ovr-future", model.OverrideGrant, model.ResourceDevice, "TABLET")
		o.EffectiveFrom = model.Day(asOf).AddDate(0, 0, 1)
		o.EffectiveUntil = model.Day(asOf).AddDate(0, 0, 30)
		eng := newTestEngine(t, nil, []model.PermissionOverride{o})

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "TABLET", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
	})
}

func TestPolicyWindowBoundaries(t *testing.T) {
	t.Run("UntilEqualsAsOfDay_StillApplies", func(t *testing.T) {
		until := model.Day(asOf)
		p := basePolicy("pol-edge", 1)
		p.AllowedDeviceTypes = []string{"LAPTOP"}
		p.EffectiveUntil = &until
		eng := newTestEngine(t, []model.PermissionPolicy{p}, nil)

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "LAPTOP", asOf)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	})

	t.Run("UntilYesterday_NoLongerApplies", func(t *testing.T) {
		until := model.Day(asOf).AddDate(0, 0, -1)
		p := basePolicy("pol-gone", 1)
		p.AllowedDeviceTypes = []string{"LAPTOP"}
		p.EffectiveUntil = &until
		eng := newTestEngine(t, []model.PermissionPolicy{p}, nil)

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "LAPTOP", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, pdp_model.ReasonNoApplicablePolicy, decision.Reason)
	})

	t.Run("InactivePolicyIgnored", func(t *testing.T) {
		p := basePolicy("pol-off", 1)
		p.AllowedDeviceTypes = []string{"LAPTOP"}
		p.Active = false
		eng := newTestEngine(t, []model.PermissionPolicy{p}, nil)

		decision, err := eng.CheckDeviceAccess(context.Background(), testEmployee(), "LAPTOP", asOf)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, pdp_model.ReasonNoApplicablePolicy, decision.Reason)
	})
}

func TestCheckAccess_Idempotent(t *testing.T) {
	p := basePolicy("pol-eng", 2)
	p.AllowedDeviceTypes = []string{"LAPTOP"}
	o := baseOverride("ovr-adobe", model.OverrideRestrict, model.ResourceSoftware, "Adobe")
	eng := newTestEngine(t, []model.PermissionPolicy{p}, []model.PermissionOverride{o})
	ctx := context.Background()

	for _, tc := range []struct {
		kind       model.ResourceKind
		resourceID string
	}{
		{model.ResourceDevice, "LAPTOP"},
		{model.ResourceDevice, "TABLET"},
		{model.ResourceSoftware, "Adobe"},
		{model.ResourceSoftware, "Slack"},
	} {
		first, err := eng.CheckAccess(ctx, testEmployee(), tc.kind, tc.resourceID, asOf)
		require.NoError(t, err)
		second, err := eng.CheckAccess(ctx, testEmployee(), tc.kind, tc.resourceID, asOf)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestGetMaxDevicesForType(t *testing.T) {
	strong := basePolicy("pol-strong", 1)
	strong.MaxDevicesPerType = map[string]int{"LAPTOP": 1}
	weak := basePolicy("pol-weak", 2)
	weak.MaxDevicesPerType = map[string]int{"LAPTOP": 3, "TABLET": 2}
	eng := newTestEngine(t, []model.PermissionPolicy{strong, weak}, nil)
	ctx := context.Background()

	t.Run("FirstDeclaredLimitWins", func(t *testing.T) {
		limit, ok, err := eng.GetMaxDevicesForType(ctx, testEmployee(), "LAPTOP", asOf)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, limit)
	})

	t.Run("FallsThroughToWeakerPolicy", func(t *testing.T) {
		limit, ok, err := eng.GetMaxDevicesForType(ctx, testEmployee(), "TABLET", asOf)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, limit)
	})

	t.Run("NoDeclaredLimit", func(t *testing.T) {
		_, ok, err := eng.GetMaxDevicesForType(ctx, testEmployee(), "PHONE", asOf)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGetMaxLicensesForSoftware(t *testing.T) {
	p := basePolicy("pol-lic", 1)
	p.MaxLicensesPerSoftware = map[string]int{"Adobe": 5}
	eng := newTestEngine(t, []model.PermissionPolicy{p}, nil)

	limit, ok, err := eng.GetMaxLicensesForSoftware(context.Background(), testEmployee(), "Adobe", asOf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, limit)

	_, ok, err = eng.GetMaxLicensesForSoftware(context.Background(), testEmployee(), "Slack", asOf)
	require.NoError(t, err)
	assert.False(t, ok)
}
