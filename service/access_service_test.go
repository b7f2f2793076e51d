// service/access_service_test.go
package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	"github.com/piwdev/member-management-kiro-sub000/directory"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/pdp/engine"
	pdp_model "github.com/piwdev/member-management-kiro-sub000/pdp/model"
	"github.com/piwdev/member-management-kiro-sub000/service"
	"github.com/piwdev/member-management-kiro-sub000/store/memory"
	testmock "github.com/piwdev/member-management-kiro-sub000/test/mock"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

var checkAsOf = time.Date(2024, time.June, 15, 12, 30, 0, 0, time.UTC)

type accessFixture struct {
	service *service.AccessService
	store   *memory.Store
	cache   *testmock.MemoryCache
	audit   *testmock.MockAuditService
	bus     *util.EventBus
	stats   *metrics.Collector
}

// newAccessFixture wires a real store, engine, and directory around a mocked
// audit sink. emp-1 is an active engineer, emp-2 has left the company.
func newAccessFixture(t *testing.T, policies []model.PermissionPolicy, overrides []model.PermissionOverride) *accessFixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	for i := range policies {
		require.NoError(t, st.CreatePolicy(ctx, &policies[i], nil))
	}
	for i := range overrides {
		require.NoError(t, st.CreateOverride(ctx, &overrides[i], nil))
	}

	dir := directory.NewMemoryDirectory()
	dir.Put(model.EmployeeRef{ID: "emp-1", Department: "Eng", Position: "Engineer", Active: true})
	dir.Put(model.EmployeeRef{ID: "emp-2", Department: "Sales", Position: "Rep", Active: false})

	cache := testmock.NewMemoryCache()
	auditMock := new(testmock.MockAuditService)
	auditMock.On("AppendDecision", mock.Anything, mock.Anything).Return()
	bus := util.NewEventBus()
	stats := metrics.New()

	policyResolver := engine.NewPolicyResolver(st)
	overrideResolver := engine.NewOverrideResolver(st)
	svc := service.NewAccessService(
		engine.NewEngine(policyResolver, overrideResolver),
		engine.NewSummaryBuilder(policyResolver, overrideResolver),
		dir,
		auditMock,
		cache,
		bus,
		stats,
	)
	return &accessFixture{service: svc, store: st, cache: cache, audit: auditMock, bus: bus, stats: stats}
}

func engDevicePolicy() model.PermissionPolicy {
	return model.PermissionPolicy{
		ID:                     "pol-eng",
		Name:                   "engineering devices",
		ScopeKind:              model.ScopeDepartment,
		TargetDepartment:       "Eng",
		Priority:               10,
		AllowedDeviceTypes:     []string{"LAPTOP"},
		MaxDevicesPerType:      map[string]int{"LAPTOP": 2},
		AllowedSoftware:        []string{"adobe-cc"},
		MaxLicensesPerSoftware: map[string]int{"adobe-cc": 5},
		EffectiveFrom:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Active:                 true,
	}
}

// appendedRecords collects the audit records a mocked method received.
func appendedRecords(m *testmock.MockAuditService, method string) []*audit.Record {
	var records []*audit.Record
	for _, call := range m.Calls {
		if call.Method != method {
			continue
		}
		if record, ok := call.Arguments.Get(1).(*audit.Record); ok {
			records = append(records, record)
		}
	}
	return records
}

func TestCheckAccess_UnknownEmployee(t *testing.T) {
	f := newAccessFixture(t, nil, nil)

	_, err := f.service.CheckAccess(context.Background(), pdp_model.AccessRequest{
		EmployeeID:   "ghost",
		ResourceKind: model.ResourceDevice,
		ResourceID:   "LAPTOP",
		AsOf:         checkAsOf,
	})
	assert.ErrorIs(t, err, apperrors.ErrEmployeeNotFound)

	f.audit.AssertNotCalled(t, "AppendDecision", mock.Anything, mock.Anything)
	assert.Equal(t, uint64(0), f.stats.Snapshot()["checksTotal"])
}

func TestCheckAccess_InactiveEmployeeGetsDenial(t *testing.T) {
	f := newAccessFixture(t, []model.PermissionPolicy{engDevicePolicy()}, nil)
	denials := subscribeEvent(f.bus, model.EventAccessDenied)

	// A department policy would allow the device, but the employee record
	// wins first: inactive means denied, not an error.
	decision, err := f.service.CheckAccess(context.Background(), pdp_model.AccessRequest{
		EmployeeID:   "emp-2",
		ResourceKind: model.ResourceDevice,
		ResourceID:   "LAPTOP",
		AsOf:         checkAsOf,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, pdp_model.RuleDefault, decision.RuleKind)
	assert.Equal(t, pdp_model.ReasonEmployeeInactive, decision.Reason)

	records := appendedRecords(f.audit, "AppendDecision")
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionAccessDenied, records[0].Action)
	assert.Equal(t, audit.ResultDenied, records[0].Result)
	assert.Equal(t, "emp-2", records[0].EmployeeID)

	event := waitEvent(t, denials)
	payload, ok := event.Payload.(model.AccessDeniedEvent)
	require.True(t, ok)
	assert.Equal(t, pdp_model.ReasonEmployeeInactive, payload.Reason)

	snapshot := f.stats.Snapshot()
	assert.Equal(t, uint64(1), snapshot["checksTotal"])
	assert.Equal(t, uint64(1), snapshot["denialsTotal"])
}

func TestCheckAccess_PolicyAllowsDevice(t *testing.T) {
	f := newAccessFixture(t, []model.PermissionPolicy{engDevicePolicy()}, nil)
	ctx := util.WithRequestMeta(context.Background(), "gateway", "10.0.0.7", "cli/1.0")

	decision, err := f.service.CheckAccess(ctx, pdp_model.AccessRequest{
		EmployeeID:   "emp-1",
		ResourceKind: model.ResourceDevice,
		ResourceID:   "LAPTOP",
		AsOf:         checkAsOf,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, pdp_model.RulePolicy, decision.RuleKind)

	records := appendedRecords(f.audit, "AppendDecision")
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionAccessGranted, records[0].Action)
	assert.Equal(t, audit.ResultGranted, records[0].Result)
	assert.Equal(t, "gateway", records[0].Actor)
	assert.Equal(t, "10.0.0.7", records[0].RemoteAddr)
	assert.Equal(t, "cli/1.0", records[0].UserAgent)

	snapshot := f.stats.Snapshot()
	assert.Equal(t, uint64(1), snapshot["checksTotal"])
	assert.Equal(t, uint64(0), snapshot["denialsTotal"])
}

func TestCheckAccess_OverrideOutranksPolicy(t *testing.T) {
	restrict := model.PermissionOverride{
		ID:             "ovr-1",
		EmployeeID:     "emp-1",
		OverrideKind:   model.OverrideRestrict,
		ResourceKind:   model.ResourceDevice,
		ResourceID:     "LAPTOP",
		Reason:         "device recalled",
		EffectiveFrom:  time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		EffectiveUntil: time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		Active:         true,
	}
	f := newAccessFixture(t, []model.PermissionPolicy{engDevicePolicy()}, []model.PermissionOverride{restrict})

	decision, err := f.service.CheckAccess(context.Background(), pdp_model.AccessRequest{
		EmployeeID:   "emp-1",
		ResourceKind: model.ResourceDevice,
		ResourceID:   "LAPTOP",
		AsOf:         checkAsOf,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, pdp_model.RuleOverride, decision.RuleKind)

	snapshot := f.stats.Snapshot()
	assert.Equal(t, uint64(1), snapshot["overrideHitsTotal"])
	assert.Equal(t, uint64(1), snapshot["denialsTotal"])
}

// A broken ledger must never block a decision: the check still answers and
// the failure only shows up in the metrics.
func TestCheckAccess_AuditFailureDoesNotBlockDecision(t *testing.T) {
	st := memory.New()
	pol := engDevicePolicy()
	require.NoError(t, st.CreatePolicy(context.Background(), &pol, nil))

	dir := directory.NewMemoryDirectory()
	dir.Put(model.EmployeeRef{ID: "emp-1", Department: "Eng", Position: "Engineer", Active: true})

	repo := new(testmock.MockAuditRepository)
	repo.On("Append", mock.Anything, mock.Anything).Return(errors.New("ledger down"))

	bus := util.NewEventBus()
	stats := metrics.New()
	policyResolver := engine.NewPolicyResolver(st)
	overrideResolver := engine.NewOverrideResolver(st)
	svc := service.NewAccessService(
		engine.NewEngine(policyResolver, overrideResolver),
		engine.NewSummaryBuilder(policyResolver, overrideResolver),
		dir,
		audit.NewService(repo, bus, stats),
		testmock.NewMemoryCache(),
		bus,
		stats,
	)

	decision, err := svc.CheckAccess(context.Background(), pdp_model.AccessRequest{
		EmployeeID:   "emp-1",
		ResourceKind: model.ResourceDevice,
		ResourceID:   "LAPTOP",
		AsOf:         checkAsOf,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, uint64(1), stats.Snapshot()["auditFailuresTotal"])
}

func TestGetPermissionSummary(t *testing.T) {
	t.Run("BuildsThenServesFromCache", func(t *testing.T) {
		f := newAccessFixture(t, []model.PermissionPolicy{engDevicePolicy()}, nil)
		ctx := context.Background()

		summary, err := f.service.GetPermissionSummary(ctx, "emp-1", checkAsOf)
		require.NoError(t, err)
		assert.Equal(t, "emp-1", summary.EmployeeID)
		assert.Equal(t, []string{"LAPTOP"}, summary.AllowedDeviceTypes)
		assert.True(t, summary.AsOf.Equal(model.Day(checkAsOf)))

		// Mark the cached copy, then ask again: the marker coming back
		// proves the second answer skipped the builder.
		cached, err := f.cache.GetSummary(ctx, "emp-1", checkAsOf)
		require.NoError(t, err)
		require.NotNil(t, cached)
		cached.AllowedDeviceTypes = append(cached.AllowedDeviceTypes, "MARKER")

		second, err := f.service.GetPermissionSummary(ctx, "emp-1", checkAsOf)
		require.NoError(t, err)
		assert.Contains(t, second.AllowedDeviceTypes, "MARKER")

		records := appendedRecords(f.audit, "AppendDecision")
		require.Len(t, records, 2)
		assert.Equal(t, audit.ActionPermissionCheck, records[0].Action)
		assert.Equal(t, audit.ActionPermissionCheck, records[1].Action)
	})

	t.Run("InactiveEmployeeGetsEmptySummary", func(t *testing.T) {
		f := newAccessFixture(t, []model.PermissionPolicy{engDevicePolicy()}, nil)

		summary, err := f.service.GetPermissionSummary(context.Background(), "emp-2", checkAsOf)
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.Empty(t, summary.AllowedDeviceTypes)
		assert.Empty(t, summary.AllowedSoftware)
		assert.NotNil(t, summary.MaxDevicesPerType)
		assert.True(t, summary.AsOf.Equal(model.Day(checkAsOf)))

		records := appendedRecords(f.audit, "AppendDecision")
		require.Len(t, records, 1)
		assert.Equal(t, audit.ActionPermissionCheck, records[0].Action)
	})

	t.Run("UnknownEmployee", func(t *testing.T) {
		f := newAccessFixture(t, nil, nil)
		_, err := f.service.GetPermissionSummary(context.Background(), "ghost", checkAsOf)
		assert.ErrorIs(t, err, apperrors.ErrEmployeeNotFound)
	})
}

func TestGetMaxDevicesForType_Service(t *testing.T) {
	f := newAccessFixture(t, []model.PermissionPolicy{engDevicePolicy()}, nil)
	ctx := context.Background()

	limit, ok, err := f.service.GetMaxDevicesForType(ctx, "emp-1", "LAPTOP", checkAsOf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, limit)

	_, ok, err = f.service.GetMaxDevicesForType(ctx, "emp-1", "PHONE", checkAsOf)
	require.NoError(t, err)
	assert.False(t, ok)

	// Inactive employees hold no limits; unknown ones are an error.
	_, ok, err = f.service.GetMaxDevicesForType(ctx, "emp-2", "LAPTOP", checkAsOf)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = f.service.GetMaxDevicesForType(ctx, "ghost", "LAPTOP", checkAsOf)
	assert.ErrorIs(t, err, apperrors.ErrEmployeeNotFound)
}

func TestGetMaxLicensesForSoftware_Service(t *testing.T) {
	f := newAccessFixture(t, []model.PermissionPolicy{engDevicePolicy()}, nil)
	ctx := context.Background()

	limit, ok, err := f.service.GetMaxLicensesForSoftware(ctx, "emp-1", "adobe-cc", checkAsOf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, limit)

	_, ok, err = f.service.GetMaxLicensesForSoftware(ctx, "emp-1", "figma", checkAsOf)
	require.NoError(t, err)
	assert.False(t, ok)
}
