// test/mock/services.go
package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/piwdev/member-management-kiro-sub000/model"
	pdpmodel "github.com/piwdev/member-management-kiro-sub000/pdp/model"
)

// MockPolicyService is a mock implementation of service.IPolicyService
type MockPolicyService struct {
	mock.Mock
}

func (m *MockPolicyService) CreatePolicy(ctx context.Context, policy model.PermissionPolicy, actor string) (*model.PermissionPolicy, error) {
	args := m.Called(ctx, policy, actor)
	created, _ := args.Get(0).(*model.PermissionPolicy)
	return created, args.Error(1)
}

func (m *MockPolicyService) UpdatePolicy(ctx context.Context, policy model.PermissionPolicy, actor string) (*model.PermissionPolicy, error) {
	args := m.Called(ctx, policy, actor)
	updated, _ := args.Get(0).(*model.PermissionPolicy)
	return updated, args.Error(1)
}

func (m *MockPolicyService) DeletePolicy(ctx context.Context, policyID string, actor string) error {
	args := m.Called(ctx, policyID, actor)
	return args.Error(0)
}

func (m *MockPolicyService) ActivatePolicy(ctx context.Context, policyID string, actor string) (*model.PermissionPolicy, error) {
	args := m.Called(ctx, policyID, actor)
	policy, _ := args.Get(0).(*model.PermissionPolicy)
	return policy, args.Error(1)
}

func (m *MockPolicyService) DeactivatePolicy(ctx context.Context, policyID string, actor string) (*model.PermissionPolicy, error) {
	args := m.Called(ctx, policyID, actor)
	policy, _ := args.Get(0).(*model.PermissionPolicy)
	return policy, args.Error(1)
}

func (m *MockPolicyService) GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error) {
	args := m.Called(ctx, policyID)
	policy, _ := args.Get(0).(*model.PermissionPolicy)
	return policy, args.Error(1)
}

func (m *MockPolicyService) ListPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.PermissionPolicy, error) {
	args := m.Called(ctx, criteria)
	policies, _ := args.Get(0).([]*model.PermissionPolicy)
	return policies, args.Error(1)
}

// MockOverrideService is a mock implementation of service.IOverrideService
type MockOverrideService struct {
	mock.Mock
}

func (m *MockOverrideService) CreateOverride(ctx context.Context, override model.PermissionOverride, actor string) (*model.PermissionOverride, error) {
	args := m.Called(ctx, override, actor)
	created, _ := args.Get(0).(*model.PermissionOverride)
	return created, args.Error(1)
}

func (m *MockOverrideService) UpdateOverride(ctx context.Context, override model.PermissionOverride, actor string) (*model.PermissionOverride, error) {
	args := m.Called(ctx, override, actor)
	updated, _ := args.Get(0).(*model.PermissionOverride)
	return updated, args.Error(1)
}

func (m *MockOverrideService) DeleteOverride(ctx context.Context, overrideID string, actor string) error {
	args := m.Called(ctx, overrideID, actor)
	return args.Error(0)
}

func (m *MockOverrideService) ActivateOverride(ctx context.Context, overrideID string, actor string) (*model.PermissionOverride, error) {
	args := m.Called(ctx, overrideID, actor)
	override, _ := args.Get(0).(*model.PermissionOverride)
	return override, args.Error(1)
}

func (m *MockOverrideService) DeactivateOverride(ctx context.Context, overrideID string, actor string) (*model.PermissionOverride, error) {
	args := m.Called(ctx, overrideID, actor)
	override, _ := args.Get(0).(*model.PermissionOverride)
	return override, args.Error(1)
}

func (m *MockOverrideService) GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error) {
	args := m.Called(ctx, overrideID)
	override, _ := args.Get(0).(*model.PermissionOverride)
	return override, args.Error(1)
}

func (m *MockOverrideService) ListOverrides(ctx context.Context, criteria model.OverrideSearchCriteria) ([]*model.PermissionOverride, error) {
	args := m.Called(ctx, criteria)
	overrides, _ := args.Get(0).([]*model.PermissionOverride)
	return overrides, args.Error(1)
}

// MockAccessService is a mock implementation of service.IAccessService
type MockAccessService struct {
	mock.Mock
}

func (m *MockAccessService) CheckAccess(ctx context.Context, req pdpmodel.AccessRequest) (*pdpmodel.Decision, error) {
	args := m.Called(ctx, req)
	decision, _ := args.Get(0).(*pdpmodel.Decision)
	return decision, args.Error(1)
}

func (m *MockAccessService) GetPermissionSummary(ctx context.Context, employeeID string, asOf time.Time) (*pdpmodel.PermissionSummary, error) {
	args := m.Called(ctx, employeeID, asOf)
	summary, _ := args.Get(0).(*pdpmodel.PermissionSummary)
	return summary, args.Error(1)
}

func (m *MockAccessService) GetMaxDevicesForType(ctx context.Context, employeeID string, deviceType string, asOf time.Time) (int, bool, error) {
	args := m.Called(ctx, employeeID, deviceType, asOf)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *MockAccessService) GetMaxLicensesForSoftware(ctx context.Context, employeeID string, software string, asOf time.Time) (int, bool, error) {
	args := m.Called(ctx, employeeID, software, asOf)
	return args.Int(0), args.Bool(1), args.Error(2)
}
