// test/mock/audit.go
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/piwdev/member-management-kiro-sub000/audit"
)

// MockAuditService is a mock implementation of audit.Service
type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) AppendDecision(ctx context.Context, record *audit.Record) {
	m.Called(ctx, record)
}

func (m *MockAuditService) AppendMutation(ctx context.Context, record *audit.Record) {
	m.Called(ctx, record)
}

func (m *MockAuditService) Announce(ctx context.Context, record *audit.Record) {
	m.Called(ctx, record)
}

func (m *MockAuditService) Query(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	args := m.Called(ctx, filter)
	records, _ := args.Get(0).([]*audit.Record)
	return records, args.Error(1)
}

func (m *MockAuditService) Count(ctx context.Context, filter audit.Filter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

// MockAuditRepository is a mock implementation of audit.Repository
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, record *audit.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockAuditRepository) Query(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	args := m.Called(ctx, filter)
	records, _ := args.Get(0).([]*audit.Record)
	return records, args.Error(1)
}

func (m *MockAuditRepository) Count(ctx context.Context, filter audit.Filter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}
