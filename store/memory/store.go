// Package memory provides the in-memory store backend, used by tests and
// single-process development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps everything under one RWMutex. Each mutation and its audit
// record commit inside a single critical section, which is this backend's
// version of the atomic mutation+record contract.
type Store struct {
	mu        sync.RWMutex
	policies  map[string]*model.PermissionPolicy
	overrides map[string]*model.PermissionOverride
	records   []*audit.Record
}

func New() *Store {
	return &Store{
		policies:  make(map[string]*model.PermissionPolicy),
		overrides: make(map[string]*model.PermissionOverride),
	}
}

// ──────────────────────────────────────────────────
// PolicyStore
// ──────────────────────────────────────────────────

func (s *Store) CreatePolicy(_ context.Context, policy *model.PermissionPolicy, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.policies[policy.ID]; exists {
		return fmt.Errorf("policy %s: %w", policy.ID, apperrors.ErrPolicyConflict)
	}
	s.policies[policy.ID] = copyPolicy(policy)
	s.appendRecordLocked(record)
	return nil
}

func (s *Store) UpdatePolicy(_ context.Context, policy *model.PermissionPolicy, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.policies[policy.ID]; !exists {
		return fmt.Errorf("policy %s: %w", policy.ID, apperrors.ErrPolicyNotFound)
	}
	s.policies[policy.ID] = copyPolicy(policy)
	s.appendRecordLocked(record)
	return nil
}

func (s *Store) DeletePolicy(_ context.Context, policyID string, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.policies[policyID]; !exists {
		return fmt.Errorf("policy %s: %w", policyID, apperrors.ErrPolicyNotFound)
	}
	delete(s.policies, policyID)
	s.appendRecordLocked(record)
	return nil
}

func (s *Store) GetPolicy(_ context.Context, policyID string) (*model.PermissionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[policyID]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", policyID, apperrors.ErrPolicyNotFound)
	}
	return copyPolicy(policy), nil
}

func (s *Store) ListPolicies(_ context.Context, criteria model.PolicySearchCriteria) ([]*model.PermissionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.PermissionPolicy, 0, len(s.policies))
	for _, policy := range s.policies {
		if criteria.Name != "" && !strings.Contains(strings.ToLower(policy.Name), strings.ToLower(criteria.Name)) {
			continue
		}
		if criteria.ScopeKind != "" && policy.ScopeKind != criteria.ScopeKind {
			continue
		}
		if criteria.ScopeTarget != "" && policy.ScopeTarget() != criteria.ScopeTarget {
			continue
		}
		if criteria.Active != nil && policy.Active != *criteria.Active {
			continue
		}
		if criteria.MinPriority > 0 && policy.Priority < criteria.MinPriority {
			continue
		}
		if criteria.MaxPriority > 0 && policy.Priority > criteria.MaxPriority {
			continue
		}
		result = append(result, copyPolicy(policy))
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return applyPagination(result, criteria.Limit, criteria.Offset), nil
}

func (s *Store) PoliciesForEmployee(_ context.Context, employee model.EmployeeRef) ([]*model.PermissionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Over-returning is fine, the resolver re-filters authoritatively.
	result := make([]*model.PermissionPolicy, 0, len(s.policies))
	for _, policy := range s.policies {
		if policy.AppliesTo(employee) {
			result = append(result, copyPolicy(policy))
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// OverrideStore
// ──────────────────────────────────────────────────

func (s *Store) CreateOverride(_ context.Context, override *model.PermissionOverride, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.overrides[override.ID]; exists {
		return fmt.Errorf("override %s: %w", override.ID, apperrors.ErrOverrideConflict)
	}
	s.overrides[override.ID] = copyOverride(override)
	s.appendRecordLocked(record)
	return nil
}

func (s *Store) UpdateOverride(_ context.Context, override *model.PermissionOverride, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.overrides[override.ID]; !exists {
		return fmt.Errorf("override %s: %w", override.ID, apperrors.ErrOverrideNotFound)
	}
	s.overrides[override.ID] = copyOverride(override)
	s.appendRecordLocked(record)
	return nil
}

func (s *Store) DeleteOverride(_ context.Context, overrideID string, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.overrides[overrideID]; !exists {
		return fmt.Errorf("override %s: %w", overrideID, apperrors.ErrOverrideNotFound)
	}
	delete(s.overrides, overrideID)
	s.appendRecordLocked(record)
	return nil
}

func (s *Store) GetOverride(_ context.Context, overrideID string) (*model.PermissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	override, ok := s.overrides[overrideID]
	if !ok {
		return nil, fmt.Errorf("override %s: %w", overrideID, apperrors.ErrOverrideNotFound)
	}
	return copyOverride(override), nil
}

func (s *Store) ListOverrides(_ context.Context, criteria model.OverrideSearchCriteria) ([]*model.PermissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.PermissionOverride, 0, len(s.overrides))
	for _, override := range s.overrides {
		if criteria.EmployeeID != "" && override.EmployeeID != criteria.EmployeeID {
			continue
		}
		if criteria.ResourceKind != "" && override.ResourceKind != criteria.ResourceKind {
			continue
		}
		if criteria.ResourceID != "" && override.ResourceID != criteria.ResourceID {
			continue
		}
		if criteria.Active != nil && override.Active != *criteria.Active {
			continue
		}
		result = append(result, copyOverride(override))
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return applyPagination(result, criteria.Limit, criteria.Offset), nil
}

func (s *Store) OverridesForEmployee(_ context.Context, employeeID string) ([]*model.PermissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.PermissionOverride, 0, 4)
	for _, override := range s.overrides {
		if override.EmployeeID == employeeID {
			result = append(result, copyOverride(override))
		}
	}
	return result, nil
}

func (s *Store) ListExpiredActive(_ context.Context, asOf time.Time) ([]*model.PermissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*model.PermissionOverride, 0, 4)
	for _, override := range s.overrides {
		if override.Active && override.Expired(asOf) {
			result = append(result, copyOverride(override))
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeactivateOverride(_ context.Context, overrideID string, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	override, ok := s.overrides[overrideID]
	if !ok {
		return fmt.Errorf("override %s: %w", overrideID, apperrors.ErrOverrideNotFound)
	}
	if !override.Active {
		// Already done; replays must not double-audit.
		return nil
	}
	override.Active = false
	override.UpdatedAt = time.Now().UTC()
	s.appendRecordLocked(record)
	return nil
}

// ──────────────────────────────────────────────────
// Audit ledger
// ──────────────────────────────────────────────────

func (s *Store) Append(_ context.Context, record *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendRecordLocked(record)
	return nil
}

func (s *Store) Query(_ context.Context, filter audit.Filter) ([]*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*audit.Record, 0, len(s.records))
	for _, record := range s.records {
		if matchRecord(filter, record) {
			result = append(result, copyRecord(record))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return applyPagination(result, filter.Limit, filter.Offset), nil
}

func (s *Store) Count(_ context.Context, filter audit.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, record := range s.records {
		if matchRecord(filter, record) {
			count++
		}
	}
	return count, nil
}

func matchRecord(filter audit.Filter, record *audit.Record) bool {
	if filter.EmployeeID != "" && record.EmployeeID != filter.EmployeeID {
		return false
	}
	if filter.ResourceKind != "" && record.ResourceKind != filter.ResourceKind {
		return false
	}
	if filter.ResourceID != "" && record.ResourceID != filter.ResourceID {
		return false
	}
	if filter.Action != "" && record.Action != filter.Action {
		return false
	}
	if !filter.From.IsZero() && record.Timestamp.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && record.Timestamp.After(filter.To) {
		return false
	}
	return true
}

func (s *Store) appendRecordLocked(record *audit.Record) {
	if record == nil {
		return
	}
	s.records = append(s.records, copyRecord(record))
}

// ──────────────────────────────────────────────────
// Copy helpers: callers never share memory with the store.
// ──────────────────────────────────────────────────

func copyPolicy(p *model.PermissionPolicy) *model.PermissionPolicy {
	c := *p
	c.AllowedDeviceTypes = append([]string(nil), p.AllowedDeviceTypes...)
	c.AllowedSoftware = append([]string(nil), p.AllowedSoftware...)
	c.RestrictedSoftware = append([]string(nil), p.RestrictedSoftware...)
	c.MaxDevicesPerType = copyIntMap(p.MaxDevicesPerType)
	c.MaxLicensesPerSoftware = copyIntMap(p.MaxLicensesPerSoftware)
	if p.EffectiveUntil != nil {
		until := *p.EffectiveUntil
		c.EffectiveUntil = &until
	}
	return &c
}

func copyOverride(o *model.PermissionOverride) *model.PermissionOverride {
	c := *o
	return &c
}

func copyRecord(r *audit.Record) *audit.Record {
	c := *r
	c.Details = append([]byte(nil), r.Details...)
	return &c
}

func copyIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func applyPagination[T any](list []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(list) {
			return []T{}
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
