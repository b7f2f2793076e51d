// test/mock/cache.go
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/piwdev/member-management-kiro-sub000/model"
	pdpmodel "github.com/piwdev/member-management-kiro-sub000/pdp/model"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

// MemoryCache is a map-backed util.ICacheService so service tests run
// without a Redis instance. Invalidations counts InvalidateSummaries calls.
type MemoryCache struct {
	mu            sync.Mutex
	policies      map[string]model.PermissionPolicy
	overrides     map[string]model.PermissionOverride
	summaries     map[string]*pdpmodel.PermissionSummary
	Invalidations int
}

var _ util.ICacheService = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		policies:  make(map[string]model.PermissionPolicy),
		overrides: make(map[string]model.PermissionOverride),
		summaries: make(map[string]*pdpmodel.PermissionSummary),
	}
}

func (c *MemoryCache) GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if policy, ok := c.policies[policyID]; ok {
		return &policy, nil
	}
	return nil, nil
}

func (c *MemoryCache) SetPolicy(ctx context.Context, policy model.PermissionPolicy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[policy.ID] = policy
	return nil
}

func (c *MemoryCache) DeletePolicy(ctx context.Context, policyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.policies, policyID)
	return nil
}

func (c *MemoryCache) SetOverride(ctx context.Context, override model.PermissionOverride) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[override.ID] = override
	return nil
}

func (c *MemoryCache) DeleteOverride(ctx context.Context, overrideID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overrides, overrideID)
	return nil
}

func (c *MemoryCache) GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if override, ok := c.overrides[overrideID]; ok {
		return &override, nil
	}
	return nil, nil
}

func (c *MemoryCache) GetSummary(ctx context.Context, employeeID string, asOf time.Time) (*pdpmodel.PermissionSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summaries[summaryKey(employeeID, asOf)], nil
}

func (c *MemoryCache) SetSummary(ctx context.Context, summary *pdpmodel.PermissionSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries[summaryKey(summary.EmployeeID, summary.AsOf)] = summary
	return nil
}

func (c *MemoryCache) InvalidateSummaries(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries = make(map[string]*pdpmodel.PermissionSummary)
	c.Invalidations++
	return nil
}

func summaryKey(employeeID string, asOf time.Time) string {
	return employeeID + ":" + model.Day(asOf).Format("2006-01-02")
}
