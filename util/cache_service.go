// api/util/cache_service.go

package util

import (
	"context"
	"time"

	"github.com/piwdev/member-management-kiro-sub000/db"
	"github.com/piwdev/member-management-kiro-sub000/model"
	pdpmodel "github.com/piwdev/member-management-kiro-sub000/pdp/model"
)

// ICacheService is the read-through cache surface the services depend on.
type ICacheService interface {
	GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error)
	SetPolicy(ctx context.Context, policy model.PermissionPolicy) error
	DeletePolicy(ctx context.Context, policyID string) error
	SetOverride(ctx context.Context, override model.PermissionOverride) error
	DeleteOverride(ctx context.Context, overrideID string) error
	GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error)
	GetSummary(ctx context.Context, employeeID string, asOf time.Time) (*pdpmodel.PermissionSummary, error)
	SetSummary(ctx context.Context, summary *pdpmodel.PermissionSummary) error
	InvalidateSummaries(ctx context.Context) error
}

// CacheService is the Redis-backed ICacheService used in production.
type CacheService struct{}

var _ ICacheService = &CacheService{}

func NewCacheService() *CacheService {
	return &CacheService{}
}

func (c *CacheService) GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error) {
	return db.GetCachedPolicy(ctx, policyID)
}

func (c *CacheService) SetPolicy(ctx context.Context, policy model.PermissionPolicy) error {
	return db.CachePolicy(ctx, &policy)
}

func (c *CacheService) DeletePolicy(ctx context.Context, policyID string) error {
	return db.DeleteCachedPolicy(ctx, policyID)
}

func (c *CacheService) SetOverride(ctx context.Context, override model.PermissionOverride) error {
	return db.CacheOverride(ctx, &override)
}

func (c *CacheService) DeleteOverride(ctx context.Context, overrideID string) error {
	return db.DeleteCachedOverride(ctx, overrideID)
}

func (c *CacheService) GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error) {
	return db.GetCachedOverride(ctx, overrideID)
}

func (c *CacheService) GetSummary(ctx context.Context, employeeID string, asOf time.Time) (*pdpmodel.PermissionSummary, error) {
	return db.GetCachedSummary(ctx, employeeID, asOf)
}

func (c *CacheService) SetSummary(ctx context.Context, summary *pdpmodel.PermissionSummary) error {
	return db.CacheSummary(ctx, summary)
}

// InvalidateSummaries drops every cached summary by advancing the epoch.
func (c *CacheService) InvalidateSummaries(ctx context.Context) error {
	return db.BumpSummaryEpoch(ctx)
}
