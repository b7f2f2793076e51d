package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/store"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

// IPolicyService defines the interface for permission policy operations
type IPolicyService interface {
	CreatePolicy(ctx context.Context, policy model.PermissionPolicy, actor string) (*model.PermissionPolicy, error)
	UpdatePolicy(ctx context.Context, policy model.PermissionPolicy, actor string) (*model.PermissionPolicy, error)
	DeletePolicy(ctx context.Context, policyID string, actor string) error
	ActivatePolicy(ctx context.Context, policyID string, actor string) (*model.PermissionPolicy, error)
	DeactivatePolicy(ctx context.Context, policyID string, actor string) (*model.PermissionPolicy, error)
	GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error)
	ListPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.PermissionPolicy, error)
}

// PolicyService handles business logic for permission policy operations
type PolicyService struct {
	policyStore    store.PolicyStore
	validationUtil *util.ValidationUtil
	cacheService   util.ICacheService
	auditService   audit.Service
	eventBus       *util.EventBus
}

var _ IPolicyService = &PolicyService{}

// NewPolicyService creates a new instance of PolicyService
func NewPolicyService(policyStore store.PolicyStore, validationUtil *util.ValidationUtil, cacheService util.ICacheService, auditService audit.Service, eventBus *util.EventBus) *PolicyService {
	return &PolicyService{
		policyStore:    policyStore,
		validationUtil: validationUtil,
		cacheService:   cacheService,
		auditService:   auditService,
		eventBus:       eventBus,
	}
}

// CreatePolicy validates and persists a new policy together with its audit
// record, then fans out cache and event updates.
func (s *PolicyService) CreatePolicy(ctx context.Context, policy model.PermissionPolicy, actor string) (*model.PermissionPolicy, error) {
	if err := s.validationUtil.ValidatePolicy(policy); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	policy.ID = uuid.New().String()
	policy.Active = true
	policy.CreatedAt = now
	policy.UpdatedAt = now
	policy.CreatedBy = actor
	policy.UpdatedBy = actor

	record := mutationRecord(audit.ActionPolicyCreated, policy.TargetEmployeeID, audit.ChangeDetails(nil, policy), actor)
	if err := s.policyStore.CreatePolicy(ctx, &policy, record); err != nil {
		logger.Error("Error creating policy", zap.Error(err), zap.String("actor", actor))
		return nil, fmt.Errorf("failed to create policy: %w", err)
	}

	if err := s.cacheService.SetPolicy(ctx, policy); err != nil {
		logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", policy.ID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventPolicyCreated, policy)
	s.eventBus.Publish(ctx, model.EventPermissionChanged, policyChangeEvent(&policy))

	logger.Info("Policy created successfully",
		zap.String("policyID", policy.ID),
		zap.String("scopeKind", string(policy.ScopeKind)),
		zap.String("actor", actor))
	return &policy, nil
}

// UpdatePolicy replaces an existing policy with the given state.
func (s *PolicyService) UpdatePolicy(ctx context.Context, policy model.PermissionPolicy, actor string) (*model.PermissionPolicy, error) {
	if err := s.validationUtil.ValidatePolicy(policy); err != nil {
		return nil, err
	}

	oldPolicy, err := s.policyStore.GetPolicy(ctx, policy.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			return nil, apperrors.ErrPolicyNotFound
		}
		logger.Error("Error retrieving existing policy", zap.Error(err), zap.String("policyID", policy.ID))
		return nil, apperrors.ErrInternalServer
	}

	if !hasPolicyChanged(oldPolicy, &policy) {
		logger.Info("No changes detected in the policy, skipping update", zap.String("policyID", policy.ID))
		return oldPolicy, nil
	}

	policy.CreatedAt = oldPolicy.CreatedAt
	policy.CreatedBy = oldPolicy.CreatedBy
	policy.UpdatedAt = time.Now().UTC()
	policy.UpdatedBy = actor

	record := mutationRecord(audit.ActionPolicyUpdated, policy.TargetEmployeeID, audit.ChangeDetails(oldPolicy, policy), actor)
	if err := s.policyStore.UpdatePolicy(ctx, &policy, record); err != nil {
		logger.Error("Error updating policy", zap.Error(err), zap.String("policyID", policy.ID), zap.String("actor", actor))
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}

	if err := s.cacheService.SetPolicy(ctx, policy); err != nil {
		logger.Warn("Failed to update policy in cache", zap.Error(err), zap.String("policyID", policy.ID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventPolicyUpdated, map[string]interface{}{
		"old": *oldPolicy,
		"new": policy,
	})
	s.eventBus.Publish(ctx, model.EventPermissionChanged, policyChangeEvent(&policy))

	logger.Info("Policy updated successfully", zap.String("policyID", policy.ID), zap.String("actor", actor))
	return &policy, nil
}

// DeletePolicy removes a policy permanently. The before image rides along in
// the audit record, which is the only place it survives.
func (s *PolicyService) DeletePolicy(ctx context.Context, policyID string, actor string) error {
	oldPolicy, err := s.policyStore.GetPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			return apperrors.ErrPolicyNotFound
		}
		logger.Error("Error retrieving policy for deletion", zap.Error(err), zap.String("policyID", policyID))
		return apperrors.ErrInternalServer
	}

	record := mutationRecord(audit.ActionPolicyDeleted, oldPolicy.TargetEmployeeID, audit.ChangeDetails(oldPolicy, nil), actor)
	if err := s.policyStore.DeletePolicy(ctx, policyID, record); err != nil {
		logger.Error("Error deleting policy", zap.Error(err), zap.String("policyID", policyID), zap.String("actor", actor))
		return fmt.Errorf("failed to delete policy: %w", err)
	}

	if err := s.cacheService.DeletePolicy(ctx, policyID); err != nil {
		logger.Warn("Failed to delete policy from cache", zap.Error(err), zap.String("policyID", policyID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventPolicyDeleted, policyID)
	s.eventBus.Publish(ctx, model.EventPermissionChanged, policyChangeEvent(oldPolicy))

	logger.Info("Policy deleted successfully", zap.String("policyID", policyID), zap.String("actor", actor))
	return nil
}

// ActivatePolicy turns a policy back on. Whether it affects decisions still
// depends on its validity window.
func (s *PolicyService) ActivatePolicy(ctx context.Context, policyID string, actor string) (*model.PermissionPolicy, error) {
	return s.setPolicyActive(ctx, policyID, true, actor)
}

// DeactivatePolicy is the soft removal path: the policy stops contributing to
// decisions but stays queryable.
func (s *PolicyService) DeactivatePolicy(ctx context.Context, policyID string, actor string) (*model.PermissionPolicy, error) {
	return s.setPolicyActive(ctx, policyID, false, actor)
}

func (s *PolicyService) setPolicyActive(ctx context.Context, policyID string, active bool, actor string) (*model.PermissionPolicy, error) {
	oldPolicy, err := s.policyStore.GetPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			return nil, apperrors.ErrPolicyNotFound
		}
		logger.Error("Error retrieving policy", zap.Error(err), zap.String("policyID", policyID))
		return nil, apperrors.ErrInternalServer
	}

	if oldPolicy.Active == active {
		return oldPolicy, nil
	}

	policy := *oldPolicy
	policy.Active = active
	policy.UpdatedAt = time.Now().UTC()
	policy.UpdatedBy = actor

	record := mutationRecord(audit.ActionPolicyUpdated, policy.TargetEmployeeID, audit.ChangeDetails(oldPolicy, policy), actor)
	if err := s.policyStore.UpdatePolicy(ctx, &policy, record); err != nil {
		logger.Error("Error toggling policy active flag",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Bool("active", active))
		return nil, fmt.Errorf("failed to update policy: %w", err)
	}

	if err := s.cacheService.SetPolicy(ctx, policy); err != nil {
		logger.Warn("Failed to update policy in cache", zap.Error(err), zap.String("policyID", policyID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventPolicyUpdated, map[string]interface{}{
		"old": *oldPolicy,
		"new": policy,
	})
	s.eventBus.Publish(ctx, model.EventPermissionChanged, policyChangeEvent(&policy))

	logger.Info("Policy active flag changed",
		zap.String("policyID", policyID),
		zap.Bool("active", active),
		zap.String("actor", actor))
	return &policy, nil
}

// GetPolicy retrieves a policy by its ID
func (s *PolicyService) GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error) {
	// Try to get from cache first
	cachedPolicy, err := s.cacheService.GetPolicy(ctx, policyID)
	if err == nil && cachedPolicy != nil {
		return cachedPolicy, nil
	}

	policy, err := s.policyStore.GetPolicy(ctx, policyID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPolicyNotFound) {
			return nil, apperrors.ErrPolicyNotFound
		}
		logger.Error("Error retrieving policy", zap.Error(err), zap.String("policyID", policyID))
		return nil, apperrors.ErrInternalServer
	}

	if err := s.cacheService.SetPolicy(ctx, *policy); err != nil {
		logger.Warn("Failed to cache policy", zap.Error(err), zap.String("policyID", policyID))
	}

	return policy, nil
}

// ListPolicies retrieves policies matching the criteria, strongest first.
func (s *PolicyService) ListPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.PermissionPolicy, error) {
	policies, err := s.policyStore.ListPolicies(ctx, criteria)
	if err != nil {
		logger.Error("Error listing policies", zap.Error(err), zap.Any("criteria", criteria))
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}

	return policies, nil
}

func (s *PolicyService) invalidateSummaries(ctx context.Context) {
	if err := s.cacheService.InvalidateSummaries(ctx); err != nil {
		logger.Warn("Failed to invalidate summary cache", zap.Error(err))
	}
}

// hasPolicyChanged checks if there are any differences between the old and new policies
func hasPolicyChanged(oldPolicy, newPolicy *model.PermissionPolicy) bool {
	if oldPolicy.Name != newPolicy.Name ||
		oldPolicy.Description != newPolicy.Description ||
		oldPolicy.ScopeKind != newPolicy.ScopeKind ||
		oldPolicy.TargetDepartment != newPolicy.TargetDepartment ||
		oldPolicy.TargetPosition != newPolicy.TargetPosition ||
		oldPolicy.TargetEmployeeID != newPolicy.TargetEmployeeID ||
		oldPolicy.Priority != newPolicy.Priority ||
		oldPolicy.AutoApprove != newPolicy.AutoApprove ||
		oldPolicy.RequireManagerApproval != newPolicy.RequireManagerApproval ||
		oldPolicy.Active != newPolicy.Active ||
		!oldPolicy.EffectiveFrom.Equal(newPolicy.EffectiveFrom) ||
		!nullableTimesEqual(oldPolicy.EffectiveUntil, newPolicy.EffectiveUntil) ||
		!reflect.DeepEqual(oldPolicy.AllowedDeviceTypes, newPolicy.AllowedDeviceTypes) ||
		!reflect.DeepEqual(oldPolicy.MaxDevicesPerType, newPolicy.MaxDevicesPerType) ||
		!reflect.DeepEqual(oldPolicy.AllowedSoftware, newPolicy.AllowedSoftware) ||
		!reflect.DeepEqual(oldPolicy.RestrictedSoftware, newPolicy.RestrictedSoftware) ||
		!reflect.DeepEqual(oldPolicy.MaxLicensesPerSoftware, newPolicy.MaxLicensesPerSoftware) {
		return true
	}
	return false
}

func nullableTimesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func policyChangeEvent(policy *model.PermissionPolicy) model.PermissionChangedEvent {
	event := model.PermissionChangedEvent{
		SourceKind:  "policy",
		SourceID:    policy.ID,
		ScopeKind:   policy.ScopeKind,
		ScopeTarget: policy.ScopeTarget(),
		ChangedAt:   time.Now().UTC(),
	}
	if policy.ScopeKind == model.ScopeIndividual {
		event.EmployeeID = policy.TargetEmployeeID
	}
	return event
}
