package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// IOverrideService defines the interface for permission override operations
type IOverrideService interface {
	CreateOverride(ctx context.Context, override model.PermissionOverride, actor string) (*model.PermissionOverride, error)
	UpdateOverride(ctx context.Context, override model.PermissionOverride, actor string) (*model.PermissionOverride, error)
	DeleteOverride(ctx context.Context, overrideID string, actor string) error
	ActivateOverride(ctx context.Context, overrideID string, actor string) (*model.PermissionOverride, error)
	DeactivateOverride(ctx context.Context, overrideID string, actor string) (*model.PermissionOverride, error)
	GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error)
	ListOverrides(ctx context.Context, criteria model.OverrideSearchCriteria) ([]*model.PermissionOverride, error)
}

// OverrideService handles business logic for permission override operations
type OverrideService struct {
	overrideStore  store.OverrideStore
	validationUtil *util.ValidationUtil
	cacheService   util.ICacheService
	auditService   audit.Service
	eventBus       *util.EventBus
}

var _ IOverrideService = &OverrideService{}

// NewOverrideService creates a new instance of OverrideService
func NewOverrideService(overrideStore store.OverrideStore, validationUtil *util.ValidationUtil, cacheService util.ICacheService, auditService audit.Service, eventBus *util.EventBus) *OverrideService {
	return &OverrideService{
		overrideStore:  overrideStore,
		validationUtil: validationUtil,
		cacheService:   cacheService,
		auditService:   auditService,
		eventBus:       eventBus,
	}
}

// CreateOverride validates and persists a new override together with its
// audit record, then fans out cache and event updates.
func (s *OverrideService) CreateOverride(ctx context.Context, override model.PermissionOverride, actor string) (*model.PermissionOverride, error) {
	if err := s.validationUtil.ValidateOverride(override); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	override.ID = uuid.New().String()
	override.Active = true
	override.CreatedAt = now
	override.UpdatedAt = now
	override.CreatedBy = actor
	override.UpdatedBy = actor

	record := overrideRecord(audit.ActionOverrideCreated, &override, audit.ChangeDetails(nil, override), actor)
	if err := s.overrideStore.CreateOverride(ctx, &override, record); err != nil {
		logger.Error("Error creating override",
			zap.Error(err),
			zap.String("employeeID", override.EmployeeID),
			zap.String("actor", actor))
		return nil, fmt.Errorf("failed to create override: %w", err)
	}

	if err := s.cacheService.SetOverride(ctx, override); err != nil {
		logger.Warn("Failed to cache override", zap.Error(err), zap.String("overrideID", override.ID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventOverrideCreated, override)
	s.eventBus.Publish(ctx, model.EventPermissionChanged, overrideChangeEvent(&override))

	logger.Info("Override created successfully",
		zap.String("overrideID", override.ID),
		zap.String("employeeID", override.EmployeeID),
		zap.String("actor", actor))
	return &override, nil
}

// UpdateOverride replaces an override's content. The active flag is managed
// through the activate and deactivate paths, so the stored value survives.
func (s *OverrideService) UpdateOverride(ctx context.Context, override model.PermissionOverride, actor string) (*model.PermissionOverride, error) {
	if err := s.validationUtil.ValidateOverride(override); err != nil {
		return nil, err
	}

	oldOverride, err := s.overrideStore.GetOverride(ctx, override.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrOverrideNotFound) {
			return nil, apperrors.ErrOverrideNotFound
		}
		logger.Error("Error retrieving existing override", zap.Error(err), zap.String("overrideID", override.ID))
		return nil, apperrors.ErrInternalServer
	}

	override.Active = oldOverride.Active
	override.CreatedAt = oldOverride.CreatedAt
	override.CreatedBy = oldOverride.CreatedBy
	override.UpdatedAt = time.Now().UTC()
	override.UpdatedBy = actor

	record := overrideRecord(audit.ActionOverrideUpdated, &override, audit.ChangeDetails(oldOverride, override), actor)
	if err := s.overrideStore.UpdateOverride(ctx, &override, record); err != nil {
		logger.Error("Error updating override", zap.Error(err), zap.String("overrideID", override.ID), zap.String("actor", actor))
		return nil, fmt.Errorf("failed to update override: %w", err)
	}

	if err := s.cacheService.SetOverride(ctx, override); err != nil {
		logger.Warn("Failed to update override in cache", zap.Error(err), zap.String("overrideID", override.ID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventOverrideUpdated, map[string]interface{}{
		"old": *oldOverride,
		"new": override,
	})
	s.eventBus.Publish(ctx, model.EventPermissionChanged, overrideChangeEvent(&override))

	logger.Info("Override updated successfully", zap.String("overrideID", override.ID), zap.String("actor", actor))
	return &override, nil
}

// DeleteOverride removes an override permanently. The before image rides
// along in the audit record.
func (s *OverrideService) DeleteOverride(ctx context.Context, overrideID string, actor string) error {
	oldOverride, err := s.overrideStore.GetOverride(ctx, overrideID)
	if err != nil {
		if errors.Is(err, apperrors.ErrOverrideNotFound) {
			return apperrors.ErrOverrideNotFound
		}
		logger.Error("Error retrieving override for deletion", zap.Error(err), zap.String("overrideID", overrideID))
		return apperrors.ErrInternalServer
	}

	record := overrideRecord(audit.ActionOverrideDeleted, oldOverride, audit.ChangeDetails(oldOverride, nil), actor)
	if err := s.overrideStore.DeleteOverride(ctx, overrideID, record); err != nil {
		logger.Error("Error deleting override", zap.Error(err), zap.String("overrideID", overrideID), zap.String("actor", actor))
		return fmt.Errorf("failed to delete override: %w", err)
	}

	if err := s.cacheService.DeleteOverride(ctx, overrideID); err != nil {
		logger.Warn("Failed to delete override from cache", zap.Error(err), zap.String("overrideID", overrideID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventOverrideDeleted, overrideID)
	s.eventBus.Publish(ctx, model.EventPermissionChanged, overrideChangeEvent(oldOverride))

	logger.Info("Override deleted successfully", zap.String("overrideID", overrideID), zap.String("actor", actor))
	return nil
}

// ActivateOverride turns an override back on. It only affects decisions
// while its window is still open.
func (s *OverrideService) ActivateOverride(ctx context.Context, overrideID string, actor string) (*model.PermissionOverride, error) {
	return s.setOverrideActive(ctx, overrideID, true, actor)
}

// DeactivateOverride is the soft removal path.
func (s *OverrideService) DeactivateOverride(ctx context.Context, overrideID string, actor string) (*model.PermissionOverride, error) {
	return s.setOverrideActive(ctx, overrideID, false, actor)
}

func (s *OverrideService) setOverrideActive(ctx context.Context, overrideID string, active bool, actor string) (*model.PermissionOverride, error) {
	oldOverride, err := s.overrideStore.GetOverride(ctx, overrideID)
	if err != nil {
		if errors.Is(err, apperrors.ErrOverrideNotFound) {
			return nil, apperrors.ErrOverrideNotFound
		}
		logger.Error("Error retrieving override", zap.Error(err), zap.String("overrideID", overrideID))
		return nil, apperrors.ErrInternalServer
	}

	if oldOverride.Active == active {
		return oldOverride, nil
	}

	override := *oldOverride
	override.Active = active
	override.UpdatedAt = time.Now().UTC()
	override.UpdatedBy = actor

	record := overrideRecord(audit.ActionOverrideUpdated, &override, audit.ChangeDetails(oldOverride, override), actor)
	if err := s.overrideStore.UpdateOverride(ctx, &override, record); err != nil {
		logger.Error("Error toggling override active flag",
			zap.Error(err),
			zap.String("overrideID", overrideID),
			zap.Bool("active", active))
		return nil, fmt.Errorf("failed to update override: %w", err)
	}

	if err := s.cacheService.SetOverride(ctx, override); err != nil {
		logger.Warn("Failed to update override in cache", zap.Error(err), zap.String("overrideID", overrideID))
	}
	s.invalidateSummaries(ctx)
	s.auditService.Announce(ctx, record)

	s.eventBus.Publish(ctx, model.EventOverrideUpdated, map[string]interface{}{
		"old": *oldOverride,
		"new": override,
	})
	s.eventBus.Publish(ctx, model.EventPermissionChanged, overrideChangeEvent(&override))

	logger.Info("Override active flag changed",
		zap.String("overrideID", overrideID),
		zap.Bool("active", active),
		zap.String("actor", actor))
	return &override, nil
}

// GetOverride retrieves an override by its ID
func (s *OverrideService) GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error) {
	// Try to get from cache first
	cachedOverride, err := s.cacheService.GetOverride(ctx, overrideID)
	if err == nil && cachedOverride != nil {
		return cachedOverride, nil
	}

	override, err := s.overrideStore.GetOverride(ctx, overrideID)
	if err != nil {
		if errors.Is(err, apperrors.ErrOverrideNotFound) {
			return nil, apperrors.ErrOverrideNotFound
		}
		logger.Error("Error retrieving override", zap.Error(err), zap.String("overrideID", overrideID))
		return nil, apperrors.ErrInternalServer
	}

	if err := s.cacheService.SetOverride(ctx, *override); err != nil {
		logger.Warn("Failed to cache override", zap.Error(err), zap.String("overrideID", override.ID))
	}

	return override, nil
}

// ListOverrides retrieves overrides matching the criteria.
func (s *OverrideService) ListOverrides(ctx context.Context, criteria model.OverrideSearchCriteria) ([]*model.PermissionOverride, error) {
	overrides, err := s.overrideStore.ListOverrides(ctx, criteria)
	if err != nil {
		logger.Error("Error listing overrides", zap.Error(err), zap.Any("criteria", criteria))
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}

	return overrides, nil
}

func (s *OverrideService) invalidateSummaries(ctx context.Context) {
	if err := s.cacheService.InvalidateSummaries(ctx); err != nil {
		logger.Warn("Failed to invalidate summary cache", zap.Error(err))
	}
}

func overrideRecord(action audit.ActionKind, override *model.PermissionOverride, details json.RawMessage, actor string) *audit.Record {
	record := &audit.Record{
		Action:       action,
		EmployeeID:   override.EmployeeID,
		ResourceKind: override.ResourceKind,
		ResourceID:   override.ResourceID,
		Details:      details,
		Actor:        actor,
	}
	audit.Stamp(record)
	return record
}

func overrideChangeEvent(override *model.PermissionOverride) model.PermissionChangedEvent {
	return model.PermissionChangedEvent{
		SourceKind: "override",
		SourceID:   override.ID,
		EmployeeID: override.EmployeeID,
		ChangedAt:  time.Now().UTC(),
	}
}
