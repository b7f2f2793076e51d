package util

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

// Notifier is the outbound delivery boundary. The engine only emits domain
// events; turning them into email/SMS/chat messages is the dispatcher's
// problem, behind this interface.
type Notifier interface {
	NotifyPermissionChanged(ctx context.Context, event model.PermissionChangedEvent) error
	NotifyAccessDenied(ctx context.Context, event model.AccessDeniedEvent) error
	NotifyAdmins(ctx context.Context, message string) error
}

// NotificationService is the default Notifier: it logs what would be
// dispatched. Swap in a queue- or webhook-backed implementation in
// deployments that deliver for real.
type NotificationService struct{}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

func (n *NotificationService) NotifyPermissionChanged(ctx context.Context, event model.PermissionChangedEvent) error {
	logger.Info("NOTIFICATION: Permissions changed",
		zap.String("sourceKind", event.SourceKind),
		zap.String("sourceID", event.SourceID),
		zap.String("employeeID", event.EmployeeID),
		zap.String("scopeKind", string(event.ScopeKind)),
		zap.String("scopeTarget", event.ScopeTarget))
	return nil
}

func (n *NotificationService) NotifyAccessDenied(ctx context.Context, event model.AccessDeniedEvent) error {
	logger.Info("NOTIFICATION: Access denied",
		zap.String("employeeID", event.EmployeeID),
		zap.String("resourceKind", string(event.ResourceKind)),
		zap.String("resourceID", event.ResourceID),
		zap.String("reason", event.Reason))
	return nil
}

func (n *NotificationService) NotifyAdmins(ctx context.Context, message string) error {
	logger.Info("Notifying admins", zap.String("message", message))
	return nil
}

// RegisterNotificationHandlers bridges bus events to the dispatcher so
// services publish events without knowing who listens.
func RegisterNotificationHandlers(eventBus *EventBus, notifier Notifier) {
	eventBus.Subscribe(model.EventPermissionChanged, func(ctx context.Context, event Event) error {
		payload, ok := event.Payload.(model.PermissionChangedEvent)
		if !ok {
			return fmt.Errorf("notification handler: unexpected payload %T", event.Payload)
		}
		return notifier.NotifyPermissionChanged(ctx, payload)
	})
	eventBus.Subscribe(model.EventAccessDenied, func(ctx context.Context, event Event) error {
		payload, ok := event.Payload.(model.AccessDeniedEvent)
		if !ok {
			return fmt.Errorf("notification handler: unexpected payload %T", event.Payload)
		}
		return notifier.NotifyAccessDenied(ctx, payload)
	})
}

// RegisterRoleChangeHandlers reacts to employee.role_changed events from the
// directory owner: cached summaries are dropped so the next read resolves
// under the new department and position, and admins get a trace of the move.
func RegisterRoleChangeHandlers(eventBus *EventBus, cache ICacheService, notifier Notifier) {
	eventBus.Subscribe(model.EventEmployeeRoleChanged, func(ctx context.Context, event Event) error {
		payload, ok := event.Payload.(model.EmployeeRoleChangedEvent)
		if !ok {
			return fmt.Errorf("role change handler: unexpected payload %T", event.Payload)
		}
		if err := cache.InvalidateSummaries(ctx); err != nil {
			logger.Warn("Failed to invalidate summaries after role change",
				zap.Error(err),
				zap.String("employeeID", payload.EmployeeID))
		}
		return notifier.NotifyAdmins(ctx, fmt.Sprintf(
			"employee %s moved from %s/%s to %s/%s, permissions re-resolve on next check",
			payload.EmployeeID,
			payload.OldDepartment, payload.OldPosition,
			payload.NewDepartment, payload.NewPosition))
	})
}
