package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	"github.com/piwdev/member-management-kiro-sub000/directory"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/pdp/engine"
	pdp_model "github.com/piwdev/member-management-kiro-sub000/pdp/model"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

// IAccessService defines the interface for access decisions and summaries
type IAccessService interface {
	CheckAccess(ctx context.Context, req pdp_model.AccessRequest) (*pdp_model.Decision, error)
	GetPermissionSummary(ctx context.Context, employeeID string, asOf time.Time) (*pdp_model.PermissionSummary, error)
	GetMaxDevicesForType(ctx context.Context, employeeID string, deviceType string, asOf time.Time) (int, bool, error)
	GetMaxLicensesForSoftware(ctx context.Context, employeeID string, software string, asOf time.Time) (int, bool, error)
}

// AccessService answers access questions: employee lookup, engine
// evaluation, decision auditing, metrics, and denial events. Audit appends
// here are best-effort; they never change or block the decision.
type AccessService struct {
	engine       *engine.Engine
	summaries    *engine.SummaryBuilder
	directory    directory.Directory
	auditService audit.Service
	cacheService util.ICacheService
	eventBus     *util.EventBus
	stats        *metrics.Collector
}

var _ IAccessService = &AccessService{}

// NewAccessService creates a new instance of AccessService
func NewAccessService(
	decisionEngine *engine.Engine,
	summaries *engine.SummaryBuilder,
	dir directory.Directory,
	auditService audit.Service,
	cacheService util.ICacheService,
	eventBus *util.EventBus,
	stats *metrics.Collector,
) *AccessService {
	return &AccessService{
		engine:       decisionEngine,
		summaries:    summaries,
		directory:    dir,
		auditService: auditService,
		cacheService: cacheService,
		eventBus:     eventBus,
		stats:        stats,
	}
}

// CheckAccess evaluates one access question and audits the outcome. An
// unknown employee is an error; an inactive one gets a denial decision.
func (s *AccessService) CheckAccess(ctx context.Context, req pdp_model.AccessRequest) (*pdp_model.Decision, error) {
	start := time.Now()
	asOf := req.At()

	employee, err := s.directory.Lookup(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmployeeNotFound) {
			return nil, apperrors.ErrEmployeeNotFound
		}
		logger.Error("Error looking up employee for access check",
			zap.Error(err),
			zap.String("employeeID", req.EmployeeID))
		return nil, apperrors.ErrInternalServer
	}

	var decision *pdp_model.Decision
	if !employee.Active {
		decision = &pdp_model.Decision{
			Allowed:  false,
			RuleKind: pdp_model.RuleDefault,
			Reason:   pdp_model.ReasonEmployeeInactive,
		}
	} else {
		decision, err = s.engine.CheckAccess(ctx, *employee, req.ResourceKind, req.ResourceID, asOf)
		if err != nil {
			logger.Error("Error evaluating access",
				zap.Error(err),
				zap.String("employeeID", req.EmployeeID),
				zap.String("resourceID", req.ResourceID))
			return nil, apperrors.ErrInternalServer
		}
	}

	duration := time.Since(start)
	s.stats.RecordCheck(decision.Allowed, decision.RuleKind == pdp_model.RuleOverride, duration)

	s.auditService.AppendDecision(ctx, decisionRecord(ctx, req, asOf, decision))

	if !decision.Allowed {
		s.eventBus.Publish(ctx, model.EventAccessDenied, model.AccessDeniedEvent{
			EmployeeID:   req.EmployeeID,
			ResourceKind: req.ResourceKind,
			ResourceID:   req.ResourceID,
			Reason:       decision.Reason,
			RuleKind:     string(decision.RuleKind),
			DecidedAt:    time.Now().UTC(),
		})
	}

	logger.Info("Access check decided",
		zap.String("employeeID", req.EmployeeID),
		zap.String("resourceKind", string(req.ResourceKind)),
		zap.String("resourceID", req.ResourceID),
		zap.Bool("allowed", decision.Allowed),
		zap.String("ruleKind", string(decision.RuleKind)),
		zap.Duration("duration", duration))
	return decision, nil
}

// GetPermissionSummary builds (or retrieves from cache) the employee's
// effective permission summary as of the given date. Inactive employees get
// an empty summary: they hold no permissions while inactive.
func (s *AccessService) GetPermissionSummary(ctx context.Context, employeeID string, asOf time.Time) (*pdp_model.PermissionSummary, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	employee, err := s.directory.Lookup(ctx, employeeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmployeeNotFound) {
			return nil, apperrors.ErrEmployeeNotFound
		}
		logger.Error("Error looking up employee for summary",
			zap.Error(err),
			zap.String("employeeID", employeeID))
		return nil, apperrors.ErrInternalServer
	}

	if !employee.Active {
		summary := emptySummary(employeeID, asOf)
		s.auditService.AppendDecision(ctx, summaryRecord(ctx, employeeID, asOf))
		return summary, nil
	}

	if cached, err := s.cacheService.GetSummary(ctx, employeeID, asOf); err == nil && cached != nil {
		s.auditService.AppendDecision(ctx, summaryRecord(ctx, employeeID, asOf))
		return cached, nil
	}

	summary, err := s.summaries.BuildSummary(ctx, *employee, asOf)
	if err != nil {
		logger.Error("Error building permission summary",
			zap.Error(err),
			zap.String("employeeID", employeeID))
		return nil, apperrors.ErrInternalServer
	}

	if err := s.cacheService.SetSummary(ctx, summary); err != nil {
		logger.Warn("Failed to cache permission summary", zap.Error(err), zap.String("employeeID", employeeID))
	}

	s.auditService.AppendDecision(ctx, summaryRecord(ctx, employeeID, asOf))
	return summary, nil
}

// GetMaxDevicesForType resolves the effective device limit for the employee.
// ok is false when no applicable policy declares one.
func (s *AccessService) GetMaxDevicesForType(ctx context.Context, employeeID string, deviceType string, asOf time.Time) (int, bool, error) {
	employee, err := s.lookupActive(ctx, employeeID)
	if err != nil {
		return 0, false, err
	}
	if employee == nil {
		return 0, false, nil
	}
	return s.engine.GetMaxDevicesForType(ctx, *employee, deviceType, defaultNow(asOf))
}

// GetMaxLicensesForSoftware resolves the effective license limit for the
// employee. ok is false when no applicable policy declares one.
func (s *AccessService) GetMaxLicensesForSoftware(ctx context.Context, employeeID string, software string, asOf time.Time) (int, bool, error) {
	employee, err := s.lookupActive(ctx, employeeID)
	if err != nil {
		return 0, false, err
	}
	if employee == nil {
		return 0, false, nil
	}
	return s.engine.GetMaxLicensesForSoftware(ctx, *employee, software, defaultNow(asOf))
}

// lookupActive returns (nil, nil) for an inactive employee so limit lookups
// degrade to "no limit declared" instead of erroring.
func (s *AccessService) lookupActive(ctx context.Context, employeeID string) (*model.EmployeeRef, error) {
	employee, err := s.directory.Lookup(ctx, employeeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrEmployeeNotFound) {
			return nil, apperrors.ErrEmployeeNotFound
		}
		logger.Error("Error looking up employee", zap.Error(err), zap.String("employeeID", employeeID))
		return nil, apperrors.ErrInternalServer
	}
	if !employee.Active {
		return nil, nil
	}
	return employee, nil
}

func defaultNow(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return time.Now().UTC()
	}
	return asOf
}

func decisionRecord(ctx context.Context, req pdp_model.AccessRequest, asOf time.Time, decision *pdp_model.Decision) *audit.Record {
	action := audit.ActionAccessGranted
	result := audit.ResultGranted
	if !decision.Allowed {
		action = audit.ActionAccessDenied
		result = audit.ResultDenied
	}
	return &audit.Record{
		Action:       action,
		EmployeeID:   req.EmployeeID,
		ResourceKind: req.ResourceKind,
		ResourceID:   req.ResourceID,
		Result:       result,
		Details: audit.Details(map[string]interface{}{
			"as_of":    model.Day(asOf).Format("2006-01-02"),
			"decision": decision,
		}),
		Actor:      util.ActorFrom(ctx),
		RemoteAddr: util.RemoteAddrFrom(ctx),
		UserAgent:  util.UserAgentFrom(ctx),
	}
}

func summaryRecord(ctx context.Context, employeeID string, asOf time.Time) *audit.Record {
	return &audit.Record{
		Action:     audit.ActionPermissionCheck,
		EmployeeID: employeeID,
		Details: audit.Details(map[string]interface{}{
			"as_of": model.Day(asOf).Format("2006-01-02"),
		}),
		Actor:      util.ActorFrom(ctx),
		RemoteAddr: util.RemoteAddrFrom(ctx),
		UserAgent:  util.UserAgentFrom(ctx),
	}
}

func emptySummary(employeeID string, asOf time.Time) *pdp_model.PermissionSummary {
	return &pdp_model.PermissionSummary{
		EmployeeID:             employeeID,
		AsOf:                   model.Day(asOf),
		AllowedDeviceTypes:     []string{},
		RestrictedDeviceTypes:  []string{},
		AllowedSoftware:        []string{},
		RestrictedSoftware:     []string{},
		MaxDevicesPerType:      map[string]int{},
		MaxLicensesPerSoftware: map[string]int{},
	}
}
