package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 1000
)

// Service is the audit logger. Appends are fire-and-forget from the caller's
// point of view: a failed insert is an operational problem (logged, counted),
// never a reason to fail the decision or mutation that produced the record.
// Administrative mutations do NOT go through this service; stores commit
// those records inside the mutation's own transaction.
type Service interface {
	AppendDecision(ctx context.Context, record *Record)
	AppendMutation(ctx context.Context, record *Record)
	Announce(ctx context.Context, record *Record)
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Count(ctx context.Context, filter Filter) (int, error)
}

type service struct {
	repo     Repository
	eventBus *util.EventBus
	stats    *metrics.Collector
}

func NewService(repo Repository, eventBus *util.EventBus, stats *metrics.Collector) Service {
	return &service{repo: repo, eventBus: eventBus, stats: stats}
}

// AppendDecision records an access decision or permission check.
func (s *service) AppendDecision(ctx context.Context, record *Record) {
	s.append(ctx, record)
}

// AppendMutation records an administrative change that was not committed
// through a store transaction (role-change traces, adapter backends without
// multi-write transactions).
func (s *service) AppendMutation(ctx context.Context, record *Record) {
	s.append(ctx, record)
}

// Announce publishes a record that a store transaction already persisted,
// so downstream consumers (the search mirror) still see it.
func (s *service) Announce(ctx context.Context, record *Record) {
	if record == nil || s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, model.EventAuditRecorded, record)
}

func (s *service) append(ctx context.Context, record *Record) {
	Stamp(record)
	if err := s.repo.Append(ctx, record); err != nil {
		s.stats.RecordAuditFailure()
		logger.Error("Failed to append audit record",
			zap.Error(err),
			zap.String("action", string(record.Action)),
			zap.String("employeeID", record.EmployeeID))
		return
	}
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, model.EventAuditRecorded, record)
	}
}

// Query reads the ledger with the given filter, newest first.
func (s *service) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.Query(ctx, filter)
}

// Count returns how many records match the filter, ignoring pagination.
func (s *service) Count(ctx context.Context, filter Filter) (int, error) {
	filter.Limit = 0
	filter.Offset = 0
	return s.repo.Count(ctx, filter)
}

// Stamp fills in identity and time for records built inline by callers.
// Callers that hand records straight to a store transaction stamp them first.
func Stamp(record *Record) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
}
