// api/service/services.go
package service

import (
	"encoding/json"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	"github.com/piwdev/member-management-kiro-sub000/directory"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/pdp/engine"
	"github.com/piwdev/member-management-kiro-sub000/store"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

type Services struct {
	Policy   IPolicyService
	Override IOverrideService
	Access   IAccessService
}

func InitializeServices(
	st store.Store,
	dir directory.Directory,
	auditService audit.Service,
	validationUtil *util.ValidationUtil,
	cacheService util.ICacheService,
	eventBus *util.EventBus,
	stats *metrics.Collector,
) (*Services, error) {
	policyResolver := engine.NewPolicyResolver(st)
	overrideResolver := engine.NewOverrideResolver(st)
	decisionEngine := engine.NewEngine(policyResolver, overrideResolver)
	summaries := engine.NewSummaryBuilder(policyResolver, overrideResolver)

	services := &Services{
		Policy:   NewPolicyService(st, validationUtil, cacheService, auditService, eventBus),
		Override: NewOverrideService(st, validationUtil, cacheService, auditService, eventBus),
		Access:   NewAccessService(decisionEngine, summaries, dir, auditService, cacheService, eventBus, stats),
	}

	return services, nil
}

// mutationRecord builds the audit record that rides inside a store mutation
// transaction.
func mutationRecord(action audit.ActionKind, employeeID string, details json.RawMessage, actor string) *audit.Record {
	record := &audit.Record{
		Action:     action,
		EmployeeID: employeeID,
		Details:    details,
		Actor:      actor,
	}
	audit.Stamp(record)
	return record
}
