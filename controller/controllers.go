// api/controller/controllers.go
package controller

import (
	"github.com/piwdev/member-management-kiro-sub000/audit"
	"github.com/piwdev/member-management-kiro-sub000/jobs"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/service"
)

type Controllers struct {
	Policy   *PolicyController
	Override *OverrideController
	Access   *AccessController
	Audit    *AuditController
	Ops      *OpsController
}

func InitializeControllers(services *service.Services, auditService audit.Service, searchMirror *audit.SearchMirror, housekeeper *jobs.Housekeeper, stats *metrics.Collector) *Controllers {
	return &Controllers{
		Policy:   NewPolicyController(services.Policy),
		Override: NewOverrideController(services.Override),
		Access:   NewAccessController(services.Access),
		Audit:    NewAuditController(auditService, searchMirror),
		Ops:      NewOpsController(housekeeper, stats),
	}
}
