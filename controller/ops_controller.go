// api/controller/ops_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/piwdev/member-management-kiro-sub000/jobs"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

// OpsController exposes the operational surface: manual sweep trigger,
// counter snapshot, liveness probe.
type OpsController struct {
	housekeeper *jobs.Housekeeper
	stats       *metrics.Collector
}

func NewOpsController(housekeeper *jobs.Housekeeper, stats *metrics.Collector) *OpsController {
	return &OpsController{
		housekeeper: housekeeper,
		stats:       stats,
	}
}

// RegisterRoutes registers the API routes
func (oc *OpsController) RegisterRoutes(r *gin.RouterGroup) {
	ops := r.Group("/ops")
	{
		ops.POST("/housekeeping/run", oc.RunHousekeeping)
		ops.GET("/metrics", oc.Metrics)
	}
}

// RegisterHealth registers the liveness probe outside the API group so it
// skips auth and rate limiting.
func (oc *OpsController) RegisterHealth(engine *gin.Engine) {
	engine.GET("/healthz", oc.Health)
}

// RunHousekeeping triggers one override sweep on demand.
func (oc *OpsController) RunHousekeeping(c *gin.Context) {
	deactivated, err := oc.housekeeper.RunOnce(c.Request.Context())
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Housekeeping run failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": deactivated})
}

func (oc *OpsController) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, oc.stats.Snapshot())
}

func (oc *OpsController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
