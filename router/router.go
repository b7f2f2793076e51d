// api/router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/piwdev/member-management-kiro-sub000/controller"
	"github.com/piwdev/member-management-kiro-sub000/middleware"
)

func SetupRouter(
	controllers *controller.Controllers,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Liveness probe stays outside the API group: no auth, no rate limit.
	controllers.Ops.RegisterHealth(router)

	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	api.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))

	controllers.Policy.RegisterRoutes(api)
	controllers.Override.RegisterRoutes(api)
	controllers.Access.RegisterRoutes(api)
	controllers.Audit.RegisterRoutes(api)
	controllers.Ops.RegisterRoutes(api)

	return router
}
