// api/controller/access_controller.go
package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
	pdp_model "github.com/piwdev/member-management-kiro-sub000/pdp/model"
	"github.com/piwdev/member-management-kiro-sub000/service"
	"github.com/piwdev/member-management-kiro-sub000/util"
	helper_util "github.com/piwdev/member-management-kiro-sub000/util/helper"
)

type AccessController struct {
	accessService service.IAccessService
}

func NewAccessController(accessService service.IAccessService) *AccessController {
	return &AccessController{
		accessService: accessService,
	}
}

// RegisterRoutes registers the API routes
func (ac *AccessController) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/access/check", ac.CheckAccess)
	employees := r.Group("/employees")
	{
		employees.GET("/:id/permissions", ac.GetPermissionSummary)
		employees.GET("/:id/limits/devices/:type", ac.GetDeviceLimit)
		employees.GET("/:id/limits/licenses/:name", ac.GetLicenseLimit)
	}
}

type checkAccessRequest struct {
	EmployeeID   string `json:"employee_id"`
	ResourceKind string `json:"resource_kind"`
	ResourceID   string `json:"resource_id"`
	AsOf         string `json:"as_of"`
}

// CheckAccess endpoint. A denial is still a 200: the decision is the
// payload, not an HTTP failure.
func (ac *AccessController) CheckAccess(c *gin.Context) {
	var req checkAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid access request", err)
		return
	}

	accessReq := pdp_model.AccessRequest{
		EmployeeID:   req.EmployeeID,
		ResourceKind: model.ResourceKind(req.ResourceKind),
		ResourceID:   req.ResourceID,
	}
	if req.AsOf != "" {
		asOf, err := helper_util.ParseDate(req.AsOf)
		if err != nil {
			util.RespondWithValidationError(c, &apperrors.ValidationError{Violations: []apperrors.FieldViolation{
				{Field: "as_of", Message: "invalid date, want YYYY-MM-DD"},
			}})
			return
		}
		accessReq.AsOf = asOf
	}

	decision, err := ac.accessService.CheckAccess(c.Request.Context(), accessReq)
	if err != nil {
		respondAccessError(c, err, "Failed to check access")
		return
	}

	c.JSON(http.StatusOK, decision)
}

// GetPermissionSummary endpoint
func (ac *AccessController) GetPermissionSummary(c *gin.Context) {
	asOf, ok := parseAsOfQuery(c)
	if !ok {
		return
	}

	summary, err := ac.accessService.GetPermissionSummary(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		respondAccessError(c, err, "Failed to build permission summary")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetDeviceLimit endpoint
func (ac *AccessController) GetDeviceLimit(c *gin.Context) {
	asOf, ok := parseAsOfQuery(c)
	if !ok {
		return
	}

	limit, declared, err := ac.accessService.GetMaxDevicesForType(c.Request.Context(), c.Param("id"), c.Param("type"), asOf)
	if err != nil {
		respondAccessError(c, err, "Failed to resolve device limit")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"employee_id": c.Param("id"),
		"device_type": c.Param("type"),
		"limit":       limit,
		"declared":    declared,
	})
}

// GetLicenseLimit endpoint
func (ac *AccessController) GetLicenseLimit(c *gin.Context) {
	asOf, ok := parseAsOfQuery(c)
	if !ok {
		return
	}

	limit, declared, err := ac.accessService.GetMaxLicensesForSoftware(c.Request.Context(), c.Param("id"), c.Param("name"), asOf)
	if err != nil {
		respondAccessError(c, err, "Failed to resolve license limit")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"employee_id": c.Param("id"),
		"software":    c.Param("name"),
		"limit":       limit,
		"declared":    declared,
	})
}

// parseAsOfQuery reads the optional as_of query parameter. The bool result
// is false when the response has already been written.
func parseAsOfQuery(c *gin.Context) (time.Time, bool) {
	raw := c.Query("as_of")
	if raw == "" {
		return time.Time{}, true
	}
	asOf, err := helper_util.ParseDate(raw)
	if err != nil {
		util.RespondWithValidationError(c, &apperrors.ValidationError{Violations: []apperrors.FieldViolation{
			{Field: "as_of", Message: "invalid date, want YYYY-MM-DD"},
		}})
		return time.Time{}, false
	}
	return asOf, true
}

func respondAccessError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, apperrors.ErrEmployeeNotFound):
		util.RespondWithError(c, http.StatusNotFound, "Employee not found", err)
	default:
		util.RespondWithError(c, http.StatusInternalServerError, fallback, err)
	}
}
