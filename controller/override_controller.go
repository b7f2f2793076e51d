// api/controller/override_controller.go
package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/service"
	"github.com/piwdev/member-management-kiro-sub000/util"
	helper_util "github.com/piwdev/member-management-kiro-sub000/util/helper"
)

type OverrideController struct {
	overrideService service.IOverrideService
}

func NewOverrideController(overrideService service.IOverrideService) *OverrideController {
	return &OverrideController{
		overrideService: overrideService,
	}
}

// RegisterRoutes registers the API routes
func (oc *OverrideController) RegisterRoutes(r *gin.RouterGroup) {
	overrides := r.Group("/overrides")
	{
		overrides.POST("", oc.CreateOverride)
		overrides.PUT("/:id", oc.UpdateOverride)
		overrides.DELETE("/:id", oc.DeleteOverride)
		overrides.POST("/:id/activate", oc.ActivateOverride)
		overrides.POST("/:id/deactivate", oc.DeactivateOverride)
		overrides.GET("/:id", oc.GetOverride)
		overrides.GET("", oc.ListOverrides)
	}
}

// overrideRequest is the wire form of an override. Both window bounds are
// required, as YYYY-MM-DD strings.
type overrideRequest struct {
	EmployeeID     string `json:"employee_id"`
	OverrideKind   string `json:"override_kind"`
	ResourceKind   string `json:"resource_kind"`
	ResourceID     string `json:"resource_id"`
	EffectiveFrom  string `json:"effective_from"`
	EffectiveUntil string `json:"effective_until"`
	Reason         string `json:"reason"`
}

func (r *overrideRequest) toModel() (model.PermissionOverride, *apperrors.ValidationError) {
	override := model.PermissionOverride{
		EmployeeID:   r.EmployeeID,
		OverrideKind: model.OverrideKind(r.OverrideKind),
		ResourceKind: model.ResourceKind(r.ResourceKind),
		ResourceID:   r.ResourceID,
		Reason:       r.Reason,
	}

	var violations []apperrors.FieldViolation
	if r.EffectiveFrom != "" {
		from, err := helper_util.ParseDate(r.EffectiveFrom)
		if err != nil {
			violations = append(violations, apperrors.FieldViolation{Field: "effective_from", Message: "invalid date, want YYYY-MM-DD"})
		} else {
			override.EffectiveFrom = from
		}
	}
	if r.EffectiveUntil != "" {
		until, err := helper_util.ParseDate(r.EffectiveUntil)
		if err != nil {
			violations = append(violations, apperrors.FieldViolation{Field: "effective_until", Message: "invalid date, want YYYY-MM-DD"})
		} else {
			override.EffectiveUntil = until
		}
	}
	if len(violations) > 0 {
		return override, &apperrors.ValidationError{Violations: violations}
	}
	return override, nil
}

// CreateOverride endpoint
func (oc *OverrideController) CreateOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid override data", apperrors.ErrInvalidOverrideData)
		return
	}
	override, ve := req.toModel()
	if ve != nil {
		util.RespondWithValidationError(c, ve)
		return
	}

	createdOverride, err := oc.overrideService.CreateOverride(c.Request.Context(), override, util.ActorFromContext(c))
	if err != nil {
		respondOverrideError(c, err, "Failed to create override")
		return
	}

	c.JSON(http.StatusCreated, createdOverride)
}

// UpdateOverride endpoint
func (oc *OverrideController) UpdateOverride(c *gin.Context) {
	overrideID := c.Param("id")
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid override data", apperrors.ErrInvalidOverrideData)
		return
	}
	override, ve := req.toModel()
	if ve != nil {
		util.RespondWithValidationError(c, ve)
		return
	}
	override.ID = overrideID

	updatedOverride, err := oc.overrideService.UpdateOverride(c.Request.Context(), override, util.ActorFromContext(c))
	if err != nil {
		respondOverrideError(c, err, "Failed to update override")
		return
	}

	c.JSON(http.StatusOK, updatedOverride)
}

// DeleteOverride endpoint
func (oc *OverrideController) DeleteOverride(c *gin.Context) {
	overrideID := c.Param("id")

	if err := oc.overrideService.DeleteOverride(c.Request.Context(), overrideID, util.ActorFromContext(c)); err != nil {
		respondOverrideError(c, err, "Failed to delete override")
		return
	}

	c.Status(http.StatusNoContent)
}

// ActivateOverride endpoint
func (oc *OverrideController) ActivateOverride(c *gin.Context) {
	override, err := oc.overrideService.ActivateOverride(c.Request.Context(), c.Param("id"), util.ActorFromContext(c))
	if err != nil {
		respondOverrideError(c, err, "Failed to activate override")
		return
	}
	c.JSON(http.StatusOK, override)
}

// DeactivateOverride endpoint
func (oc *OverrideController) DeactivateOverride(c *gin.Context) {
	override, err := oc.overrideService.DeactivateOverride(c.Request.Context(), c.Param("id"), util.ActorFromContext(c))
	if err != nil {
		respondOverrideError(c, err, "Failed to deactivate override")
		return
	}
	c.JSON(http.StatusOK, override)
}

// GetOverride endpoint
func (oc *OverrideController) GetOverride(c *gin.Context) {
	overrideID := c.Param("id")

	override, err := oc.overrideService.GetOverride(c.Request.Context(), overrideID)
	if err != nil {
		respondOverrideError(c, err, "Failed to retrieve override")
		return
	}

	c.JSON(http.StatusOK, override)
}

// ListOverrides endpoint
func (oc *OverrideController) ListOverrides(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	criteria := model.OverrideSearchCriteria{
		EmployeeID:   c.Query("employee_id"),
		ResourceKind: model.ResourceKind(c.Query("resource_kind")),
		ResourceID:   c.Query("resource_id"),
		Limit:        limit,
		Offset:       offset,
	}
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid active filter", err)
			return
		}
		criteria.Active = &parsed
	}

	overrides, err := oc.overrideService.ListOverrides(c.Request.Context(), criteria)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list overrides", err)
		return
	}

	c.JSON(http.StatusOK, overrides)
}

func respondOverrideError(c *gin.Context, err error, fallback string) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		util.RespondWithValidationError(c, ve)
	case errors.Is(err, apperrors.ErrOverrideNotFound):
		util.RespondWithError(c, http.StatusNotFound, "Override not found", err)
	case errors.Is(err, apperrors.ErrOverrideConflict):
		util.RespondWithError(c, http.StatusConflict, "Override already exists", err)
	case errors.Is(err, apperrors.ErrDatabaseOperation):
		util.RespondWithError(c, http.StatusInternalServerError, "Database operation failed", err)
	default:
		util.RespondWithError(c, http.StatusInternalServerError, fallback, err)
	}
}
