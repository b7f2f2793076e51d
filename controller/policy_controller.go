// api/controller/policy_controller.go
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

type PolicyController struct {
	policyService service.IPolicyService
}

func NewPolicyController(policyService service.IPolicyService) *PolicyController {
	return &PolicyController{
		policyService: policyService,
	}
}

// RegisterRoutes registers the API routes
func (pc *PolicyController) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/policies")
	{
		policies.POST("", pc.CreatePolicy)
		policies.PUT("/:id", pc.UpdatePolicy)
		policies.DELETE("/:id", pc.DeletePolicy)
		policies.POST("/:id/activate", pc.ActivatePolicy)
		policies.POST("/:id/deactivate", pc.DeactivatePolicy)
		policies.GET("/:id", pc.GetPolicy)
		policies.GET("", pc.ListPolicies)
	}
}

// policyRequest is the wire form of a policy. Window bounds arrive as
// YYYY-MM-DD strings (full RFC3339 accepted too).
type policyRequest struct {
	Name                   string         `json:"name"`
	Description            string         `json:"description"`
	ScopeKind              string         `json:"scope_kind"`
	TargetDepartment       string         `json:"target_department"`
	TargetPosition         string         `json:"target_position"`
	TargetEmployeeID       string         `json:"target_employee_id"`
	Priority               int            `json:"priority"`
	AllowedDeviceTypes     []string       `json:"allowed_device_types"`
	MaxDevicesPerType      map[string]int `json:"max_devices_per_type"`
	AllowedSoftware        []string       `json:"allowed_software"`
	RestrictedSoftware     []string       `json:"restricted_software"`
	MaxLicensesPerSoftware map[string]int `json:"max_licenses_per_software"`
	AutoApprove            bool           `json:"auto_approve"`
	RequireManagerApproval bool           `json:"require_manager_approval"`
	EffectiveFrom          string         `json:"effective_from"`
	EffectiveUntil         string         `json:"effective_until"`
}

func (r *policyRequest) toModel() (model.PermissionPolicy, *apperrors.ValidationError) {
	policy := model.PermissionPolicy{
		Name:                   r.Name,
		Description:            r.Description,
		ScopeKind:              model.ScopeKind(r.ScopeKind),
		TargetDepartment:       r.TargetDepartment,
		TargetPosition:         r.TargetPosition,
		TargetEmployeeID:       r.TargetEmployeeID,
		Priority:               r.Priority,
		AllowedDeviceTypes:     r.AllowedDeviceTypes,
		MaxDevicesPerType:      r.MaxDevicesPerType,
		AllowedSoftware:        r.AllowedSoftware,
		RestrictedSoftware:     r.RestrictedSoftware,
		MaxLicensesPerSoftware: r.MaxLicensesPerSoftware,
		AutoApprove:            r.AutoApprove,
		RequireManagerApproval: r.RequireManagerApproval,
	}

	var violations []apperrors.FieldViolation
	if r.EffectiveFrom != "" {
		from, err := helper_util.ParseDate(r.EffectiveFrom)
		if err != nil {
			violations = append(violations, apperrors.FieldViolation{Field: "effective_from", Message: "invalid date, want YYYY-MM-DD"})
		} else {
			policy.EffectiveFrom = from
		}
	}
	if r.EffectiveUntil != "" {
		until, err := helper_util.ParseDate(r.EffectiveUntil)
		if err != nil {
			violations = append(violations, apperrors.FieldViolation{Field: "effective_until", Message: "invalid date, want YYYY-MM-DD"})
		} else {
			policy.EffectiveUntil = &until
		}
	}
	if len(violations) > 0 {
		return policy, &apperrors.ValidationError{Violations: violations}
	}
	return policy, nil
}

// CreatePolicy endpoint
func (pc *PolicyController) CreatePolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", apperrors.ErrInvalidPolicyData)
		return
	}
	policy, ve := req.toModel()
	if ve != nil {
		util.RespondWithValidationError(c, ve)
		return
	}

	createdPolicy, err := pc.policyService.CreatePolicy(c.Request.Context(), policy, util.ActorFromContext(c))
	if err != nil {
		respondPolicyError(c, err, "Failed to create policy")
		return
	}

	c.JSON(http.StatusCreated, createdPolicy)
}

// UpdatePolicy endpoint
func (pc *PolicyController) UpdatePolicy(c *gin.Context) {
	policyID := c.Param("id")
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid policy data", apperrors.ErrInvalidPolicyData)
		return
	}
	policy, ve := req.toModel()
	if ve != nil {
		util.RespondWithValidationError(c, ve)
		return
	}
	policy.ID = policyID

	updatedPolicy, err := pc.policyService.UpdatePolicy(c.Request.Context(), policy, util.ActorFromContext(c))
	if err != nil {
		respondPolicyError(c, err, "Failed to update policy")
		return
	}

	c.JSON(http.StatusOK, updatedPolicy)
}

// DeletePolicy endpoint
func (pc *PolicyController) DeletePolicy(c *gin.Context) {
	policyID := c.Param("id")

	if err := pc.policyService.DeletePolicy(c.Request.Context(), policyID, util.ActorFromContext(c)); err != nil {
		respondPolicyError(c, err, "Failed to delete policy")
		return
	}

	c.Status(http.StatusNoContent)
}

// ActivatePolicy endpoint
func (pc *PolicyController) ActivatePolicy(c *gin.Context) {
	policy, err := pc.policyService.ActivatePolicy(c.Request.Context(), c.Param("id"), util.ActorFromContext(c))
	if err != nil {
		respondPolicyError(c, err, "Failed to activate policy")
		return
	}
	c.JSON(http.StatusOK, policy)
}

// DeactivatePolicy endpoint
func (pc *PolicyController) DeactivatePolicy(c *gin.Context) {
	policy, err := pc.policyService.DeactivatePolicy(c.Request.Context(), c.Param("id"), util.ActorFromContext(c))
	if err != nil {
		respondPolicyError(c, err, "Failed to deactivate policy")
		return
	}
	c.JSON(http.StatusOK, policy)
}

// GetPolicy endpoint
func (pc *PolicyController) GetPolicy(c *gin.Context) {
	policyID := c.Param("id")

	policy, err := pc.policyService.GetPolicy(c.Request.Context(), policyID)
	if err != nil {
		respondPolicyError(c, err, "Failed to retrieve policy")
		return
	}

	c.JSON(http.StatusOK, policy)
}

// ListPolicies endpoint
func (pc *PolicyController) ListPolicies(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	criteria := model.PolicySearchCriteria{
		Name:        c.Query("name"),
		ScopeKind:   model.ScopeKind(c.Query("scope_kind")),
		ScopeTarget: c.Query("scope_target"),
		Limit:       limit,
		Offset:      offset,
	}
	if active := c.Query("active"); active != "" {
		parsed, err := strconv.ParseBool(active)
		if err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid active filter", err)
			return
		}
		criteria.Active = &parsed
	}
	if raw := c.Query("min_priority"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid min_priority filter", err)
			return
		}
		criteria.MinPriority = parsed
	}
	if raw := c.Query("max_priority"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			util.RespondWithError(c, http.StatusBadRequest, "Invalid max_priority filter", err)
			return
		}
		criteria.MaxPriority = parsed
	}

	policies, err := pc.policyService.ListPolicies(c.Request.Context(), criteria)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	c.JSON(http.StatusOK, policies)
}

func respondPolicyError(c *gin.Context, err error, fallback string) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		util.RespondWithValidationError(c, ve)
	case errors.Is(err, apperrors.ErrPolicyNotFound):
		util.RespondWithError(c, http.StatusNotFound, "Policy not found", err)
	case errors.Is(err, apperrors.ErrPolicyConflict):
		util.RespondWithError(c, http.StatusConflict, "Policy already exists", err)
	case errors.Is(err, apperrors.ErrDatabaseOperation):
		util.RespondWithError(c, http.StatusInternalServerError, "Database operation failed", err)
	default:
		util.RespondWithError(c, http.StatusInternalServerError, fallback, err)
	}
}
