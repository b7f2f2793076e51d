// api/controller/audit_controller.go
package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/util"
	helper_util "github.com/piwdev/member-management-kiro-sub000/util/helper"
)

type AuditController struct {
	auditService audit.Service
	searchMirror *audit.SearchMirror
}

// NewAuditController wires the ledger and the optional search mirror. A nil
// mirror disables /audit/search but never the authoritative /audit query.
func NewAuditController(auditService audit.Service, searchMirror *audit.SearchMirror) *AuditController {
	return &AuditController{
		auditService: auditService,
		searchMirror: searchMirror,
	}
}

// RegisterRoutes registers the API routes
func (ac *AuditController) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit", ac.QueryRecords)
	r.GET("/audit/search", ac.SearchRecords)
}

// QueryRecords endpoint, newest records first. The unpaginated match count
// rides along in X-Total-Count.
func (ac *AuditController) QueryRecords(c *gin.Context) {
	filter, ok := parseAuditFilter(c)
	if !ok {
		return
	}

	total, err := ac.auditService.Count(c.Request.Context(), filter)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to count audit records", err)
		return
	}

	records, err := ac.auditService.Query(c.Request.Context(), filter)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query audit records", err)
		return
	}

	c.Header("X-Total-Count", strconv.Itoa(total))
	c.JSON(http.StatusOK, records)
}

// SearchRecords endpoint. Answers from the Elasticsearch mirror, which lags
// the ledger by however long the indexer takes. Use /audit when the answer
// has to be exact.
func (ac *AuditController) SearchRecords(c *gin.Context) {
	if ac.searchMirror == nil {
		util.RespondWithError(c, http.StatusServiceUnavailable, "Audit search is not configured", nil)
		return
	}

	filter, ok := parseAuditFilter(c)
	if !ok {
		return
	}

	records, err := ac.searchMirror.Search(c.Request.Context(), filter)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to search audit records", err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// parseAuditFilter reads the query parameters shared by the two audit read
// endpoints. The bool result is false when an error response was already
// written.
func parseAuditFilter(c *gin.Context) (audit.Filter, bool) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return audit.Filter{}, false
	}

	filter := audit.Filter{
		EmployeeID:   c.Query("employee_id"),
		ResourceKind: model.ResourceKind(c.Query("resource_kind")),
		ResourceID:   c.Query("resource_id"),
		Action:       audit.ActionKind(c.Query("action")),
		Limit:        limit,
		Offset:       offset,
	}
	if raw := c.Query("from"); raw != "" {
		from, err := helper_util.ParseDate(raw)
		if err != nil {
			util.RespondWithValidationError(c, &apperrors.ValidationError{Violations: []apperrors.FieldViolation{
				{Field: "from", Message: "invalid date, want YYYY-MM-DD"},
			}})
			return audit.Filter{}, false
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := helper_util.ParseDate(raw)
		if err != nil {
			util.RespondWithValidationError(c, &apperrors.ValidationError{Violations: []apperrors.FieldViolation{
				{Field: "to", Message: "invalid date, want YYYY-MM-DD"},
			}})
			return audit.Filter{}, false
		}
		filter.To = to
	}
	return filter, true
}
