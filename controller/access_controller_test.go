// api/controller/access_controller_test.go
package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/piwdev/member-management-kiro-sub000/controller"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
	pdp_model "github.com/piwdev/member-management-kiro-sub000/pdp/model"
	testmock "github.com/piwdev/member-management-kiro-sub000/test/mock"
)

func TestAccessController(t *testing.T) {
	mockAccessService := new(testmock.MockAccessService)
	accessController := controller.NewAccessController(mockAccessService)
	router := setupRouter()
	api := router.Group("/")
	accessController.RegisterRoutes(api)

	t.Run("CheckAccess_Allowed", func(t *testing.T) {
		mockAccessService.
			On("CheckAccess", mock.Anything, mock.MatchedBy(func(req pdp_model.AccessRequest) bool {
				return req.EmployeeID == "emp-1" &&
					req.ResourceKind == model.ResourceDevice &&
					req.AsOf.Equal(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC))
			})).
			Return(&pdp_model.Decision{Allowed: true, Reason: "software permitted by policy", RuleKind: pdp_model.RulePolicy}, nil).
			Once()

		body := strings.NewReader(`{"employee_id":"emp-1","resource_kind":"DEVICE","resource_id":"LAPTOP","as_of":"2024-06-15"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var decision pdp_model.Decision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
		assert.True(t, decision.Allowed)
	})

	t.Run("CheckAccess_DenialIsStill200", func(t *testing.T) {
		mockAccessService.
			On("CheckAccess", mock.Anything, mock.Anything).
			Return(&pdp_model.Decision{Allowed: false, Reason: pdp_model.ReasonNoApplicablePolicy, RuleKind: pdp_model.RuleDefault}, nil).
			Once()

		body := strings.NewReader(`{"employee_id":"emp-1","resource_kind":"DEVICE","resource_id":"LAPTOP"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"allowed":false`)
		assert.Contains(t, w.Body.String(), pdp_model.ReasonNoApplicablePolicy)
	})

	t.Run("CheckAccess_Failure_BadDate", func(t *testing.T) {
		body := strings.NewReader(`{"employee_id":"emp-1","resource_kind":"DEVICE","resource_id":"LAPTOP","as_of":"not-a-date"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"as_of"`)
	})

	t.Run("CheckAccess_Failure_UnknownEmployee", func(t *testing.T) {
		mockAccessService.
			On("CheckAccess", mock.Anything, mock.Anything).
			Return(nil, apperrors.ErrEmployeeNotFound).
			Once()

		body := strings.NewReader(`{"employee_id":"ghost","resource_kind":"DEVICE","resource_id":"LAPTOP"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/access/check", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("GetPermissionSummary_Success", func(t *testing.T) {
		mockAccessService.
			On("GetPermissionSummary", mock.Anything, "emp-1", mock.MatchedBy(func(asOf time.Time) bool {
				return asOf.Equal(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC))
			})).
			Return(&pdp_model.PermissionSummary{
				EmployeeID:         "emp-1",
				AllowedDeviceTypes: []string{"LAPTOP"},
			}, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/employees/emp-1/permissions?as_of=2024-06-15", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"allowed_device_types":["LAPTOP"]`)
	})

	t.Run("GetPermissionSummary_Failure_BadDate", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/employees/emp-1/permissions?as_of=junk", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("GetPermissionSummary_Failure_NotFound", func(t *testing.T) {
		mockAccessService.
			On("GetPermissionSummary", mock.Anything, "ghost", mock.Anything).
			Return(nil, apperrors.ErrEmployeeNotFound).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/employees/ghost/permissions", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("GetDeviceLimit_Success", func(t *testing.T) {
		mockAccessService.
			On("GetMaxDevicesForType", mock.Anything, "emp-1", "LAPTOP", mock.Anything).
			Return(2, true, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/employees/emp-1/limits/devices/LAPTOP", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"limit":2`)
		assert.Contains(t, w.Body.String(), `"declared":true`)
	})

	t.Run("GetDeviceLimit_Undeclared", func(t *testing.T) {
		mockAccessService.
			On("GetMaxDevicesForType", mock.Anything, "emp-1", "PHONE", mock.Anything).
			Return(0, false, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/employees/emp-1/limits/devices/PHONE", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"declared":false`)
	})

	t.Run("GetLicenseLimit_Success", func(t *testing.T) {
		mockAccessService.
			On("GetMaxLicensesForSoftware", mock.Anything, "emp-1", "adobe-cc", mock.Anything).
			Return(5, true, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/employees/emp-1/limits/licenses/adobe-cc", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"software":"adobe-cc"`)
		assert.Contains(t, w.Body.String(), `"limit":5`)
	})
}
