// api/controller/policy_controller_test.go
package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/piwdev/member-management-kiro-sub000/controller"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
	testmock "github.com/piwdev/member-management-kiro-sub000/test/mock"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

const policyBody = `{
	"name": "engineering laptops",
	"scope_kind": "DEPARTMENT",
	"target_department": "Eng",
	"priority": 10,
	"allowed_device_types": ["LAPTOP"],
	"effective_from": "2024-01-01"
}`

func TestPolicyController(t *testing.T) {
	mockPolicyService := new(testmock.MockPolicyService)
	policyController := controller.NewPolicyController(mockPolicyService)
	router := setupRouter()
	api := router.Group("/")
	policyController.RegisterRoutes(api)

	t.Run("CreatePolicy_Success", func(t *testing.T) {
		mockPolicyService.
			On("CreatePolicy", mock.Anything, mock.Anything, mock.Anything).
			Return(&model.PermissionPolicy{ID: "1", Name: "engineering laptops"}, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", strings.NewReader(policyBody))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var created model.PermissionPolicy
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.Equal(t, "1", created.ID)
	})

	t.Run("CreatePolicy_Failure_MalformedJSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", strings.NewReader(`{"name":`))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CreatePolicy_Failure_BadDate", func(t *testing.T) {
		body := strings.NewReader(`{"name":"x","effective_from":"tomorrow"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"effective_from"`)
	})

	t.Run("CreatePolicy_Failure_Validation", func(t *testing.T) {
		mockPolicyService.
			On("CreatePolicy", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.NewValidationError([]apperrors.FieldViolation{
				{Field: "scope_kind", Message: "scope_kind must be one of GLOBAL, DEPARTMENT, POSITION, INDIVIDUAL"},
			})).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", strings.NewReader(policyBody))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "validation failed")
		assert.Contains(t, w.Body.String(), `"scope_kind"`)
	})

	t.Run("CreatePolicy_Failure_Conflict", func(t *testing.T) {
		mockPolicyService.
			On("CreatePolicy", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.ErrPolicyConflict).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", strings.NewReader(policyBody))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("UpdatePolicy_Success", func(t *testing.T) {
		mockPolicyService.
			On("UpdatePolicy", mock.Anything, mock.MatchedBy(func(p model.PermissionPolicy) bool {
				return p.ID == "1"
			}), mock.Anything).
			Return(&model.PermissionPolicy{ID: "1", Name: "engineering laptops"}, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/policies/1", strings.NewReader(policyBody))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("UpdatePolicy_Failure_NotFound", func(t *testing.T) {
		mockPolicyService.
			On("UpdatePolicy", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperrors.ErrPolicyNotFound).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/policies/1", strings.NewReader(policyBody))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("DeletePolicy_Success", func(t *testing.T) {
		mockPolicyService.
			On("DeletePolicy", mock.Anything, "1", mock.Anything).
			Return(nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/policies/1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("DeletePolicy_Failure_NotFound", func(t *testing.T) {
		mockPolicyService.
			On("DeletePolicy", mock.Anything, "missing", mock.Anything).
			Return(apperrors.ErrPolicyNotFound).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/policies/missing", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ActivatePolicy_Success", func(t *testing.T) {
		mockPolicyService.
			On("ActivatePolicy", mock.Anything, "1", mock.Anything).
			Return(&model.PermissionPolicy{ID: "1", Active: true}, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/1/activate", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"active":true`)
	})

	t.Run("DeactivatePolicy_Success", func(t *testing.T) {
		mockPolicyService.
			On("DeactivatePolicy", mock.Anything, "1", mock.Anything).
			Return(&model.PermissionPolicy{ID: "1", Active: false}, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/1/deactivate", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("GetPolicy_Success", func(t *testing.T) {
		mockPolicyService.
			On("GetPolicy", mock.Anything, "1").
			Return(&model.PermissionPolicy{ID: "1", Name: "engineering laptops"}, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies/1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "engineering laptops")
	})

	t.Run("GetPolicy_Failure_NotFound", func(t *testing.T) {
		mockPolicyService.
			On("GetPolicy", mock.Anything, "missing").
			Return(nil, apperrors.ErrPolicyNotFound).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies/missing", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ListPolicies_Success", func(t *testing.T) {
		var captured model.PolicySearchCriteria
		mockPolicyService.
			On("ListPolicies", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				captured = args.Get(1).(model.PolicySearchCriteria)
			}).
			Return([]*model.PermissionPolicy{{ID: "1"}, {ID: "2"}}, nil).
			Once()

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies?name=eng&active=true&limit=5&offset=2", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "eng", captured.Name)
		require.NotNil(t, captured.Active)
		assert.True(t, *captured.Active)
		assert.Equal(t, 5, captured.Limit)
		assert.Equal(t, 2, captured.Offset)

		var listed []*model.PermissionPolicy
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
		assert.Len(t, listed, 2)
	})

	t.Run("ListPolicies_Failure_BadPagination", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies?limit=abc", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
