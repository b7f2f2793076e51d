// api/controller/ops_controller_test.go
package controller_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/piwdev/member-management-kiro-sub000/controller"
	"github.com/piwdev/member-management-kiro-sub000/jobs"
	"github.com/piwdev/member-management-kiro-sub000/metrics"
	"github.com/piwdev/member-management-kiro-sub000/model"
	"github.com/piwdev/member-management-kiro-sub000/store/memory"
	testmock "github.com/piwdev/member-management-kiro-sub000/test/mock"
)

func TestOpsController(t *testing.T) {
	st := memory.New()
	expired := model.PermissionOverride{
		ID:             "ovr-expired",
		EmployeeID:     "emp-1",
		OverrideKind:   model.OverrideGrant,
		ResourceKind:   model.ResourceSoftware,
		ResourceID:     "adobe-cc",
		Reason:         "temporary grant",
		EffectiveFrom:  time.Now().UTC().AddDate(0, -3, 0),
		EffectiveUntil: time.Now().UTC().AddDate(0, -2, 0),
		Active:         true,
	}
	require.NoError(t, st.CreateOverride(context.Background(), &expired, nil))

	auditMock := new(testmock.MockAuditService)
	auditMock.On("Announce", mock.Anything, mock.Anything).Return()
	stats := metrics.New()
	housekeeper := jobs.NewHousekeeper(st, auditMock, stats, nil, 0)

	opsController := controller.NewOpsController(housekeeper, stats)
	router := setupRouter()
	api := router.Group("/")
	opsController.RegisterRoutes(api)
	opsController.RegisterHealth(router)

	t.Run("RunHousekeeping_Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/ops/housekeeping/run", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"deactivated":1}`, w.Body.String())
	})

	t.Run("Metrics_Snapshot", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ops/metrics", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"sweepsTotal":1`)
		assert.Contains(t, w.Body.String(), `"sweptOverrides":1`)
	})

	t.Run("Health", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/healthz", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})
}
