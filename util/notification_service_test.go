// util/notification_service_test.go
package util_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwdev/member-management-kiro-sub000/model"
	testmock "github.com/piwdev/member-management-kiro-sub000/test/mock"
	"github.com/piwdev/member-management-kiro-sub000/util"
)

// recordingNotifier captures dispatched messages for assertions.
type recordingNotifier struct {
	permissionChanged chan model.PermissionChangedEvent
	accessDenied      chan model.AccessDeniedEvent
	adminMessages     chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		permissionChanged: make(chan model.PermissionChangedEvent, 4),
		accessDenied:      make(chan model.AccessDeniedEvent, 4),
		adminMessages:     make(chan string, 4),
	}
}

func (n *recordingNotifier) NotifyPermissionChanged(_ context.Context, event model.PermissionChangedEvent) error {
	n.permissionChanged <- event
	return nil
}

func (n *recordingNotifier) NotifyAccessDenied(_ context.Context, event model.AccessDeniedEvent) error {
	n.accessDenied <- event
	return nil
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, message string) error {
	n.adminMessages <- message
	return nil
}

func TestNotificationHandlers_BridgeBusEvents(t *testing.T) {
	bus := util.NewEventBus()
	notifier := newRecordingNotifier()
	util.RegisterNotificationHandlers(bus, notifier)

	bus.Publish(context.Background(), model.EventPermissionChanged, model.PermissionChangedEvent{
		SourceKind: "policy",
		SourceID:   "pol-1",
	})
	bus.Publish(context.Background(), model.EventAccessDenied, model.AccessDeniedEvent{
		EmployeeID: "emp-1",
		Reason:     "no applicable policy",
	})

	select {
	case event := <-notifier.permissionChanged:
		assert.Equal(t, "pol-1", event.SourceID)
	case <-time.After(time.Second):
		t.Fatal("expected a permission changed notification")
	}
	select {
	case event := <-notifier.accessDenied:
		assert.Equal(t, "emp-1", event.EmployeeID)
	case <-time.After(time.Second):
		t.Fatal("expected an access denied notification")
	}
}

func TestRoleChangeHandler_DropsSummariesAndNotifies(t *testing.T) {
	bus := util.NewEventBus()
	cache := testmock.NewMemoryCache()
	notifier := newRecordingNotifier()
	util.RegisterRoleChangeHandlers(bus, cache, notifier)

	bus.Publish(context.Background(), model.EventEmployeeRoleChanged, model.EmployeeRoleChangedEvent{
		EmployeeID:    "emp-7",
		OldDepartment: "Sales",
		NewDepartment: "Engineering",
		OldPosition:   "Rep",
		NewPosition:   "Engineer",
		ChangedAt:     time.Now().UTC(),
	})

	var message string
	select {
	case message = <-notifier.adminMessages:
	case <-time.After(time.Second):
		t.Fatal("expected an admin notification for the role change")
	}
	assert.Contains(t, message, "emp-7")
	assert.Contains(t, message, "Sales/Rep")
	assert.Contains(t, message, "Engineering/Engineer")
	assert.Equal(t, 1, cache.Invalidations)
}

func TestRoleChangeHandler_IgnoresForeignPayload(t *testing.T) {
	bus := util.NewEventBus()
	cache := testmock.NewMemoryCache()
	notifier := newRecordingNotifier()
	util.RegisterRoleChangeHandlers(bus, cache, notifier)

	bus.Publish(context.Background(), model.EventEmployeeRoleChanged, "not a role change")

	time.Sleep(50 * time.Millisecond)
	select {
	case <-notifier.adminMessages:
		t.Fatal("no notification should be sent for a malformed payload")
	default:
	}
	require.Zero(t, cache.Invalidations)
}
