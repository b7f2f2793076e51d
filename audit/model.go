package audit

import (
	"encoding/json"
	"time"

	"github.com/piwdev/member-management-kiro-sub000/model"
)

// ActionKind classifies what a record witnessed.
type ActionKind string

const (
	ActionPolicyCreated   ActionKind = "policy_created"
	ActionPolicyUpdated   ActionKind = "policy_updated"
	ActionPolicyDeleted   ActionKind = "policy_deleted"
	ActionOverrideCreated ActionKind = "override_created"
	ActionOverrideUpdated ActionKind = "override_updated"
	ActionOverrideDeleted ActionKind = "override_deleted"
	ActionAccessGranted   ActionKind = "access_granted"
	ActionAccessDenied    ActionKind = "access_denied"
	ActionPermissionCheck ActionKind = "permission_check"
	ActionAutoUpdate      ActionKind = "auto_update"
)

// Result is the optional granted/denied outcome a record carries.
type Result string

const (
	ResultGranted Result = "granted"
	ResultDenied  Result = "denied"
)

// Record is one immutable ledger entry. There is no update or delete
// operation anywhere in this package, on purpose.
type Record struct {
	ID           string             `json:"id"`
	Action       ActionKind         `json:"action"`
	EmployeeID   string             `json:"employee_id,omitempty"`
	ResourceKind model.ResourceKind `json:"resource_kind,omitempty"`
	ResourceID   string             `json:"resource_id,omitempty"`
	Result       Result             `json:"result,omitempty"`
	Details      json.RawMessage    `json:"details,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
	Actor        string             `json:"actor,omitempty"`
	RemoteAddr   string             `json:"remote_addr,omitempty"`
	UserAgent    string             `json:"user_agent,omitempty"`
}

// Details marshals v into a record's free-form details blob. Marshal failures
// degrade to an error note rather than dropping the record.
func Details(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"marshal_error":"` + err.Error() + `"}`)
	}
	return data
}

// ChangeDetails captures a mutation's before/after images.
func ChangeDetails(oldValue, newValue interface{}) json.RawMessage {
	return Details(map[string]interface{}{
		"old": oldValue,
		"new": newValue,
	})
}

// Filter narrows a ledger query. Zero values mean "any".
type Filter struct {
	EmployeeID   string
	ResourceKind model.ResourceKind
	ResourceID   string
	Action       ActionKind
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}
