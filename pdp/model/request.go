package model

import (
	"time"

	"github.com/piwdev/member-management-kiro-sub000/model"
)

// AccessRequest is one access question: may this employee use this resource
// on this date. AsOf zero means "now"; callers that replay historical
// questions pin it explicitly.
type AccessRequest struct {
	EmployeeID   string             `json:"employee_id"`
	ResourceKind model.ResourceKind `json:"resource_kind"`
	ResourceID   string             `json:"resource_id"`
	AsOf         time.Time          `json:"as_of,omitempty"`
}

// At returns the request's evaluation date, defaulting to now.
func (r *AccessRequest) At() time.Time {
	if r.AsOf.IsZero() {
		return time.Now().UTC()
	}
	return r.AsOf
}
