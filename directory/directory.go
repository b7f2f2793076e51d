// Package directory resolves employee identity attributes for permission
// evaluation. The engine only needs department, position and active status,
// so the lookup surface stays deliberately small.
package directory

import (
	"context"

	"github.com/piwdev/member-management-kiro-sub000/model"
)

// Directory answers employee attribute lookups by employee ID.
type Directory interface {
	Lookup(ctx context.Context, employeeID string) (*model.EmployeeRef, error)
}
