package directory

import (
	"context"
	"sync"

	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

// MemoryDirectory is a map-backed Directory for tests and single-node
// deployments that load the roster at startup.
type MemoryDirectory struct {
	mu        sync.RWMutex
	employees map[string]model.EmployeeRef
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{employees: make(map[string]model.EmployeeRef)}
}

func (d *MemoryDirectory) Put(employee model.EmployeeRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[employee.ID] = employee
}

func (d *MemoryDirectory) Lookup(ctx context.Context, employeeID string) (*model.EmployeeRef, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	employee, ok := d.employees[employeeID]
	if !ok {
		return nil, apperrors.ErrEmployeeNotFound
	}
	copied := employee
	return &copied, nil
}
