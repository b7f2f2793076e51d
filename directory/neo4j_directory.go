package directory

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

// Neo4jDirectory reads EMPLOYEE nodes maintained by the HR sync jobs.
type Neo4jDirectory struct {
	Driver neo4j.Driver
}

func NewNeo4jDirectory(driver neo4j.Driver) *Neo4jDirectory {
	return &Neo4jDirectory{Driver: driver}
}

func (d *Neo4jDirectory) Lookup(ctx context.Context, employeeID string) (*model.EmployeeRef, error) {
	session := d.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (e:EMPLOYEE {id: $id})
    RETURN e
    `
	result, err := session.Run(query, map[string]interface{}{"id": employeeID})
	if err != nil {
		logger.Error("Failed to execute employee lookup query",
			zap.Error(err),
			zap.String("employeeID", employeeID))
		return nil, fmt.Errorf("failed to execute employee lookup query: %w", err)
	}

	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		employee, err := mapNodeToEmployee(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map employee node to struct: %w", err)
		}
		return employee, nil
	}

	logger.Warn("Employee not found", zap.String("employeeID", employeeID))
	return nil, apperrors.ErrEmployeeNotFound
}

func mapNodeToEmployee(node neo4j.Node) (*model.EmployeeRef, error) {
	props := node.Props
	employee := &model.EmployeeRef{}

	if id, ok := props["id"].(string); ok {
		employee.ID = id
	} else {
		return nil, fmt.Errorf("failed to assert type for employee ID: %v", props["id"])
	}

	if department, ok := props["department"].(string); ok {
		employee.Department = department
	}
	if position, ok := props["position"].(string); ok {
		employee.Position = position
	}
	if active, ok := props["active"].(bool); ok {
		employee.Active = active
	}

	return employee, nil
}
