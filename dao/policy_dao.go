package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	logger "github.com/piwdev/member-management-kiro-sub000/logging"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

// PolicyDAO is the Neo4j policy store. Every mutation runs the policy write
// and its audit record in one WriteTransaction, so neither can land without
// the other.
type PolicyDAO struct {
	Driver neo4j.Driver
}

func NewPolicyDAO(driver neo4j.Driver) *PolicyDAO {
	dao := &PolicyDAO{Driver: driver}
	ctx := context.Background()
	if err := dao.EnsureUniqueConstraint(ctx); err != nil {
		logger.Fatal("Failed to ensure unique constraint for Policy", zap.Error(err))
	}
	return dao
}

func (dao *PolicyDAO) EnsureUniqueConstraint(ctx context.Context) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        CREATE CONSTRAINT unique_policy_id IF NOT EXISTS
        FOR (p:POLICY) REQUIRE p.id IS UNIQUE
        `
		_, err := transaction.Run(query, nil)
		return nil, err
	})
	if err != nil {
		logger.Error("Failed to ensure unique constraint on Policy ID", zap.Error(err))
		return err
	}
	return nil
}

func (dao *PolicyDAO) CreatePolicy(ctx context.Context, policy *model.PermissionPolicy, record *audit.Record) error {
	start := time.Now()
	logger.Info("Creating new policy", zap.String("policyName", policy.Name))
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		checkQuery := `
        MATCH (p:POLICY {id: $id})
        RETURN p.id
        `
		checkResult, err := transaction.Run(checkQuery, map[string]interface{}{"id": policy.ID})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if checkResult.Next() {
			return nil, apperrors.ErrPolicyConflict
		}

		createQuery := `
        CREATE (p:POLICY {id: $id})
        SET p += $props
        RETURN p.id as id
        `
		createResult, err := transaction.Run(createQuery, map[string]interface{}{
			"id":    policy.ID,
			"props": policyProps(policy),
		})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if !createResult.Next() {
			return nil, apperrors.ErrInternalServer
		}

		return nil, appendRecordTx(transaction, record)
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to create policy",
			zap.Error(err),
			zap.String("policyName", policy.Name),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Policy created successfully",
		zap.String("policyID", policy.ID),
		zap.Duration("duration", duration))
	return nil
}

func (dao *PolicyDAO) UpdatePolicy(ctx context.Context, policy *model.PermissionPolicy, record *audit.Record) error {
	start := time.Now()
	logger.Info("Updating policy", zap.String("policyID", policy.ID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {id: $id})
        SET p += $props
        RETURN p.id as id
        `
		result, err := transaction.Run(query, map[string]interface{}{
			"id":    policy.ID,
			"props": policyProps(policy),
		})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if !result.Next() {
			return nil, apperrors.ErrPolicyNotFound
		}

		return nil, appendRecordTx(transaction, record)
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to update policy",
			zap.Error(err),
			zap.String("policyID", policy.ID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Policy updated successfully",
		zap.String("policyID", policy.ID),
		zap.Duration("duration", duration))
	return nil
}

func (dao *PolicyDAO) DeletePolicy(ctx context.Context, policyID string, record *audit.Record) error {
	start := time.Now()
	logger.Info("Deleting policy", zap.String("policyID", policyID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:POLICY {id: $id})
        WITH p, p.id as deletedID
        DETACH DELETE p
        RETURN deletedID
        `
		result, err := transaction.Run(query, map[string]interface{}{"id": policyID})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if !result.Next() {
			return nil, apperrors.ErrPolicyNotFound
		}

		return nil, appendRecordTx(transaction, record)
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to delete policy",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Policy deleted successfully",
		zap.String("policyID", policyID),
		zap.Duration("duration", duration))
	return nil
}

func (dao *PolicyDAO) GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:POLICY {id: $id})
    RETURN p
    `
	result, err := session.Run(query, map[string]interface{}{"id": policyID})
	if err != nil {
		logger.Error("Failed to execute get policy query",
			zap.Error(err),
			zap.String("policyID", policyID),
			zap.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to execute get policy query: %w", err)
	}

	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map policy node to struct: %w", err)
		}
		return policy, nil
	}

	logger.Warn("Policy not found", zap.String("policyID", policyID))
	return nil, apperrors.ErrPolicyNotFound
}

func (dao *PolicyDAO) ListPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.PermissionPolicy, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	var queryBuilder strings.Builder
	queryBuilder.WriteString("MATCH (p:POLICY) WHERE 1=1")

	params := make(map[string]interface{})

	if criteria.Name != "" {
		queryBuilder.WriteString(" AND toLower(p.name) CONTAINS toLower($name)")
		params["name"] = criteria.Name
	}
	if criteria.ScopeKind != "" {
		queryBuilder.WriteString(" AND p.scopeKind = $scopeKind")
		params["scopeKind"] = string(criteria.ScopeKind)
	}
	if criteria.ScopeTarget != "" {
		queryBuilder.WriteString(` AND (p.targetDepartment = $scopeTarget
            OR p.targetPosition = $scopeTarget
            OR p.targetEmployeeID = $scopeTarget)`)
		params["scopeTarget"] = criteria.ScopeTarget
	}
	if criteria.Active != nil {
		queryBuilder.WriteString(" AND p.active = $active")
		params["active"] = *criteria.Active
	}
	if criteria.MinPriority > 0 {
		queryBuilder.WriteString(" AND p.priority >= $minPriority")
		params["minPriority"] = criteria.MinPriority
	}
	if criteria.MaxPriority > 0 {
		queryBuilder.WriteString(" AND p.priority <= $maxPriority")
		params["maxPriority"] = criteria.MaxPriority
	}

	queryBuilder.WriteString(" RETURN p ORDER BY p.priority ASC, p.createdAt ASC, p.id ASC")

	if criteria.Offset > 0 {
		queryBuilder.WriteString(" SKIP $offset")
		params["offset"] = criteria.Offset
	}
	if criteria.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $limit")
		params["limit"] = criteria.Limit
	}

	result, err := session.Run(queryBuilder.String(), params)
	if err != nil {
		logger.Error("Failed to execute list policies query",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to execute list policies query: %w", err)
	}

	var policies []*model.PermissionPolicy
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map policy node to struct: %w", err)
		}
		policies = append(policies, policy)
	}

	logger.Debug("Policies listed",
		zap.Int("count", len(policies)),
		zap.Duration("duration", time.Since(start)))
	return policies, nil
}

// PoliciesForEmployee returns scope candidates for one employee. Active and
// window filtering stay in the resolver so every backend answers identically.
func (dao *PolicyDAO) PoliciesForEmployee(ctx context.Context, employee model.EmployeeRef) ([]*model.PermissionPolicy, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (p:POLICY)
    WHERE p.scopeKind = 'GLOBAL'
       OR (p.scopeKind = 'DEPARTMENT' AND p.targetDepartment = $department)
       OR (p.scopeKind = 'POSITION' AND p.targetPosition = $position)
       OR (p.scopeKind = 'INDIVIDUAL' AND p.targetEmployeeID = $employeeId)
    RETURN p
    `
	result, err := session.Run(query, map[string]interface{}{
		"department": employee.Department,
		"position":   employee.Position,
		"employeeId": employee.ID,
	})
	if err != nil {
		logger.Error("Failed to execute policy candidate query",
			zap.Error(err),
			zap.String("employeeID", employee.ID),
			zap.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to execute policy candidate query: %w", err)
	}

	var policies []*model.PermissionPolicy
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		policy, err := mapNodeToPolicy(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map policy node to struct: %w", err)
		}
		policies = append(policies, policy)
	}

	logger.Debug("Policy candidates resolved",
		zap.String("employeeID", employee.ID),
		zap.Int("count", len(policies)),
		zap.Duration("duration", time.Since(start)))
	return policies, nil
}

// policyProps flattens a policy into node properties. Collections are stored
// as JSON strings; dates as RFC3339.
func policyProps(policy *model.PermissionPolicy) map[string]interface{} {
	allowedDevicesJSON, _ := json.Marshal(policy.AllowedDeviceTypes)
	maxDevicesJSON, _ := json.Marshal(policy.MaxDevicesPerType)
	allowedSoftwareJSON, _ := json.Marshal(policy.AllowedSoftware)
	restrictedSoftwareJSON, _ := json.Marshal(policy.RestrictedSoftware)
	maxLicensesJSON, _ := json.Marshal(policy.MaxLicensesPerSoftware)

	return map[string]interface{}{
		"name":                   policy.Name,
		"description":            policy.Description,
		"scopeKind":              string(policy.ScopeKind),
		"targetDepartment":       policy.TargetDepartment,
		"targetPosition":         policy.TargetPosition,
		"targetEmployeeID":       policy.TargetEmployeeID,
		"priority":               policy.Priority,
		"allowedDeviceTypes":     string(allowedDevicesJSON),
		"maxDevicesPerType":      string(maxDevicesJSON),
		"allowedSoftware":        string(allowedSoftwareJSON),
		"restrictedSoftware":     string(restrictedSoftwareJSON),
		"maxLicensesPerSoftware": string(maxLicensesJSON),
		"autoApprove":            policy.AutoApprove,
		"requireManagerApproval": policy.RequireManagerApproval,
		"active":                 policy.Active,
		"effectiveFrom":          policy.EffectiveFrom.Format(time.RFC3339),
		"effectiveUntil":         formatNullableTime(policy.EffectiveUntil),
		"createdAt":              policy.CreatedAt.Format(time.RFC3339),
		"updatedAt":              policy.UpdatedAt.Format(time.RFC3339),
		"createdBy":              policy.CreatedBy,
		"updatedBy":              policy.UpdatedBy,
	}
}

// mapNodeToPolicy maps a Neo4j node back onto the policy struct.
func mapNodeToPolicy(node neo4j.Node) (*model.PermissionPolicy, error) {
	props := node.Props
	policy := &model.PermissionPolicy{}

	if id, ok := props["id"].(string); ok {
		policy.ID = id
	} else {
		return nil, fmt.Errorf("failed to assert type for policy ID: %v", props["id"])
	}

	if name, ok := props["name"].(string); ok {
		policy.Name = name
	} else {
		return nil, fmt.Errorf("failed to assert type for policy name: %v", props["name"])
	}

	if description, ok := props["description"].(string); ok {
		policy.Description = description
	}

	if scopeKind, ok := props["scopeKind"].(string); ok {
		policy.ScopeKind = model.ScopeKind(scopeKind)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy scopeKind: %v", props["scopeKind"])
	}

	if target, ok := props["targetDepartment"].(string); ok {
		policy.TargetDepartment = target
	}
	if target, ok := props["targetPosition"].(string); ok {
		policy.TargetPosition = target
	}
	if target, ok := props["targetEmployeeID"].(string); ok {
		policy.TargetEmployeeID = target
	}

	if priority, ok := props["priority"].(int64); ok {
		policy.Priority = int(priority)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy priority: %v", props["priority"])
	}

	if err := unmarshalProp(props, "allowedDeviceTypes", &policy.AllowedDeviceTypes); err != nil {
		return nil, err
	}
	if err := unmarshalProp(props, "maxDevicesPerType", &policy.MaxDevicesPerType); err != nil {
		return nil, err
	}
	if err := unmarshalProp(props, "allowedSoftware", &policy.AllowedSoftware); err != nil {
		return nil, err
	}
	if err := unmarshalProp(props, "restrictedSoftware", &policy.RestrictedSoftware); err != nil {
		return nil, err
	}
	if err := unmarshalProp(props, "maxLicensesPerSoftware", &policy.MaxLicensesPerSoftware); err != nil {
		return nil, err
	}

	if autoApprove, ok := props["autoApprove"].(bool); ok {
		policy.AutoApprove = autoApprove
	}
	if requireApproval, ok := props["requireManagerApproval"].(bool); ok {
		policy.RequireManagerApproval = requireApproval
	}

	if active, ok := props["active"].(bool); ok {
		policy.Active = active
	} else {
		return nil, fmt.Errorf("failed to assert type for policy active: %v", props["active"])
	}

	if effectiveFrom, ok := props["effectiveFrom"].(string); ok {
		policy.EffectiveFrom = parseTime(effectiveFrom)
	} else {
		return nil, fmt.Errorf("failed to assert type for policy effectiveFrom: %v", props["effectiveFrom"])
	}
	policy.EffectiveUntil = parseNullableTime(props["effectiveUntil"])

	if createdAt, ok := props["createdAt"].(string); ok {
		policy.CreatedAt = parseTime(createdAt)
	}
	if updatedAt, ok := props["updatedAt"].(string); ok {
		policy.UpdatedAt = parseTime(updatedAt)
	}
	if createdBy, ok := props["createdBy"].(string); ok {
		policy.CreatedBy = createdBy
	}
	if updatedBy, ok := props["updatedBy"].(string); ok {
		policy.UpdatedBy = updatedBy
	}

	return policy, nil
}

// unmarshalProp decodes a JSON-string node property into dest. Absent or
// empty properties leave dest at its zero value.
func unmarshalProp(props map[string]interface{}, key string, dest interface{}) error {
	raw, ok := props[key].(string)
	if !ok || raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("failed to unmarshal policy %s: %w", key, err)
	}
	return nil
}

// Helper function to parse time
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// Helper function to parse nullable time
func parseNullableTime(v interface{}) *time.Time {
	if s, ok := v.(string); ok && s != "" {
		t, _ := time.Parse(time.RFC3339, s)
		return &t
	}
	return nil
}

// Helper function to format nullable time
func formatNullableTime(t *time.Time) interface{} {
	if t != nil {
		return t.Format(time.RFC3339)
	}
	return nil
}
