package dao

import (
	"context"
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

// OverrideDAO is the Neo4j override store, under the same atomic
// mutation+record contract as PolicyDAO.
type OverrideDAO struct {
	Driver neo4j.Driver
}

func NewOverrideDAO(driver neo4j.Driver) *OverrideDAO {
	dao := &OverrideDAO{Driver: driver}
	ctx := context.Background()
	if err := dao.EnsureUniqueConstraint(ctx); err != nil {
		logger.Fatal("Failed to ensure unique constraint for Override", zap.Error(err))
	}
	return dao
}

func (dao *OverrideDAO) EnsureUniqueConstraint(ctx context.Context) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        CREATE CONSTRAINT unique_override_id IF NOT EXISTS
        FOR (o:OVERRIDE) REQUIRE o.id IS UNIQUE
        `
		_, err := transaction.Run(query, nil)
		return nil, err
	})
	if err != nil {
		logger.Error("Failed to ensure unique constraint on Override ID", zap.Error(err))
		return err
	}
	return nil
}

func (dao *OverrideDAO) CreateOverride(ctx context.Context, override *model.PermissionOverride, record *audit.Record) error {
	start := time.Now()
	logger.Info("Creating new override",
		zap.String("employeeID", override.EmployeeID),
		zap.String("resourceID", override.ResourceID))
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		checkQuery := `
        MATCH (o:OVERRIDE {id: $id})
        RETURN o.id
        `
		checkResult, err := transaction.Run(checkQuery, map[string]interface{}{"id": override.ID})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if checkResult.Next() {
			return nil, apperrors.ErrOverrideConflict
		}

		createQuery := `
        CREATE (o:OVERRIDE {id: $id})
        SET o += $props
        RETURN o.id as id
        `
		createResult, err := transaction.Run(createQuery, map[string]interface{}{
			"id":    override.ID,
			"props": overrideProps(override),
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
		logger.Error("Failed to create override",
			zap.Error(err),
			zap.String("employeeID", override.EmployeeID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Override created successfully",
		zap.String("overrideID", override.ID),
		zap.Duration("duration", duration))
	return nil
}

func (dao *OverrideDAO) UpdateOverride(ctx context.Context, override *model.PermissionOverride, record *audit.Record) error {
	start := time.Now()
	logger.Info("Updating override", zap.String("overrideID", override.ID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (o:OVERRIDE {id: $id})
        SET o += $props
        RETURN o.id as id
        `
		result, err := transaction.Run(query, map[string]interface{}{
			"id":    override.ID,
			"props": overrideProps(override),
		})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if !result.Next() {
			return nil, apperrors.ErrOverrideNotFound
		}

		return nil, appendRecordTx(transaction, record)
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to update override",
			zap.Error(err),
			zap.String("overrideID", override.ID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Override updated successfully",
		zap.String("overrideID", override.ID),
		zap.Duration("duration", duration))
	return nil
}

func (dao *OverrideDAO) DeleteOverride(ctx context.Context, overrideID string, record *audit.Record) error {
	start := time.Now()
	logger.Info("Deleting override", zap.String("overrideID", overrideID))

	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (o:OVERRIDE {id: $id})
        WITH o, o.id as deletedID
        DETACH DELETE o
        RETURN deletedID
        `
		result, err := transaction.Run(query, map[string]interface{}{"id": overrideID})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if !result.Next() {
			return nil, apperrors.ErrOverrideNotFound
		}

		return nil, appendRecordTx(transaction, record)
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to delete override",
			zap.Error(err),
			zap.String("overrideID", overrideID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Override deleted successfully",
		zap.String("overrideID", overrideID),
		zap.Duration("duration", duration))
	return nil
}

func (dao *OverrideDAO) GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (o:OVERRIDE {id: $id})
    RETURN o
    `
	result, err := session.Run(query, map[string]interface{}{"id": overrideID})
	if err != nil {
		logger.Error("Failed to execute get override query",
			zap.Error(err),
			zap.String("overrideID", overrideID))
		return nil, fmt.Errorf("failed to execute get override query: %w", err)
	}

	if result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		override, err := mapNodeToOverride(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map override node to struct: %w", err)
		}
		return override, nil
	}

	logger.Warn("Override not found", zap.String("overrideID", overrideID))
	return nil, apperrors.ErrOverrideNotFound
}

func (dao *OverrideDAO) ListOverrides(ctx context.Context, criteria model.OverrideSearchCriteria) ([]*model.PermissionOverride, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	var queryBuilder strings.Builder
	queryBuilder.WriteString("MATCH (o:OVERRIDE) WHERE 1=1")

	params := make(map[string]interface{})

	if criteria.EmployeeID != "" {
		queryBuilder.WriteString(" AND o.employeeId = $employeeId")
		params["employeeId"] = criteria.EmployeeID
	}
	if criteria.ResourceKind != "" {
		queryBuilder.WriteString(" AND o.resourceKind = $resourceKind")
		params["resourceKind"] = string(criteria.ResourceKind)
	}
	if criteria.ResourceID != "" {
		queryBuilder.WriteString(" AND o.resourceId = $resourceId")
		params["resourceId"] = criteria.ResourceID
	}
	if criteria.Active != nil {
		queryBuilder.WriteString(" AND o.active = $active")
		params["active"] = *criteria.Active
	}

	queryBuilder.WriteString(" RETURN o ORDER BY o.createdAt DESC, o.id DESC")

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
		logger.Error("Failed to execute list overrides query",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to execute list overrides query: %w", err)
	}

	var overrides []*model.PermissionOverride
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		override, err := mapNodeToOverride(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map override node to struct: %w", err)
		}
		overrides = append(overrides, override)
	}

	logger.Debug("Overrides listed",
		zap.Int("count", len(overrides)),
		zap.Duration("duration", time.Since(start)))
	return overrides, nil
}

func (dao *OverrideDAO) OverridesForEmployee(ctx context.Context, employeeID string) ([]*model.PermissionOverride, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := `
    MATCH (o:OVERRIDE {employeeId: $employeeId})
    RETURN o
    `
	result, err := session.Run(query, map[string]interface{}{"employeeId": employeeID})
	if err != nil {
		logger.Error("Failed to execute override candidate query",
			zap.Error(err),
			zap.String("employeeID", employeeID),
			zap.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to execute override candidate query: %w", err)
	}

	var overrides []*model.PermissionOverride
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		override, err := mapNodeToOverride(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map override node to struct: %w", err)
		}
		overrides = append(overrides, override)
	}

	logger.Debug("Override candidates resolved",
		zap.String("employeeID", employeeID),
		zap.Int("count", len(overrides)),
		zap.Duration("duration", time.Since(start)))
	return overrides, nil
}

func (dao *OverrideDAO) ListExpiredActive(ctx context.Context, asOf time.Time) ([]*model.PermissionOverride, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	// Day-granular comparison: only windows that ended strictly before
	// asOf's day count as expired.
	query := `
    MATCH (o:OVERRIDE)
    WHERE o.active = true AND o.effectiveUntil < $dayStart
    RETURN o
    ORDER BY o.id ASC
    `
	result, err := session.Run(query, map[string]interface{}{
		"dayStart": model.Day(asOf).Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to execute expired override query", zap.Error(err))
		return nil, fmt.Errorf("failed to execute expired override query: %w", err)
	}

	var overrides []*model.PermissionOverride
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		override, err := mapNodeToOverride(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map override node to struct: %w", err)
		}
		overrides = append(overrides, override)
	}
	return overrides, nil
}

func (dao *OverrideDAO) DeactivateOverride(ctx context.Context, overrideID string, record *audit.Record) error {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		// Matching on active = true makes replays no-ops without a second
		// audit record.
		query := `
        MATCH (o:OVERRIDE {id: $id})
        WITH o, o.active as wasActive
        SET o.active = CASE WHEN wasActive THEN false ELSE o.active END,
            o.updatedAt = CASE WHEN wasActive THEN $updatedAt ELSE o.updatedAt END
        RETURN wasActive
        `
		result, err := transaction.Run(query, map[string]interface{}{
			"id":        overrideID,
			"updatedAt": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, apperrors.ErrDatabaseOperation
		}
		if !result.Next() {
			return nil, apperrors.ErrOverrideNotFound
		}
		wasActive, _ := result.Record().Values[0].(bool)
		if !wasActive {
			return nil, nil
		}

		return nil, appendRecordTx(transaction, record)
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to deactivate override",
			zap.Error(err),
			zap.String("overrideID", overrideID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("Override deactivated",
		zap.String("overrideID", overrideID),
		zap.Duration("duration", duration))
	return nil
}

func overrideProps(override *model.PermissionOverride) map[string]interface{} {
	return map[string]interface{}{
		"employeeId":     override.EmployeeID,
		"overrideKind":   string(override.OverrideKind),
		"resourceKind":   string(override.ResourceKind),
		"resourceId":     override.ResourceID,
		"effectiveFrom":  override.EffectiveFrom.Format(time.RFC3339),
		"effectiveUntil": override.EffectiveUntil.Format(time.RFC3339),
		"reason":         override.Reason,
		"active":         override.Active,
		"createdAt":      override.CreatedAt.Format(time.RFC3339),
		"updatedAt":      override.UpdatedAt.Format(time.RFC3339),
		"createdBy":      override.CreatedBy,
		"updatedBy":      override.UpdatedBy,
	}
}

func mapNodeToOverride(node neo4j.Node) (*model.PermissionOverride, error) {
	props := node.Props
	override := &model.PermissionOverride{}

	if id, ok := props["id"].(string); ok {
		override.ID = id
	} else {
		return nil, fmt.Errorf("failed to assert type for override ID: %v", props["id"])
	}

	if employeeID, ok := props["employeeId"].(string); ok {
		override.EmployeeID = employeeID
	} else {
		return nil, fmt.Errorf("failed to assert type for override employeeId: %v", props["employeeId"])
	}

	if overrideKind, ok := props["overrideKind"].(string); ok {
		override.OverrideKind = model.OverrideKind(overrideKind)
	} else {
		return nil, fmt.Errorf("failed to assert type for override overrideKind: %v", props["overrideKind"])
	}

	if resourceKind, ok := props["resourceKind"].(string); ok {
		override.ResourceKind = model.ResourceKind(resourceKind)
	} else {
		return nil, fmt.Errorf("failed to assert type for override resourceKind: %v", props["resourceKind"])
	}

	if resourceID, ok := props["resourceId"].(string); ok {
		override.ResourceID = resourceID
	} else {
		return nil, fmt.Errorf("failed to assert type for override resourceId: %v", props["resourceId"])
	}

	if effectiveFrom, ok := props["effectiveFrom"].(string); ok {
		override.EffectiveFrom = parseTime(effectiveFrom)
	} else {
		return nil, fmt.Errorf("failed to assert type for override effectiveFrom: %v", props["effectiveFrom"])
	}

	if effectiveUntil, ok := props["effectiveUntil"].(string); ok {
		override.EffectiveUntil = parseTime(effectiveUntil)
	} else {
		return nil, fmt.Errorf("failed to assert type for override effectiveUntil: %v", props["effectiveUntil"])
	}

	if reason, ok := props["reason"].(string); ok {
		override.Reason = reason
	}

	if active, ok := props["active"].(bool); ok {
		override.Active = active
	} else {
		return nil, fmt.Errorf("failed to assert type for override active: %v", props["active"])
	}

	if createdAt, ok := props["createdAt"].(string); ok {
		override.CreatedAt = parseTime(createdAt)
	}
	if updatedAt, ok := props["updatedAt"].(string); ok {
		override.UpdatedAt = parseTime(updatedAt)
	}
	if createdBy, ok := props["createdBy"].(string); ok {
		override.CreatedBy = createdBy
	}
	if updatedBy, ok := props["updatedBy"].(string); ok {
		override.UpdatedBy = updatedBy
	}

	return override, nil
}
