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

// AuditDAO is the Neo4j ledger. Records are append-only nodes; this DAO has
// no update or delete and never will.
type AuditDAO struct {
	Driver neo4j.Driver
}

func NewAuditDAO(driver neo4j.Driver) *AuditDAO {
	dao := &AuditDAO{Driver: driver}
	ctx := context.Background()
	if err := dao.EnsureUniqueConstraint(ctx); err != nil {
		logger.Fatal("Failed to ensure unique constraint for AuditRecord", zap.Error(err))
	}
	return dao
}

func (dao *AuditDAO) EnsureUniqueConstraint(ctx context.Context) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        CREATE CONSTRAINT unique_audit_record_id IF NOT EXISTS
        FOR (a:AUDIT_RECORD) REQUIRE a.id IS UNIQUE
        `
		_, err := transaction.Run(query, nil)
		return nil, err
	})
	if err != nil {
		logger.Error("Failed to ensure unique constraint on AuditRecord ID", zap.Error(err))
		return err
	}
	return nil
}

func (dao *AuditDAO) Append(ctx context.Context, record *audit.Record) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		return nil, appendRecordTx(transaction, record)
	})
	if err != nil {
		logger.Error("Failed to append audit record",
			zap.Error(err),
			zap.String("recordID", record.ID),
			zap.String("action", string(record.Action)))
		return err
	}
	return nil
}

func (dao *AuditDAO) Query(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	clause, params := recordFilterCypher(filter)

	var queryBuilder strings.Builder
	queryBuilder.WriteString("MATCH (a:AUDIT_RECORD) WHERE 1=1")
	queryBuilder.WriteString(clause)
	queryBuilder.WriteString(" RETURN a ORDER BY a.timestamp DESC")

	if filter.Offset > 0 {
		queryBuilder.WriteString(" SKIP $offset")
		params["offset"] = filter.Offset
	}
	if filter.Limit > 0 {
		queryBuilder.WriteString(" LIMIT $limit")
		params["limit"] = filter.Limit
	}

	result, err := session.Run(queryBuilder.String(), params)
	if err != nil {
		logger.Error("Failed to execute audit query",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to execute audit query: %w", err)
	}

	var records []*audit.Record
	for result.Next() {
		node := result.Record().Values[0].(neo4j.Node)
		record, err := mapNodeToRecord(node)
		if err != nil {
			return nil, fmt.Errorf("failed to map audit node to struct: %w", err)
		}
		records = append(records, record)
	}

	logger.Debug("Audit records queried",
		zap.Int("count", len(records)),
		zap.Duration("duration", time.Since(start)))
	return records, nil
}

func (dao *AuditDAO) Count(ctx context.Context, filter audit.Filter) (int, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	clause, params := recordFilterCypher(filter)
	result, err := session.Run("MATCH (a:AUDIT_RECORD) WHERE 1=1"+clause+" RETURN count(a)", params)
	if err != nil {
		logger.Error("Failed to count audit records", zap.Error(err))
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	if result.Next() {
		if n, ok := result.Record().Values[0].(int64); ok {
			return int(n), nil
		}
	}
	return 0, result.Err()
}

func recordFilterCypher(filter audit.Filter) (string, map[string]interface{}) {
	var clause strings.Builder
	params := make(map[string]interface{})

	if filter.EmployeeID != "" {
		clause.WriteString(" AND a.employeeId = $employeeId")
		params["employeeId"] = filter.EmployeeID
	}
	if filter.ResourceKind != "" {
		clause.WriteString(" AND a.resourceKind = $resourceKind")
		params["resourceKind"] = string(filter.ResourceKind)
	}
	if filter.ResourceID != "" {
		clause.WriteString(" AND a.resourceId = $resourceId")
		params["resourceId"] = filter.ResourceID
	}
	if filter.Action != "" {
		clause.WriteString(" AND a.action = $action")
		params["action"] = string(filter.Action)
	}
	if !filter.From.IsZero() {
		clause.WriteString(" AND a.timestamp >= $fromDate")
		params["fromDate"] = filter.From.Format(time.RFC3339)
	}
	if !filter.To.IsZero() {
		clause.WriteString(" AND a.timestamp <= $toDate")
		params["toDate"] = filter.To.Format(time.RFC3339)
	}
	return clause.String(), params
}

// appendRecordTx inserts one ledger record inside an already-open write
// transaction. Mutation DAOs call this so the record commits or rolls back
// together with the mutation.
func appendRecordTx(transaction neo4j.Transaction, record *audit.Record) error {
	if record == nil {
		return nil
	}
	query := `
    CREATE (a:AUDIT_RECORD {id: $id})
    SET a += $props
    `
	_, err := transaction.Run(query, map[string]interface{}{
		"id":    record.ID,
		"props": recordProps(record),
	})
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	return nil
}

func recordProps(record *audit.Record) map[string]interface{} {
	return map[string]interface{}{
		"action":       string(record.Action),
		"employeeId":   record.EmployeeID,
		"resourceKind": string(record.ResourceKind),
		"resourceId":   record.ResourceID,
		"result":       string(record.Result),
		"details":      string(record.Details),
		"timestamp":    record.Timestamp.Format(time.RFC3339),
		"actor":        record.Actor,
		"remoteAddr":   record.RemoteAddr,
		"userAgent":    record.UserAgent,
	}
}

func mapNodeToRecord(node neo4j.Node) (*audit.Record, error) {
	props := node.Props
	record := &audit.Record{}

	if id, ok := props["id"].(string); ok {
		record.ID = id
	} else {
		return nil, fmt.Errorf("failed to assert type for record ID: %v", props["id"])
	}

	if action, ok := props["action"].(string); ok {
		record.Action = audit.ActionKind(action)
	} else {
		return nil, fmt.Errorf("failed to assert type for record action: %v", props["action"])
	}

	if employeeID, ok := props["employeeId"].(string); ok {
		record.EmployeeID = employeeID
	}
	if resourceKind, ok := props["resourceKind"].(string); ok {
		record.ResourceKind = model.ResourceKind(resourceKind)
	}
	if resourceID, ok := props["resourceId"].(string); ok {
		record.ResourceID = resourceID
	}
	if result, ok := props["result"].(string); ok {
		record.Result = audit.Result(result)
	}
	if details, ok := props["details"].(string); ok && details != "" {
		record.Details = json.RawMessage(details)
	}
	if timestamp, ok := props["timestamp"].(string); ok {
		record.Timestamp = parseTime(timestamp)
	}
	if actor, ok := props["actor"].(string); ok {
		record.Actor = actor
	}
	if remoteAddr, ok := props["remoteAddr"].(string); ok {
		record.RemoteAddr = remoteAddr
	}
	if userAgent, ok := props["userAgent"].(string); ok {
		record.UserAgent = userAgent
	}

	return record, nil
}
