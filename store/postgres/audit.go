package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

const recordColumns = `id, action, employee_id, resource_kind, resource_id, result, details,
    occurred_at, actor, remote_addr, user_agent`

// Append inserts one ledger record outside any mutation transaction. The
// ledger has no update or delete, here or anywhere.
func (s *Store) Append(ctx context.Context, record *audit.Record) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_records (`+recordColumns+`)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  `, record.ID, string(record.Action), record.EmployeeID, string(record.ResourceKind), record.ResourceID,
		string(record.Result), jsonOrNil(record.Details), record.Timestamp, record.Actor, record.RemoteAddr, record.UserAgent)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	return nil
}

func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	clause, args := recordFilterClause(filter)
	query := `
    SELECT ` + recordColumns + `
    FROM audit_records
    WHERE 1=1` + clause + " ORDER BY occurred_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, filter.Offset)
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*audit.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) Count(ctx context.Context, filter audit.Filter) (int, error) {
	clause, args := recordFilterClause(filter)
	var count int
	err := s.DB.QueryRow(ctx, "SELECT count(*) FROM audit_records WHERE 1=1"+clause, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return count, nil
}

func recordFilterClause(filter audit.Filter) (string, []any) {
	clause := ""
	args := []any{}

	if filter.EmployeeID != "" {
		clause += fmt.Sprintf(" AND employee_id = $%d", len(args)+1)
		args = append(args, filter.EmployeeID)
	}
	if filter.ResourceKind != "" {
		clause += fmt.Sprintf(" AND resource_kind = $%d", len(args)+1)
		args = append(args, string(filter.ResourceKind))
	}
	if filter.ResourceID != "" {
		clause += fmt.Sprintf(" AND resource_id = $%d", len(args)+1)
		args = append(args, filter.ResourceID)
	}
	if filter.Action != "" {
		clause += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, string(filter.Action))
	}
	if !filter.From.IsZero() {
		clause += fmt.Sprintf(" AND occurred_at >= $%d", len(args)+1)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		clause += fmt.Sprintf(" AND occurred_at <= $%d", len(args)+1)
		args = append(args, filter.To)
	}
	return clause, args
}

func scanRecord(row pgx.Row) (*audit.Record, error) {
	var record audit.Record
	var action, resourceKind, result string
	var details []byte

	err := row.Scan(
		&record.ID,
		&action,
		&record.EmployeeID,
		&resourceKind,
		&record.ResourceID,
		&result,
		&details,
		&record.Timestamp,
		&record.Actor,
		&record.RemoteAddr,
		&record.UserAgent,
	)
	if err != nil {
		return nil, err
	}

	record.Action = audit.ActionKind(action)
	record.ResourceKind = model.ResourceKind(resourceKind)
	record.Result = audit.Result(result)
	if len(details) > 0 {
		record.Details = details
	}
	return &record, nil
}
