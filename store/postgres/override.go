package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

const overrideColumns = `id, employee_id, override_kind, resource_kind, resource_id,
    effective_from, effective_until, reason, active, created_at, updated_at, created_by, updated_by`

func (s *Store) CreateOverride(ctx context.Context, override *model.PermissionOverride, record *audit.Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
    INSERT INTO permission_overrides (`+overrideColumns+`)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    ON CONFLICT (id) DO NOTHING
  `, overrideArgs(override)...)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrOverrideConflict
	}

	if err := appendRecordTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) UpdateOverride(ctx context.Context, override *model.PermissionOverride, record *audit.Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
    UPDATE permission_overrides
    SET employee_id = $2, override_kind = $3, resource_kind = $4, resource_id = $5,
        effective_from = $6, effective_until = $7, reason = $8, active = $9,
        created_at = $10, updated_at = $11, created_by = $12, updated_by = $13
    WHERE id = $1
  `, overrideArgs(override)...)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrOverrideNotFound
	}

	if err := appendRecordTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteOverride(ctx context.Context, overrideID string, record *audit.Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM permission_overrides WHERE id = $1`, overrideID)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrOverrideNotFound
	}

	if err := appendRecordTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetOverride(ctx context.Context, overrideID string) (*model.PermissionOverride, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+overrideColumns+`
    FROM permission_overrides
    WHERE id = $1
  `, overrideID)

	override, err := scanOverride(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrOverrideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	return override, nil
}

func (s *Store) ListOverrides(ctx context.Context, criteria model.OverrideSearchCriteria) ([]*model.PermissionOverride, error) {
	query := `
    SELECT ` + overrideColumns + `
    FROM permission_overrides
    WHERE 1=1`
	args := []any{}

	if criteria.EmployeeID != "" {
		query += fmt.Sprintf(" AND employee_id = $%d", len(args)+1)
		args = append(args, criteria.EmployeeID)
	}
	if criteria.ResourceKind != "" {
		query += fmt.Sprintf(" AND resource_kind = $%d", len(args)+1)
		args = append(args, string(criteria.ResourceKind))
	}
	if criteria.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", len(args)+1)
		args = append(args, criteria.ResourceID)
	}
	if criteria.Active != nil {
		query += fmt.Sprintf(" AND active = $%d", len(args)+1)
		args = append(args, *criteria.Active)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if criteria.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, criteria.Limit)
	}
	if criteria.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, criteria.Offset)
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	return collectOverrides(rows)
}

func (s *Store) OverridesForEmployee(ctx context.Context, employeeID string) ([]*model.PermissionOverride, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+overrideColumns+`
    FROM permission_overrides
    WHERE employee_id = $1
  `, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides for employee: %w", err)
	}
	defer rows.Close()

	return collectOverrides(rows)
}

// ListExpiredActive finds overrides still flagged active whose window ended
// before asOf's day. Day-granular: a window ending today is not expired yet.
func (s *Store) ListExpiredActive(ctx context.Context, asOf time.Time) ([]*model.PermissionOverride, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+overrideColumns+`
    FROM permission_overrides
    WHERE active = TRUE AND effective_until < $1
  `, model.Day(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired overrides: %w", err)
	}
	defer rows.Close()

	return collectOverrides(rows)
}

func (s *Store) DeactivateOverride(ctx context.Context, overrideID string, record *audit.Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	defer tx.Rollback(ctx)

	// Matching on active = TRUE makes replays no-ops without a second
	// audit record.
	tag, err := tx.Exec(ctx, `
    UPDATE permission_overrides
    SET active = FALSE, updated_at = $2
    WHERE id = $1 AND active = TRUE
  `, overrideID, time.Now().UTC())
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permission_overrides WHERE id = $1)`, overrideID).Scan(&exists); err != nil {
			return apperrors.ErrDatabaseOperation
		}
		if !exists {
			return apperrors.ErrOverrideNotFound
		}
		return nil
	}

	if err := appendRecordTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func overrideArgs(override *model.PermissionOverride) []any {
	return []any{
		override.ID,
		override.EmployeeID,
		string(override.OverrideKind),
		string(override.ResourceKind),
		override.ResourceID,
		override.EffectiveFrom,
		override.EffectiveUntil,
		override.Reason,
		override.Active,
		override.CreatedAt,
		override.UpdatedAt,
		override.CreatedBy,
		override.UpdatedBy,
	}
}

func scanOverride(row pgx.Row) (*model.PermissionOverride, error) {
	var override model.PermissionOverride
	var overrideKind, resourceKind string

	err := row.Scan(
		&override.ID,
		&override.EmployeeID,
		&overrideKind,
		&resourceKind,
		&override.ResourceID,
		&override.EffectiveFrom,
		&override.EffectiveUntil,
		&override.Reason,
		&override.Active,
		&override.CreatedAt,
		&override.UpdatedAt,
		&override.CreatedBy,
		&override.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	override.OverrideKind = model.OverrideKind(overrideKind)
	override.ResourceKind = model.ResourceKind(resourceKind)
	return &override, nil
}

func collectOverrides(rows pgx.Rows) ([]*model.PermissionOverride, error) {
	var overrides []*model.PermissionOverride
	for rows.Next() {
		override, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override row: %w", err)
		}
		overrides = append(overrides, override)
	}
	return overrides, rows.Err()
}
