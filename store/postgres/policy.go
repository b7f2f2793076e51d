package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/piwdev/member-management-kiro-sub000/audit"
	apperrors "github.com/piwdev/member-management-kiro-sub000/errors"
	"github.com/piwdev/member-management-kiro-sub000/model"
)

const policyColumns = `id, name, description, scope_kind, target_department, target_position, target_employee_id,
    priority, allowed_device_types, max_devices_per_type, allowed_software, restricted_software,
    max_licenses_per_software, auto_approve, require_manager_approval, active,
    effective_from, effective_until, created_at, updated_at, created_by, updated_by`

func (s *Store) CreatePolicy(ctx context.Context, policy *model.PermissionPolicy, record *audit.Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
    INSERT INTO permission_policies (`+policyColumns+`)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
    ON CONFLICT (id) DO NOTHING
  `, policyArgs(policy)...)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPolicyConflict
	}

	if err := appendRecordTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) UpdatePolicy(ctx context.Context, policy *model.PermissionPolicy, record *audit.Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
    UPDATE permission_policies
    SET name = $2, description = $3, scope_kind = $4, target_department = $5, target_position = $6,
        target_employee_id = $7, priority = $8, allowed_device_types = $9, max_devices_per_type = $10,
        allowed_software = $11, restricted_software = $12, max_licenses_per_software = $13,
        auto_approve = $14, require_manager_approval = $15, active = $16,
        effective_from = $17, effective_until = $18, created_at = $19, updated_at = $20,
        created_by = $21, updated_by = $22
    WHERE id = $1
  `, policyArgs(policy)...)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPolicyNotFound
	}

	if err := appendRecordTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) DeletePolicy(ctx context.Context, policyID string, record *audit.Record) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM permission_policies WHERE id = $1`, policyID)
	if err != nil {
		return apperrors.ErrDatabaseOperation
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPolicyNotFound
	}

	if err := appendRecordTx(ctx, tx, record); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetPolicy(ctx context.Context, policyID string) (*model.PermissionPolicy, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT `+policyColumns+`
    FROM permission_policies
    WHERE id = $1
  `, policyID)

	policy, err := scanPolicy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return policy, nil
}

func (s *Store) ListPolicies(ctx context.Context, criteria model.PolicySearchCriteria) ([]*model.PermissionPolicy, error) {
	query := `
    SELECT ` + policyColumns + `
    FROM permission_policies
    WHERE 1=1`
	args := []any{}

	if criteria.Name != "" {
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args)+1)
		args = append(args, "%"+criteria.Name+"%")
	}
	if criteria.ScopeKind != "" {
		query += fmt.Sprintf(" AND scope_kind = $%d", len(args)+1)
		args = append(args, string(criteria.ScopeKind))
	}
	if criteria.ScopeTarget != "" {
		query += fmt.Sprintf(" AND (target_department = $%d OR target_position = $%d OR target_employee_id = $%d)",
			len(args)+1, len(args)+1, len(args)+1)
		args = append(args, criteria.ScopeTarget)
	}
	if criteria.Active != nil {
		query += fmt.Sprintf(" AND active = $%d", len(args)+1)
		args = append(args, *criteria.Active)
	}
	if criteria.MinPriority > 0 {
		query += fmt.Sprintf(" AND priority >= $%d", len(args)+1)
		args = append(args, criteria.MinPriority)
	}
	if criteria.MaxPriority > 0 {
		query += fmt.Sprintf(" AND priority <= $%d", len(args)+1)
		args = append(args, criteria.MaxPriority)
	}

	query += " ORDER BY priority ASC, created_at ASC, id ASC"

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
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []*model.PermissionPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy row: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

// PoliciesForEmployee returns scope candidates for one employee. Active and
// window filtering stay in the resolver so every backend answers identically.
func (s *Store) PoliciesForEmployee(ctx context.Context, employee model.EmployeeRef) ([]*model.PermissionPolicy, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+policyColumns+`
    FROM permission_policies
    WHERE scope_kind = 'GLOBAL'
       OR (scope_kind = 'DEPARTMENT' AND target_department = $1)
       OR (scope_kind = 'POSITION' AND target_position = $2)
       OR (scope_kind = 'INDIVIDUAL' AND target_employee_id = $3)
  `, employee.Department, employee.Position, employee.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query policy candidates: %w", err)
	}
	defer rows.Close()

	var policies []*model.PermissionPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy row: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

func policyArgs(policy *model.PermissionPolicy) []any {
	return []any{
		policy.ID,
		policy.Name,
		policy.Description,
		string(policy.ScopeKind),
		policy.TargetDepartment,
		policy.TargetPosition,
		policy.TargetEmployeeID,
		policy.Priority,
		marshalJSON(policy.AllowedDeviceTypes),
		marshalJSON(policy.MaxDevicesPerType),
		marshalJSON(policy.AllowedSoftware),
		marshalJSON(policy.RestrictedSoftware),
		marshalJSON(policy.MaxLicensesPerSoftware),
		policy.AutoApprove,
		policy.RequireManagerApproval,
		policy.Active,
		policy.EffectiveFrom,
		policy.EffectiveUntil,
		policy.CreatedAt,
		policy.UpdatedAt,
		policy.CreatedBy,
		policy.UpdatedBy,
	}
}

func scanPolicy(row pgx.Row) (*model.PermissionPolicy, error) {
	var policy model.PermissionPolicy
	var scopeKind string
	var allowedDevices, maxDevices, allowedSoftware, restrictedSoftware, maxLicenses []byte

	err := row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&scopeKind,
		&policy.TargetDepartment,
		&policy.TargetPosition,
		&policy.TargetEmployeeID,
		&policy.Priority,
		&allowedDevices,
		&maxDevices,
		&allowedSoftware,
		&restrictedSoftware,
		&maxLicenses,
		&policy.AutoApprove,
		&policy.RequireManagerApproval,
		&policy.Active,
		&policy.EffectiveFrom,
		&policy.EffectiveUntil,
		&policy.CreatedAt,
		&policy.UpdatedAt,
		&policy.CreatedBy,
		&policy.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	policy.ScopeKind = model.ScopeKind(scopeKind)
	if err := unmarshalColumn(allowedDevices, &policy.AllowedDeviceTypes); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(maxDevices, &policy.MaxDevicesPerType); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(allowedSoftware, &policy.AllowedSoftware); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(restrictedSoftware, &policy.RestrictedSoftware); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(maxLicenses, &policy.MaxLicensesPerSoftware); err != nil {
		return nil, err
	}
	return &policy, nil
}
