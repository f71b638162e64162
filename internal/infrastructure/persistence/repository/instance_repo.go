package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `
	id, workflow_id, workflow_version_id, status, approvable_type, approvable_id,
	display_name, entity_snapshot, submitted_by, current_step_id, cycle, lock_version,
	submitted_at, completed_at, created_at, updated_at`

// Create creates a new approval instance
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		INSERT INTO approval_instances (
			workflow_id, workflow_version_id, status, approvable_type, approvable_id,
			display_name, entity_snapshot, submitted_by, current_step_id, cycle, lock_version,
			submitted_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	snapshot, err := encodeSnapshot(instance.EntitySnapshot)
	if err != nil {
		return err
	}

	ts := now()
	instance.CreatedAt, instance.UpdatedAt = ts, ts

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		instance.WorkflowID,
		instance.WorkflowVersionID,
		instance.Status,
		instance.Approvable.Kind,
		instance.Approvable.ID,
		instance.DisplayName,
		snapshot,
		instance.SubmittedBy,
		nullInt64(instance.CurrentStepID),
		instance.Cycle,
		instance.LockVersion,
		nullTime(instance.SubmittedAt),
		nullTime(instance.CompletedAt),
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance",
			zap.String("approvable", instance.Approvable.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	instance.ID = id
	return nil
}

// GetByID retrieves an approval instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ?`

	instance, err := scanInstance(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instance, nil
}

// Update writes every mutable column guarded by lock_version
func (r *InstanceRepository) Update(ctx context.Context, instance *entity.ApprovalInstance) error {
	query := `
		UPDATE approval_instances SET
			status = ?, display_name = ?, entity_snapshot = ?, submitted_by = ?,
			current_step_id = ?, cycle = ?, submitted_at = ?, completed_at = ?,
			updated_at = ?, lock_version = lock_version + 1
		WHERE id = ? AND lock_version = ?
	`

	snapshot, err := encodeSnapshot(instance.EntitySnapshot)
	if err != nil {
		return err
	}

	updatedAt := now()
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		instance.Status,
		instance.DisplayName,
		snapshot,
		instance.SubmittedBy,
		nullInt64(instance.CurrentStepID),
		instance.Cycle,
		nullTime(instance.SubmittedAt),
		nullTime(instance.CompletedAt),
		updatedAt,
		instance.ID,
		instance.LockVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.Int64("id", instance.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		r.logger.Warn("Stale instance write rejected",
			zap.Int64("id", instance.ID),
			zap.Int("lock_version", instance.LockVersion))
		return fmt.Errorf("instance %d: %w", instance.ID, entity.ErrConcurrentModification)
	}

	instance.LockVersion++
	instance.UpdatedAt = updatedAt
	return nil
}

// ListByStatus retrieves instances in a status, oldest first
func (r *InstanceRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE status = ?
		ORDER BY id
		LIMIT ? OFFSET ?`

	return r.list(ctx, query, status, limit, offset)
}

// ListByApprovable retrieves every instance for one business entity, newest first
func (r *InstanceRepository) ListByApprovable(ctx context.Context, ref entity.ApprovableRef) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE approvable_type = ? AND approvable_id = ?
		ORDER BY id DESC`

	return r.list(ctx, query, ref.Kind, ref.ID)
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalInstance, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.ApprovalInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

func scanInstance(s scanner) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	var snapshot string
	var currentStep sql.NullInt64
	var submittedAt, completedAt sql.NullTime

	if err := s.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.WorkflowVersionID,
		&instance.Status,
		&instance.Approvable.Kind,
		&instance.Approvable.ID,
		&instance.DisplayName,
		&snapshot,
		&instance.SubmittedBy,
		&currentStep,
		&instance.Cycle,
		&instance.LockVersion,
		&submittedAt,
		&completedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	); err != nil {
		return nil, err
	}

	fields, err := decodeMap(snapshot)
	if err != nil {
		return nil, err
	}
	instance.EntitySnapshot = fields
	instance.CurrentStepID = int64Ptr(currentStep)
	instance.SubmittedAt = timePtr(submittedAt)
	instance.CompletedAt = timePtr(completedAt)
	return &instance, nil
}

func encodeSnapshot(fields map[string]interface{}) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	return encodeJSON(fields)
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
