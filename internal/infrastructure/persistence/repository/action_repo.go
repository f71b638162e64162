package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
)

// ActionRepository implements port.ActionRepository.
// The table rejects UPDATE and DELETE through triggers.
type ActionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActionRepository creates a new approval action repository
func NewActionRepository(db *sql.DB, logger *zap.Logger) port.ActionRepository {
	return &ActionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an action to the ledger
func (r *ActionRepository) Create(ctx context.Context, action *entity.ApprovalAction) error {
	query := `
		INSERT INTO approval_actions (
			instance_id, step_id, cycle, actor_id, action_type, comments, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	metadata, err := encodeNullableJSON(action.Metadata, len(action.Metadata) == 0)
	if err != nil {
		return err
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		action.InstanceID,
		action.StepID,
		action.Cycle,
		action.ActorID,
		string(action.ActionType),
		action.Comments,
		metadata,
		action.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record approval action",
			zap.Int64("instance_id", action.InstanceID),
			zap.Int64("step_id", action.StepID),
			zap.String("actor_id", action.ActorID),
			zap.Error(err))
		return fmt.Errorf("failed to record approval action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	action.ID = id
	return nil
}

// ListByInstance returns the instance's ledger in insertion order
func (r *ActionRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.ApprovalAction, error) {
	query := `
		SELECT id, instance_id, step_id, cycle, actor_id, action_type, comments, metadata, created_at
		FROM approval_actions
		WHERE instance_id = ?
		ORDER BY id
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list approval actions", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval actions: %w", err)
	}
	defer rows.Close()

	var actions []*entity.ApprovalAction
	for rows.Next() {
		var action entity.ApprovalAction
		var actionType string
		var metadata sql.NullString

		if err := rows.Scan(
			&action.ID,
			&action.InstanceID,
			&action.StepID,
			&action.Cycle,
			&action.ActorID,
			&actionType,
			&action.Comments,
			&metadata,
			&action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval action: %w", err)
		}

		action.ActionType = entity.ActionType(actionType)
		if metadata.Valid {
			if action.Metadata, err = decodeMap(metadata.String); err != nil {
				return nil, err
			}
		}
		actions = append(actions, &action)
	}

	return actions, rows.Err()
}

// CountDistinctApprovers counts distinct actors who approved the step in a cycle
func (r *ActionRepository) CountDistinctApprovers(ctx context.Context, instanceID, stepID int64, cycle int) (int, error) {
	var count int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT actor_id)
		FROM approval_actions
		WHERE instance_id = ? AND step_id = ? AND cycle = ? AND action_type = ?
	`, instanceID, stepID, cycle, string(entity.ActionApprove)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count approvers: %w", err)
	}
	return count, nil
}

// HasApproved reports whether actorID already approved the step in a cycle
func (r *ActionRepository) HasApproved(ctx context.Context, instanceID, stepID int64, cycle int, actorID string) (bool, error) {
	var exists bool
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM approval_actions
			WHERE instance_id = ? AND step_id = ? AND cycle = ? AND actor_id = ? AND action_type = ?
		)
	`, instanceID, stepID, cycle, actorID, string(entity.ActionApprove)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check prior approval: %w", err)
	}
	return exists, nil
}

// Verify interface compliance
var _ port.ActionRepository = (*ActionRepository)(nil)
