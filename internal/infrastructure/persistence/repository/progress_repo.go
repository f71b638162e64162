package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
)

// StepProgressRepository implements port.StepProgressRepository
type StepProgressRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepProgressRepository creates a new step progress repository
func NewStepProgressRepository(db *sql.DB, logger *zap.Logger) port.StepProgressRepository {
	return &StepProgressRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a progress row
func (r *StepProgressRepository) Create(ctx context.Context, progress *entity.StepProgress) error {
	if progress.EnteredAt.IsZero() {
		progress.EnteredAt = now()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO step_progress (instance_id, step_id, cycle, outcome, entered_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		progress.InstanceID,
		progress.StepID,
		progress.Cycle,
		string(progress.Outcome),
		progress.EnteredAt,
		nullTime(progress.ResolvedAt),
	)
	if err != nil {
		r.logger.Error("Failed to record step progress",
			zap.Int64("instance_id", progress.InstanceID),
			zap.Int64("step_id", progress.StepID),
			zap.String("outcome", string(progress.Outcome)),
			zap.Error(err))
		return fmt.Errorf("failed to record step progress: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	progress.ID = id
	return nil
}

// Resolve closes the open row of (instance, step, cycle)
func (r *StepProgressRepository) Resolve(ctx context.Context, instanceID, stepID int64, cycle int, outcome entity.ProgressOutcome, t time.Time) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE step_progress SET outcome = ?, resolved_at = ?
		WHERE instance_id = ? AND step_id = ? AND cycle = ? AND resolved_at IS NULL
	`, string(outcome), t, instanceID, stepID, cycle)
	if err != nil {
		r.logger.Error("Failed to resolve step progress",
			zap.Int64("instance_id", instanceID),
			zap.Int64("step_id", stepID),
			zap.Error(err))
		return fmt.Errorf("failed to resolve step progress: %w", err)
	}
	return requireRow(result, "open step progress for instance", instanceID)
}

// ListByInstance returns progress rows in the order they were written
func (r *StepProgressRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.StepProgress, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, `
		SELECT id, instance_id, step_id, cycle, outcome, entered_at, resolved_at
		FROM step_progress
		WHERE instance_id = ?
		ORDER BY id
	`, instanceID)
	if err != nil {
		r.logger.Error("Failed to list step progress", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list step progress: %w", err)
	}
	defer rows.Close()

	var out []*entity.StepProgress
	for rows.Next() {
		var p entity.StepProgress
		var outcome string
		var resolvedAt sql.NullTime

		if err := rows.Scan(&p.ID, &p.InstanceID, &p.StepID, &p.Cycle, &outcome, &p.EnteredAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step progress: %w", err)
		}
		p.Outcome = entity.ProgressOutcome(outcome)
		p.ResolvedAt = timePtr(resolvedAt)
		out = append(out, &p)
	}

	return out, rows.Err()
}

// Verify interface compliance
var _ port.StepProgressRepository = (*StepProgressRepository)(nil)
