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

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

const workflowColumns = `id, name, description, model_type, is_active, current_version_id, created_at, updated_at`

// Create inserts a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	query := `
		INSERT INTO workflows (name, description, model_type, is_active, current_version_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	ts := now()
	wf.CreatedAt, wf.UpdatedAt = ts, ts

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		wf.Name,
		wf.Description,
		wf.ModelType,
		wf.IsActive,
		nullInt64(wf.CurrentVersionID),
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.String("name", wf.Name), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	wf.ID = id
	return nil
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = ?`

	wf, err := scanWorkflow(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// List returns all workflows ordered by ID
func (r *WorkflowRepository) List(ctx context.Context) ([]*entity.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY id`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*entity.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	return workflows, rows.Err()
}

// SetCurrentVersion points the workflow at versionID (nil clears it)
func (r *WorkflowRepository) SetCurrentVersion(ctx context.Context, workflowID int64, versionID *int64) error {
	query := `UPDATE workflows SET current_version_id = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, nullInt64(versionID), now(), workflowID)
	if err != nil {
		r.logger.Error("Failed to set current version", zap.Int64("workflow_id", workflowID), zap.Error(err))
		return fmt.Errorf("failed to set current version: %w", err)
	}
	return requireRow(result, "workflow", workflowID)
}

// SetActive flips the workflow's is_active flag
func (r *WorkflowRepository) SetActive(ctx context.Context, workflowID int64, active bool) error {
	query := `UPDATE workflows SET is_active = ?, updated_at = ? WHERE id = ?`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, active, now(), workflowID)
	if err != nil {
		r.logger.Error("Failed to set workflow active flag", zap.Int64("workflow_id", workflowID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return requireRow(result, "workflow", workflowID)
}

func scanWorkflow(s scanner) (*entity.Workflow, error) {
	var wf entity.Workflow
	var currentVersion sql.NullInt64

	if err := s.Scan(
		&wf.ID,
		&wf.Name,
		&wf.Description,
		&wf.ModelType,
		&wf.IsActive,
		&currentVersion,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	); err != nil {
		return nil, err
	}

	wf.CurrentVersionID = int64Ptr(currentVersion)
	return &wf, nil
}

// requireRow maps "no rows affected" to entity.ErrNotFound
func requireRow(result sql.Result, kind string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, entity.ErrNotFound)
	}
	return nil
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
