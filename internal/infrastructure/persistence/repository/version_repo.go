package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
)

// VersionRepository implements port.VersionRepository.
// Steps are stored in workflow_steps and always loaded with their version.
type VersionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVersionRepository creates a new workflow version repository
func NewVersionRepository(db *sql.DB, logger *zap.Logger) port.VersionRepository {
	return &VersionRepository{
		db:     db,
		logger: logger,
	}
}

const versionColumns = `id, workflow_id, version_number, configuration, activated_at, created_at`

// Create inserts the version row and its steps. Callers wrap it in a
// transaction so a failing step leaves nothing behind.
func (r *VersionRepository) Create(ctx context.Context, version *entity.WorkflowVersion) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	configuration := version.Configuration
	if configuration == nil {
		configuration = map[string]interface{}{}
	}
	configJSON, err := encodeJSON(configuration)
	if err != nil {
		return err
	}

	version.CreatedAt = now()
	result, err := exec.ExecContext(ctx, `
		INSERT INTO workflow_versions (workflow_id, version_number, configuration, activated_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		version.WorkflowID,
		version.VersionNumber,
		configJSON,
		nullTime(version.ActivatedAt),
		version.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow version",
			zap.Int64("workflow_id", version.WorkflowID),
			zap.Int("version_number", version.VersionNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	version.ID = id

	for i, step := range version.Steps {
		step.VersionID = id
		step.Position = i
		if err := r.createStep(ctx, exec, step); err != nil {
			return err
		}
	}

	return nil
}

func (r *VersionRepository) createStep(ctx context.Context, exec sqlite.Executor, step *entity.Step) error {
	identifiers, err := encodeJSON(step.ApproverIdentifiers)
	if err != nil {
		return err
	}
	rules, err := encodeNullableJSON(step.ConditionalRules, step.ConditionalRules == nil)
	if err != nil {
		return err
	}

	result, err := exec.ExecContext(ctx, `
		INSERT INTO workflow_steps (
			version_id, position, name, description, step_order, step_type, purpose,
			required_approvals_count, approver_type, approver_identifiers, conditional_rules
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		step.VersionID,
		step.Position,
		step.Name,
		step.Description,
		step.StepOrder,
		string(step.StepType),
		string(step.Purpose),
		step.RequiredApprovalsCount,
		string(step.ApproverType),
		identifiers,
		rules,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow step",
			zap.Int64("version_id", step.VersionID),
			zap.String("name", step.Name),
			zap.Error(err))
		return fmt.Errorf("failed to create step %q: %w", step.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	step.ID = id
	return nil
}

// GetByID retrieves a version with its steps
func (r *VersionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowVersion, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	query := `SELECT ` + versionColumns + ` FROM workflow_versions WHERE id = ?`

	version, err := scanVersion(exec.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow version", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow version: %w", err)
	}

	if version.Steps, err = r.loadSteps(ctx, exec, version.ID); err != nil {
		return nil, err
	}
	return version, nil
}

// ListByWorkflow returns every version of a workflow, newest first
func (r *VersionRepository) ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.WorkflowVersion, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	query := `SELECT ` + versionColumns + ` FROM workflow_versions WHERE workflow_id = ? ORDER BY version_number DESC`

	rows, err := exec.QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to list workflow versions", zap.Int64("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow versions: %w", err)
	}

	var versions []*entity.WorkflowVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan workflow version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the connection before loading steps
	rows.Close()

	for _, version := range versions {
		if version.Steps, err = r.loadSteps(ctx, exec, version.ID); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

// NextVersionNumber returns one past the highest version number of the workflow
func (r *VersionRepository) NextVersionNumber(ctx context.Context, workflowID int64) (int, error) {
	var next int
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM workflow_versions WHERE workflow_id = ?`,
		workflowID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next version number: %w", err)
	}
	return next, nil
}

// MarkActivated records the first activation time of a version
func (r *VersionRepository) MarkActivated(ctx context.Context, id int64, t time.Time) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_versions SET activated_at = COALESCE(activated_at, ?) WHERE id = ?`,
		t, id,
	)
	if err != nil {
		r.logger.Error("Failed to mark version activated", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark version activated: %w", err)
	}
	return requireRow(result, "workflow version", id)
}

func (r *VersionRepository) loadSteps(ctx context.Context, exec sqlite.Executor, versionID int64) ([]*entity.Step, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT id, version_id, position, name, description, step_order, step_type, purpose,
			required_approvals_count, approver_type, approver_identifiers, conditional_rules
		FROM workflow_steps
		WHERE version_id = ?
		ORDER BY position
	`, versionID)
	if err != nil {
		r.logger.Error("Failed to load workflow steps", zap.Int64("version_id", versionID), zap.Error(err))
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.Step
	for rows.Next() {
		var step entity.Step
		var stepType, purpose, approverType, identifiers string
		var rules sql.NullString

		if err := rows.Scan(
			&step.ID,
			&step.VersionID,
			&step.Position,
			&step.Name,
			&step.Description,
			&step.StepOrder,
			&stepType,
			&purpose,
			&step.RequiredApprovalsCount,
			&approverType,
			&identifiers,
			&rules,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		step.StepType = entity.StepType(stepType)
		step.Purpose = entity.StepPurpose(purpose)
		step.ApproverType = entity.ApproverType(approverType)

		if err := json.Unmarshal([]byte(identifiers), &step.ApproverIdentifiers); err != nil {
			return nil, fmt.Errorf("failed to decode approver identifiers of step %d: %w", step.ID, err)
		}
		if rules.Valid && rules.String != "" && rules.String != "null" {
			step.ConditionalRules = &entity.ConditionalRules{}
			if err := json.Unmarshal([]byte(rules.String), step.ConditionalRules); err != nil {
				return nil, fmt.Errorf("failed to decode conditional rules of step %d: %w", step.ID, err)
			}
		}

		steps = append(steps, &step)
	}

	return steps, rows.Err()
}

func scanVersion(s scanner) (*entity.WorkflowVersion, error) {
	var version entity.WorkflowVersion
	var configuration string
	var activatedAt sql.NullTime

	if err := s.Scan(
		&version.ID,
		&version.WorkflowID,
		&version.VersionNumber,
		&configuration,
		&activatedAt,
		&version.CreatedAt,
	); err != nil {
		return nil, err
	}

	cfg, err := decodeMap(configuration)
	if err != nil {
		return nil, err
	}
	version.Configuration = cfg
	version.ActivatedAt = timePtr(activatedAt)
	return &version, nil
}

// Verify interface compliance
var _ port.VersionRepository = (*VersionRepository)(nil)
