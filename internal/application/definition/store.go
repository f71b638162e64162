// Package definition manages workflows and their immutable versions.
package definition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/condition"
	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// Store creates, versions and activates workflow definitions
type Store interface {
	CreateWorkflow(ctx context.Context, name, modelType, description string) (*entity.Workflow, error)
	CreateVersion(ctx context.Context, workflowID int64, steps []StepInput, configuration map[string]interface{}) (*entity.WorkflowVersion, error)
	ActivateVersion(ctx context.Context, versionID int64) error
	DeactivateWorkflow(ctx context.Context, workflowID int64) error

	GetWorkflow(ctx context.Context, id int64) (*entity.Workflow, error)
	ListWorkflows(ctx context.Context) ([]*entity.Workflow, error)
	GetVersion(ctx context.Context, id int64) (*entity.WorkflowVersion, error)
	ListVersions(ctx context.Context, workflowID int64) ([]*entity.WorkflowVersion, error)
	CurrentVersion(ctx context.Context, workflowID int64) (*entity.WorkflowVersion, error)
}

// StepInput describes one step of a new version.
// Empty StepType and Purpose default to SEQUENTIAL and APPROVAL;
// a nil RequiredApprovalsCount defaults to 1.
type StepInput struct {
	Name                   string                   `json:"name"`
	Description            string                   `json:"description"`
	StepOrder              int                      `json:"step_order"`
	StepType               string                   `json:"step_type"`
	Purpose                string                   `json:"purpose"`
	RequiredApprovalsCount *int                     `json:"required_approvals_count"`
	ApproverType           string                   `json:"approver_type"`
	ApproverIdentifiers    []string                 `json:"approver_identifiers"`
	ConditionalRules       *entity.ConditionalRules `json:"conditional_rules"`
}

type storeImpl struct {
	workflows  port.WorkflowRepository
	versions   port.VersionRepository
	txManager  port.TransactionManager
	evaluator  *condition.Evaluator
	modelTypes map[string]struct{}
	logger     *zap.Logger
	clock      func() time.Time
}

// StoreOption configures the definition store
type StoreOption func(*storeImpl)

// WithModelTypes restricts workflows to the given target model types.
// Without it any non-empty model type is accepted.
func WithModelTypes(types ...string) StoreOption {
	return func(s *storeImpl) {
		for _, t := range types {
			if t = strings.TrimSpace(t); t != "" {
				s.modelTypes[t] = struct{}{}
			}
		}
	}
}

// WithStoreClock overrides the time source
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *storeImpl) {
		s.clock = clock
	}
}

// NewStore creates a definition store
func NewStore(
	workflows port.WorkflowRepository,
	versions port.VersionRepository,
	txManager port.TransactionManager,
	evaluator *condition.Evaluator,
	logger *zap.Logger,
	opts ...StoreOption,
) Store {
	s := &storeImpl{
		workflows:  workflows,
		versions:   versions,
		txManager:  txManager,
		evaluator:  evaluator,
		modelTypes: make(map[string]struct{}),
		logger:     logger,
		clock:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateWorkflow creates an active workflow with no current version
func (s *storeImpl) CreateWorkflow(ctx context.Context, name, modelType, description string) (*entity.Workflow, error) {
	name = strings.TrimSpace(name)
	modelType = strings.TrimSpace(modelType)

	if name == "" {
		return nil, entity.NewValidationError("name", "must not be empty")
	}
	if modelType == "" {
		return nil, entity.NewValidationError("model_type", "must not be empty")
	}
	if len(s.modelTypes) > 0 {
		if _, ok := s.modelTypes[modelType]; !ok {
			return nil, entity.NewValidationError("model_type", "unrecognized model type %q", modelType)
		}
	}

	wf := &entity.Workflow{
		Name:        name,
		Description: strings.TrimSpace(description),
		ModelType:   modelType,
		IsActive:    true,
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}

	s.logger.Info("Workflow created",
		zap.Int64("workflow_id", wf.ID),
		zap.String("name", wf.Name),
		zap.String("model_type", wf.ModelType))
	return wf, nil
}

// CreateVersion validates every step and stores the version atomically.
// The new version is not activated.
func (s *storeImpl) CreateVersion(ctx context.Context, workflowID int64, inputs []StepInput, configuration map[string]interface{}) (*entity.WorkflowVersion, error) {
	if len(inputs) == 0 {
		return nil, entity.NewValidationError("steps", "a version needs at least one step")
	}

	steps := make([]*entity.Step, 0, len(inputs))
	for i, in := range inputs {
		step, err := s.buildStep(i, in)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	version := &entity.WorkflowVersion{
		WorkflowID:    workflowID,
		Configuration: configuration,
		Steps:         steps,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		wf, err := s.workflows.GetByID(txCtx, workflowID)
		if err != nil {
			return err
		}
		if wf == nil {
			return fmt.Errorf("workflow %d: %w", workflowID, entity.ErrNotFound)
		}

		next, err := s.versions.NextVersionNumber(txCtx, workflowID)
		if err != nil {
			return err
		}
		version.VersionNumber = next

		return s.versions.Create(txCtx, version)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workflow version created",
		zap.Int64("workflow_id", workflowID),
		zap.Int64("version_id", version.ID),
		zap.Int("version_number", version.VersionNumber),
		zap.Int("steps", len(version.Steps)))
	return version, nil
}

func (s *storeImpl) buildStep(index int, in StepInput) (*entity.Step, error) {
	field := func(name string) string { return fmt.Sprintf("steps[%d].%s", index, name) }

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, entity.NewValidationError(field("name"), "must not be empty")
	}
	if in.StepOrder < 0 {
		return nil, entity.NewValidationError(field("step_order"), "must be >= 0, got %d", in.StepOrder)
	}

	stepType := entity.StepType(strings.ToUpper(strings.TrimSpace(in.StepType)))
	if stepType == "" {
		stepType = entity.StepTypeSequential
	}
	if !stepType.IsValid() {
		return nil, entity.NewValidationError(field("step_type"), "unknown step type %q", in.StepType)
	}

	purpose := entity.StepPurpose(strings.ToUpper(strings.TrimSpace(in.Purpose)))
	if purpose == "" {
		purpose = entity.StepPurposeApproval
	}
	if !purpose.IsValid() {
		return nil, entity.NewValidationError(field("purpose"), "unknown purpose %q", in.Purpose)
	}

	required := 1
	if in.RequiredApprovalsCount != nil {
		required = *in.RequiredApprovalsCount
	}
	if required < 1 {
		return nil, entity.NewValidationError(field("required_approvals_count"), "must be >= 1, got %d", required)
	}

	approverType := entity.ApproverType(strings.ToUpper(strings.TrimSpace(in.ApproverType)))
	if !approverType.IsValid() {
		return nil, entity.NewValidationError(field("approver_type"), "unknown approver type %q", in.ApproverType)
	}

	if len(in.ApproverIdentifiers) == 0 {
		return nil, entity.NewValidationError(field("approver_identifiers"), "must not be empty")
	}
	identifiers := make([]string, 0, len(in.ApproverIdentifiers))
	for _, id := range in.ApproverIdentifiers {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, entity.NewValidationError(field("approver_identifiers"), "must not contain blank entries")
		}
		identifiers = append(identifiers, id)
	}

	if err := s.evaluator.Validate(in.ConditionalRules); err != nil {
		return nil, entity.NewValidationError(field("conditional_rules"), "%v", err)
	}

	return &entity.Step{
		Name:                   name,
		Description:            strings.TrimSpace(in.Description),
		StepOrder:              in.StepOrder,
		StepType:               stepType,
		Purpose:                purpose,
		RequiredApprovalsCount: required,
		ApproverType:           approverType,
		ApproverIdentifiers:    identifiers,
		ConditionalRules:       in.ConditionalRules,
	}, nil
}

// ActivateVersion makes the version its workflow's current one.
// Instances already running keep the version they were started with.
func (s *storeImpl) ActivateVersion(ctx context.Context, versionID int64) error {
	var workflowID int64
	var changed bool

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		version, err := s.versions.GetByID(txCtx, versionID)
		if err != nil {
			return err
		}
		if version == nil {
			return fmt.Errorf("workflow version %d: %w", versionID, entity.ErrNotFound)
		}
		workflowID = version.WorkflowID

		wf, err := s.workflows.GetByID(txCtx, version.WorkflowID)
		if err != nil {
			return err
		}
		if wf == nil {
			return fmt.Errorf("workflow %d: %w", version.WorkflowID, entity.ErrNotFound)
		}
		if wf.CurrentVersionID != nil && *wf.CurrentVersionID == versionID {
			return nil
		}

		if err := s.workflows.SetCurrentVersion(txCtx, wf.ID, nil); err != nil {
			return err
		}
		if err := s.workflows.SetCurrentVersion(txCtx, wf.ID, &versionID); err != nil {
			return err
		}
		changed = true
		return s.versions.MarkActivated(txCtx, versionID, s.clock().UTC())
	})
	if err != nil {
		return err
	}

	if changed {
		s.logger.Info("Workflow version activated",
			zap.Int64("workflow_id", workflowID),
			zap.Int64("version_id", versionID))
	}
	return nil
}

// DeactivateWorkflow stops new instances from starting; the current
// version pointer is kept.
func (s *storeImpl) DeactivateWorkflow(ctx context.Context, workflowID int64) error {
	if err := s.workflows.SetActive(ctx, workflowID, false); err != nil {
		return err
	}
	s.logger.Info("Workflow deactivated", zap.Int64("workflow_id", workflowID))
	return nil
}

func (s *storeImpl) GetWorkflow(ctx context.Context, id int64) (*entity.Workflow, error) {
	wf, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow %d: %w", id, entity.ErrNotFound)
	}
	return wf, nil
}

func (s *storeImpl) ListWorkflows(ctx context.Context) ([]*entity.Workflow, error) {
	return s.workflows.List(ctx)
}

func (s *storeImpl) GetVersion(ctx context.Context, id int64) (*entity.WorkflowVersion, error) {
	version, err := s.versions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("workflow version %d: %w", id, entity.ErrNotFound)
	}
	return version, nil
}

func (s *storeImpl) ListVersions(ctx context.Context, workflowID int64) ([]*entity.WorkflowVersion, error) {
	if _, err := s.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.versions.ListByWorkflow(ctx, workflowID)
}

// CurrentVersion returns the workflow's active version or ErrNoActiveVersion
func (s *storeImpl) CurrentVersion(ctx context.Context, workflowID int64) (*entity.WorkflowVersion, error) {
	wf, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.CurrentVersionID == nil {
		return nil, fmt.Errorf("workflow %d: %w", workflowID, entity.ErrNoActiveVersion)
	}
	return s.GetVersion(ctx, *wf.CurrentVersionID)
}
