package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/dispatcher"
	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/condition"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/domain/event"
	"github.com/garyjia/approvalflow/internal/domain/resolver"
	domainwf "github.com/garyjia/approvalflow/internal/domain/workflow"
)

const pendingScanBatch = 100

// Repositories groups the stores the engine reads and writes
type Repositories struct {
	Workflows port.WorkflowRepository
	Versions  port.VersionRepository
	Instances port.InstanceRepository
	Actions   port.ActionRepository
	Progress  port.StepProgressRepository
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	repos     Repositories
	txManager port.TransactionManager
	logger    *zap.Logger

	evaluator  *condition.Evaluator
	resolver   *resolver.Resolver
	dispatcher dispatcher.Dispatcher
	directory  port.ActorDirectory
	metrics    port.Metrics
	clock      func() time.Time
	autoSkip   bool

	locks *instanceLocks
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithAutoSkip enables auto-approval of steps the submitter is eligible for
func WithAutoSkip(enabled bool) EngineOption {
	return func(e *engineImpl) {
		e.autoSkip = enabled
	}
}

// WithDirectory sets the directory used to resolve the submitter when a
// step advances after submission
func WithDirectory(d port.ActorDirectory) EngineOption {
	return func(e *engineImpl) {
		e.directory = d
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m port.Metrics) EngineOption {
	return func(e *engineImpl) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEvaluator shares a condition evaluator (and its program cache)
func WithEvaluator(ev *condition.Evaluator) EngineOption {
	return func(e *engineImpl) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.clock = clock
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	repos Repositories,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		repos:     repos,
		txManager: txManager,
		logger:    logger,
		evaluator: condition.NewEvaluator(),
		resolver:  resolver.New(),
		metrics:   port.NoopMetrics{},
		clock:     time.Now,
		locks:     newInstanceLocks(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// change is the outcome of one locked operation, applied after commit
type change struct {
	applied bool
	from    string
	to      string
	events  []*event.Event
}

func (c *change) emit(evt *event.Event) {
	c.events = append(c.events, evt)
}

// InitializeWorkflow creates a Draft instance bound to the workflow's current version
func (e *engineImpl) InitializeWorkflow(ctx context.Context, subject entity.Approvable, workflowID int64, submitterID string) (*entity.ApprovalInstance, error) {
	if subject == nil {
		return nil, entity.NewValidationError("subject", "must not be nil")
	}
	ref := subject.ApprovableRef()
	if ref.Kind == "" || ref.ID == "" {
		return nil, entity.NewValidationError("approvable", "kind and id are required")
	}

	wf, err := e.repos.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow %d: %w", workflowID, entity.ErrNotFound)
	}
	if ref.Kind != wf.ModelType {
		return nil, entity.NewValidationError("approvable", "workflow %d expects %s, got %s", wf.ID, wf.ModelType, ref.Kind)
	}
	if !wf.IsActive {
		return nil, fmt.Errorf("workflow %d: %w", workflowID, entity.ErrWorkflowInactive)
	}
	if wf.CurrentVersionID == nil {
		return nil, fmt.Errorf("workflow %d: %w", workflowID, entity.ErrNoActiveVersion)
	}

	instance := &entity.ApprovalInstance{
		WorkflowID:        wf.ID,
		WorkflowVersionID: *wf.CurrentVersionID,
		Status:            entity.StatusDraft,
		Approvable:        ref,
		DisplayName:       subject.DisplayName(),
		EntitySnapshot:    copyFields(subject.ApprovalFields()),
		SubmittedBy:       submitterID,
	}
	if err := e.repos.Instances.Create(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	e.logger.Info("Approval instance initialized",
		zap.Int64("instance_id", instance.ID),
		zap.Int64("workflow_id", wf.ID),
		zap.Int64("version_id", instance.WorkflowVersionID),
		zap.String("approvable", ref.String()))
	return instance, nil
}

// SubmitForApproval moves a Draft instance to its first step needing a human
func (e *engineImpl) SubmitForApproval(ctx context.Context, instanceID int64, submitter entity.Actor) (bool, error) {
	return e.run(ctx, instanceID, func(txCtx context.Context, instance *entity.ApprovalInstance, c *change) error {
		if instance.Status != entity.StatusDraft {
			return nil
		}

		version, err := e.loadVersion(txCtx, instance)
		if err != nil {
			return err
		}

		machine, err := e.fire(txCtx, instance.Status, domainwf.TriggerSubmit)
		if err != nil {
			return err
		}

		if submitter.ID != "" {
			instance.SubmittedBy = submitter.ID
		}
		requester := submitter
		if requester.ID == "" {
			requester = e.requester(txCtx, instance.SubmittedBy)
		}

		now := e.now()
		instance.SubmittedAt = &now

		next, err := e.advance(txCtx, instance, version.OrderedSteps(), 0, requester)
		if err != nil {
			return err
		}

		if next == nil {
			if err := machine.Fire(txCtx, domainwf.TriggerComplete); err != nil {
				return err
			}
			e.finish(instance, machine.State(), now)
			c.emit(e.newEvent(event.TypeApproved, instance, nil))
		} else {
			if err := e.enter(txCtx, instance, next, now); err != nil {
				return err
			}
			instance.Status = machine.State().String()
			c.emit(e.newEvent(event.TypeSubmitted, instance, next))
		}

		if err := e.repos.Instances.Update(txCtx, instance); err != nil {
			return err
		}
		c.applied = true
		c.to = instance.Status
		return nil
	})
}

// Resubmit reopens the retained step of a ChangesRequested instance
func (e *engineImpl) Resubmit(ctx context.Context, instanceID int64, subject entity.Approvable, submitter entity.Actor) (bool, error) {
	return e.run(ctx, instanceID, func(txCtx context.Context, instance *entity.ApprovalInstance, c *change) error {
		if instance.Status != entity.StatusChangesRequested {
			return nil
		}
		if instance.CurrentStepID == nil {
			return fmt.Errorf("instance %d has no retained step: %w", instance.ID, domainwf.ErrInvalidState)
		}

		if subject != nil {
			if ref := subject.ApprovableRef(); ref != instance.Approvable {
				return entity.NewValidationError("approvable", "expected %s, got %s", instance.Approvable, ref)
			}
			instance.EntitySnapshot = copyFields(subject.ApprovalFields())
			instance.DisplayName = subject.DisplayName()
		}

		version, err := e.loadVersion(txCtx, instance)
		if err != nil {
			return err
		}
		step := version.StepByID(*instance.CurrentStepID)
		if step == nil {
			return fmt.Errorf("step %d not in version %d: %w", *instance.CurrentStepID, version.ID, entity.ErrNotFound)
		}

		machine, err := e.fire(txCtx, instance.Status, domainwf.TriggerResubmit)
		if err != nil {
			return err
		}

		if err := e.enter(txCtx, instance, step, e.now()); err != nil {
			return err
		}
		instance.Status = machine.State().String()

		if err := e.repos.Instances.Update(txCtx, instance); err != nil {
			return err
		}

		evt := e.newEvent(event.TypeSubmitted, instance, step).WithPayload(event.KeyResubmitted, true)
		if submitter.ID != "" {
			evt = evt.WithPayload(event.KeyActorID, submitter.ID)
		}
		c.emit(evt)
		c.applied = true
		c.to = instance.Status
		return nil
	})
}

// ProcessAction records an approver decision and applies its effect
func (e *engineImpl) ProcessAction(ctx context.Context, req ActionRequest) (bool, error) {
	if !req.Type.IsValid() {
		return false, entity.NewValidationError("action_type", "unknown action type %q", req.Type)
	}

	ok, err := e.run(ctx, req.InstanceID, func(txCtx context.Context, instance *entity.ApprovalInstance, c *change) error {
		if instance.Status != entity.StatusPendingApproval || !instance.IsAtStep(req.StepID) {
			return nil
		}

		version, err := e.loadVersion(txCtx, instance)
		if err != nil {
			return err
		}
		steps := version.OrderedSteps()
		index := indexOf(steps, req.StepID)
		if index < 0 {
			return fmt.Errorf("step %d not in version %d: %w", req.StepID, version.ID, entity.ErrNotFound)
		}
		step := steps[index]

		if !e.resolver.IsEligible(step, req.Actor) {
			e.logger.Info("Ineligible actor ignored",
				zap.Int64("instance_id", instance.ID),
				zap.Int64("step_id", step.ID),
				zap.String("actor_id", req.Actor.ID))
			return nil
		}

		action := &entity.ApprovalAction{
			InstanceID: instance.ID,
			StepID:     step.ID,
			Cycle:      instance.Cycle,
			ActorID:    req.Actor.ID,
			ActionType: req.Type,
			Comments:   req.Comments,
			Metadata:   req.Metadata,
			CreatedAt:  e.now(),
		}
		if err := e.repos.Actions.Create(txCtx, action); err != nil {
			return err
		}

		now := e.now()
		switch req.Type {
		case entity.ActionReject:
			err = e.applyReject(txCtx, instance, step, req, now, c)
		case entity.ActionRequestChanges:
			err = e.applyRequestChanges(txCtx, instance, step, req, now, c)
		case entity.ActionApprove:
			err = e.applyApprove(txCtx, instance, steps, index, req, now, c)
		}
		if err != nil {
			return err
		}

		if err := e.repos.Instances.Update(txCtx, instance); err != nil {
			return err
		}
		c.applied = true
		c.to = instance.Status
		return nil
	})

	e.metrics.ObserveAction(string(req.Type), ok)
	return ok, err
}

func (e *engineImpl) applyReject(ctx context.Context, instance *entity.ApprovalInstance, step *entity.Step, req ActionRequest, now time.Time, c *change) error {
	machine, err := e.fire(ctx, instance.Status, domainwf.TriggerReject)
	if err != nil {
		return err
	}
	if err := e.repos.Progress.Resolve(ctx, instance.ID, step.ID, instance.Cycle, entity.ProgressRejected, now); err != nil {
		return err
	}
	e.finish(instance, machine.State(), now)

	evt := e.newEvent(event.TypeRejected, instance, step).
		WithPayload(event.KeyActorID, req.Actor.ID).
		WithPayload(event.KeyReason, req.Comments)
	c.emit(evt)
	return nil
}

func (e *engineImpl) applyRequestChanges(ctx context.Context, instance *entity.ApprovalInstance, step *entity.Step, req ActionRequest, now time.Time, c *change) error {
	machine, err := e.fire(ctx, instance.Status, domainwf.TriggerRequestChanges)
	if err != nil {
		return err
	}
	if err := e.repos.Progress.Resolve(ctx, instance.ID, step.ID, instance.Cycle, entity.ProgressChangesRequested, now); err != nil {
		return err
	}
	instance.Status = machine.State().String()

	evt := e.newEvent(event.TypeChangesRequested, instance, step).
		WithPayload(event.KeyActorID, req.Actor.ID).
		WithPayload(event.KeyFeedback, req.Comments)
	c.emit(evt)
	return nil
}

func (e *engineImpl) applyApprove(ctx context.Context, instance *entity.ApprovalInstance, steps []*entity.Step, index int, req ActionRequest, now time.Time, c *change) error {
	step := steps[index]

	if step.StepType == entity.StepTypeParallel {
		count, err := e.repos.Actions.CountDistinctApprovers(ctx, instance.ID, step.ID, instance.Cycle)
		if err != nil {
			return err
		}
		if count < step.RequiredApprovals() {
			e.logger.Info("Parallel step awaiting approvals",
				zap.Int64("instance_id", instance.ID),
				zap.Int64("step_id", step.ID),
				zap.Int("approvals", count),
				zap.Int("required", step.RequiredApprovals()))
			return nil
		}
	}

	if err := e.repos.Progress.Resolve(ctx, instance.ID, step.ID, instance.Cycle, entity.ProgressCompleted, now); err != nil {
		return err
	}

	requester := e.requester(ctx, instance.SubmittedBy)
	next, err := e.advance(ctx, instance, steps, index+1, requester)
	if err != nil {
		return err
	}

	if next == nil {
		machine, err := e.fire(ctx, instance.Status, domainwf.TriggerComplete)
		if err != nil {
			return err
		}
		e.finish(instance, machine.State(), now)
		c.emit(e.newEvent(event.TypeApproved, instance, nil).WithPayload(event.KeyActorID, req.Actor.ID))
		return nil
	}

	if err := e.enter(ctx, instance, next, now); err != nil {
		return err
	}
	c.emit(e.newEvent(event.TypeStepAdvanced, instance, next).WithPayload(event.KeyActorID, req.Actor.ID))
	return nil
}

// CancelApproval cancels any non-terminal instance
func (e *engineImpl) CancelApproval(ctx context.Context, instanceID int64, actor entity.Actor) (bool, error) {
	return e.run(ctx, instanceID, func(txCtx context.Context, instance *entity.ApprovalInstance, c *change) error {
		if domainwf.State(instance.Status).IsTerminal() {
			return nil
		}

		machine, err := e.fire(txCtx, instance.Status, domainwf.TriggerCancel)
		if err != nil {
			return err
		}

		now := e.now()
		if instance.Status == entity.StatusPendingApproval && instance.CurrentStepID != nil {
			if err := e.repos.Progress.Resolve(txCtx, instance.ID, *instance.CurrentStepID, instance.Cycle, entity.ProgressCancelled, now); err != nil {
				return err
			}
		}
		e.finish(instance, machine.State(), now)

		if err := e.repos.Instances.Update(txCtx, instance); err != nil {
			return err
		}
		c.emit(e.newEvent(event.TypeCancelled, instance, nil).WithPayload(event.KeyActorID, actor.ID))
		c.applied = true
		c.to = instance.Status
		return nil
	})
}

func (e *engineImpl) GetInstance(ctx context.Context, instanceID int64) (*entity.ApprovalInstance, error) {
	instance, err := e.repos.Instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("instance %d: %w", instanceID, entity.ErrNotFound)
	}
	return instance, nil
}

func (e *engineImpl) ListActions(ctx context.Context, instanceID int64) ([]*entity.ApprovalAction, error) {
	if _, err := e.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return e.repos.Actions.ListByInstance(ctx, instanceID)
}

func (e *engineImpl) ListProgress(ctx context.Context, instanceID int64) ([]*entity.StepProgress, error) {
	if _, err := e.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return e.repos.Progress.ListByInstance(ctx, instanceID)
}

// PendingFor lists PendingApproval instances whose current step the actor may act on
func (e *engineImpl) PendingFor(ctx context.Context, actor entity.Actor, limit int) ([]*entity.ApprovalInstance, error) {
	if limit <= 0 {
		limit = 50
	}

	versions := make(map[int64]*entity.WorkflowVersion)
	var out []*entity.ApprovalInstance

	for offset := 0; len(out) < limit; offset += pendingScanBatch {
		batch, err := e.repos.Instances.ListByStatus(ctx, entity.StatusPendingApproval, pendingScanBatch, offset)
		if err != nil {
			return nil, err
		}

		for _, instance := range batch {
			if instance.CurrentStepID == nil {
				continue
			}
			version, ok := versions[instance.WorkflowVersionID]
			if !ok {
				if version, err = e.loadVersion(ctx, instance); err != nil {
					return nil, err
				}
				versions[instance.WorkflowVersionID] = version
			}
			if e.resolver.IsEligible(version.StepByID(*instance.CurrentStepID), actor) {
				out = append(out, instance)
				if len(out) == limit {
					break
				}
			}
		}

		if len(batch) < pendingScanBatch {
			break
		}
	}

	return out, nil
}

// AvailableActions lists the action types the actor may take on the instance now.
// An actor who already approved a parallel step in this cycle may still
// reject or request changes but not approve again.
func (e *engineImpl) AvailableActions(ctx context.Context, instanceID int64, actor entity.Actor) ([]entity.ActionType, error) {
	instance, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status != entity.StatusPendingApproval || instance.CurrentStepID == nil {
		return []entity.ActionType{}, nil
	}

	version, err := e.loadVersion(ctx, instance)
	if err != nil {
		return nil, err
	}
	step := version.StepByID(*instance.CurrentStepID)
	if !e.resolver.IsEligible(step, actor) {
		return []entity.ActionType{}, nil
	}

	approved, err := e.repos.Actions.HasApproved(ctx, instance.ID, step.ID, instance.Cycle, actor.ID)
	if err != nil {
		return nil, err
	}

	actions := make([]entity.ActionType, 0, 3)
	for _, t := range entity.AllActionTypes() {
		if t == entity.ActionApprove && approved {
			continue
		}
		actions = append(actions, t)
	}
	return actions, nil
}

// run executes op under the instance lock inside one transaction, then
// records metrics and dispatches the collected events after commit
func (e *engineImpl) run(ctx context.Context, instanceID int64, op func(txCtx context.Context, instance *entity.ApprovalInstance, c *change) error) (bool, error) {
	unlock := e.locks.Lock(instanceID)
	defer unlock()

	c := &change{}
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		instance, err := e.repos.Instances.GetByID(txCtx, instanceID)
		if err != nil {
			return err
		}
		if instance == nil {
			return fmt.Errorf("instance %d: %w", instanceID, entity.ErrNotFound)
		}
		c.from = instance.Status
		return op(txCtx, instance, c)
	})
	if err != nil {
		e.logger.Error("Instance operation failed", zap.Int64("instance_id", instanceID), zap.Error(err))
		return false, err
	}
	if !c.applied {
		return false, nil
	}

	if c.from != c.to {
		e.metrics.ObserveTransition(c.from, c.to)
		e.logger.Info("Instance transitioned",
			zap.Int64("instance_id", instanceID),
			zap.String("from", c.from),
			zap.String("to", c.to))
	}

	if e.dispatcher != nil {
		correlationID := uuid.NewString()
		for _, evt := range c.events {
			evt.CorrelationID = correlationID
			e.dispatcher.DispatchAsync(ctx, evt)
		}
	}

	return true, nil
}

// advance walks steps from start and returns the first Approval step that
// needs a human, recording every step it passes over. Each pass-through is a
// step entry of its own and takes the next cycle. A nil step means the
// version is exhausted.
func (e *engineImpl) advance(ctx context.Context, instance *entity.ApprovalInstance, steps []*entity.Step, start int, requester entity.Actor) (*entity.Step, error) {
	for _, step := range steps[start:] {
		applies, err := e.evaluator.Applies(step.ConditionalRules, instance.EntitySnapshot)
		if err != nil {
			e.logger.Warn("Step condition failed to evaluate, treating step as applicable",
				zap.Int64("instance_id", instance.ID),
				zap.Int64("step_id", step.ID),
				zap.Error(err))
		}

		var outcome entity.ProgressOutcome
		switch {
		case !applies:
			outcome = entity.ProgressSkipped
		case step.Purpose == entity.StepPurposeAction:
			outcome = entity.ProgressExecuted
		case e.autoSkip && e.resolver.IsRequesterEligible(step, requester):
			outcome = entity.ProgressAutoApproved
		default:
			return step, nil
		}

		now := e.now()
		instance.Cycle++
		progress := &entity.StepProgress{
			InstanceID: instance.ID,
			StepID:     step.ID,
			Cycle:      instance.Cycle,
			Outcome:    outcome,
			EnteredAt:  now,
			ResolvedAt: &now,
		}
		if err := e.repos.Progress.Create(ctx, progress); err != nil {
			return nil, err
		}

		e.logger.Debug("Step passed without action",
			zap.Int64("instance_id", instance.ID),
			zap.Int64("step_id", step.ID),
			zap.String("outcome", string(outcome)))
	}
	return nil, nil
}

// enter makes step the instance's current step in a new cycle
func (e *engineImpl) enter(ctx context.Context, instance *entity.ApprovalInstance, step *entity.Step, now time.Time) error {
	instance.Cycle++
	stepID := step.ID
	instance.CurrentStepID = &stepID

	return e.repos.Progress.Create(ctx, &entity.StepProgress{
		InstanceID: instance.ID,
		StepID:     step.ID,
		Cycle:      instance.Cycle,
		Outcome:    entity.ProgressPending,
		EnteredAt:  now,
	})
}

// finish moves the instance to a terminal state
func (e *engineImpl) finish(instance *entity.ApprovalInstance, state domainwf.State, now time.Time) {
	instance.Status = state.String()
	instance.CurrentStepID = nil
	instance.CompletedAt = &now
}

// fire checks trigger against the transition table for status
func (e *engineImpl) fire(ctx context.Context, status string, trigger domainwf.Trigger) (domainwf.StateMachine, error) {
	machine, err := machineFor(status)
	if err != nil {
		return nil, fmt.Errorf("status %q: %w", status, err)
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		return nil, fmt.Errorf("trigger %s from %s: %w", trigger, status, err)
	}
	return machine, nil
}

func (e *engineImpl) loadVersion(ctx context.Context, instance *entity.ApprovalInstance) (*entity.WorkflowVersion, error) {
	version, err := e.repos.Versions.GetByID(ctx, instance.WorkflowVersionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("workflow version %d: %w", instance.WorkflowVersionID, entity.ErrNotFound)
	}
	return version, nil
}

// requester resolves the submitter's roles and permissions through the
// directory; an unknown submitter is matched by id only
func (e *engineImpl) requester(ctx context.Context, userID string) entity.Actor {
	if e.directory == nil || userID == "" {
		return entity.Actor{ID: userID}
	}
	actor, err := e.directory.Lookup(ctx, userID)
	if err != nil {
		e.logger.Warn("Submitter lookup failed", zap.String("user_id", userID), zap.Error(err))
		return entity.Actor{ID: userID}
	}
	if actor == nil {
		return entity.Actor{ID: userID}
	}
	return *actor
}

func (e *engineImpl) newEvent(t event.Type, instance *entity.ApprovalInstance, step *entity.Step) *event.Event {
	payload := map[string]interface{}{
		event.KeyStatus:         instance.Status,
		event.KeyWorkflowID:     instance.WorkflowID,
		event.KeyVersionID:      instance.WorkflowVersionID,
		event.KeyApprovableKind: instance.Approvable.Kind,
		event.KeyApprovableID:   instance.Approvable.ID,
		event.KeyDisplayName:    instance.DisplayName,
		event.KeySubmittedBy:    instance.SubmittedBy,
		event.KeyCycle:          instance.Cycle,
	}
	if step != nil {
		payload[event.KeyStepID] = step.ID
		payload[event.KeyStepName] = step.Name
		payload[event.KeyApproverType] = string(step.ApproverType)
		payload[event.KeyApproverIdentifiers] = append([]string(nil), step.ApproverIdentifiers...)
	}
	return event.NewEvent(t, instance.ID, payload)
}

func (e *engineImpl) now() time.Time {
	return e.clock().UTC()
}

func indexOf(steps []*entity.Step, stepID int64) int {
	for i, s := range steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
