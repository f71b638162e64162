package definition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/domain/condition"
	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// Mock implementations

type mockWorkflowRepo struct {
	workflows map[int64]*entity.Workflow
	nextID    int64
	pointers  []*int64
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{workflows: make(map[int64]*entity.Workflow)}
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *entity.Workflow) error {
	m.nextID++
	wf.ID = m.nextID
	copied := *wf
	m.workflows[wf.ID] = &copied
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id int64) (*entity.Workflow, error) {
	wf, ok := m.workflows[id]
	if !ok {
		return nil, nil
	}
	copied := *wf
	return &copied, nil
}

func (m *mockWorkflowRepo) List(ctx context.Context) ([]*entity.Workflow, error) {
	var out []*entity.Workflow
	for _, wf := range m.workflows {
		out = append(out, wf)
	}
	return out, nil
}

func (m *mockWorkflowRepo) SetCurrentVersion(ctx context.Context, workflowID int64, versionID *int64) error {
	wf, ok := m.workflows[workflowID]
	if !ok {
		return entity.ErrNotFound
	}
	m.pointers = append(m.pointers, versionID)
	wf.CurrentVersionID = versionID
	return nil
}

func (m *mockWorkflowRepo) SetActive(ctx context.Context, workflowID int64, active bool) error {
	wf, ok := m.workflows[workflowID]
	if !ok {
		return entity.ErrNotFound
	}
	wf.IsActive = active
	return nil
}

type mockVersionRepo struct {
	versions  map[int64]*entity.WorkflowVersion
	nextID    int64
	createErr error
	activated map[int64]time.Time
}

func newMockVersionRepo() *mockVersionRepo {
	return &mockVersionRepo{versions: make(map[int64]*entity.WorkflowVersion), activated: make(map[int64]time.Time)}
}

func (m *mockVersionRepo) Create(ctx context.Context, v *entity.WorkflowVersion) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	v.ID = m.nextID
	for i, s := range v.Steps {
		s.ID = v.ID*100 + int64(i)
		s.VersionID = v.ID
		s.Position = i
	}
	m.versions[v.ID] = v
	return nil
}

func (m *mockVersionRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowVersion, error) {
	return m.versions[id], nil
}

func (m *mockVersionRepo) ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.WorkflowVersion, error) {
	var out []*entity.WorkflowVersion
	for _, v := range m.versions {
		if v.WorkflowID == workflowID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockVersionRepo) NextVersionNumber(ctx context.Context, workflowID int64) (int, error) {
	max := 0
	for _, v := range m.versions {
		if v.WorkflowID == workflowID && v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max + 1, nil
}

func (m *mockVersionRepo) MarkActivated(ctx context.Context, id int64, t time.Time) error {
	m.activated[id] = t
	return nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

func newTestStore(opts ...StoreOption) (Store, *mockWorkflowRepo, *mockVersionRepo, *mockTxManager) {
	workflows := newMockWorkflowRepo()
	versions := newMockVersionRepo()
	tx := &mockTxManager{}
	store := NewStore(workflows, versions, tx, condition.NewEvaluator(), zap.NewNop(), opts...)
	return store, workflows, versions, tx
}

func validStep(order int) StepInput {
	return StepInput{
		Name:                stepName(order),
		StepOrder:           order,
		ApproverType:        "role",
		ApproverIdentifiers: []string{"finance_manager"},
	}
}

func stepName(order int) string {
	return "step-" + string(rune('a'+order))
}

func intPtr(v int) *int { return &v }

// Tests

func TestCreateWorkflow(t *testing.T) {
	store, _, _, _ := newTestStore(WithModelTypes("payment_request", "settlement"))
	ctx := context.Background()

	wf, err := store.CreateWorkflow(ctx, "  Input loan payout ", "payment_request", "two level")
	require.NoError(t, err)
	assert.Equal(t, "Input loan payout", wf.Name)
	assert.True(t, wf.IsActive)
	assert.Nil(t, wf.CurrentVersionID)

	_, err = store.CreateWorkflow(ctx, "", "payment_request", "")
	var ve *entity.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)

	_, err = store.CreateWorkflow(ctx, "Harvest", "harvest_report", "")
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "model_type", ve.Field)
}

func TestCreateWorkflow_AnyModelTypeWithoutRegistry(t *testing.T) {
	store, _, _, _ := newTestStore()

	_, err := store.CreateWorkflow(context.Background(), "Anything", "custom_model", "")
	assert.NoError(t, err)

	_, err = store.CreateWorkflow(context.Background(), "Anything", " ", "")
	assert.True(t, entity.IsValidationError(err))
}

func TestCreateVersion(t *testing.T) {
	store, _, versions, tx := newTestStore()
	ctx := context.Background()
	wf, err := store.CreateWorkflow(ctx, "Settlement", "settlement", "")
	require.NoError(t, err)

	parallel := validStep(2)
	parallel.StepType = "parallel"
	parallel.RequiredApprovalsCount = intPtr(2)
	parallel.ConditionalRules = &entity.ConditionalRules{
		Rules: []entity.Rule{{Field: "amount", Operator: condition.OpGreater, Value: 5000}},
	}

	v1, err := store.CreateVersion(ctx, wf.ID, []StepInput{validStep(1), parallel}, map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Nil(t, v1.ActivatedAt)
	require.Len(t, v1.Steps, 2)
	assert.Equal(t, entity.StepTypeSequential, v1.Steps[0].StepType)
	assert.Equal(t, entity.StepPurposeApproval, v1.Steps[0].Purpose)
	assert.Equal(t, entity.ApproverTypeRole, v1.Steps[0].ApproverType)
	assert.Equal(t, 1, v1.Steps[0].RequiredApprovalsCount)
	assert.Equal(t, entity.StepTypeParallel, v1.Steps[1].StepType)
	assert.Equal(t, 2, v1.Steps[1].RequiredApprovalsCount)
	assert.Equal(t, 1, tx.calls)

	v2, err := store.CreateVersion(ctx, wf.ID, []StepInput{validStep(0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Len(t, versions.versions, 2)

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentVersionID, "new versions are not activated")
}

func TestCreateVersion_Validation(t *testing.T) {
	store, _, versions, _ := newTestStore()
	ctx := context.Background()
	wf, err := store.CreateWorkflow(ctx, "Settlement", "settlement", "")
	require.NoError(t, err)

	mutate := func(fn func(*StepInput)) []StepInput {
		s := validStep(1)
		fn(&s)
		return []StepInput{validStep(0), s}
	}

	tests := []struct {
		name  string
		steps []StepInput
		field string
	}{
		{"no steps", nil, "steps"},
		{"negative order", mutate(func(s *StepInput) { s.StepOrder = -1 }), "steps[1].step_order"},
		{"zero approvals", mutate(func(s *StepInput) { s.RequiredApprovalsCount = intPtr(0) }), "steps[1].required_approvals_count"},
		{"empty identifiers", mutate(func(s *StepInput) { s.ApproverIdentifiers = nil }), "steps[1].approver_identifiers"},
		{"blank identifier", mutate(func(s *StepInput) { s.ApproverIdentifiers = []string{"a", " "} }), "steps[1].approver_identifiers"},
		{"bad approver type", mutate(func(s *StepInput) { s.ApproverType = "group" }), "steps[1].approver_type"},
		{"bad step type", mutate(func(s *StepInput) { s.StepType = "random" }), "steps[1].step_type"},
		{"bad purpose", mutate(func(s *StepInput) { s.Purpose = "notify" }), "steps[1].purpose"},
		{"empty name", mutate(func(s *StepInput) { s.Name = "" }), "steps[1].name"},
		{
			"uncompilable rules",
			mutate(func(s *StepInput) { s.ConditionalRules = &entity.ConditionalRules{Expression: "entity.amount >"} }),
			"steps[1].conditional_rules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateVersion(ctx, wf.ID, tt.steps, nil)
			var ve *entity.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.Empty(t, versions.versions, "invalid versions are never stored")
}

func TestCreateVersion_UnknownWorkflow(t *testing.T) {
	store, _, _, _ := newTestStore()

	_, err := store.CreateVersion(context.Background(), 42, []StepInput{validStep(0)}, nil)
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestActivateVersion(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, workflows, versions, _ := newTestStore(WithStoreClock(func() time.Time { return fixed }))
	ctx := context.Background()

	wf, err := store.CreateWorkflow(ctx, "Settlement", "settlement", "")
	require.NoError(t, err)
	v1, err := store.CreateVersion(ctx, wf.ID, []StepInput{validStep(0)}, nil)
	require.NoError(t, err)
	v2, err := store.CreateVersion(ctx, wf.ID, []StepInput{validStep(0), validStep(1)}, nil)
	require.NoError(t, err)

	_, err = store.CurrentVersion(ctx, wf.ID)
	assert.True(t, errors.Is(err, entity.ErrNoActiveVersion))

	require.NoError(t, store.ActivateVersion(ctx, v1.ID))
	require.NoError(t, store.ActivateVersion(ctx, v2.ID))

	current, err := store.CurrentVersion(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, current.ID)
	assert.Equal(t, fixed, versions.activated[v2.ID])

	// clear then set, once per activation
	require.Len(t, workflows.pointers, 4)
	assert.Nil(t, workflows.pointers[2])
	assert.Equal(t, v2.ID, *workflows.pointers[3])

	require.NoError(t, store.ActivateVersion(ctx, v2.ID), "re-activating the current version is a no-op")
	assert.Len(t, workflows.pointers, 4)

	err = store.ActivateVersion(ctx, 999)
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}

func TestDeactivateWorkflow(t *testing.T) {
	store, _, _, _ := newTestStore()
	ctx := context.Background()

	wf, err := store.CreateWorkflow(ctx, "Settlement", "settlement", "")
	require.NoError(t, err)
	v, err := store.CreateVersion(ctx, wf.ID, []StepInput{validStep(0)}, nil)
	require.NoError(t, err)
	require.NoError(t, store.ActivateVersion(ctx, v.ID))

	require.NoError(t, store.DeactivateWorkflow(ctx, wf.ID))

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.CurrentVersionID, "deactivation keeps the current version")
	assert.Equal(t, v.ID, *got.CurrentVersionID)

	assert.Error(t, store.DeactivateWorkflow(ctx, 999))
}

func TestGetters_NotFound(t *testing.T) {
	store, _, _, _ := newTestStore()
	ctx := context.Background()

	_, err := store.GetWorkflow(ctx, 1)
	assert.True(t, errors.Is(err, entity.ErrNotFound))
	_, err = store.GetVersion(ctx, 1)
	assert.True(t, errors.Is(err, entity.ErrNotFound))
	_, err = store.ListVersions(ctx, 1)
	assert.True(t, errors.Is(err, entity.ErrNotFound))
}
