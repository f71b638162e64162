package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/definition"
	"github.com/garyjia/approvalflow/internal/domain/condition"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approvalflow/migrations"
	"github.com/garyjia/approvalflow/pkg/database"
)

func setupSQLite(t *testing.T) (definition.Store, WorkflowEngine) {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: database.MemoryPath}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(migrations.FS))

	tx := sqlite.NewDB(db.DB, logger)
	evaluator := condition.NewEvaluator()
	repos := Repositories{
		Workflows: repository.NewWorkflowRepository(db.DB, logger),
		Versions:  repository.NewVersionRepository(db.DB, logger),
		Instances: repository.NewInstanceRepository(db.DB, logger),
		Actions:   repository.NewActionRepository(db.DB, logger),
		Progress:  repository.NewStepProgressRepository(db.DB, logger),
	}

	store := definition.NewStore(repos.Workflows, repos.Versions, tx, evaluator, logger)
	engine := NewEngine(repos, tx, logger, WithEvaluator(evaluator))
	return store, engine
}

func TestEngineSQLite_ParallelThenSequential(t *testing.T) {
	store, engine := setupSQLite(t)
	ctx := context.Background()

	wf, err := store.CreateWorkflow(ctx, "Input loan payout", "payment_request", "")
	require.NoError(t, err)

	two := 2
	v1, err := store.CreateVersion(ctx, wf.ID, []definition.StepInput{
		{
			Name:                   "Agronomists",
			StepOrder:              1,
			StepType:               "PARALLEL",
			RequiredApprovalsCount: &two,
			ApproverType:           "ROLE",
			ApproverIdentifiers:    []string{"agronomist"},
		},
		{
			Name:                "Treasury",
			StepOrder:           2,
			ApproverType:        "USER",
			ApproverIdentifiers: []string{"treasurer"},
			ConditionalRules: &entity.ConditionalRules{
				Rules: []entity.Rule{{Field: "amount", Operator: condition.OpGreaterOrEqual, Value: 10000}},
			},
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.ActivateVersion(ctx, v1.ID))

	instance, err := engine.InitializeWorkflow(ctx, paymentRequest(25000), wf.ID, "alice")
	require.NoError(t, err)
	ok, err := engine.SubmitForApproval(ctx, instance.ID, user("alice"))
	require.NoError(t, err)
	require.True(t, ok)

	// a later activation never moves running instances
	v2, err := store.CreateVersion(ctx, wf.ID, []definition.StepInput{
		{Name: "Anyone", ApproverType: "USER", ApproverIdentifiers: []string{"bob"}},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.ActivateVersion(ctx, v2.ID))

	agronomistStep := v1.Steps[0].ID
	var wg sync.WaitGroup
	for _, id := range []string{"agro-1", "agro-2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ok, err := engine.ProcessAction(ctx, ActionRequest{
				InstanceID: instance.ID,
				StepID:     agronomistStep,
				Type:       entity.ActionApprove,
				Actor:      entity.Actor{ID: id, Roles: []string{"agronomist"}},
			})
			assert.NoError(t, err)
			assert.True(t, ok)
		}(id)
	}
	wg.Wait()

	instance, err = engine.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, instance.WorkflowVersionID)
	assert.Equal(t, entity.StatusPendingApproval, instance.Status)
	require.True(t, instance.IsAtStep(v1.Steps[1].ID), "large payouts need treasury")

	ok, err = engine.ProcessAction(ctx, ActionRequest{
		InstanceID: instance.ID,
		StepID:     v1.Steps[1].ID,
		Type:       entity.ActionApprove,
		Actor:      user("treasurer"),
	})
	require.NoError(t, err)
	require.True(t, ok)

	instance, err = engine.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, instance.Status)
	assert.Nil(t, instance.CurrentStepID)

	actions, err := engine.ListActions(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, actions, 3)

	progress, err := engine.ListProgress(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, progress, 2)
	for _, p := range progress {
		assert.Equal(t, entity.ProgressCompleted, p.Outcome)
		assert.NotNil(t, p.ResolvedAt)
	}
}

func TestEngineSQLite_SmallPayoutSkipsTreasury(t *testing.T) {
	store, engine := setupSQLite(t)
	ctx := context.Background()

	wf, err := store.CreateWorkflow(ctx, "Input loan payout", "payment_request", "")
	require.NoError(t, err)
	v, err := store.CreateVersion(ctx, wf.ID, []definition.StepInput{
		{Name: "Manager", StepOrder: 1, ApproverType: "USER", ApproverIdentifiers: []string{"manager"}},
		{
			Name:                "Treasury",
			StepOrder:           2,
			ApproverType:        "USER",
			ApproverIdentifiers: []string{"treasurer"},
			ConditionalRules: &entity.ConditionalRules{
				Expression: `entity.amount >= 10000`,
			},
		},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, store.ActivateVersion(ctx, v.ID))

	instance, err := engine.InitializeWorkflow(ctx, paymentRequest(300), wf.ID, "alice")
	require.NoError(t, err)
	_, err = engine.SubmitForApproval(ctx, instance.ID, user("alice"))
	require.NoError(t, err)

	ok, err := engine.ProcessAction(ctx, ActionRequest{InstanceID: instance.ID, StepID: v.Steps[0].ID, Type: entity.ActionApprove, Actor: user("manager")})
	require.NoError(t, err)
	require.True(t, ok)

	instance, err = engine.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, instance.Status)

	progress, err := engine.ListProgress(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, entity.ProgressSkipped, progress[1].Outcome)
}
