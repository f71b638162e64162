package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/definition"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/directory"
	"github.com/garyjia/approvalflow/pkg/database"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = database.MemoryPath
	cfg.Engine.ModelTypes = []string{"payment_request"}
	cfg.Engine.ModelDisplayNames = map[string]string{"payment_request": "Payment Request"}
	cfg.Directory = []directory.UserEntry{
		{ID: "alice", Name: "Alice"},
		{ID: "fiona", Name: "Fiona", Roles: []string{"finance_manager"}},
	}
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Channels = []string{entity.ChannelLark}
	_, err = NewContainer(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires lark")
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Ready())
	assert.False(t, c.Health().Overall)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start is refused")

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["workers"].Healthy)
	assert.Equal(t, "1 registered", health.Components["workers"].Message)

	rec := httptest.NewRecorder()
	c.Server().Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close is refused")
	assert.Error(t, c.Start(context.Background()), "closed container cannot restart")
}

func TestContainer_SubmissionNotifiesApprovers(t *testing.T) {
	c, err := NewContainer(testConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	ctx := context.Background()
	store := c.DefinitionStore()

	_, err = store.CreateWorkflow(ctx, "Unregistered", "purchase_order", "")
	assert.True(t, entity.IsValidationError(err), "model types come from configuration")

	wf, err := store.CreateWorkflow(ctx, "Seed purchase", "payment_request", "")
	require.NoError(t, err)
	version, err := store.CreateVersion(ctx, wf.ID, []definition.StepInput{{
		Name:                "Finance review",
		StepOrder:           1,
		ApproverType:        "ROLE",
		ApproverIdentifiers: []string{"finance_manager"},
	}}, nil)
	require.NoError(t, err)
	require.NoError(t, store.ActivateVersion(ctx, version.ID))

	engine := c.WorkflowEngine()
	instance, err := engine.InitializeWorkflow(ctx, &entity.Subject{
		Ref:    entity.ApprovableRef{Kind: "payment_request", ID: "PR-1"},
		Name:   "Maize seed",
		Fields: map[string]interface{}{"amount": 1200},
	}, wf.ID, "alice")
	require.NoError(t, err)

	ok, err := engine.SubmitForApproval(ctx, instance.ID, entity.Actor{ID: "alice"})
	require.NoError(t, err)
	require.True(t, ok)

	repo := c.Repositories().Notification
	require.Eventually(t, func() bool {
		list, err := repo.ListByInstance(ctx, instance.ID)
		return err == nil && len(list) > 0
	}, 2*time.Second, 10*time.Millisecond)

	list, err := repo.ListByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fiona", list[0].Recipient)
	assert.Equal(t, entity.ChannelDatabase, list[0].Channel)
	assert.Contains(t, list[0].Subject, "Payment Request")

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["approvalflow_instance_transitions_total"])
	assert.True(t, names["go_goroutines"])
}

func TestProvideWorkers(t *testing.T) {
	repos := &RepositoryBundle{}
	disabled := ProvideWorkers(&RetryConfig{Enabled: false}, repos, nil, zap.NewNop())
	assert.Equal(t, 0, disabled.Count())
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("instance_id", int64(7), 42, "skipped", "dangling")
	require.Len(t, fields, 1)
	assert.Equal(t, "instance_id", fields[0].Key)
}
