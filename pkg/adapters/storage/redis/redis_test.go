package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/stepchain/pkg/adapters/storage/redis"
	"github.com/aescanero/stepchain/pkg/domain"
)

func newStorage(t *testing.T, ttl time.Duration) (*redis.Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewStorage(client, ttl, zaptest.NewLogger(t)), mr
}

func sampleWorkflow(id string) *domain.WorkflowConfig {
	return &domain.WorkflowConfig{
		ID: id,
		Nodes: []domain.Node{
			{ID: "in", Kind: domain.NodeKindInput},
			{ID: "s", Kind: domain.NodeKindStep, Label: "Echo", PromptTemplate: "echo {in}"},
			{ID: "out", Kind: domain.NodeKindOutput},
		},
		Edges: []domain.Edge{
			{ID: "e1", SourceID: "in", TargetID: "s"},
			{ID: "e2", SourceID: "s", TargetID: "out"},
		},
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newStorage(t, time.Hour)

	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf-b")))
	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf-a")))
	assert.True(t, mr.Exists("stepchain:workflow:wf-a"))
	assert.Zero(t, mr.TTL("stepchain:workflow:wf-a"), "workflows do not expire")

	got, err := store.GetWorkflow(ctx, "wf-b")
	require.NoError(t, err)
	assert.Equal(t, sampleWorkflow("wf-b"), got)

	list, err := store.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-a", list[0].ID)
	assert.Equal(t, "wf-b", list[1].ID)

	require.NoError(t, store.DeleteWorkflow(ctx, "wf-a"))
	_, err = store.GetWorkflow(ctx, "wf-a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.DeleteWorkflow(ctx, "wf-a"), domain.ErrNotFound)
}

func TestExecutionExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newStorage(t, time.Minute)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &domain.ExecutionRecord{
		ID:          "exec-1",
		Status:      domain.ExecutionStatusFailed,
		Input:       "hello",
		SubmittedAt: started,
		StartedAt:   &started,
		Result: &domain.WorkflowExecutionResult{
			Error:     "boom",
			ErrorKind: domain.ErrorKindProvider,
			Log:       []domain.ExecutionLogEntry{},
		},
	}
	require.NoError(t, store.SaveExecution(ctx, rec))
	assert.Equal(t, time.Minute, mr.TTL("stepchain:execution:exec-1"))

	got, err := store.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Equal(t, domain.ErrorKindProvider, got.Result.ErrorKind)
	assert.True(t, started.Equal(*got.StartedAt))

	ids, err := store.ListExecutions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-1"}, ids)

	mr.FastForward(2 * time.Minute)
	_, err = store.GetExecution(ctx, "exec-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetExecutionCorruptValue(t *testing.T) {
	store, mr := newStorage(t, 0)
	require.NoError(t, mr.Set("stepchain:execution:bad", "{not json"))

	_, err := store.GetExecution(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
