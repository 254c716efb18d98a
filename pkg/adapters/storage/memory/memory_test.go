package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/stepchain/pkg/adapters/storage/memory"
	"github.com/aescanero/stepchain/pkg/domain"
)

func sampleWorkflow(id string) *domain.WorkflowConfig {
	return &domain.WorkflowConfig{
		ID:   id,
		Name: "sample",
		Nodes: []domain.Node{
			{ID: "in", Kind: domain.NodeKindInput},
			{ID: "s", Kind: domain.NodeKindStep, PromptTemplate: "echo {in}"},
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
	store := memory.NewStorage()

	wf := sampleWorkflow("wf-b")
	require.NoError(t, store.SaveWorkflow(ctx, wf))
	require.NoError(t, store.SaveWorkflow(ctx, sampleWorkflow("wf-a")))

	// stored values are isolated from the caller
	wf.Nodes[1].PromptTemplate = "mutated"

	got, err := store.GetWorkflow(ctx, "wf-b")
	require.NoError(t, err)
	assert.Equal(t, "echo {in}", got.Nodes[1].PromptTemplate)

	list, err := store.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-a", list[0].ID)

	require.NoError(t, store.DeleteWorkflow(ctx, "wf-b"))
	_, err = store.GetWorkflow(ctx, "wf-b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.DeleteWorkflow(ctx, "wf-b"), domain.ErrNotFound)
}

func TestSaveWorkflowRequiresID(t *testing.T) {
	store := memory.NewStorage()
	assert.Error(t, store.SaveWorkflow(context.Background(), &domain.WorkflowConfig{}))
}

func TestExecutionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()

	rec := &domain.ExecutionRecord{
		ID:          "exec-1",
		WorkflowID:  "wf",
		Status:      domain.ExecutionStatusCompleted,
		Input:       "hello",
		SubmittedAt: time.Now().UTC(),
		Result: &domain.WorkflowExecutionResult{
			Success:     true,
			FinalOutput: "HELLO",
			Log:         []domain.ExecutionLogEntry{{StepID: "s", Status: domain.StepStatusSuccess}},
		},
	}
	require.NoError(t, store.SaveExecution(ctx, rec))
	rec.Result.Log[0].StepID = "mutated"

	got, err := store.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, got.Status)
	assert.Equal(t, "s", got.Result.Log[0].StepID)

	ids, err := store.ListExecutions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-1"}, ids)

	require.NoError(t, store.DeleteExecution(ctx, "exec-1"))
	_, err = store.GetExecution(ctx, "exec-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
