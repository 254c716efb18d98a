package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/stepchain/internal/application/engine"
	"github.com/aescanero/stepchain/pkg/domain"
)

func panickingStub() *stubCompleter {
	return newStub(func(context.Context, string) (string, error) {
		panic("boom")
	})
}

func assertPanicReportedAsProviderFailure(t *testing.T, opts ...engine.Option) {
	t.Helper()
	obs := &recordingObserver{}
	stub := panickingStub()
	eng := engine.NewEngine(stub, zaptest.NewLogger(t), append(opts, engine.WithObserver(obs))...)

	var res *domain.WorkflowExecutionResult
	require.NotPanics(t, func() {
		res = eng.Execute(context.Background(), linearWorkflow(2), "x")
	})

	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorKindProvider, res.ErrorKind)
	assert.Contains(t, res.Error, "boom")
	assert.Equal(t, 1, stub.Calls())

	require.Len(t, res.Log, 1)
	assert.Equal(t, "S1", res.Log[0].StepID)
	assert.Equal(t, domain.StepStatusError, res.Log[0].Status)

	var perr *domain.ProviderError
	require.ErrorAs(t, res.Cause(), &perr)
	assert.Equal(t, "S1", perr.StepID)
	assert.Equal(t, domain.ProviderReasonUnknown, perr.Reason)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeStepStarted,
		domain.EventTypeStepFailed,
	}, obs.Types())
	assert.Equal(t, map[string]domain.StepState{
		"S1": domain.StepStateFailed,
		"S2": domain.StepStatePending,
	}, res.Steps)
}

func TestExecutePanickingCompleterSequential(t *testing.T) {
	assertPanicReportedAsProviderFailure(t)
}

func TestExecutePanickingCompleterConcurrent(t *testing.T) {
	assertPanicReportedAsProviderFailure(t, engine.WithDispatcher(goDispatcher{}))
}

func TestExecuteStepStates(t *testing.T) {
	obs := &recordingObserver{}
	stub := newStub(func(_ context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "S2") {
			return "", errors.New("down")
		}
		return "ok", nil
	})
	eng := engine.NewEngine(stub, zaptest.NewLogger(t), engine.WithObserver(obs))

	res := eng.Execute(context.Background(), linearWorkflow(3), "in")

	states := make([]domain.StepState, len(obs.events))
	for i, ev := range obs.events {
		states[i] = ev.State
	}
	assert.Equal(t, []domain.StepState{
		domain.StepStateRunning,
		domain.StepStateCompleted,
		domain.StepStateRunning,
		domain.StepStateFailed,
	}, states)

	assert.Equal(t, map[string]domain.StepState{
		"S1": domain.StepStateCompleted,
		"S2": domain.StepStateFailed,
		"S3": domain.StepStatePending,
	}, res.Steps)
}

func TestExecuteStepStatesOnSuccess(t *testing.T) {
	eng := engine.NewEngine(echoStub(), zaptest.NewLogger(t))

	res := eng.Execute(context.Background(), linearWorkflow(2), "in")

	require.True(t, res.Success)
	assert.Equal(t, map[string]domain.StepState{
		"S1": domain.StepStateCompleted,
		"S2": domain.StepStateCompleted,
	}, res.Steps)
}

func TestExecuteValidationFailureHasNoStepStates(t *testing.T) {
	eng := engine.NewEngine(echoStub(), zaptest.NewLogger(t))
	cfg := linearWorkflow(1)
	cfg.Edges = append(cfg.Edges, edge("S1", "I"))

	res := eng.Execute(context.Background(), cfg, "in")

	assert.Equal(t, domain.ErrorKindValidation, res.ErrorKind)
	assert.Nil(t, res.Steps)
}

func TestExecuteCancelledWithoutSteps(t *testing.T) {
	eng := engine.NewEngine(echoStub(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := eng.Execute(ctx, linearWorkflow(0), "x")

	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorKindCancelled, res.ErrorKind)
	assert.Empty(t, res.FinalOutput)
	assert.ErrorIs(t, res.Cause(), context.Canceled)
}

func TestStepStatesOnlyMoveForward(t *testing.T) {
	states := engine.NewStepStates([]string{"a"})

	assert.Error(t, states.Advance("a", domain.StepStateCompleted), "pending cannot complete")
	require.NoError(t, states.Advance("a", domain.StepStateRunning))
	assert.Error(t, states.Advance("a", domain.StepStateRunning))
	require.NoError(t, states.Advance("a", domain.StepStateFailed))
	assert.Error(t, states.Advance("a", domain.StepStateCompleted))
	assert.Error(t, states.Advance("missing", domain.StepStateRunning))

	state, ok := states.Get("a")
	assert.True(t, ok)
	assert.Equal(t, domain.StepStateFailed, state)
}
