package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/stepchain/internal/application/engine"
	"github.com/aescanero/stepchain/internal/application/workers"
	"github.com/aescanero/stepchain/pkg/domain"
)

func diamondWorkflow() domain.WorkflowConfig {
	return workflow(
		[]domain.Node{
			inputNode("I"),
			stepNode("A", "Left", "A:{I}"),
			stepNode("B", "Right", "B:{I}"),
			stepNode("C", "Join", "C:{A}+{B}"),
			outputNode("O"),
		},
		edge("I", "A"), edge("I", "B"), edge("A", "C"), edge("B", "C"), edge("C", "O"),
	)
}

func TestConcurrentRunsIndependentStepsTogether(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	both := make(chan struct{})
	go func() {
		started.Wait()
		close(both)
	}()

	stub := newStub(func(_ context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "A:") || strings.HasPrefix(prompt, "B:") {
			started.Done()
			select {
			case <-both:
			case <-time.After(5 * time.Second):
				return "", errors.New("branches did not overlap")
			}
			return prompt[:1], nil
		}
		return prompt, nil
	})
	eng := engine.NewEngine(stub, zaptest.NewLogger(t), engine.WithDispatcher(goDispatcher{}))

	res := eng.Execute(context.Background(), diamondWorkflow(), "x")

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "C:A+B", res.FinalOutput)
	assert.Len(t, res.Log, 3)
	assert.Equal(t, "C", res.Log[2].StepID)
}

func TestConcurrentFailFast(t *testing.T) {
	stub := newStub(func(_ context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "A:") {
			return "", errors.New("rate limited")
		}
		return "ok", nil
	})
	eng := engine.NewEngine(stub, zaptest.NewLogger(t), engine.WithDispatcher(goDispatcher{}))

	res := eng.Execute(context.Background(), diamondWorkflow(), "x")

	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorKindProvider, res.ErrorKind)
	for _, p := range stub.Prompts() {
		assert.False(t, strings.HasPrefix(p, "C:"), "join step must not run")
	}
	var perr *domain.ProviderError
	require.ErrorAs(t, res.Cause(), &perr)
	assert.Equal(t, "A", perr.StepID)
}

func TestConcurrentLinearChainMatchesSequential(t *testing.T) {
	seq := engine.NewEngine(echoStub(), zaptest.NewLogger(t), engine.WithClock(fixedClock()))
	con := engine.NewEngine(echoStub(), zaptest.NewLogger(t),
		engine.WithClock(fixedClock()), engine.WithDispatcher(goDispatcher{}))

	want := seq.Execute(context.Background(), linearWorkflow(5), "in")
	got := con.Execute(context.Background(), linearWorkflow(5), "in")

	assert.Equal(t, want, got)
}

func TestConcurrentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := newStub(func(ctx context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "A:") {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	})
	eng := engine.NewEngine(stub, zaptest.NewLogger(t), engine.WithDispatcher(goDispatcher{}))

	res := eng.Execute(ctx, diamondWorkflow(), "x")

	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorKindCancelled, res.ErrorKind)
	for _, p := range stub.Prompts() {
		assert.False(t, strings.HasPrefix(p, "C:"))
	}
}

type refusingDispatcher struct{}

func (refusingDispatcher) Submit(context.Context, func(context.Context)) error {
	return workers.ErrPoolClosed
}

func TestConcurrentDispatcherRefusal(t *testing.T) {
	stub := echoStub()
	eng := engine.NewEngine(stub, zaptest.NewLogger(t), engine.WithDispatcher(refusingDispatcher{}))

	res := eng.Execute(context.Background(), diamondWorkflow(), "x")

	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrorKindCancelled, res.ErrorKind)
	assert.ErrorIs(t, res.Cause(), workers.ErrPoolClosed)
	assert.Zero(t, stub.Calls())
}

func TestConcurrentWithWorkerPool(t *testing.T) {
	pool := workers.NewPool(2, nil, zaptest.NewLogger(t), time.Hour)
	require.NoError(t, pool.Start())
	defer func() { _ = pool.Shutdown(context.Background()) }()

	eng := engine.NewEngine(echoStub(), zaptest.NewLogger(t), engine.WithDispatcher(pool))

	for i := 0; i < 5; i++ {
		res := eng.Execute(context.Background(), diamondWorkflow(), "x")
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "C:A:x+B:x", res.FinalOutput)
	}
}

func TestConcurrentAfterPoolShutdown(t *testing.T) {
	pool := workers.NewPool(1, nil, zaptest.NewLogger(t), time.Hour)
	require.NoError(t, pool.Start())
	require.NoError(t, pool.Shutdown(context.Background()))

	stub := echoStub()
	eng := engine.NewEngine(stub, zaptest.NewLogger(t), engine.WithDispatcher(pool))

	res := eng.Execute(context.Background(), diamondWorkflow(), "x")

	assert.Equal(t, domain.ErrorKindCancelled, res.ErrorKind)
	assert.Zero(t, stub.Calls())
}
