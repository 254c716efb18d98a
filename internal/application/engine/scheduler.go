package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/domain"
)

type stepDone struct {
	id  string
	err error
}

// executeConcurrent dispatches every step whose step dependencies have
// completed. Ready steps are submitted in topological order. After the
// first failure or cancellation nothing new is dispatched; steps already
// in flight are awaited before returning.
func (r *run) executeConcurrent(ctx context.Context, order []string) error {
	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}

	waiting := make(map[string]int, len(order))
	var ready []string
	for _, id := range order {
		for _, pred := range r.graph.Predecessors(id) {
			if _, isStep := position[pred]; isStep {
				waiting[id]++
			}
		}
		if waiting[id] == 0 {
			ready = append(ready, id)
		}
	}

	done := make(chan stepDone, len(order))
	inFlight, completed := 0, 0
	var firstErr error

	dispatch := func() {
		for len(ready) > 0 && firstErr == nil && ctx.Err() == nil {
			id := ready[0]
			ready = ready[1:]
			node, _ := r.graph.Node(id)

			task := func(workerCtx context.Context) {
				var err error
				defer func() {
					if rec := recover(); rec != nil {
						err = &domain.ProviderError{
							StepID: id,
							Reason: domain.ProviderReasonUnknown,
							Err:    fmt.Errorf("step panicked: %v", rec),
						}
					}
					done <- stepDone{id: id, err: err}
				}()
				if workerCtx.Err() != nil {
					err = fmt.Errorf("%w: dispatcher stopped", domain.ErrCancelled)
					return
				}
				err = r.executeStep(ctx, node)
			}

			if err := r.engine.dispatcher.Submit(ctx, task); err != nil {
				r.logger.Warn("failed to dispatch step",
					zap.String("step_id", id),
					zap.Error(err))
				firstErr = fmt.Errorf("%w: %w", domain.ErrCancelled, err)
				return
			}
			inFlight++
		}
	}

	dispatch()
	for inFlight > 0 {
		res := <-done
		inFlight--

		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		completed++

		for _, succ := range r.graph.Successors(res.id) {
			if _, isStep := position[succ]; !isStep {
				continue
			}
			waiting[succ]--
			if waiting[succ] == 0 {
				ready = append(ready, succ)
			}
		}
		sort.Slice(ready, func(i, j int) bool {
			return position[ready[i]] < position[ready[j]]
		})
		dispatch()
	}

	if ctx.Err() != nil && (firstErr != nil || completed < len(order)) {
		return cancelled(ctx)
	}
	return firstErr
}
