package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/stepchain/internal/application/template"
	"github.com/aescanero/stepchain/pkg/domain"
)

// executeStep runs one step: gather upstream text, render the prompt, call
// the completion provider, then record the result and a log entry
func (r *run) executeStep(ctx context.Context, node *domain.Node) error {
	logger := r.logger.With(zap.String("step_id", node.ID))
	startTime := r.engine.now()

	if err := r.steps.Advance(node.ID, domain.StepStateRunning); err != nil {
		return err
	}

	tpl := template.Parse(node.PromptTemplate)
	vars := r.bindings(node)
	prompt := tpl.Render(vars)

	r.notify(ctx, domain.StepEvent{
		Type:      domain.EventTypeStepStarted,
		StepID:    node.ID,
		State:     domain.StepStateRunning,
		Label:     node.Label,
		Prompt:    prompt,
		Timestamp: startTime.UTC(),
	})

	if r.engine.strict {
		if _, err := tpl.RenderStrict(vars); err != nil {
			return r.stepFailed(ctx, node, prompt, startTime, &domain.ConfigError{
				NodeID: node.ID,
				Msg:    err.Error(),
			})
		}
	}

	logger.Debug("calling completion provider", zap.Int("prompt_length", len(prompt)))

	output, err := r.complete(ctx, prompt)
	if err != nil {
		return r.stepFailed(ctx, node, prompt, startTime, providerError(node.ID, err))
	}

	if err := r.results.Set(node.ID, output); err != nil {
		return r.stepFailed(ctx, node, prompt, startTime, err)
	}

	r.advance(node.ID, domain.StepStateCompleted)

	duration := r.engine.now().Sub(startTime)
	r.log.Append(domain.ExecutionLogEntry{
		StepID:         node.ID,
		Label:          node.Label,
		Timestamp:      startTime.UTC(),
		ResolvedPrompt: prompt,
		Output:         output,
		DurationMs:     duration.Milliseconds(),
		Status:         domain.StepStatusSuccess,
	})

	r.notify(ctx, domain.StepEvent{
		Type:       domain.EventTypeStepCompleted,
		StepID:     node.ID,
		State:      domain.StepStateCompleted,
		Label:      node.Label,
		Prompt:     prompt,
		Output:     output,
		DurationMs: duration.Milliseconds(),
		Timestamp:  r.engine.now().UTC(),
	})

	logger.Debug("step completed", zap.Duration("duration", duration))
	return nil
}

func (r *run) stepFailed(
	ctx context.Context, node *domain.Node, prompt string, startTime time.Time, err error,
) error {
	r.advance(node.ID, domain.StepStateFailed)

	duration := r.engine.now().Sub(startTime)
	r.log.Append(domain.ExecutionLogEntry{
		StepID:         node.ID,
		Label:          node.Label,
		Timestamp:      startTime.UTC(),
		ResolvedPrompt: prompt,
		DurationMs:     duration.Milliseconds(),
		Status:         domain.StepStatusError,
		Error:          err.Error(),
	})

	r.notify(ctx, domain.StepEvent{
		Type:       domain.EventTypeStepFailed,
		StepID:     node.ID,
		State:      domain.StepStateFailed,
		Label:      node.Label,
		Prompt:     prompt,
		DurationMs: duration.Milliseconds(),
		Err:        err,
		Timestamp:  r.engine.now().UTC(),
	})

	r.logger.Warn("step failed",
		zap.String("step_id", node.ID),
		zap.Duration("duration", duration),
		zap.Error(err))
	return err
}

// bindings collects the text of the step's direct predecessors
func (r *run) bindings(node *domain.Node) template.Vars {
	preds := r.graph.Predecessors(node.ID)
	upstream := make([]template.Upstream, 0, len(preds))
	for _, id := range preds {
		text, ok := r.results.Get(id)
		if !ok {
			continue
		}
		pred, _ := r.graph.Node(id)
		upstream = append(upstream, template.Upstream{ID: id, Label: pred.Label, Text: text})
	}
	return template.BindUpstream(r.input, upstream)
}

// complete calls the completion provider. A panicking provider is
// reported as a provider failure.
func (r *run) complete(ctx context.Context, prompt string) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = ""
			err = &domain.ProviderError{
				Reason: domain.ProviderReasonUnknown,
				Err:    fmt.Errorf("completion panicked: %v", rec),
			}
		}
	}()
	return r.engine.completer.Complete(ctx, prompt)
}

// advance records a terminal step state. The running transition already
// succeeded, so a failure here means the step finished twice.
func (r *run) advance(stepID string, state domain.StepState) {
	if err := r.steps.Advance(stepID, state); err != nil {
		r.logger.Error("invalid step transition", zap.Error(err))
	}
}

// notify delivers an event to the observer. A panicking observer is logged
// and otherwise ignored.
func (r *run) notify(ctx context.Context, event domain.StepEvent) {
	if r.engine.observer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("step observer panicked",
				zap.String("step_id", event.StepID),
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", rec))
		}
	}()
	r.engine.observer.OnStepEvent(ctx, event)
}

// providerError attaches the step id to a completion failure, keeping the
// reason when the provider already classified it
func providerError(stepID string, err error) error {
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return &domain.ProviderError{StepID: stepID, Reason: perr.Reason, Err: perr.Err}
	}

	reason := domain.ProviderReasonUnknown
	if errors.Is(err, context.DeadlineExceeded) {
		reason = domain.ProviderReasonTimeout
	}
	return &domain.ProviderError{
		StepID: stepID,
		Reason: reason,
		Err:    fmt.Errorf("completion failed: %w", err),
	}
}
