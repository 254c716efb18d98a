package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

// EventsTopic is the event bus topic for workflow and step events
const EventsTopic = "workflow.events"

type executionIDKey struct{}

// WithExecutionID returns a context carrying an execution id
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, id)
}

// ExecutionIDFrom returns the execution id carried by ctx, if any
func ExecutionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}

// EventBridge is an engine observer that republishes step events on the
// event bus and records step metrics.
type EventBridge struct {
	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger
}

// NewEventBridge creates a new event bridge. eventBus and metrics may be nil.
func NewEventBridge(eventBus ports.EventBus, metrics ports.MetricsCollector, logger *zap.Logger) *EventBridge {
	return &EventBridge{
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
	}
}

// OnStepEvent implements ports.Observer
func (b *EventBridge) OnStepEvent(ctx context.Context, ev domain.StepEvent) {
	if b.metrics != nil {
		switch ev.Type {
		case domain.EventTypeStepCompleted:
			b.metrics.RecordStepExecuted(string(domain.StepStatusSuccess), time.Duration(ev.DurationMs)*time.Millisecond)
		case domain.EventTypeStepFailed:
			b.metrics.RecordStepExecuted(string(domain.StepStatusError), time.Duration(ev.DurationMs)*time.Millisecond)
		}
	}

	data := map[string]interface{}{
		"label":           ev.Label,
		"resolved_prompt": ev.Prompt,
		"state":           string(ev.State),
	}
	switch ev.Type {
	case domain.EventTypeStepCompleted:
		data["output"] = ev.Output
		data["duration_ms"] = ev.DurationMs
	case domain.EventTypeStepFailed:
		data["duration_ms"] = ev.DurationMs
		if ev.Err != nil {
			data["error"] = ev.Err.Error()
			data["error_kind"] = string(domain.KindOf(ev.Err))
		}
	}

	b.publish(ctx, domain.Event{
		ID:          uuid.New().String(),
		Type:        ev.Type,
		ExecutionID: ExecutionIDFrom(ctx),
		StepID:      ev.StepID,
		Timestamp:   ev.Timestamp,
		Data:        data,
	})
}

// publish sends an event, ignoring cancellation of the execution context
func (b *EventBridge) publish(ctx context.Context, event domain.Event) {
	if b.eventBus == nil {
		return
	}
	if err := b.eventBus.Publish(context.WithoutCancel(ctx), EventsTopic, event); err != nil {
		b.logger.Error("failed to publish event",
			zap.String("execution_id", event.ExecutionID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
