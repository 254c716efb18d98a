package ports

import (
	"context"
	"time"

	"github.com/aescanero/stepchain/pkg/domain"
)

// Completer is the external text-generation capability. Implementations
// own retries and per-request timeouts; the engine calls Complete exactly
// once per step.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f(ctx, prompt)
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Observer receives step lifecycle events. It must not block for long and
// cannot influence execution.
type Observer interface {
	OnStepEvent(ctx context.Context, event domain.StepEvent)
}

// EventHandler processes an event delivered by an EventBus
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers lifecycle events by topic
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// WorkflowStore loads and saves workflow configs by id
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, cfg *domain.WorkflowConfig) error
	GetWorkflow(ctx context.Context, id string) (*domain.WorkflowConfig, error)
	ListWorkflows(ctx context.Context) ([]*domain.WorkflowConfig, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionStore persists execution records produced by the service
type ExecutionStore interface {
	SaveExecution(ctx context.Context, rec *domain.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error)
	ListExecutions(ctx context.Context) ([]string, error)
	DeleteExecution(ctx context.Context, id string) error
}

// MetricsCollector records engine and service metrics
type MetricsCollector interface {
	RecordWorkflowSubmitted(status string)
	RecordWorkflowExecuted(status string, duration time.Duration)
	RecordStepExecuted(status string, duration time.Duration)
	RecordCompletion(model string, latency time.Duration, inputTokens, outputTokens int64)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetActiveExecutions(count int)
}
