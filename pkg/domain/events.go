package domain

import "time"

// EventType names a lifecycle event
type EventType string

const (
	EventTypeWorkflowStarted   EventType = "workflow.started"
	EventTypeWorkflowCompleted EventType = "workflow.completed"
	EventTypeWorkflowFailed    EventType = "workflow.failed"
	EventTypeStepStarted       EventType = "step.started"
	EventTypeStepCompleted     EventType = "step.completed"
	EventTypeStepFailed        EventType = "step.failed"
)

// Event is a lifecycle notification emitted during execution
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	StepID      string                 `json:"step_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// StepEvent is what the engine reports to observers about one step
type StepEvent struct {
	Type       EventType
	StepID     string
	State      StepState
	Label      string
	Prompt     string
	Output     string
	DurationMs int64
	Err        error
	Timestamp  time.Time
}
