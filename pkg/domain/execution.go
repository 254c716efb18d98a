package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// StepStatus is the outcome recorded for a single step
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
)

// StepState tracks a step through pending -> running -> completed|failed
type StepState string

const (
	StepStatePending   StepState = "pending"
	StepStateRunning   StepState = "running"
	StepStateCompleted StepState = "completed"
	StepStateFailed    StepState = "failed"
)

// CanAdvance reports whether a step may move from s to next
func (s StepState) CanAdvance(next StepState) bool {
	switch s {
	case StepStatePending:
		return next == StepStateRunning
	case StepStateRunning:
		return next == StepStateCompleted || next == StepStateFailed
	default:
		return false
	}
}

// ExecutionStatus tracks a workflow run. Transitions only move forward:
// validating -> sorting -> executing -> completed|failed|cancelled.
type ExecutionStatus string

const (
	ExecutionStatusSubmitted  ExecutionStatus = "submitted"
	ExecutionStatusValidating ExecutionStatus = "validating"
	ExecutionStatusSorting    ExecutionStatus = "sorting"
	ExecutionStatusExecuting  ExecutionStatus = "executing"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted ||
		s == ExecutionStatusFailed ||
		s == ExecutionStatusCancelled
}

// ExecutionLogEntry records one step attempt
type ExecutionLogEntry struct {
	StepID         string     `json:"step_id"`
	Label          string     `json:"label,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	ResolvedPrompt string     `json:"resolved_prompt"`
	Output         string     `json:"output"`
	DurationMs     int64      `json:"duration_ms"`
	Status         StepStatus `json:"status"`
	Error          string     `json:"error,omitempty"`
}

// WorkflowExecutionResult is the outcome of one Execute call
type WorkflowExecutionResult struct {
	Success     bool                `json:"success"`
	FinalOutput string              `json:"final_output,omitempty"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   ErrorKind           `json:"error_kind,omitempty"`
	Violations  []Violation         `json:"violations,omitempty"`
	Log         []ExecutionLogEntry `json:"log"`

	// Steps holds the final state of every step once execution began;
	// steps left pending were never started
	Steps map[string]StepState `json:"steps,omitempty"`

	cause error
}

// NewFailedResult builds an unsuccessful result from a typed error
func NewFailedResult(err error, log []ExecutionLogEntry) *WorkflowExecutionResult {
	if log == nil {
		log = []ExecutionLogEntry{}
	}
	res := &WorkflowExecutionResult{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: KindOf(err),
		Log:       log,
		cause:     err,
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		res.Violations = verr.Violations
	}
	return res
}

// Cause returns the typed error behind an unsuccessful result. It is not
// serialized and is nil for results read back from storage.
func (r *WorkflowExecutionResult) Cause() error {
	return r.cause
}

// ExecutionResults holds the text produced by, or seeded into, each node.
// Every key is written at most once per run.
type ExecutionResults struct {
	mu      sync.RWMutex
	results map[string]string
}

// NewExecutionResults creates an empty result set
func NewExecutionResults() *ExecutionResults {
	return &ExecutionResults{results: make(map[string]string)}
}

// Set records the text for a node
func (r *ExecutionResults) Set(nodeID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.results[nodeID]; exists {
		return fmt.Errorf("%w: %s", ErrResultOverwrite, nodeID)
	}
	r.results[nodeID] = text
	return nil
}

// Get returns the text recorded for a node
func (r *ExecutionResults) Get(nodeID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	text, ok := r.results[nodeID]
	return text, ok
}

// Len returns the number of recorded results
func (r *ExecutionResults) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.results)
}

// ExecutionRecord is what the orchestration service keeps about a run
type ExecutionRecord struct {
	ID          string                   `json:"id"`
	WorkflowID  string                   `json:"workflow_id,omitempty"`
	Status      ExecutionStatus          `json:"status"`
	Input       string                   `json:"input"`
	Result      *WorkflowExecutionResult `json:"result,omitempty"`
	SubmittedAt time.Time                `json:"submitted_at"`
	StartedAt   *time.Time               `json:"started_at,omitempty"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}
