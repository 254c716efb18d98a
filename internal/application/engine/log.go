package engine

import (
	"fmt"
	"sync"

	"github.com/aescanero/stepchain/pkg/domain"
)

// ExecutionLog is an append-only record of step attempts, safe for
// concurrent use
type ExecutionLog struct {
	mu      sync.Mutex
	entries []domain.ExecutionLogEntry
}

// NewExecutionLog creates an empty log
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{entries: []domain.ExecutionLogEntry{}}
}

// Append adds an entry to the end of the log
func (l *ExecutionLog) Append(entry domain.ExecutionLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the entries in append order
func (l *ExecutionLog) Entries() []domain.ExecutionLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]domain.ExecutionLogEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// Len returns the number of entries
func (l *ExecutionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// StepStates tracks every step of a run through
// pending -> running -> completed|failed
type StepStates struct {
	mu     sync.Mutex
	states map[string]domain.StepState
}

// NewStepStates marks every step pending
func NewStepStates(stepIDs []string) *StepStates {
	states := make(map[string]domain.StepState, len(stepIDs))
	for _, id := range stepIDs {
		states[id] = domain.StepStatePending
	}
	return &StepStates{states: states}
}

// Advance moves a step forward. Unknown steps and backward or repeated
// transitions are rejected.
func (s *StepStates) Advance(stepID string, next domain.StepState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[stepID]
	if !ok {
		return fmt.Errorf("unknown step %s", stepID)
	}
	if !current.CanAdvance(next) {
		return fmt.Errorf("step %s cannot move from %s to %s", stepID, current, next)
	}
	s.states[stepID] = next
	return nil
}

// Get returns the current state of a step
func (s *StepStates) Get(stepID string) (domain.StepState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[stepID]
	return state, ok
}

// Snapshot returns a copy of all states, or nil for a nil tracker
func (s *StepStates) Snapshot() map[string]domain.StepState {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.StepState, len(s.states))
	for id, state := range s.states {
		out[id] = state
	}
	return out
}
