package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic checks via errors.Is
var (
	// ErrValidation indicates a structurally invalid graph
	ErrValidation = errors.New("validation error")

	// ErrCycleDetected indicates a dependency cycle between nodes
	ErrCycleDetected = errors.New("cycle detected")

	// ErrProvider indicates a failed completion call
	ErrProvider = errors.New("provider error")

	// ErrConfig indicates a valid graph that cannot produce a result
	ErrConfig = errors.New("config error")

	// ErrCancelled indicates the execution was cancelled or timed out
	ErrCancelled = errors.New("execution cancelled")

	// ErrResultOverwrite indicates a second write to the same result key
	ErrResultOverwrite = errors.New("result already recorded")

	// ErrNotFound indicates a missing workflow or execution
	ErrNotFound = errors.New("not found")
)

// ErrorKind classifies a failed execution for callers
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindProvider   ErrorKind = "provider"
	ErrorKindConfig     ErrorKind = "config"
	ErrorKindCancelled  ErrorKind = "cancelled"
)

// ViolationKind names a structural rule broken by a graph
type ViolationKind string

const (
	ViolationInputCount    ViolationKind = "input_count"
	ViolationOutputCount   ViolationKind = "output_count"
	ViolationDuplicateNode ViolationKind = "duplicate_node"
	ViolationDanglingEdge  ViolationKind = "dangling_edge"
	ViolationOrphanStep    ViolationKind = "orphan_step"
	ViolationCycle         ViolationKind = "cycle"
	ViolationUnknownKind   ViolationKind = "unknown_kind"
)

// Violation is a single structural problem found by the validator
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	NodeID  string        `json:"node_id,omitempty"`
	EdgeID  string        `json:"edge_id,omitempty"`
	Message string        `json:"message"`
}

// ValidationError carries every violation found in a graph
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return ErrValidation.Error()
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	errs := []error{ErrValidation}
	for _, v := range e.Violations {
		if v.Kind == ViolationCycle {
			errs = append(errs, ErrCycleDetected)
			break
		}
	}
	return errs
}

// CycleError reports the node path of a dependency cycle. The first and
// last entries of Path are the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected.Error(), strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// ProviderReason classifies why a completion call failed
type ProviderReason string

const (
	ProviderReasonTimeout   ProviderReason = "timeout"
	ProviderReasonQuota     ProviderReason = "quota"
	ProviderReasonTransport ProviderReason = "transport"
	ProviderReasonAuth      ProviderReason = "auth"
	ProviderReasonUnknown   ProviderReason = "unknown"
)

// ProviderError wraps a failed completion call
type ProviderError struct {
	StepID string
	Reason ProviderReason
	Err    error
}

func (e *ProviderError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = ProviderReasonUnknown
	}
	if e.StepID == "" {
		return fmt.Sprintf("%s (%s): %v", ErrProvider.Error(), reason, e.Err)
	}
	return fmt.Sprintf("%s (%s) in step %s: %v", ErrProvider.Error(), reason, e.StepID, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProvider}
	}
	return []error{ErrProvider, e.Err}
}

// ConfigError reports a graph that is structurally valid but cannot be
// executed to a result
type ConfigError struct {
	NodeID string
	Msg    string
}

func (e *ConfigError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s: %s", ErrConfig.Error(), e.Msg)
	}
	return fmt.Sprintf("%s: node %s: %s", ErrConfig.Error(), e.NodeID, e.Msg)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// KindOf maps an execution error to its ErrorKind. A context error counts as
// cancellation unless a provider reported it; a second result for the same
// node is a config error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return ErrorKindCancelled
	case errors.Is(err, ErrProvider):
		return ErrorKindProvider
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCancelled
	case errors.Is(err, ErrValidation), errors.Is(err, ErrCycleDetected):
		return ErrorKindValidation
	case errors.Is(err, ErrConfig), errors.Is(err, ErrResultOverwrite):
		return ErrorKindConfig
	default:
		return ErrorKindProvider
	}
}
