package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/stepchain/pkg/domain"
)

// Storage implements WorkflowStore and ExecutionStore using in-memory maps.
// Values are copied on the way in and out so callers cannot mutate stored state.
type Storage struct {
	workflows  map[string]*domain.WorkflowConfig
	executions map[string]*domain.ExecutionRecord
	mu         sync.RWMutex
}

// NewStorage creates a new in-memory storage
func NewStorage() *Storage {
	return &Storage{
		workflows:  make(map[string]*domain.WorkflowConfig),
		executions: make(map[string]*domain.ExecutionRecord),
	}
}

// SaveWorkflow stores a workflow config under its id
func (s *Storage) SaveWorkflow(ctx context.Context, cfg *domain.WorkflowConfig) error {
	if cfg == nil || cfg.ID == "" {
		return fmt.Errorf("workflow id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[cfg.ID] = copyWorkflow(cfg)
	return nil
}

// GetWorkflow retrieves a workflow config
func (s *Storage) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	return copyWorkflow(cfg), nil
}

// ListWorkflows returns every stored workflow ordered by id
func (s *Storage) ListWorkflows(ctx context.Context) ([]*domain.WorkflowConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*domain.WorkflowConfig, 0, len(s.workflows))
	for _, cfg := range s.workflows {
		list = append(list, copyWorkflow(cfg))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// DeleteWorkflow removes a workflow config
func (s *Storage) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	delete(s.workflows, id)
	return nil
}

// SaveExecution stores an execution record, replacing any previous version
func (s *Storage) SaveExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("execution id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[rec.ID] = copyExecution(rec)
	return nil
}

// GetExecution retrieves an execution record
func (s *Storage) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, id)
	}
	return copyExecution(rec), nil
}

// ListExecutions returns the ids of all stored executions
func (s *Storage) ListExecutions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.executions))
	for id := range s.executions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteExecution removes an execution record
func (s *Storage) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.executions, id)
	return nil
}

func copyWorkflow(cfg *domain.WorkflowConfig) *domain.WorkflowConfig {
	c := *cfg
	c.Nodes = append([]domain.Node(nil), cfg.Nodes...)
	c.Edges = append([]domain.Edge(nil), cfg.Edges...)
	return &c
}

func copyExecution(rec *domain.ExecutionRecord) *domain.ExecutionRecord {
	c := *rec
	if rec.Result != nil {
		res := *rec.Result
		res.Log = make([]domain.ExecutionLogEntry, len(rec.Result.Log))
		copy(res.Log, rec.Result.Log)
		res.Violations = append([]domain.Violation(nil), rec.Result.Violations...)
		if rec.Result.Steps != nil {
			res.Steps = make(map[string]domain.StepState, len(rec.Result.Steps))
			for id, state := range rec.Result.Steps {
				res.Steps[id] = state
			}
		}
		c.Result = &res
	}
	return &c
}
