package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/stepchain/internal/application/engine"
	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

var (
	// ErrExecutionFinished is returned when cancelling an execution that
	// already reached a terminal status
	ErrExecutionFinished = errors.New("execution already in terminal state")

	// ErrShuttingDown is returned for submissions after Shutdown
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// Manager coordinates workflow execution
type Manager struct {
	engine     *engine.Engine
	workflows  ports.WorkflowStore
	executions ports.ExecutionStore
	events     *EventBridge
	metrics    ports.MetricsCollector
	logger     *zap.Logger

	// Track active executions
	active      sync.Map // map[string]*executionContext
	activeCount atomic.Int64
	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool

	workflowTimeout time.Duration
	now             func() time.Time
}

// executionContext holds state for a single background execution
type executionContext struct {
	cancelFunc context.CancelFunc
}

// NewManager creates a new orchestrator manager. The engine should report
// to an observer built by NewEventBridge over the same bus and metrics.
func NewManager(
	eng *engine.Engine,
	workflows ports.WorkflowStore,
	executions ports.ExecutionStore,
	events *EventBridge,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	workflowTimeout time.Duration,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = NewEventBridge(nil, nil, logger)
	}
	return &Manager{
		engine:          eng,
		workflows:       workflows,
		executions:      executions,
		events:          events,
		metrics:         metrics,
		logger:          logger,
		workflowTimeout: workflowTimeout,
		now:             time.Now,
	}
}

// SaveWorkflow validates a workflow config and stores it. An empty id is
// replaced with a generated one.
func (m *Manager) SaveWorkflow(ctx context.Context, cfg *domain.WorkflowConfig) (*domain.WorkflowConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: workflow config is required", domain.ErrValidation)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	if _, err := m.engine.Plan(*cfg); err != nil {
		m.logger.Info("rejected invalid workflow",
			zap.String("workflow_id", cfg.ID),
			zap.Error(err))
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := m.workflows.SaveWorkflow(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	m.logger.Info("workflow saved",
		zap.String("workflow_id", cfg.ID),
		zap.Int("nodes", len(cfg.Nodes)),
		zap.Int("edges", len(cfg.Edges)))
	return cfg, nil
}

// GetWorkflow loads a stored workflow config
func (m *Manager) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowConfig, error) {
	return m.workflows.GetWorkflow(ctx, id)
}

// ListWorkflows returns all stored workflow configs
func (m *Manager) ListWorkflows(ctx context.Context) ([]*domain.WorkflowConfig, error) {
	return m.workflows.ListWorkflows(ctx)
}

// DeleteWorkflow removes a stored workflow config
func (m *Manager) DeleteWorkflow(ctx context.Context, id string) error {
	if err := m.workflows.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	m.logger.Info("workflow deleted", zap.String("workflow_id", id))
	return nil
}

// Run executes a workflow synchronously and returns the finished record.
// An error is returned only when the record cannot be stored; workflow
// failures are reported through the record's result.
func (m *Manager) Run(ctx context.Context, cfg domain.WorkflowConfig, input string) (*domain.ExecutionRecord, error) {
	if m.isClosed() {
		return nil, ErrShuttingDown
	}

	rec := m.newRecord(cfg, input)
	if err := m.executions.SaveExecution(ctx, rec); err != nil {
		m.recordSubmitted(domain.ExecutionStatusFailed)
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}
	m.recordSubmitted(domain.ExecutionStatusSubmitted)

	runCtx := ctx
	if m.workflowTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.workflowTimeout)
		defer cancel()
	}

	m.execute(runCtx, rec, cfg)
	return rec, nil
}

// RunWorkflow loads a stored workflow and runs it synchronously
func (m *Manager) RunWorkflow(ctx context.Context, workflowID, input string) (*domain.ExecutionRecord, error) {
	cfg, err := m.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, *cfg, input)
}

// Submit validates a workflow and starts it in the background. It returns
// the execution id used by GetExecution and CancelExecution.
func (m *Manager) Submit(ctx context.Context, cfg domain.WorkflowConfig, input string) (string, error) {
	if m.isClosed() {
		return "", ErrShuttingDown
	}

	if _, err := m.engine.Plan(cfg); err != nil {
		m.logger.Info("workflow validation failed",
			zap.String("workflow_id", cfg.ID),
			zap.Error(err))
		m.recordSubmitted(domain.ExecutionStatusFailed)
		return "", fmt.Errorf("validation failed: %w", err)
	}

	rec := m.newRecord(cfg, input)
	if err := m.executions.SaveExecution(ctx, rec); err != nil {
		m.logger.Error("failed to save initial execution record",
			zap.String("execution_id", rec.ID),
			zap.Error(err))
		m.recordSubmitted(domain.ExecutionStatusFailed)
		return "", fmt.Errorf("failed to save execution: %w", err)
	}

	// the execution outlives the submitting request
	var execCtx context.Context
	var cancel context.CancelFunc
	if m.workflowTimeout > 0 {
		execCtx, cancel = context.WithTimeout(context.Background(), m.workflowTimeout)
	} else {
		execCtx, cancel = context.WithCancel(context.Background())
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return "", ErrShuttingDown
	}
	m.active.Store(rec.ID, &executionContext{cancelFunc: cancel})
	m.wg.Add(1)
	m.mu.Unlock()

	m.recordSubmitted(domain.ExecutionStatusSubmitted)
	m.logger.Info("workflow submitted",
		zap.String("execution_id", rec.ID),
		zap.String("workflow_id", cfg.ID))

	go func() {
		defer m.wg.Done()
		defer m.active.Delete(rec.ID)
		defer cancel()
		m.execute(execCtx, rec, cfg)
	}()

	return rec.ID, nil
}

// SubmitWorkflow loads a stored workflow and submits it
func (m *Manager) SubmitWorkflow(ctx context.Context, workflowID, input string) (string, error) {
	cfg, err := m.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	return m.Submit(ctx, *cfg, input)
}

// GetExecution retrieves the current record of an execution
func (m *Manager) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	return m.executions.GetExecution(ctx, id)
}

// ListExecutions returns the ids of stored executions
func (m *Manager) ListExecutions(ctx context.Context) ([]string, error) {
	return m.executions.ListExecutions(ctx)
}

// CancelExecution cancels a running background execution. The record
// becomes cancelled once the engine has stopped.
func (m *Manager) CancelExecution(ctx context.Context, id string) error {
	val, ok := m.active.Load(id)
	if !ok {
		rec, err := m.executions.GetExecution(ctx, id)
		if err != nil {
			return err
		}
		if !rec.Status.IsTerminal() {
			return fmt.Errorf("%w: execution %s is not running on this instance", domain.ErrNotFound, id)
		}
		return fmt.Errorf("%w: %s", ErrExecutionFinished, rec.Status)
	}

	val.(*executionContext).cancelFunc()

	m.logger.Info("workflow execution cancelled", zap.String("execution_id", id))
	return nil
}

// ActiveExecutions returns the number of executions currently running
func (m *Manager) ActiveExecutions() int {
	return int(m.activeCount.Load())
}

// execute runs the engine and keeps the record and event bus up to date
func (m *Manager) execute(ctx context.Context, rec *domain.ExecutionRecord, cfg domain.WorkflowConfig) {
	logger := m.logger.With(zap.String("execution_id", rec.ID))
	ctx = WithExecutionID(ctx, rec.ID)

	m.setActive(1)
	defer m.setActive(-1)

	startedAt := m.now().UTC()
	rec.Status = domain.ExecutionStatusExecuting
	rec.StartedAt = &startedAt
	m.save(ctx, rec)

	m.events.publish(ctx, domain.Event{
		ID:          uuid.New().String(),
		Type:        domain.EventTypeWorkflowStarted,
		ExecutionID: rec.ID,
		Timestamp:   startedAt,
		Data: map[string]interface{}{
			"workflow_id": cfg.ID,
		},
	})

	res := m.engine.Execute(ctx, cfg, rec.Input)

	completedAt := m.now().UTC()
	rec.Result = res
	rec.CompletedAt = &completedAt
	rec.Status = statusOf(ctx, res)
	m.save(ctx, rec)

	duration := completedAt.Sub(startedAt)
	if m.metrics != nil {
		m.metrics.RecordWorkflowExecuted(string(rec.Status), duration)
	}

	event := domain.Event{
		ID:          uuid.New().String(),
		Type:        domain.EventTypeWorkflowCompleted,
		ExecutionID: rec.ID,
		Timestamp:   completedAt,
		Data: map[string]interface{}{
			"status":      string(rec.Status),
			"duration_ms": duration.Milliseconds(),
		},
	}
	if res.Success {
		event.Data["final_output"] = res.FinalOutput
	} else {
		event.Type = domain.EventTypeWorkflowFailed
		event.Data["error"] = res.Error
		event.Data["error_kind"] = string(res.ErrorKind)
	}
	m.events.publish(ctx, event)

	logger.Info("workflow execution finished",
		zap.String("status", string(rec.Status)),
		zap.Int("steps", len(res.Log)),
		zap.Duration("duration", duration))
}

// statusOf maps an engine result to the record status. Hitting the
// workflow timeout counts as a failure, not a cancellation.
func statusOf(ctx context.Context, res *domain.WorkflowExecutionResult) domain.ExecutionStatus {
	switch {
	case res.Success:
		return domain.ExecutionStatusCompleted
	case res.ErrorKind == domain.ErrorKindCancelled && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.ExecutionStatusCancelled
	default:
		return domain.ExecutionStatusFailed
	}
}

func (m *Manager) newRecord(cfg domain.WorkflowConfig, input string) *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		ID:          uuid.New().String(),
		WorkflowID:  cfg.ID,
		Status:      domain.ExecutionStatusSubmitted,
		Input:       input,
		SubmittedAt: m.now().UTC(),
	}
}

// save stores a copy of rec, outliving cancellation of the execution
func (m *Manager) save(ctx context.Context, rec *domain.ExecutionRecord) {
	snapshot := *rec
	if err := m.executions.SaveExecution(context.WithoutCancel(ctx), &snapshot); err != nil {
		m.logger.Error("failed to save execution record",
			zap.String("execution_id", rec.ID),
			zap.String("status", string(rec.Status)),
			zap.Error(err))
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) setActive(delta int64) {
	n := m.activeCount.Add(delta)
	if m.metrics != nil {
		m.metrics.SetActiveExecutions(int(n))
	}
}

func (m *Manager) recordSubmitted(status domain.ExecutionStatus) {
	if m.metrics != nil {
		m.metrics.RecordWorkflowSubmitted(string(status))
	}
}

// Shutdown cancels every background execution and waits for them to
// record their final status
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.active.Range(func(key, value interface{}) bool {
		value.(*executionContext).cancelFunc()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}
