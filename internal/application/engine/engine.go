package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

// Dispatcher runs tasks on a bounded set of goroutines. Submit blocks until
// the task is accepted or ctx is done. A task receives a context that is
// already done when the dispatcher stopped before running it.
type Dispatcher interface {
	Submit(ctx context.Context, task func(context.Context)) error
}

// Engine executes workflow graphs. It holds configuration only; every
// Execute call builds its own run state, so an Engine may be shared.
type Engine struct {
	completer  ports.Completer
	logger     *zap.Logger
	observer   ports.Observer
	dispatcher Dispatcher
	validator  *Validator
	strict     bool
	now        func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver sets the observer notified about step lifecycle events.
// With a Dispatcher the observer is called from several goroutines.
func WithObserver(observer ports.Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithDispatcher enables concurrent execution of independent steps
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = dispatcher
	}
}

// WithStrictTemplates makes unresolved placeholders a config error
func WithStrictTemplates(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithClock replaces time.Now for timestamps and durations
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine that calls completer once per step
func NewEngine(completer ports.Completer, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		completer: completer,
		logger:    logger,
		validator: NewValidator(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Validate reports the structural violations of a workflow config
func (e *Engine) Validate(cfg domain.WorkflowConfig) ValidationResult {
	return e.validator.Validate(domain.NewGraph(cfg))
}

// Plan validates a workflow config and returns its step execution order
// without calling the completion provider
func (e *Engine) Plan(cfg domain.WorkflowConfig) ([]string, error) {
	g := domain.NewGraph(cfg)
	if err := e.validator.Validate(g).Err(); err != nil {
		return nil, err
	}
	if err := e.validator.CheckRunnable(g); err != nil {
		return nil, err
	}
	return Sort(g)
}

// Execute runs a workflow against the initial input. Failures are reported
// through the result, never as a Go error: success is false, Error and
// ErrorKind describe the failure and Log keeps the steps attempted so far.
func (e *Engine) Execute(ctx context.Context, cfg domain.WorkflowConfig, initialInput string) *domain.WorkflowExecutionResult {
	r := &run{
		engine:  e,
		graph:   domain.NewGraph(cfg),
		input:   initialInput,
		results: domain.NewExecutionResults(),
		log:     NewExecutionLog(),
		logger:  e.logger.With(zap.String("workflow_id", cfg.ID)),
	}
	return r.execute(ctx)
}

// run is the state of a single Execute call
type run struct {
	engine  *Engine
	graph   *domain.Graph
	input   string
	results *domain.ExecutionResults
	log     *ExecutionLog
	logger  *zap.Logger

	// steps is nil until the execution order is known
	steps *StepStates

	// phase is the last status reached, kept to report where a run failed
	phase domain.ExecutionStatus
}

func (r *run) execute(ctx context.Context) *domain.WorkflowExecutionResult {
	startTime := r.engine.now()

	r.transition(domain.ExecutionStatusValidating)
	if err := r.engine.validator.Validate(r.graph).Err(); err != nil {
		return r.fail(err)
	}
	if err := r.engine.validator.CheckRunnable(r.graph); err != nil {
		return r.fail(err)
	}

	r.transition(domain.ExecutionStatusSorting)
	order, err := Sort(r.graph)
	if err != nil {
		return r.fail(err)
	}

	input := r.graph.NodesOfKind(domain.NodeKindInput)[0]
	if err := r.results.Set(input.ID, r.input); err != nil {
		return r.fail(err)
	}

	r.steps = NewStepStates(order)
	r.transition(domain.ExecutionStatusExecuting)
	if ctx.Err() != nil {
		return r.fail(cancelled(ctx))
	}
	r.logger.Debug("executing workflow",
		zap.Int("steps", len(order)),
		zap.Bool("concurrent", r.engine.dispatcher != nil))

	if r.engine.dispatcher != nil {
		err = r.executeConcurrent(ctx, order)
	} else {
		err = r.executeSequential(ctx, order)
	}
	if err != nil {
		return r.fail(err)
	}

	res := r.aggregate()
	if res.Success {
		r.logger.Info("workflow completed",
			zap.Int("steps", len(order)),
			zap.Duration("duration", r.engine.now().Sub(startTime)))
	}
	return res
}

func (r *run) executeSequential(ctx context.Context, order []string) error {
	for _, id := range order {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}

		node, _ := r.graph.Node(id)
		if err := r.executeStep(ctx, node); err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx)
			}
			return err
		}
	}
	return nil
}

// aggregate reads the final output from the output node's predecessor
func (r *run) aggregate() *domain.WorkflowExecutionResult {
	output := r.graph.NodesOfKind(domain.NodeKindOutput)[0]

	preds := r.graph.Predecessors(output.ID)
	if len(preds) != 1 {
		return r.fail(&domain.ConfigError{
			NodeID: output.ID,
			Msg:    fmt.Sprintf("output node must have exactly one predecessor, found %d", len(preds)),
		})
	}

	text, ok := r.results.Get(preds[0])
	if !ok {
		return r.fail(&domain.ConfigError{
			NodeID: output.ID,
			Msg:    fmt.Sprintf("no result recorded for output predecessor %q", preds[0]),
		})
	}

	return &domain.WorkflowExecutionResult{
		Success:     true,
		FinalOutput: text,
		Log:         r.log.Entries(),
		Steps:       r.steps.Snapshot(),
	}
}

func (r *run) fail(err error) *domain.WorkflowExecutionResult {
	res := domain.NewFailedResult(err, r.log.Entries())
	res.Steps = r.steps.Snapshot()

	r.logger.Warn("workflow failed",
		zap.String("phase", string(r.phase)),
		zap.String("error_kind", string(res.ErrorKind)),
		zap.Int("log_entries", len(res.Log)),
		zap.Error(err))
	return res
}

func (r *run) transition(status domain.ExecutionStatus) {
	r.phase = status
	r.logger.Debug("workflow phase", zap.String("phase", string(status)))
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx))
}
