package echo

import (
	"context"

	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/ports"
)

// Model is the model name reported to metrics
const Model = "echo"

// Completer returns every prompt unchanged. It needs no credentials and is
// meant for local runs and smoke tests.
type Completer struct {
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewCompleter creates an echo completer. metrics may be nil.
func NewCompleter(metrics ports.MetricsCollector, logger *zap.Logger) *Completer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{metrics: metrics, logger: logger}
}

// Complete returns prompt, or the context error if ctx is already done
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.metrics != nil {
		c.metrics.RecordCompletion(Model, 0, int64(len(prompt)), int64(len(prompt)))
	}
	c.logger.Debug("echo completion", zap.Int("prompt_length", len(prompt)))
	return prompt, nil
}

var _ ports.Completer = (*Completer)(nil)
