package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/adapters/llm/anthropic"
	"github.com/aescanero/stepchain/pkg/adapters/llm/echo"
	"github.com/aescanero/stepchain/pkg/ports"
)

// Config holds LLM client configuration
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	MaxTokens      int64
	Temperature    float64
	SystemPrompt   string
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	Metrics        ports.MetricsCollector
	Logger         *zap.Logger
}

// NewCompleter creates a completion client based on provider
func NewCompleter(cfg *Config) (ports.Completer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "anthropic":
		client, err := anthropic.NewClient(anthropic.Config{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			MaxTokens:      cfg.MaxTokens,
			Temperature:    cfg.Temperature,
			SystemPrompt:   cfg.SystemPrompt,
			BaseURL:        cfg.BaseURL,
			RequestTimeout: cfg.RequestTimeout,
			MaxRetries:     cfg.MaxRetries,
		}, cfg.Metrics, logger.Named("anthropic"))
		if err != nil {
			return nil, err
		}
		return client, nil
	case "echo":
		return echo.NewCompleter(cfg.Metrics, logger.Named("echo")), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
