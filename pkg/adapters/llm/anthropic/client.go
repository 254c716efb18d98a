package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

// Config holds Anthropic client settings
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int64
	Temperature    float64
	SystemPrompt   string
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
}

// Client implements ports.Completer with the Anthropic Messages API.
// Retries and per-request timeouts are handled by the SDK.
type Client struct {
	client  anthropic.Client
	cfg     Config
	metrics ports.MetricsCollector
	logger  *zap.Logger
}

// NewClient creates a new Anthropic completion client. metrics and logger
// may be nil.
func NewClient(cfg Config, metrics ports.MetricsCollector, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}

	return &Client{
		client:  anthropic.NewClient(opts...),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Complete sends prompt as a single user message and returns the text of
// the reply
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(c.cfg.Temperature),
	}
	if c.cfg.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.cfg.SystemPrompt}}
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		perr := classify(err)
		c.logger.Warn("anthropic completion failed",
			zap.String("model", c.cfg.Model),
			zap.String("reason", string(perr.Reason)),
			zap.Duration("latency", latency),
			zap.Error(err))
		return "", perr
	}

	if c.metrics != nil {
		c.metrics.RecordCompletion(c.cfg.Model, latency, msg.Usage.InputTokens, msg.Usage.OutputTokens)
	}

	var text strings.Builder
	found := false
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			found = true
		}
	}
	if !found {
		return "", &domain.ProviderError{
			Reason: domain.ProviderReasonUnknown,
			Err:    fmt.Errorf("anthropic response has no text content (stop reason %q)", msg.StopReason),
		}
	}

	c.logger.Debug("anthropic completion",
		zap.String("model", c.cfg.Model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.Duration("latency", latency))

	return text.String(), nil
}

// classify maps an SDK error to a provider failure reason
func classify(err error) *domain.ProviderError {
	reason := domain.ProviderReasonTransport

	var apiErr *anthropic.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = domain.ProviderReasonTimeout
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			reason = domain.ProviderReasonAuth
		case apiErr.StatusCode == http.StatusTooManyRequests:
			reason = domain.ProviderReasonQuota
		case apiErr.StatusCode == http.StatusRequestTimeout, apiErr.StatusCode == http.StatusGatewayTimeout:
			reason = domain.ProviderReasonTimeout
		case apiErr.StatusCode >= 500:
			reason = domain.ProviderReasonTransport
		default:
			reason = domain.ProviderReasonUnknown
		}
	}

	return &domain.ProviderError{
		Reason: reason,
		Err:    fmt.Errorf("anthropic messages: %w", err),
	}
}
