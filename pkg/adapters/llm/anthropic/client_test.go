package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/stepchain/pkg/adapters/llm/anthropic"
	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

type completionMetrics struct {
	mu            sync.Mutex
	model         string
	input, output int64
	calls         int
}

func (m *completionMetrics) RecordWorkflowSubmitted(string)               {}
func (m *completionMetrics) RecordWorkflowExecuted(string, time.Duration) {}
func (m *completionMetrics) RecordStepExecuted(string, time.Duration)     {}
func (m *completionMetrics) RecordWorkerPoolStatus(int, int, int)         {}
func (m *completionMetrics) SetActiveExecutions(int)                      {}
func (m *completionMetrics) RecordCompletion(model string, _ time.Duration, in, out int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model, m.input, m.output = model, in, out
	m.calls++
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, baseURL string, metrics ports.MetricsCollector) *anthropic.Client {
	t.Helper()
	c, err := anthropic.NewClient(anthropic.Config{
		APIKey:      "test-key",
		Model:       "claude-test",
		MaxTokens:   256,
		Temperature: 0.2,
		BaseURL:     baseURL,
		MaxRetries:  0,
	}, metrics, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func writeError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"type":"error","error":{"type":"`+kind+`","message":"test failure"}}`)
}

func TestComplete(t *testing.T) {
	var body map[string]interface{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "Bonjour"}, {"type": "text", "text": " le monde"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 11, "output_tokens": 4}
		}`)
	})

	metrics := &completionMetrics{}
	out, err := newClient(t, srv.URL, metrics).Complete(context.Background(), "Translate: hello world")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour le monde", out)

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 256, body["max_tokens"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]interface{})["role"])

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, int64(11), metrics.input)
	assert.Equal(t, int64(4), metrics.output)
}

func TestCompleteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   string
		want   domain.ProviderReason
	}{
		{"unauthorized", http.StatusUnauthorized, "authentication_error", domain.ProviderReasonAuth},
		{"forbidden", http.StatusForbidden, "permission_error", domain.ProviderReasonAuth},
		{"rate limited", http.StatusTooManyRequests, "rate_limit_error", domain.ProviderReasonQuota},
		{"server error", http.StatusInternalServerError, "api_error", domain.ProviderReasonTransport},
		{"bad request", http.StatusBadRequest, "invalid_request_error", domain.ProviderReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, tt.status, tt.kind)
			})

			_, err := newClient(t, srv.URL, nil).Complete(context.Background(), "hi")
			require.Error(t, err)

			var perr *domain.ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.want, perr.Reason)
			assert.ErrorIs(t, err, domain.ErrProvider)
		})
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(t, srv.URL, nil).Complete(ctx, "hi")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.ProviderReasonTimeout, perr.Reason)
}

func TestCompleteTransportFailure(t *testing.T) {
	srv := newServer(t, func(http.ResponseWriter, *http.Request) {})
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url, nil).Complete(context.Background(), "hi")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.ProviderReasonTransport, perr.Reason)
}

func TestNewClientRequiresKeyAndModel(t *testing.T) {
	_, err := anthropic.NewClient(anthropic.Config{Model: "m"}, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = anthropic.NewClient(anthropic.Config{APIKey: "k"}, nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewClientWithoutLogger(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "authentication_error")
	})

	c, err := anthropic.NewClient(anthropic.Config{
		APIKey:  "test-key",
		Model:   "claude-test",
		BaseURL: srv.URL,
	}, nil, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hi")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.ProviderReasonAuth, perr.Reason)
}
