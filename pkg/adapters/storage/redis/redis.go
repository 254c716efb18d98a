package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/domain"
)

const (
	workflowPrefix  = "stepchain:workflow:"
	executionPrefix = "stepchain:execution:"
)

// Storage implements WorkflowStore and ExecutionStore using Redis. Workflows
// are kept until deleted; execution records expire after the configured TTL.
type Storage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStorage creates a new Redis storage. A zero ttl keeps execution
// records forever.
func NewStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Storage {
	return &Storage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveWorkflow stores a workflow config under its id
func (s *Storage) SaveWorkflow(ctx context.Context, cfg *domain.WorkflowConfig) error {
	if cfg == nil || cfg.ID == "" {
		return fmt.Errorf("workflow id is required")
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	if err := s.client.Set(ctx, workflowPrefix+cfg.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.Debug("workflow saved", zap.String("workflow_id", cfg.ID))
	return nil
}

// GetWorkflow retrieves a workflow config
func (s *Storage) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowConfig, error) {
	var cfg domain.WorkflowConfig
	if err := s.load(ctx, workflowPrefix+id, &cfg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return &cfg, nil
}

// ListWorkflows returns every stored workflow ordered by id
func (s *Storage) ListWorkflows(ctx context.Context) ([]*domain.WorkflowConfig, error) {
	ids, err := s.scanIDs(ctx, workflowPrefix)
	if err != nil {
		return nil, err
	}

	list := make([]*domain.WorkflowConfig, 0, len(ids))
	for _, id := range ids {
		cfg, err := s.GetWorkflow(ctx, id)
		if err != nil {
			// deleted between scan and get
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		list = append(list, cfg)
	}
	return list, nil
}

// DeleteWorkflow removes a workflow config
func (s *Storage) DeleteWorkflow(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, workflowPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	return nil
}

// SaveExecution stores an execution record and refreshes its TTL
func (s *Storage) SaveExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("execution id is required")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	if err := s.client.Set(ctx, executionPrefix+rec.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	s.logger.Debug("execution saved",
		zap.String("execution_id", rec.ID),
		zap.String("status", string(rec.Status)))
	return nil
}

// GetExecution retrieves an execution record
func (s *Storage) GetExecution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	if err := s.load(ctx, executionPrefix+id, &rec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return &rec, nil
}

// ListExecutions returns the ids of all stored executions
func (s *Storage) ListExecutions(ctx context.Context) ([]string, error) {
	return s.scanIDs(ctx, executionPrefix)
}

// DeleteExecution removes an execution record
func (s *Storage) DeleteExecution(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, executionPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete execution: %w", err)
	}
	return nil
}

func (s *Storage) load(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// scanIDs returns the sorted ids of all keys with the given prefix
func (s *Storage) scanIDs(ctx context.Context, prefix string) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	// SCAN may return a key more than once
	seen := make(map[string]bool, len(keys))
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(prefix) && !seen[key] {
			seen[key] = true
			ids = append(ids, key[len(prefix):])
		}
	}
	sort.Strings(ids)
	return ids, nil
}
