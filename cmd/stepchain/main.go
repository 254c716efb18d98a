package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aescanero/stepchain/internal/application/engine"
	"github.com/aescanero/stepchain/internal/application/orchestrator"
	"github.com/aescanero/stepchain/internal/application/workers"
	"github.com/aescanero/stepchain/internal/config"
	eventsmemory "github.com/aescanero/stepchain/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/stepchain/pkg/adapters/events/redis"
	"github.com/aescanero/stepchain/pkg/adapters/llm"
	"github.com/aescanero/stepchain/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/stepchain/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/stepchain/pkg/adapters/storage/redis"
	"github.com/aescanero/stepchain/pkg/api/grpc"
	"github.com/aescanero/stepchain/pkg/api/http"
	"github.com/aescanero/stepchain/pkg/api/websocket"
	"github.com/aescanero/stepchain/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

// backend bundles the stores and event bus selected by configuration
type backend struct {
	workflows  ports.WorkflowStore
	executions ports.ExecutionStore
	eventBus   ports.EventBus
	close      func() error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting stepchain",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	be, err := newBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage backend", zap.Error(err))
	}

	metricsCollector := prometheus.NewCollector(nil)

	completer, err := llm.NewCompleter(&llm.Config{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.DefaultModel,
		MaxTokens:      cfg.LLM.DefaultMaxTokens,
		Temperature:    cfg.LLM.DefaultTemperature,
		SystemPrompt:   cfg.LLM.SystemPrompt,
		BaseURL:        cfg.LLM.BaseURL,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxRetries:     cfg.LLM.MaxRetries,
		Metrics:        metricsCollector,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("failed to create completion client", zap.Error(err))
	}

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	// Initialize application components
	bridge := orchestrator.NewEventBridge(be.eventBus, metricsCollector, logger)

	engineOpts := []engine.Option{
		engine.WithObserver(bridge),
		engine.WithStrictTemplates(cfg.Engine.StrictTemplates),
	}
	if cfg.Engine.Mode == config.EngineModeConcurrent {
		engineOpts = append(engineOpts, engine.WithDispatcher(workerPool))
	}
	eng := engine.NewEngine(completer, logger, engineOpts...)

	orchestratorMgr := orchestrator.NewManager(
		eng,
		be.workflows,
		be.executions,
		bridge,
		metricsCollector,
		logger,
		cfg.Timeouts.WorkflowExecutionTimeout,
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Health:       workerPool.Health(),
		Logger:       logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(be.eventBus, orchestratorMgr, logger)
	httpServer.SetupWebSocket(wsHandler.HandleExecutionStream)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:          cfg.GRPCPort,
		Health:        workerPool.Health(),
		CheckInterval: cfg.Workers.HealthCheckInterval,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("stepchain started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("engine_mode", cfg.Engine.Mode),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests before cancelling executions
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := be.close(); err != nil {
		logger.Error("backend close error", zap.Error(err))
	}

	logger.Info("stepchain shut down complete")
}

// newBackend builds the stores and event bus for the configured backend
func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	if cfg.Storage.Backend != config.StorageBackendRedis {
		store := storagememory.NewStorage()
		bus := eventsmemory.NewEventBus(logger)
		return &backend{
			workflows:  store,
			executions: store,
			eventBus:   bus,
			close:      bus.Close,
		}, nil
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	store := storageredis.NewStorage(redisClient, cfg.Storage.ExecutionTTL, logger)
	bus := eventsredis.NewStreamsEventBus(
		redisClient,
		cfg.Redis.ConsumerGroup,
		fmt.Sprintf("stepchain-%d", os.Getpid()),
		cfg.Redis.StreamMaxLen,
		logger,
	)

	return &backend{
		workflows:  store,
		executions: store,
		eventBus:   bus,
		close: func() error {
			if err := bus.Close(); err != nil {
				logger.Warn("event bus close error", zap.Error(err))
			}
			return redisClient.Close()
		},
	}, nil
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
