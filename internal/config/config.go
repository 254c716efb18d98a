package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Engine modes
const (
	EngineModeSequential = "sequential"
	EngineModeConcurrent = "concurrent"
)

// Storage backends
const (
	StorageBackendMemory = "memory"
	StorageBackendRedis  = "redis"
)

// Config holds all configuration for the stepchain server
type Config struct {
	// Server configuration
	HTTPPort int    `env:"STEPCHAIN_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"STEPCHAIN_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// Engine configuration
	Engine EngineConfig

	// Worker configuration
	Workers WorkerConfig

	// Storage configuration
	Storage StorageConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// Event streams
	StreamMaxLen  int64  `env:"REDIS_STREAM_MAX_LEN" envDefault:"10000"`
	ConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"stepchain"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`
	BaseURL  string `env:"LLM_BASE_URL"`

	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`
	MaxRetries     int           `env:"LLM_MAX_RETRIES" envDefault:"2"`

	// Default model settings
	DefaultModel       string  `env:"LLM_DEFAULT_MODEL" envDefault:"claude-sonnet-4-5"`
	DefaultTemperature float64 `env:"LLM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int64   `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
	SystemPrompt       string  `env:"LLM_SYSTEM_PROMPT"`
}

// EngineConfig holds workflow engine configuration
type EngineConfig struct {
	Mode            string `env:"ENGINE_MODE" envDefault:"sequential"`
	StrictTemplates bool   `env:"ENGINE_STRICT_TEMPLATES" envDefault:"false"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// StorageConfig selects where workflows and execution records live
type StorageConfig struct {
	Backend      string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	ExecutionTTL time.Duration `env:"STORAGE_EXECUTION_TTL" envDefault:"168h"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	WorkflowExecutionTimeout time.Duration `env:"TIMEOUT_WORKFLOW_EXECUTION" envDefault:"3600s"` // 1 hour
	ShutdownTimeout          time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate storage and Redis config
	switch c.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (must be memory or redis)", c.Storage.Backend)
	}
	if c.Storage.ExecutionTTL < 0 {
		return fmt.Errorf("execution TTL must not be negative")
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key is required")
		}
		if c.LLM.DefaultModel == "" {
			return fmt.Errorf("LLM model is required")
		}
	case "echo":
	default:
		return fmt.Errorf("unsupported LLM provider: %s (must be anthropic or echo)", c.LLM.Provider)
	}
	if c.LLM.DefaultTemperature < 0 || c.LLM.DefaultTemperature > 1 {
		return fmt.Errorf("LLM temperature must be between 0 and 1: %v", c.LLM.DefaultTemperature)
	}
	if c.LLM.DefaultMaxTokens < 1 {
		return fmt.Errorf("LLM max tokens must be at least 1")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM max retries must not be negative")
	}

	// Validate engine config
	if c.Engine.Mode != EngineModeSequential && c.Engine.Mode != EngineModeConcurrent {
		return fmt.Errorf("invalid engine mode: %s (must be sequential or concurrent)", c.Engine.Mode)
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
