package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config holds reportsum configuration.
// Loaded from: ./config.yaml or {home}/config.yaml, overridden by REPORTSUM_* env vars.
type Config struct {
	Model    ModelCfg    `mapstructure:"model" yaml:"model"`
	Pipeline PipelineCfg `mapstructure:"pipeline" yaml:"pipeline"`
	Tasks    TasksCfg    `mapstructure:"tasks" yaml:"tasks"`
	Server   ServerCfg   `mapstructure:"server" yaml:"server"`
	LogLevel string      `mapstructure:"log_level" yaml:"log_level"`
}

// ModelCfg selects and configures the language model.
type ModelCfg struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`       // "openai" or "mock"
	Name        string  `mapstructure:"name" yaml:"name"`               // Model identifier sent upstream
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`         // Supports ${ENV_VAR} syntax
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`       // Alternate OpenAI-compatible endpoint
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`   // Requests per second, hot-reloadable
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"` // Sampling temperature
}

// PipelineCfg tunes chunking and model call behavior.
type PipelineCfg struct {
	MaxTokensPerChunk       int           `mapstructure:"max_tokens_per_chunk" yaml:"max_tokens_per_chunk"`
	MaxRetries              int           `mapstructure:"max_retries" yaml:"max_retries"`
	MaxConcurrentModelCalls int           `mapstructure:"max_concurrent_model_calls" yaml:"max_concurrent_model_calls"`
	CallTimeout             time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	RetryDelay              time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// TasksCfg sizes the task worker pool.
type TasksCfg struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// ServerCfg is the HTTP bind address.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with the default values of every key.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelCfg{
			Provider:    "openai",
			Name:        "gpt-4o-mini",
			APIKey:      "${OPENAI_API_KEY}",
			RateLimit:   5.0,
			Temperature: 0.2,
		},
		Pipeline: PipelineCfg{
			MaxTokensPerChunk:       6000,
			MaxRetries:              3,
			MaxConcurrentModelCalls: 4,
			CallTimeout:             120 * time.Second,
			RetryDelay:              time.Second,
		},
		Tasks: TasksCfg{
			Workers:   4,
			QueueSize: 256,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		LogLevel: "info",
	}
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("model.provider must be openai or mock, got %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.RateLimit < 0 {
		return fmt.Errorf("model.rate_limit must be >= 0")
	}
	if c.Pipeline.MaxTokensPerChunk <= 0 {
		return fmt.Errorf("pipeline.max_tokens_per_chunk must be > 0")
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must be >= 0")
	}
	if c.Pipeline.MaxConcurrentModelCalls <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_model_calls must be > 0")
	}
	if c.Pipeline.CallTimeout <= 0 {
		return fmt.Errorf("pipeline.call_timeout must be > 0")
	}
	if c.Tasks.Workers <= 0 {
		return fmt.Errorf("tasks.workers must be > 0")
	}
	if c.Tasks.QueueSize <= 0 {
		return fmt.Errorf("tasks.queue_size must be > 0")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ResolveAPIKey returns the model API key with ${ENV_VAR} references expanded.
func (c *Config) ResolveAPIKey() string {
	return ResolveEnvVars(c.Model.APIKey)
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// ParseLogLevel maps debug|info|warn|error onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
}
