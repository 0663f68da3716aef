package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected OpenAI API key placeholder")
	}
	if cfg.Pipeline.MaxTokensPerChunk != 6000 || cfg.Pipeline.CallTimeout != 120*time.Second {
		t.Errorf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")
		if result := ResolveEnvVars("${TEST_API_KEY}"); result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		if result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}"); result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		if result := ResolveEnvVars("literal-value"); result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ResolveAPIKey(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-123")
	cfg := DefaultConfig()
	cfg.Model.APIKey = "${TEST_OPENAI_KEY}"
	if got := cfg.ResolveAPIKey(); got != "sk-123" {
		t.Errorf("ResolveAPIKey() = %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"provider", func(c *Config) { c.Model.Provider = "anthropic" }, "model.provider"},
		{"budget", func(c *Config) { c.Pipeline.MaxTokensPerChunk = 0 }, "max_tokens_per_chunk"},
		{"concurrency", func(c *Config) { c.Pipeline.MaxConcurrentModelCalls = 0 }, "max_concurrent_model_calls"},
		{"retries", func(c *Config) { c.Pipeline.MaxRetries = -1 }, "max_retries"},
		{"workers", func(c *Config) { c.Tasks.Workers = 0 }, "tasks.workers"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo,
	} {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v", in, got, err)
		}
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
model:
  provider: mock
  name: test-model
pipeline:
  call_timeout: 30s
`)
		mgr, err := NewManager(configFile, "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Model.Provider != "mock" || cfg.Model.Name != "test-model" {
			t.Errorf("model = %+v", cfg.Model)
		}
		if cfg.Pipeline.CallTimeout != 30*time.Second {
			t.Errorf("call_timeout = %v", cfg.Pipeline.CallTimeout)
		}
		if cfg.Pipeline.MaxTokensPerChunk != 6000 {
			t.Errorf("default not applied: %d", cfg.Pipeline.MaxTokensPerChunk)
		}
		if mgr.ConfigFileUsed() != configFile {
			t.Errorf("ConfigFileUsed() = %q", mgr.ConfigFileUsed())
		}
	})

	t.Run("defaults without a file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		mgr, err := NewManager("", t.TempDir())
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if mgr.Get().Server.Port != "8080" {
			t.Errorf("port = %q", mgr.Get().Server.Port)
		}
		if mgr.ConfigFileUsed() != "" {
			t.Errorf("unexpected config file %q", mgr.ConfigFileUsed())
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("REPORTSUM_TASKS_WORKERS", "9")
		t.Setenv("REPORTSUM_MODEL_RATE_LIMIT", "2.5")
		mgr, err := NewManager(writeConfig(t, "log_level: debug\n"), "")
		if err != nil {
			t.Fatal(err)
		}
		cfg := mgr.Get()
		if cfg.Tasks.Workers != 9 || cfg.Model.RateLimit != 2.5 || cfg.LogLevel != "debug" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "tasks:\n  workers: 0\n"), ""); err == nil {
			t.Error("expected error for zero workers")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log_level: info\n"), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "model:\n  rate_limit: 5\n")
	mgr, err := NewManager(configFile, "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastRate atomic.Value
	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastRate.Store(cfg.Model.RateLimit)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("model:\n  rate_limit: 0.5\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && callbackCount.Load() == 0 {
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Model.RateLimit; got != 0.5 {
		t.Errorf("config not updated: rate_limit = %v", got)
	}
	if v := lastRate.Load(); v != 0.5 {
		t.Errorf("callback received rate_limit %v", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	for _, want := range []string{"# reportsum configuration", "model:", "max_tokens_per_chunk: 6000", "call_timeout: 2m0s"} {
		if !strings.Contains(content, want) {
			t.Errorf("default config missing %q:\n%s", want, content)
		}
	}

	// The written file loads back to the defaults.
	mgr, err := NewManager(path, "")
	if err != nil {
		t.Fatalf("NewManager(default file) error = %v", err)
	}
	if got := mgr.Get(); got.Pipeline.CallTimeout != 120*time.Second || got.Model.APIKey != "${OPENAI_API_KEY}" {
		t.Errorf("round trip = %+v", got)
	}
}
