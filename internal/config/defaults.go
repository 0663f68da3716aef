package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v2"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ErrUnknownKey is returned for keys that have no default entry.
var ErrUnknownKey = errors.New("unknown config key")

// Entry is one recognized configuration key.
type Entry struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description"`
	// HotReload marks keys whose changes apply without a restart.
	HotReload bool `json:"hot_reload"`
}

// DefaultEntries returns every recognized key with its default value.
// Durations are written as Go duration strings.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		{Key: "model.provider", Value: d.Model.Provider, Description: "Model backend: openai or mock"},
		{Key: "model.name", Value: d.Model.Name, Description: "Model identifier sent upstream"},
		{Key: "model.api_key", Value: d.Model.APIKey, Description: "Model API key (uses environment variable)"},
		{Key: "model.base_url", Value: d.Model.BaseURL, Description: "Alternate OpenAI-compatible endpoint"},
		{Key: "model.rate_limit", Value: d.Model.RateLimit, Description: "Requests per second across all model calls", HotReload: true},
		{Key: "model.temperature", Value: d.Model.Temperature, Description: "Sampling temperature"},

		{Key: "pipeline.max_tokens_per_chunk", Value: d.Pipeline.MaxTokensPerChunk, Description: "Estimated token budget per chunk"},
		{Key: "pipeline.max_retries", Value: d.Pipeline.MaxRetries, Description: "Transient retries per model call"},
		{Key: "pipeline.max_concurrent_model_calls", Value: d.Pipeline.MaxConcurrentModelCalls, Description: "Process-wide ceiling on in-flight model calls"},
		{Key: "pipeline.call_timeout", Value: d.Pipeline.CallTimeout.String(), Description: "Timeout for a single model call attempt"},
		{Key: "pipeline.retry_delay", Value: d.Pipeline.RetryDelay.String(), Description: "Base delay for exponential retry backoff"},

		{Key: "tasks.workers", Value: d.Tasks.Workers, Description: "Documents processed concurrently"},
		{Key: "tasks.queue_size", Value: d.Tasks.QueueSize, Description: "Pending task queue capacity"},

		{Key: "server.host", Value: d.Server.Host, Description: "HTTP bind host"},
		{Key: "server.port", Value: d.Server.Port, Description: "HTTP bind port"},

		{Key: "log_level", Value: d.LogLevel, Description: "Log level: debug, info, warn or error", HotReload: true},
	}
}

// GetDefault returns the default entry for key, or nil if none exists.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ValidateKey checks that key is well formed and recognized.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	if GetDefault(key) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// defaultsYAML nests the dotted default keys into an ordered YAML document.
func defaultsYAML() yaml.MapSlice {
	var root yaml.MapSlice
	for _, e := range DefaultEntries() {
		root = insert(root, strings.Split(e.Key, "."), e.Value)
	}
	return root
}

func insert(m yaml.MapSlice, path []string, value any) yaml.MapSlice {
	if len(path) == 1 {
		return append(m, yaml.MapItem{Key: path[0], Value: value})
	}
	for i, item := range m {
		if item.Key == path[0] {
			if child, ok := item.Value.(yaml.MapSlice); ok {
				m[i].Value = insert(child, path[1:], value)
				return m
			}
		}
	}
	return append(m, yaml.MapItem{Key: path[0], Value: insert(nil, path[1:], value)})
}
