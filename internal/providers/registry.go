package providers

import (
	"fmt"
	"log/slog"
	"strings"
)

// ClientConfig selects and configures the model backend.
type ClientConfig struct {
	Provider    string // "openai" or "mock"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
}

// NewClient builds the configured LLM client and wraps it in limiter when
// one is given.
func NewClient(cfg ClientConfig, limiter *RateLimiter, logger *slog.Logger) (LLMClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var client LLMClient
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", OpenAIName:
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires model.api_key")
		}
		client = NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
		})
	case MockClientName:
		client = NewMockClient()
	default:
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}

	logger.Info("registered LLM client", "name", client.Name(), "model", cfg.Model)
	return NewLimitedClient(limiter, client), nil
}
