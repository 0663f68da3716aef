// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/reportsum/internal/archive"
	"github.com/jackzampolin/reportsum/internal/config"
	"github.com/jackzampolin/reportsum/internal/home"
	"github.com/jackzampolin/reportsum/internal/llmcall"
	"github.com/jackzampolin/reportsum/internal/providers"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Tasks        *tasks.Manager
	Archive      *archive.Archive
	LLMCallStore *llmcall.Store
	Limiter      *providers.RateLimiter
	Config       *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// TasksFrom extracts the task manager from context.
func TasksFrom(ctx context.Context) *tasks.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Tasks
	}
	return nil
}

// ArchiveFrom extracts the summary archive from context.
func ArchiveFrom(ctx context.Context) *archive.Archive {
	if s := ServicesFrom(ctx); s != nil {
		return s.Archive
	}
	return nil
}

// LLMCallStoreFrom extracts the LLM call store from context.
func LLMCallStoreFrom(ctx context.Context) *llmcall.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.LLMCallStore
	}
	return nil
}

// LimiterFrom extracts the model rate limiter from context.
func LimiterFrom(ctx context.Context) *providers.RateLimiter {
	if s := ServicesFrom(ctx); s != nil {
		return s.Limiter
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
