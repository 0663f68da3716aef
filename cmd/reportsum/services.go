package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackzampolin/reportsum/internal/archive"
	"github.com/jackzampolin/reportsum/internal/chunk"
	"github.com/jackzampolin/reportsum/internal/config"
	"github.com/jackzampolin/reportsum/internal/home"
	"github.com/jackzampolin/reportsum/internal/llmcall"
	"github.com/jackzampolin/reportsum/internal/pipeline"
	"github.com/jackzampolin/reportsum/internal/providers"
	"github.com/jackzampolin/reportsum/internal/summarizer"
	"github.com/jackzampolin/reportsum/internal/svcctx"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

// runtimeEnv is everything serve and run share.
type runtimeEnv struct {
	services *svcctx.Services
	level    *slog.LevelVar
	logger   *slog.Logger
}

// buildServices loads config and wires the pipeline behind a task manager.
// Workers are not started.
func buildServices(logOut io.Writer) (*runtimeEnv, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	cfgMgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, err
	}
	cfg := cfgMgr.Get()

	level := new(slog.LevelVar)
	lvl, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	level.Set(lvl)
	if logOut == nil {
		logOut = os.Stdout
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	cfgMgr.SetLogger(logger)

	limiter := providers.NewRateLimiter(cfg.Model.RateLimit)
	client, err := providers.NewClient(providers.ClientConfig{
		Provider:    cfg.Model.Provider,
		Model:       cfg.Model.Name,
		APIKey:      cfg.ResolveAPIKey(),
		BaseURL:     cfg.Model.BaseURL,
		Temperature: cfg.Model.Temperature,
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	calls := llmcall.NewStore(llmcall.DefaultCapacity)
	sum := summarizer.New(summarizer.Config{
		Client:             client,
		Model:              cfg.Model.Name,
		Temperature:        cfg.Model.Temperature,
		MaxRetries:         cfg.Pipeline.MaxRetries,
		RetryDelay:         cfg.Pipeline.RetryDelay,
		CallTimeout:        cfg.Pipeline.CallTimeout,
		MaxConcurrentCalls: cfg.Pipeline.MaxConcurrentModelCalls,
		Recorder:           llmcall.NewRecorder(calls),
		Logger:             logger,
	})

	arch, err := archive.New(h.SummariesPath(), logger)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(pipeline.Config{
		Chunker:    chunk.New(cfg.Pipeline.MaxTokensPerChunk, logger),
		Summarizer: sum,
		Archive:    arch,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	manager := tasks.NewManager(tasks.Config{
		Processor: p,
		Workers:   cfg.Tasks.Workers,
		QueueSize: cfg.Tasks.QueueSize,
		Logger:    logger,
	})

	cfgMgr.OnChange(func(c *config.Config) {
		limiter.SetLimit(c.Model.RateLimit)
		if l, err := config.ParseLogLevel(c.LogLevel); err == nil {
			level.Set(l)
		}
		logger.Info("config reloaded", "rate_limit", c.Model.RateLimit, "log_level", c.LogLevel)
	})

	return &runtimeEnv{
		services: &svcctx.Services{
			Tasks:        manager,
			Archive:      arch,
			LLMCallStore: calls,
			Limiter:      limiter,
			Config:       cfgMgr,
			Logger:       logger,
			Home:         h,
		},
		level:  level,
		logger: logger,
	}, nil
}
