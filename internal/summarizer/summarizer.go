// Package summarizer turns chunks of a merged document into one validated
// SummaryResult, using a single model call when the document fits one chunk
// and a map-reduce over chunks otherwise.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jackzampolin/reportsum/internal/llmcall"
	"github.com/jackzampolin/reportsum/internal/prompts"
	"github.com/jackzampolin/reportsum/internal/prompts/summarize"
	"github.com/jackzampolin/reportsum/internal/providers"
	"github.com/jackzampolin/reportsum/internal/schema"
	"github.com/jackzampolin/reportsum/internal/types"
)

// Defaults applied by New for zero Config values.
const (
	DefaultMaxConcurrentCalls = 4
	DefaultCallTimeout        = 120 * time.Second
	DefaultRetryDelay         = time.Second
	DefaultMaxRetryDelay      = 30 * time.Second
)

// Config configures a Summarizer.
type Config struct {
	Client      providers.LLMClient
	Model       string
	Temperature float64

	// MaxRetries bounds transient retries per call. Negative disables retries.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	CallTimeout   time.Duration

	// Semaphore is the process-wide ceiling on in-flight model calls. When
	// nil, one is created with MaxConcurrentCalls slots.
	Semaphore          *semaphore.Weighted
	MaxConcurrentCalls int

	Recorder *llmcall.Recorder
	Prompts  *prompts.Registry
	Logger   *slog.Logger
}

// Summarizer produces SummaryResults from chunks.
type Summarizer struct {
	client        providers.LLMClient
	model         string
	temperature   float64
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	callTimeout   time.Duration
	sem           *semaphore.Weighted
	recorder      *llmcall.Recorder
	prompts       *prompts.Registry
	logger        *slog.Logger
}

// New creates a Summarizer.
func New(cfg Config) *Summarizer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Semaphore == nil {
		n := cfg.MaxConcurrentCalls
		if n <= 0 {
			n = DefaultMaxConcurrentCalls
		}
		cfg.Semaphore = semaphore.NewWeighted(int64(n))
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.NewRegistry()
		summarize.RegisterPrompts(cfg.Prompts)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Summarizer{
		client:        cfg.Client,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		callTimeout:   cfg.CallTimeout,
		sem:           cfg.Semaphore,
		recorder:      cfg.Recorder,
		prompts:       cfg.Prompts,
		logger:        cfg.Logger,
	}
}

// Input is one document's worth of summarization work.
type Input struct {
	TaskID     string
	SourceFile string
	Chunks     []types.Chunk
	PageCount  int
	// Anomalies are non-fatal findings from earlier stages, carried into
	// the result metadata.
	Anomalies []string
	// Stop, when closed, ends the run at the next chunk-call boundary.
	// An in-flight call is allowed to complete.
	Stop <-chan struct{}
}

// Summarize runs the single-call or map-reduce path and returns a
// schema-valid result.
func (s *Summarizer) Summarize(ctx context.Context, in Input) (*schema.Result, error) {
	r := &run{taskID: in.TaskID, stop: in.Stop}

	var (
		result schema.Result
		err    error
	)
	if len(in.Chunks) <= 1 {
		err = s.single(ctx, r, in, &result)
	} else {
		err = s.mapReduce(ctx, r, in, &result)
	}
	if err != nil {
		return nil, err
	}

	tokens, calls, servedBy := r.usage()
	model := s.model
	if model == "" {
		model = servedBy
	}
	anomalies := make([]string, len(in.Anomalies))
	copy(anomalies, in.Anomalies)
	result.Metadata = schema.Metadata{
		SourceFile:          in.SourceFile,
		ProcessingTimestamp: nowUTC().Format(time.RFC3339),
		ModelUsed:           model,
		TokensUsed:          tokens,
		ChunkCount:          max(len(in.Chunks), 1),
		ModelCalls:          calls,
		PageCount:           in.PageCount,
		Anomalies:           anomalies,
	}
	if err := result.Validate(); err != nil {
		return nil, &Error{Kind: KindSchemaViolation, Err: err}
	}

	s.logger.Info("summary produced",
		"task_id", in.TaskID,
		"chunks", result.Metadata.ChunkCount,
		"model_calls", calls,
		"tokens", tokens)
	return &result, nil
}

func (s *Summarizer) single(ctx context.Context, r *run, in Input, out *schema.Result) error {
	content := "(no extractable text)"
	if len(in.Chunks) == 1 {
		if rendered := in.Chunks[0].Render(); rendered != "" {
			content = rendered
		}
	}
	return s.structuredCall(ctx, r, callPlan{
		kind:      llmcall.KindSingle,
		promptKey: summarize.SinglePromptKey,
		schema:    schema.ModelOutput,
		messages:  messages(summarize.SinglePrompt(in.SourceFile, content)),
		local:     resultLocalKeys,
	}, out)
}

func (s *Summarizer) mapReduce(ctx context.Context, r *run, in Input, out *schema.Result) error {
	partials := make([]schema.Partial, len(in.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i := range in.Chunks {
		ch := in.Chunks[i]
		idx := i
		g.Go(func() error {
			prompt := summarize.PartialPrompt(in.SourceFile, ch.Render(), idx+1, len(in.Chunks), pageRange(ch.Pages()))
			var p schema.Partial
			err := s.structuredCall(gctx, r, callPlan{
				kind:      llmcall.KindPartial,
				chunk:     &idx,
				promptKey: summarize.PartialPromptKey,
				schema:    schema.PartialExtraction,
				messages:  messages(prompt),
				local:     partialLocalKeys,
			}, &p)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", idx, err)
			}
			p.ChunkIndex = idx
			p.Pages = displayPages(ch.Pages())
			partials[idx] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Barrier: the reduction sees every partial, in chunk order.
	body, err := json.MarshalIndent(partials, "", "  ")
	if err != nil {
		return fmt.Errorf("encode partials: %w", err)
	}
	return s.structuredCall(ctx, r, callPlan{
		kind:      llmcall.KindReduce,
		promptKey: summarize.ReducePromptKey,
		schema:    schema.ModelOutput,
		messages:  messages(summarize.ReducePrompt(in.SourceFile, string(body), len(in.Chunks))),
		local:     resultLocalKeys,
	}, out)
}

var (
	// Metadata is filled from the run, never from the model.
	resultLocalKeys = []string{"metadata"}
	// Chunk position is known locally.
	partialLocalKeys = []string{"chunk_index", "pages"}
)

func messages(user string) []providers.Message {
	return []providers.Message{
		{Role: providers.RoleSystem, Content: summarize.SystemPrompt()},
		{Role: providers.RoleUser, Content: user},
	}
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// displayPages converts 0-based page indexes to 1-based page numbers.
func displayPages(pages []int) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p + 1
	}
	return out
}

func pageRange(pages []int) string {
	switch len(pages) {
	case 0:
		return "none"
	case 1:
		return strconv.Itoa(pages[0] + 1)
	default:
		return strconv.Itoa(pages[0]+1) + "-" + strconv.Itoa(pages[len(pages)-1]+1)
	}
}
