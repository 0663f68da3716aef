// Package pipeline runs one PDF through validation, extraction, merge,
// chunking, summarization and archiving. A Pipeline is the tasks.Processor
// behind the task manager.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/reportsum/internal/chunk"
	"github.com/jackzampolin/reportsum/internal/extract"
	"github.com/jackzampolin/reportsum/internal/merge"
	"github.com/jackzampolin/reportsum/internal/schema"
	"github.com/jackzampolin/reportsum/internal/summarizer"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

// Summarizer produces a validated result from chunks.
type Summarizer interface {
	Summarize(ctx context.Context, in summarizer.Input) (*schema.Result, error)
}

// Archiver persists completed results and returns the stored file name.
type Archiver interface {
	Save(result *schema.Result) (string, error)
}

// Config configures a Pipeline. Summarizer is required.
type Config struct {
	Text       extract.TextSource
	Tables     extract.TableSource
	Validate   func(path string) (int, error)
	Merger     *merge.Merger
	Chunker    *chunk.Chunker
	Summarizer Summarizer
	Archive    Archiver
	Logger     *slog.Logger
}

// Pipeline processes jobs stage by stage.
type Pipeline struct {
	text       extract.TextSource
	tables     extract.TableSource
	validate   func(path string) (int, error)
	merger     *merge.Merger
	chunker    *chunk.Chunker
	summarizer Summarizer
	archive    Archiver
	logger     *slog.Logger
	registry   *Registry
}

var _ tasks.Processor = (*Pipeline)(nil)

// New creates a Pipeline and registers its stages.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("pipeline: summarizer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Text == nil {
		cfg.Text = extract.NewTextExtractor(cfg.Logger)
	}
	if cfg.Tables == nil {
		cfg.Tables = extract.NewTableExtractor(cfg.Logger)
	}
	if cfg.Validate == nil {
		cfg.Validate = extract.Validate
	}
	if cfg.Merger == nil {
		cfg.Merger = &merge.Merger{}
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunk.New(chunk.DefaultBudget, cfg.Logger)
	}

	p := &Pipeline{
		text:       cfg.Text,
		tables:     cfg.Tables,
		validate:   cfg.Validate,
		merger:     cfg.Merger,
		chunker:    cfg.Chunker,
		summarizer: cfg.Summarizer,
		archive:    cfg.Archive,
		logger:     cfg.Logger,
		registry:   NewRegistry(),
	}
	for _, s := range p.stages() {
		if err := p.registry.Register(s); err != nil {
			return nil, err
		}
	}
	if _, err := p.registry.Ordered(); err != nil {
		return nil, err
	}
	return p, nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []tasks.Stage {
	ordered, _ := p.registry.Ordered()
	names := make([]tasks.Stage, len(ordered))
	for i, s := range ordered {
		names[i] = s.Name()
	}
	return names
}

// Process runs every stage for job. The stop channel is honored between
// stages until a result exists; the summarizer honors it between model calls.
func (p *Pipeline) Process(ctx context.Context, job tasks.Job) (*schema.Result, *tasks.ErrorInfo) {
	logger := p.logger.With("task_id", job.TaskID, "source", job.SourceFile)
	ordered, err := p.registry.Ordered()
	if err != nil {
		return nil, Classify(err)
	}

	run := &Run{Job: job}
	start := time.Now()
	for _, st := range ordered {
		if run.Result == nil && isStopped(job.Stop) {
			return nil, Classify(&StageError{Stage: st.Name(), Err: ErrCancelled})
		}
		stageStart := time.Now()
		job.EnterStage(st.Name())
		if err := st.Execute(ctx, run); err != nil {
			info := Classify(&StageError{Stage: st.Name(), Err: err})
			logger.Warn("stage failed", "stage", st.Name(), "kind", info.Kind, "error", err)
			return nil, info
		}
		logger.Debug("stage complete", "stage", st.Name(), "duration", time.Since(stageStart))
	}

	logger.Info("document processed",
		"pages", run.PageCount,
		"chunks", len(run.Chunks),
		"archive", run.ArchiveFile,
		"duration", time.Since(start))
	return run.Result, nil
}

func isStopped(stop <-chan struct{}) bool {
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
