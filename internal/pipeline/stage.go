package pipeline

import (
	"context"

	"github.com/jackzampolin/reportsum/internal/extract"
	"github.com/jackzampolin/reportsum/internal/schema"
	"github.com/jackzampolin/reportsum/internal/tasks"
	"github.com/jackzampolin/reportsum/internal/types"
)

// Stage is one step of document processing. Stages run in dependency order
// and pass their output forward through the shared Run.
type Stage interface {
	Name() tasks.Stage
	Dependencies() []tasks.Stage
	Execute(ctx context.Context, run *Run) error
}

// Run carries one job's intermediate products between stages.
type Run struct {
	Job tasks.Job

	PageCount  int
	Extraction *extract.Result
	Document   *types.Document
	Chunks     []types.Chunk
	Result     *schema.Result

	// ArchiveFile is the archived summary file name, if archiving succeeded.
	ArchiveFile string

	// Anomalies are non-fatal findings, surfaced in the result metadata.
	Anomalies []string
}

func (r *Run) addAnomaly(msg string) {
	r.Anomalies = append(r.Anomalies, msg)
}

// stageFunc adapts a function to the Stage interface.
type stageFunc struct {
	name tasks.Stage
	deps []tasks.Stage
	fn   func(ctx context.Context, run *Run) error
}

func (s stageFunc) Name() tasks.Stage                           { return s.name }
func (s stageFunc) Dependencies() []tasks.Stage                 { return s.deps }
func (s stageFunc) Execute(ctx context.Context, run *Run) error { return s.fn(ctx, run) }
