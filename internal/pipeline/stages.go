package pipeline

import (
	"context"
	"fmt"

	"github.com/jackzampolin/reportsum/internal/extract"
	"github.com/jackzampolin/reportsum/internal/summarizer"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

func (p *Pipeline) stages() []Stage {
	return []Stage{
		stageFunc{name: tasks.StageExtract, fn: p.extractStage},
		stageFunc{name: tasks.StageMerge, deps: []tasks.Stage{tasks.StageExtract}, fn: p.mergeStage},
		stageFunc{name: tasks.StageChunk, deps: []tasks.Stage{tasks.StageMerge}, fn: p.chunkStage},
		stageFunc{name: tasks.StageSummarize, deps: []tasks.Stage{tasks.StageChunk}, fn: p.summarizeStage},
		stageFunc{name: tasks.StageArchive, deps: []tasks.Stage{tasks.StageSummarize}, fn: p.archiveStage},
	}
}

func (p *Pipeline) extractStage(ctx context.Context, run *Run) error {
	pages, err := p.validate(run.Job.Path)
	if err != nil {
		return err
	}
	run.PageCount = pages

	res, err := extract.Both(ctx, run.Job.Path, p.text, p.tables)
	if err != nil {
		return err
	}
	run.Extraction = res
	return nil
}

func (p *Pipeline) mergeStage(_ context.Context, run *Run) error {
	doc, anomalies := p.merger.Merge(run.Job.SourceFile, run.Extraction.Text, run.Extraction.Tables)
	for _, a := range anomalies {
		p.logger.Warn("merge anomaly",
			"task_id", run.Job.TaskID,
			"page", a.Page+1,
			"kind", a.Kind,
			"message", a.Message)
		run.addAnomaly(a.String())
	}
	run.Document = doc
	if run.PageCount == 0 {
		run.PageCount = len(doc.Pages)
	}
	return nil
}

func (p *Pipeline) chunkStage(_ context.Context, run *Run) error {
	chunks, oversized := p.chunker.Split(run.Document)
	for _, idx := range oversized {
		run.addAnomaly(fmt.Sprintf("chunk %d: single block exceeds token budget (%d estimated)",
			idx, chunks[idx].EstimatedTokens))
	}
	run.Chunks = chunks
	return nil
}

func (p *Pipeline) summarizeStage(ctx context.Context, run *Run) error {
	result, err := p.summarizer.Summarize(ctx, summarizer.Input{
		TaskID:     run.Job.TaskID,
		SourceFile: run.Job.SourceFile,
		Chunks:     run.Chunks,
		PageCount:  run.PageCount,
		Anomalies:  run.Anomalies,
		Stop:       run.Job.Stop,
	})
	if err != nil {
		return err
	}
	run.Result = result
	return nil
}

// archiveStage never fails the task: the result already exists in memory.
func (p *Pipeline) archiveStage(_ context.Context, run *Run) error {
	if p.archive == nil {
		return nil
	}
	name, err := p.archive.Save(run.Result)
	if err != nil {
		p.logger.Warn("failed to archive summary", "task_id", run.Job.TaskID, "error", err)
		msg := "archive: " + err.Error()
		run.addAnomaly(msg)
		run.Result.Metadata.Anomalies = append(run.Result.Metadata.Anomalies, msg)
		return nil
	}
	run.ArchiveFile = name
	return nil
}
