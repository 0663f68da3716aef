package summarizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jackzampolin/reportsum/internal/llmcall"
	"github.com/jackzampolin/reportsum/internal/prompts/summarize"
	"github.com/jackzampolin/reportsum/internal/providers"
	"github.com/jackzampolin/reportsum/internal/schema"
	"github.com/jackzampolin/reportsum/internal/types"
)

const validSummary = `{
  "executive_summary": "Output on target with one conveyor stoppage.",
  "key_insights": ["Line A exceeded plan"],
  "daily_output": {"total_production": "2,180 units", "efficiency_rate": "91%", "status": "Warning"},
  "anomalies": [{"type": "Equipment", "description": "Conveyor 3 jam", "severity": "Medium", "impact": "40 min downtime"}],
  "recommendations": ["Inspect conveyor 3 rollers"]
}`

const validPartial = `{"summary": "Line A produced 1,200 units", "production_figures": ["1,200 units"]}`

func chunkOf(index int, pages ...int) types.Chunk {
	c := types.Chunk{Index: index}
	for _, p := range pages {
		c.Blocks = append(c.Blocks, types.PlacedBlock{
			Page:  p,
			Block: types.NewTextBlock("Shift notes for page", types.BBox{}),
		})
	}
	return c
}

func newTestSummarizer(client providers.LLMClient, store *llmcall.Store, mut ...func(*Config)) *Summarizer {
	cfg := Config{
		Client:      client,
		Model:       "gpt-4o-mini",
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
		CallTimeout: time.Second,
		Recorder:    llmcall.NewRecorder(store),
	}
	for _, m := range mut {
		m(&cfg)
	}
	return New(cfg)
}

func fixedNow(t *testing.T) {
	t.Helper()
	prev := nowUTC
	nowUTC = func() time.Time { return time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC) }
	t.Cleanup(func() { nowUTC = prev })
}

func TestSingleChunk(t *testing.T) {
	fixedNow(t)
	mock := providers.NewMockClient().Script(providers.MockResponse{
		Content: validSummary, PromptTokens: 100, CompletionTokens: 20,
	})
	store := llmcall.NewStore(0)
	s := newTestSummarizer(mock, store)

	res, err := s.Summarize(context.Background(), Input{
		TaskID:     "t1",
		SourceFile: "shift.pdf",
		Chunks:     []types.Chunk{chunkOf(0, 0, 1, 2)},
		PageCount:  3,
		Anomalies:  []string{"page 2: EmptyPage: no extractable text or tables"},
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("model calls = %d, want 1", mock.RequestCount())
	}
	md := res.Metadata
	if md.TokensUsed != 120 || md.ModelCalls != 1 || md.ChunkCount != 1 || md.PageCount != 3 {
		t.Errorf("metadata = %+v", md)
	}
	if md.SourceFile != "shift.pdf" || md.ModelUsed != "gpt-4o-mini" || md.ProcessingTimestamp != "2026-03-02T08:15:00Z" {
		t.Errorf("metadata = %+v", md)
	}
	if len(md.Anomalies) != 1 {
		t.Errorf("metadata anomalies = %v", md.Anomalies)
	}
	if res.Events == nil || res.DashboardAlerts == nil || res.Metrics == nil {
		t.Error("absent collections not defaulted to empty")
	}
	if res.DailyOutput.Status != "Warning" || len(res.Anomalies) != 1 {
		t.Errorf("result = %+v", res)
	}

	req := mock.Requests()[0]
	if len(req.Messages) != 2 || req.Messages[0].Role != providers.RoleSystem {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "[page 1]") || !strings.Contains(req.Messages[1].Content, "[page 3]") {
		t.Errorf("user prompt missing page markers: %s", req.Messages[1].Content)
	}
	calls := store.List(llmcall.QueryFilter{TaskID: "t1"})
	if len(calls) != 1 || calls[0].Kind != llmcall.KindSingle {
		t.Fatalf("ledger = %+v", calls)
	}
	if p, _ := s.prompts.Get(summarize.SinglePromptKey); calls[0].PromptHash != p.Hash {
		t.Errorf("prompt hash = %q, want %q", calls[0].PromptHash, p.Hash)
	}
}

func TestMapReduceSumsTokens(t *testing.T) {
	mock := providers.NewMockClient().Script(
		providers.MockResponse{Content: validPartial, PromptTokens: 40, CompletionTokens: 10},
		providers.MockResponse{Content: validPartial, PromptTokens: 40, CompletionTokens: 10},
		providers.MockResponse{Content: validSummary, PromptTokens: 70, CompletionTokens: 30},
	)
	store := llmcall.NewStore(0)
	s := newTestSummarizer(mock, store)

	res, err := s.Summarize(context.Background(), Input{
		TaskID:     "t2",
		SourceFile: "shift.pdf",
		Chunks:     []types.Chunk{chunkOf(0, 0), chunkOf(1, 1, 2)},
		PageCount:  3,
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if mock.RequestCount() != 3 {
		t.Fatalf("model calls = %d, want 3", mock.RequestCount())
	}
	if res.Metadata.TokensUsed != 200 {
		t.Errorf("tokens_used = %d, want 200", res.Metadata.TokensUsed)
	}
	if res.Metadata.ModelCalls != 3 || res.Metadata.ChunkCount != 2 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	if sum := store.Summarize("t2"); int64(sum.InputTokens+sum.OutputTokens) != res.Metadata.TokensUsed {
		t.Errorf("ledger tokens %+v disagree with metadata %d", sum, res.Metadata.TokensUsed)
	}

	reqs := mock.Requests()
	reduce := reqs[2].Messages[1].Content
	if !strings.Contains(reduce, "PARTIAL EXTRACTIONS") || strings.Count(reduce, "Line A produced 1,200 units") != 2 {
		t.Errorf("reduce prompt does not carry both partials: %s", reduce)
	}
	if !strings.Contains(reduce, `"pages": [`) {
		t.Errorf("reduce prompt missing page numbers: %s", reduce)
	}
	if n := len(store.List(llmcall.QueryFilter{TaskID: "t2", Kind: llmcall.KindPartial})); n != 2 {
		t.Errorf("partial calls recorded = %d, want 2", n)
	}
}

func TestRepairOnce(t *testing.T) {
	mock := providers.NewMockClient().Script(
		providers.MockResponse{Content: "Sure! Here's the summary: it went fine.", PromptTokens: 50, CompletionTokens: 10},
		providers.MockResponse{Content: "```json\n" + validSummary + "\n```", PromptTokens: 80, CompletionTokens: 20},
	)
	store := llmcall.NewStore(0)
	s := newTestSummarizer(mock, store)

	res, err := s.Summarize(context.Background(), Input{TaskID: "t3", SourceFile: "a.pdf", Chunks: []types.Chunk{chunkOf(0, 0)}})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("model calls = %d, want 2", mock.RequestCount())
	}
	if res.Metadata.TokensUsed != 160 {
		t.Errorf("tokens_used = %d, want 160", res.Metadata.TokensUsed)
	}
	repair := mock.Requests()[1].Messages
	if len(repair) != 4 || repair[2].Role != providers.RoleAssistant || !strings.Contains(repair[3].Content, "Validation issue") {
		t.Errorf("repair messages = %+v", repair)
	}
	if n := len(store.List(llmcall.QueryFilter{Kind: llmcall.KindRepair})); n != 1 {
		t.Errorf("repair calls recorded = %d", n)
	}
}

func TestSchemaViolationAfterRepair(t *testing.T) {
	bad := `{"executive_summary": "x", "daily_output": {"total_production": "1", "efficiency_rate": "2", "status": "Fine"}}`
	mock := providers.NewMockClient().Script(
		providers.MockResponse{Content: bad},
		providers.MockResponse{Content: bad},
	)
	s := newTestSummarizer(mock, llmcall.NewStore(0))

	_, err := s.Summarize(context.Background(), Input{Chunks: []types.Chunk{chunkOf(0, 0)}})
	if KindOf(err) != KindSchemaViolation {
		t.Fatalf("err = %v, want SchemaViolation", err)
	}
	if mock.RequestCount() != 2 {
		t.Errorf("model calls = %d, want exactly 2", mock.RequestCount())
	}
}

func TestTransientRetry(t *testing.T) {
	mock := providers.NewMockClient().Script(
		providers.MockResponse{Err: providers.ErrMockUnavailable},
		providers.MockResponse{Err: &providers.RateLimitError{Message: "slow down", StatusCode: 429}},
		providers.MockResponse{Content: validSummary, PromptTokens: 10, CompletionTokens: 5},
	)
	store := llmcall.NewStore(0)
	s := newTestSummarizer(mock, store)

	res, err := s.Summarize(context.Background(), Input{TaskID: "t4", Chunks: []types.Chunk{chunkOf(0, 0)}})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.RequestCount())
	}
	if res.Metadata.TokensUsed != 15 || res.Metadata.ModelCalls != 1 {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	calls := store.List(llmcall.QueryFilter{TaskID: "t4"})
	if len(calls) != 1 || calls[0].Attempts != 3 || !calls[0].Success {
		t.Errorf("ledger = %+v", calls)
	}
}

func TestUpstreamUnavailable(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Respond = func(*providers.ChatRequest) providers.MockResponse {
		return providers.MockResponse{Err: providers.ErrMockUnavailable}
	}
	store := llmcall.NewStore(0)
	s := newTestSummarizer(mock, store)

	_, err := s.Summarize(context.Background(), Input{TaskID: "t5", Chunks: []types.Chunk{chunkOf(0, 0)}})
	if KindOf(err) != KindUpstreamUnavailable {
		t.Fatalf("err = %v, want UpstreamUnavailable", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Attempts != 3 {
		t.Errorf("attempts = %+v, want 3", se)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.RequestCount())
	}
	calls := store.List(llmcall.QueryFilter{TaskID: "t5"})
	if len(calls) != 1 || calls[0].Success || calls[0].Error == "" {
		t.Errorf("ledger = %+v", calls)
	}
}

func TestNonTransientNotRetried(t *testing.T) {
	mock := providers.NewMockClient().Script(providers.MockResponse{
		Err: &providers.APIError{StatusCode: 401, Message: "invalid api key"},
	})
	s := newTestSummarizer(mock, nil)

	_, err := s.Summarize(context.Background(), Input{Chunks: []types.Chunk{chunkOf(0, 0)}})
	if KindOf(err) != KindUpstreamUnavailable {
		t.Fatalf("err = %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestCount())
	}
}

// hangingClient blocks until its context ends.
type hangingClient struct{ calls atomic.Int64 }

func (c *hangingClient) Name() string { return "hang" }

func (c *hangingClient) Chat(ctx context.Context, _ *providers.ChatRequest) (*providers.ChatResult, error) {
	c.calls.Add(1)
	<-ctx.Done()
	return &providers.ChatResult{Provider: "hang"}, ctx.Err()
}

func TestCallTimeoutIsTransient(t *testing.T) {
	client := &hangingClient{}
	s := newTestSummarizer(client, nil, func(c *Config) {
		c.CallTimeout = 20 * time.Millisecond
		c.MaxRetries = 1
	})

	_, err := s.Summarize(context.Background(), Input{Chunks: []types.Chunk{chunkOf(0, 0)}})
	if KindOf(err) != KindUpstreamUnavailable {
		t.Fatalf("err = %v, want UpstreamUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped deadline", err)
	}
	if client.calls.Load() != 2 {
		t.Errorf("attempts = %d, want 2", client.calls.Load())
	}
}

func TestParentCancelNotRetried(t *testing.T) {
	client := &hangingClient{}
	s := newTestSummarizer(client, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Summarize(ctx, Input{Chunks: []types.Chunk{chunkOf(0, 0)}})
	if !errors.Is(err, context.DeadlineExceeded) || KindOf(err) != "" {
		t.Fatalf("err = %v, want bare context error", err)
	}
}

func TestStopBeforeStart(t *testing.T) {
	mock := providers.NewMockClient()
	s := newTestSummarizer(mock, nil)
	stop := make(chan struct{})
	close(stop)

	_, err := s.Summarize(context.Background(), Input{Chunks: []types.Chunk{chunkOf(0, 0)}, Stop: stop})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.RequestCount())
	}
}

func TestStopAtChunkBoundary(t *testing.T) {
	stop := make(chan struct{})
	var once sync.Once
	mock := providers.NewMockClient()
	mock.Respond = func(*providers.ChatRequest) providers.MockResponse {
		once.Do(func() { close(stop) })
		return providers.MockResponse{Content: validPartial}
	}
	s := newTestSummarizer(mock, nil, func(c *Config) { c.MaxConcurrentCalls = 1 })

	_, err := s.Summarize(context.Background(), Input{
		Chunks: []types.Chunk{chunkOf(0, 0), chunkOf(1, 1), chunkOf(2, 2)},
		Stop:   stop,
	})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
	// The in-flight call completes; no further call starts.
	if mock.RequestCount() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestCount())
	}
}

// countingClient tracks peak concurrency.
type countingClient struct {
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (c *countingClient) Name() string { return "counting" }

func (c *countingClient) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	content := validPartial
	if strings.Contains(req.Messages[len(req.Messages)-1].Content, "PARTIAL EXTRACTIONS") {
		content = validSummary
	}
	return &providers.ChatResult{Content: content, Success: true, PromptTokens: 1, CompletionTokens: 1}, nil
}

func TestConcurrencyCeilingShared(t *testing.T) {
	client := &countingClient{}
	sem := semaphore.NewWeighted(2)
	a := newTestSummarizer(client, nil, func(c *Config) { c.Semaphore = sem })
	b := newTestSummarizer(client, nil, func(c *Config) { c.Semaphore = sem })

	chunks := []types.Chunk{chunkOf(0, 0), chunkOf(1, 1), chunkOf(2, 2), chunkOf(3, 3)}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, s := range []*Summarizer{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Summarize(context.Background(), Input{Chunks: chunks})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatalf("Summarize() error = %v", err)
		}
	}
	if p := client.peak.Load(); p > 2 {
		t.Errorf("peak in-flight calls = %d, want <= 2", p)
	}
}

func TestEmptyDocument(t *testing.T) {
	mock := providers.NewMockClient()
	s := newTestSummarizer(mock, nil)
	res, err := s.Summarize(context.Background(), Input{SourceFile: "scan.pdf", PageCount: 2})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if mock.RequestCount() != 1 || res.Metadata.ChunkCount != 1 {
		t.Errorf("requests = %d, metadata = %+v", mock.RequestCount(), res.Metadata)
	}
	if !strings.Contains(mock.Requests()[0].Messages[1].Content, "(no extractable text)") {
		t.Error("empty document prompt missing placeholder")
	}
}

func TestEchoedLocalKeysIgnored(t *testing.T) {
	fixedNow(t)
	echoed := `{
  "executive_summary": "Steady shift.",
  "daily_output": {"total_production": "900 units", "efficiency_rate": "88%", "status": "Normal"},
  "metadata": {"tokens_used": "unknown", "source_file": 7}
}`
	mock := providers.NewMockClient().Script(providers.MockResponse{Content: echoed, PromptTokens: 30, CompletionTokens: 10})
	s := newTestSummarizer(mock, llmcall.NewStore(0))

	res, err := s.Summarize(context.Background(), Input{SourceFile: "a.pdf", Chunks: []types.Chunk{chunkOf(0, 0)}})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("model calls = %d, want 1", mock.RequestCount())
	}
	if res.Metadata.SourceFile != "a.pdf" || res.Metadata.TokensUsed != 40 {
		t.Errorf("metadata = %+v", res.Metadata)
	}

	partial := `{"summary": "Line B idle", "pages": "1-2", "chunk_index": "first"}`
	mock = providers.NewMockClient().Script(
		providers.MockResponse{Content: partial},
		providers.MockResponse{Content: partial},
		providers.MockResponse{Content: validSummary},
	)
	s = newTestSummarizer(mock, llmcall.NewStore(0))
	if _, err := s.Summarize(context.Background(), Input{Chunks: []types.Chunk{chunkOf(0, 0), chunkOf(1, 1, 2)}}); err != nil {
		t.Fatalf("map-reduce with echoed chunk keys error = %v", err)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("model calls = %d, want 3", mock.RequestCount())
	}
	reduce := mock.Requests()[2].Messages[1].Content
	if strings.Contains(reduce, `"1-2"`) || !strings.Contains(reduce, `"chunk_index": 1`) {
		t.Errorf("reduce prompt carries model-supplied chunk keys: %s", reduce)
	}
}

func TestDecodeFailureTriggersRepair(t *testing.T) {
	// The schema accepts any object for metrics; the target does not.
	var out struct {
		Metrics map[string]int `json:"metrics"`
	}
	undecodable := `{"executive_summary": "x", "daily_output": {"total_production": "1", "efficiency_rate": "1%", "status": "Normal"}, "metrics": {"units": "many"}}`
	fixed := `{"executive_summary": "x", "daily_output": {"total_production": "1", "efficiency_rate": "1%", "status": "Normal"}, "metrics": {"units": 1200}}`

	mock := providers.NewMockClient().Script(
		providers.MockResponse{Content: undecodable},
		providers.MockResponse{Content: fixed},
	)
	store := llmcall.NewStore(0)
	s := newTestSummarizer(mock, store)

	err := s.structuredCall(context.Background(), &run{taskID: "t9"}, callPlan{
		kind:     llmcall.KindSingle,
		schema:   schema.ModelOutput,
		messages: messages("report"),
	}, &out)
	if err != nil {
		t.Fatalf("structuredCall() error = %v", err)
	}
	if mock.RequestCount() != 2 || out.Metrics["units"] != 1200 {
		t.Errorf("calls = %d, metrics = %v", mock.RequestCount(), out.Metrics)
	}
	repair := mock.Requests()[1].Messages
	if !strings.Contains(repair[len(repair)-1].Content, "cannot unmarshal") {
		t.Errorf("repair prompt does not carry the decode error: %s", repair[len(repair)-1].Content)
	}
	if n := len(store.List(llmcall.QueryFilter{Kind: llmcall.KindRepair})); n != 1 {
		t.Errorf("repair calls recorded = %d", n)
	}

	mock = providers.NewMockClient().Script(
		providers.MockResponse{Content: undecodable},
		providers.MockResponse{Content: undecodable},
	)
	s = newTestSummarizer(mock, llmcall.NewStore(0))
	err = s.structuredCall(context.Background(), &run{}, callPlan{
		kind:     llmcall.KindSingle,
		schema:   schema.ModelOutput,
		messages: messages("report"),
	}, &out)
	if KindOf(err) != KindSchemaViolation {
		t.Errorf("err = %v, want SchemaViolation", err)
	}
}

func TestMockClientDefaultsMapReduce(t *testing.T) {
	mock := providers.NewMockClient()
	s := newTestSummarizer(mock, llmcall.NewStore(0))

	res, err := s.Summarize(context.Background(), Input{
		SourceFile: "long.pdf",
		Chunks:     []types.Chunk{chunkOf(0, 0), chunkOf(1, 1), chunkOf(2, 2)},
	})
	if err != nil {
		t.Fatalf("Summarize() on default mock error = %v", err)
	}
	if mock.RequestCount() != 4 || res.Metadata.ModelCalls != 4 {
		t.Errorf("calls = %d, metadata = %+v", mock.RequestCount(), res.Metadata)
	}
}
