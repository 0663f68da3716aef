package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/archive"
	"github.com/jackzampolin/reportsum/internal/home"
	"github.com/jackzampolin/reportsum/internal/llmcall"
	"github.com/jackzampolin/reportsum/internal/providers"
	"github.com/jackzampolin/reportsum/internal/schema"
	"github.com/jackzampolin/reportsum/internal/server/endpoints"
	"github.com/jackzampolin/reportsum/internal/svcctx"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

type testEnv struct {
	url     string
	client  *api.Client
	manager *tasks.Manager
	archive *archive.Archive
	calls   *llmcall.Store
	// gate releases processing of paths containing "slow".
	gate chan struct{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	arch, err := archive.New(dir.SummariesPath(), logger)
	if err != nil {
		t.Fatalf("archive.New() error = %v", err)
	}

	env := &testEnv{
		archive: arch,
		calls:   llmcall.NewStore(0),
		gate:    make(chan struct{}),
	}

	proc := tasks.ProcessorFunc(func(ctx context.Context, job tasks.Job) (*schema.Result, *tasks.ErrorInfo) {
		if strings.Contains(job.Path, "slow") {
			select {
			case <-env.gate:
			case <-job.Stop:
				return nil, &tasks.ErrorInfo{Kind: tasks.KindCancelled, Message: "cancelled", Stage: tasks.StageSummarize}
			case <-ctx.Done():
				return nil, &tasks.ErrorInfo{Kind: tasks.KindCancelled, Message: ctx.Err().Error(), Stage: tasks.StageSummarize}
			}
		}
		if strings.Contains(job.Path, "corrupt") {
			return nil, &tasks.ErrorInfo{Kind: tasks.KindCorruptInput, Message: "not a PDF", Stage: tasks.StageExtract}
		}
		env.calls.Add(llmcall.Call{
			ID:           "call-" + job.TaskID,
			Timestamp:    time.Now(),
			TaskID:       job.TaskID,
			Kind:         llmcall.KindSingle,
			Model:        "mock",
			InputTokens:  30,
			OutputTokens: 10,
			Attempts:     1,
			Success:      true,
		})
		res := &schema.Result{
			ExecutiveSummary: "steady shift",
			DailyOutput:      schema.DailyOutput{TotalProduction: "1200", EfficiencyRate: "94%", Status: schema.StatusNormal},
			Metadata: schema.Metadata{
				SourceFile:          job.SourceFile,
				ProcessingTimestamp: time.Now().UTC().Format(time.RFC3339),
				ModelUsed:           "mock",
				TokensUsed:          40,
				ChunkCount:          1,
				ModelCalls:          1,
			},
		}
		res.Normalize()
		if _, err := arch.Save(res); err != nil {
			return nil, &tasks.ErrorInfo{Kind: tasks.KindInternal, Message: err.Error(), Stage: tasks.StageArchive}
		}
		return res, nil
	})

	env.manager = tasks.NewManager(tasks.Config{Processor: proc, Workers: 1, QueueSize: 16, Logger: logger})
	ctx, cancel := context.WithCancel(context.Background())
	env.manager.Start(ctx)

	srv, err := New(Config{
		Services: &svcctx.Services{
			Tasks:        env.manager,
			Archive:      arch,
			LLMCallStore: env.calls,
			Limiter:      providers.NewRateLimiter(5),
			Logger:       logger,
			Home:         dir,
		},
		AllowedOrigins: []string{"http://dashboard.local"},
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	env.url = ts.URL
	env.client = api.NewClient(ts.URL)

	t.Cleanup(func() {
		ts.Close()
		cancel()
		env.manager.Shutdown()
	})
	return env
}

func (e *testEnv) wait(t *testing.T, id string) tasks.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := e.manager.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s) error = %v", id, err)
	}
	return task
}

func (e *testEnv) waitRunning(t *testing.T, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := e.manager.Get(id)
		if err == nil && task.State == tasks.StateRunning {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never started", id)
}

func statusOf(t *testing.T, method, url, contentType string, body io.Reader) int {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestNewRequiresTaskManager(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without services should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var resp endpoints.HealthResponse
	if err := env.client.Get(context.Background(), "/health", &resp); err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestSubmitAndFetchSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var sub endpoints.SubmitTaskResponse
	if err := env.client.Post(ctx, "/api/tasks", map[string]string{"path": "/data/Shift_Report.pdf"}, &sub); err != nil {
		t.Fatalf("POST /api/tasks error = %v", err)
	}
	if sub.TaskID == "" || sub.State != tasks.StatePending {
		t.Fatalf("submit response = %+v", sub)
	}
	env.wait(t, sub.TaskID)

	var task tasks.Task
	if err := env.client.Get(ctx, "/api/tasks/"+sub.TaskID, &task); err != nil {
		t.Fatalf("GET task error = %v", err)
	}
	if task.State != tasks.StateCompleted || task.Result == nil || task.Error != nil {
		t.Fatalf("task = %+v", task)
	}
	if task.SourceFile != "Shift_Report.pdf" {
		t.Errorf("source_file = %q", task.SourceFile)
	}

	var sum schema.Result
	if err := env.client.Get(ctx, "/api/summaries/"+sub.TaskID, &sum); err != nil {
		t.Fatalf("GET summary error = %v", err)
	}
	if sum.ExecutiveSummary != "steady shift" || sum.Metadata.TokensUsed != 40 {
		t.Errorf("summary = %+v", sum)
	}

	var list endpoints.ListSummariesResponse
	if err := env.client.Get(ctx, "/api/summaries", &list); err != nil {
		t.Fatalf("GET summaries error = %v", err)
	}
	if len(list.Summaries) != 1 {
		t.Errorf("summaries = %+v", list.Summaries)
	}

	var ledger endpoints.TaskLLMCallsResponse
	if err := env.client.Get(ctx, "/api/tasks/"+sub.TaskID+"/llmcalls", &ledger); err != nil {
		t.Fatalf("GET llmcalls error = %v", err)
	}
	if len(ledger.Calls) != 1 || ledger.Summary.InputTokens != 30 || ledger.Summary.OutputTokens != 10 {
		t.Errorf("ledger = %+v", ledger)
	}

	var call llmcall.Call
	if err := env.client.Get(ctx, "/api/llmcalls/"+ledger.Calls[0].ID, &call); err != nil {
		t.Fatalf("GET llmcall error = %v", err)
	}
	if call.TaskID != sub.TaskID {
		t.Errorf("call task = %q", call.TaskID)
	}
}

func TestFailedTaskHasNoSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var sub endpoints.SubmitTaskResponse
	if err := env.client.Post(ctx, "/api/tasks", map[string]string{"path": "/data/corrupt.pdf"}, &sub); err != nil {
		t.Fatal(err)
	}
	done := env.wait(t, sub.TaskID)
	if done.Error == nil || done.Error.Kind != tasks.KindCorruptInput {
		t.Fatalf("task = %+v", done)
	}
	if got := statusOf(t, "GET", env.url+"/api/summaries/"+sub.TaskID, "", nil); got != http.StatusConflict {
		t.Errorf("summary of failed task status = %d, want 409", got)
	}
	if got := statusOf(t, "GET", env.url+"/api/tasks/missing", "", nil); got != http.StatusNotFound {
		t.Errorf("missing task status = %d, want 404", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		path string
		body string
	}{
		{"bad json", "/api/tasks", "{"},
		{"missing path", "/api/tasks", `{}`},
		{"empty batch", "/api/batches", `{"paths":[]}`},
		{"blank batch entry", "/api/batches", `{"paths":["a.pdf",""]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statusOf(t, "POST", env.url+tt.path, "application/json", strings.NewReader(tt.body))
			if got != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", got)
			}
		})
	}
}

func TestBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var sub endpoints.SubmitBatchResponse
	req := endpoints.SubmitBatchRequest{Paths: []string{"/data/a.pdf", "/data/corrupt.pdf", "/data/c.pdf"}}
	if err := env.client.Post(ctx, "/api/batches", req, &sub); err != nil {
		t.Fatalf("POST /api/batches error = %v", err)
	}
	if sub.BatchID == "" || len(sub.TaskIDs) != 3 {
		t.Fatalf("batch response = %+v", sub)
	}
	for _, id := range sub.TaskIDs {
		env.wait(t, id)
	}

	var st tasks.BatchStatus
	if err := env.client.Get(ctx, "/api/batches/"+sub.BatchID, &st); err != nil {
		t.Fatalf("GET batch error = %v", err)
	}
	if st.Counts[tasks.StateCompleted] != 2 || st.Counts[tasks.StateFailed] != 1 {
		t.Errorf("batch status = %+v", st)
	}

	var list endpoints.ListTasksResponse
	if err := env.client.Get(ctx, "/api/tasks?batch_id="+sub.BatchID+"&state=failed", &list); err != nil {
		t.Fatalf("GET tasks error = %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != sub.TaskIDs[1] {
		t.Errorf("failed tasks = %+v", list.Tasks)
	}
	if got := statusOf(t, "GET", env.url+"/api/tasks?state=bogus", "", nil); got != http.StatusBadRequest {
		t.Errorf("invalid state filter status = %d, want 400", got)
	}
	if got := statusOf(t, "GET", env.url+"/api/batches/missing", "", nil); got != http.StatusNotFound {
		t.Errorf("missing batch status = %d, want 404", got)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var running, pending endpoints.SubmitTaskResponse
	if err := env.client.Post(ctx, "/api/tasks", map[string]string{"path": "/data/slow.pdf"}, &running); err != nil {
		t.Fatal(err)
	}
	env.waitRunning(t, running.TaskID)
	if err := env.client.Post(ctx, "/api/tasks", map[string]string{"path": "/data/next.pdf"}, &pending); err != nil {
		t.Fatal(err)
	}

	var cancelled tasks.Task
	if err := env.client.Post(ctx, "/api/tasks/"+pending.TaskID+"/cancel", nil, &cancelled); err != nil {
		t.Fatalf("cancel pending error = %v", err)
	}
	if cancelled.State != tasks.StateFailed || cancelled.Error == nil || cancelled.Error.Kind != tasks.KindCancelled {
		t.Errorf("cancelled pending task = %+v", cancelled)
	}
	if got := statusOf(t, "POST", env.url+"/api/tasks/"+pending.TaskID+"/cancel", "", nil); got != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", got)
	}

	if err := env.client.Post(ctx, "/api/tasks/"+running.TaskID+"/cancel", nil, nil); err != nil {
		t.Fatalf("cancel running error = %v", err)
	}
	done := env.wait(t, running.TaskID)
	if done.State != tasks.StateFailed || done.Error.Kind != tasks.KindCancelled {
		t.Errorf("cancelled running task = %+v", done)
	}
}

func upload(t *testing.T, url, name string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()
	resp, err := http.Post(url+"/api/tasks/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload error = %v", err)
	}
	return resp
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)

	resp := upload(t, env.url, "notes.txt", []byte("hello"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-PDF upload status = %d, want 400", resp.StatusCode)
	}

	local := filepath.Join(t.TempDir(), "Line 4 Report.pdf")
	if err := os.WriteFile(local, []byte("%PDF-1.7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var sub endpoints.SubmitTaskResponse
	if err := env.client.PostFile(context.Background(), "/api/tasks/upload", "file", local, &sub); err != nil {
		t.Fatalf("PostFile() error = %v", err)
	}
	done := env.wait(t, sub.TaskID)
	if done.SourceFile != "Line 4 Report.pdf" {
		t.Errorf("source_file = %q", done.SourceFile)
	}
	if !strings.HasSuffix(done.InputReference, ".pdf") || !strings.Contains(done.InputReference, "uploads") {
		t.Errorf("input_reference = %q", done.InputReference)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var sub endpoints.SubmitTaskResponse
	if err := env.client.Post(ctx, "/api/tasks", map[string]string{"path": "/data/Shift_Report.pdf"}, &sub); err != nil {
		t.Fatal(err)
	}
	env.wait(t, sub.TaskID)

	var list endpoints.ListArchiveResponse
	if err := env.client.Get(ctx, "/api/archive", &list); err != nil {
		t.Fatalf("GET archive error = %v", err)
	}
	if len(list.Files) != 1 || !strings.HasPrefix(list.Files[0].Filename, "Shift_Report_summary_") {
		t.Fatalf("archive = %+v", list.Files)
	}

	var res schema.Result
	if err := env.client.Get(ctx, "/api/archive/"+list.Files[0].Filename, &res); err != nil {
		t.Fatalf("GET archive file error = %v", err)
	}
	if res.Metadata.SourceFile != "Shift_Report.pdf" {
		t.Errorf("archived source = %q", res.Metadata.SourceFile)
	}

	for _, name := range []string{"config.yaml", ".hidden.json"} {
		if got := statusOf(t, "GET", env.url+"/api/archive/"+name, "", nil); got != http.StatusBadRequest {
			t.Errorf("GET archive %q status = %d, want 400", name, got)
		}
	}
	if got := statusOf(t, "GET", env.url+"/api/archive/missing.json", "", nil); got != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", got)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	var st endpoints.StatusResponse
	if err := env.client.Get(context.Background(), "/status", &st); err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	if st.Server != "running" || st.RateLimit == nil || st.RateLimit.RequestsPerSecond != 5 {
		t.Errorf("status = %+v", st)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, env.url+"/api/tasks", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("preflight allow-origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, env.url+"/health", nil)
	req.Header.Set("Origin", "http://elsewhere.local")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allow-origin = %q, want empty", got)
	}
	var health endpoints.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.Status != "ok" {
		t.Errorf("health through CORS = %+v, %v", health, err)
	}
}
