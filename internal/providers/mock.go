package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockResponse is one scripted answer. Err, when set, is returned instead
// of content.
type MockResponse struct {
	Content          string
	Err              error
	PromptTokens     int
	CompletionTokens int
}

// MockClient is an LLMClient for testing and offline runs. Scripted
// responses are served in order; once exhausted, Respond (if set) or the
// default texts are used. Requests whose response format is named
// PartialFormatName get PartialText when it is set, so map-reduce runs
// work offline.
type MockClient struct {
	Latency      time.Duration
	ResponseText string
	PartialText  string

	// Respond, if set, computes a response for requests past the script.
	Respond func(req *ChatRequest) MockResponse

	mu       sync.Mutex
	script   []MockResponse
	requests []ChatRequest

	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: DefaultMockSummary,
		PartialText:  DefaultMockPartial,
	}
}

// PartialFormatName is the response format name of map-phase requests.
const PartialFormatName = "partial_extraction"

// DefaultMockPartial is a schema-valid map-phase answer.
const DefaultMockPartial = `{
  "summary": "Mock extraction of one part of the submitted report.",
  "key_insights": [],
  "production_figures": [],
  "anomalies": [],
  "events": [],
  "recommendations": [],
  "metrics": {}
}`

// DefaultMockSummary is a schema-valid model answer.
const DefaultMockSummary = `{
  "executive_summary": "Mock summary of the submitted report.",
  "key_insights": [],
  "daily_output": {"total_production": "N/A", "efficiency_rate": "N/A", "status": "Normal"},
  "anomalies": [],
  "events": [],
  "recommendations": [],
  "metrics": {},
  "dashboard_alerts": []
}`

// Script appends responses to the queue.
func (c *MockClient) Script(responses ...MockResponse) *MockClient {
	c.mu.Lock()
	c.script = append(c.script, responses...)
	c.mu.Unlock()
	return c
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestCount returns the number of Chat calls made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns copies of every request received, in arrival order.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Chat returns the next scripted response.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, cloneRequest(req))
	var resp MockResponse
	scripted := len(c.script) > 0
	if scripted {
		resp = c.script[0]
		c.script = c.script[1:]
	}
	c.mu.Unlock()

	if !scripted {
		switch {
		case c.Respond != nil:
			resp = c.Respond(req)
		case c.PartialText != "" && req.ResponseFormat != nil && req.ResponseFormat.Name == PartialFormatName:
			resp = MockResponse{Content: c.PartialText}
		default:
			resp = MockResponse{Content: c.ResponseText}
		}
	}

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			result.ErrorType = "context_cancelled"
			result.ErrorMessage = ctx.Err().Error()
			result.ExecutionTime = time.Since(start)
			return result, ctx.Err()
		}
	}
	result.ExecutionTime = time.Since(start)

	if resp.Err != nil {
		result.ErrorType = errorType(resp.Err)
		result.ErrorMessage = resp.Err.Error()
		return result, resp.Err
	}

	result.Success = true
	result.Content = resp.Content
	result.PromptTokens = resp.PromptTokens
	result.CompletionTokens = resp.CompletionTokens
	if result.PromptTokens == 0 && result.CompletionTokens == 0 {
		for _, m := range req.Messages {
			result.PromptTokens += len(m.Content) / 4
		}
		result.CompletionTokens = len(resp.Content) / 4
	}
	result.TotalTokens = result.PromptTokens + result.CompletionTokens

	if req.ResponseFormat != nil {
		if parsed, err := ParseStructuredJSON(resp.Content); err == nil {
			result.ParsedJSON = parsed
		}
	}
	return result, nil
}

func cloneRequest(req *ChatRequest) ChatRequest {
	cp := *req
	cp.Messages = append([]Message(nil), req.Messages...)
	return cp
}

// MockJSON marshals v for use as scripted content.
func MockJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// ErrMockUnavailable is a transient upstream failure for scripting.
var ErrMockUnavailable = &APIError{StatusCode: 503, Message: "mock upstream unavailable"}

var _ LLMClient = (*MockClient)(nil)
