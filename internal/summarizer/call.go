package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/reportsum/internal/llmcall"
	"github.com/jackzampolin/reportsum/internal/providers"
	"github.com/jackzampolin/reportsum/internal/schema"
)

// run accumulates usage across the calls of one Summarize invocation.
type run struct {
	taskID string
	stop   <-chan struct{}

	mu     sync.Mutex
	tokens int64
	calls  int
	model  string
}

func (r *run) add(res *providers.ChatResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.tokens += int64(res.PromptTokens + res.CompletionTokens)
	if res.ModelUsed != "" {
		r.model = res.ModelUsed
	}
}

func (r *run) usage() (tokens int64, calls int, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens, r.calls, r.model
}

// callPlan describes one logical model call.
type callPlan struct {
	kind      llmcall.Kind
	chunk     *int
	promptKey string
	schema    schema.Name
	messages  []providers.Message
	// local are answer keys the caller fills itself; they are dropped
	// before decoding so a model echoing them cannot break the decode.
	local []string
}

// structuredCall issues a call, validates the answer against the plan's
// schema, decodes it into out and, if either step fails, makes exactly
// one corrective repair call.
func (s *Summarizer) structuredCall(ctx context.Context, r *run, plan callPlan, out any) error {
	sch, err := schema.Get(plan.schema)
	if err != nil {
		return err
	}

	res, err := s.chat(ctx, r, plan.kind, plan)
	if err != nil {
		return err
	}
	verr := decodeValid(sch, res.Content, plan.local, out)
	if verr == nil {
		return nil
	}

	s.logger.Info("model output failed validation, requesting repair",
		"task_id", r.taskID,
		"kind", plan.kind,
		"schema", plan.schema,
		"error", verr)

	repair := plan
	repair.messages = make([]providers.Message, 0, len(plan.messages)+2)
	repair.messages = append(repair.messages, plan.messages...)
	repair.messages = append(repair.messages,
		providers.Message{Role: providers.RoleAssistant, Content: res.Content},
		providers.Message{Role: providers.RoleUser, Content: providers.RepairPrompt(sch.Raw, res.Content, verr)},
	)
	res, err = s.chat(ctx, r, llmcall.KindRepair, repair)
	if err != nil {
		return err
	}
	if verr := decodeValid(sch, res.Content, plan.local, out); verr != nil {
		return &Error{Kind: KindSchemaViolation, Err: verr}
	}
	return nil
}

// decodeValid parses content, validates it against sch, drops the local
// keys and decodes the rest into out.
func decodeValid(sch *schema.Schema, content string, local []string, out any) error {
	parsed, err := providers.ParseStructuredJSON(content)
	if err != nil {
		return err
	}
	if err := sch.Validate(parsed); err != nil {
		return err
	}
	if len(local) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(parsed, &fields); err != nil {
			return fmt.Errorf("decode %s: %w", sch.Name, err)
		}
		for _, k := range local {
			delete(fields, k)
		}
		if parsed, err = json.Marshal(fields); err != nil {
			return fmt.Errorf("decode %s: %w", sch.Name, err)
		}
	}
	if err := json.Unmarshal(parsed, out); err != nil {
		return fmt.Errorf("decode %s: %w", sch.Name, err)
	}
	return nil
}

// chat performs one model call under the global concurrency ceiling,
// retrying transient failures with exponential backoff. Each attempt gets
// its own timeout; expiry counts as transient.
func (s *Summarizer) chat(ctx context.Context, r *run, kind llmcall.Kind, plan callPlan) (*providers.ChatResult, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	// Every call start is a cancellation boundary.
	if stopped(r.stop) {
		return nil, ErrStopped
	}

	req := &providers.ChatRequest{
		Messages:       plan.messages,
		Model:          s.model,
		Temperature:    s.temperature,
		ResponseFormat: &providers.ResponseFormat{Type: "json_object", Name: string(plan.schema)},
		RequestID:      uuid.New().String(),
	}

	var (
		result   *providers.ChatResult
		attempts uint
	)
	err := retry.Do(
		func() error {
			attempts++
			callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
			defer cancel()
			res, err := s.client.Chat(callCtx, req)
			result = res
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.maxRetries)+1),
		retry.Delay(s.retryDelay),
		retry.MaxDelay(s.maxRetryDelay),
		retry.MaxJitter(max(s.retryDelay/2, time.Microsecond)),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(providers.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("model call failed, retrying",
				"task_id", r.taskID,
				"kind", kind,
				"attempt", n+1,
				"max_attempts", s.maxRetries+1,
				"error", err)
		}),
	)

	s.record(r, kind, plan, result, int(attempts), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Kind: KindUpstreamUnavailable, Attempts: int(attempts), Err: err}
	}
	r.add(result)
	return result, nil
}

func (s *Summarizer) record(r *run, kind llmcall.Kind, plan callPlan, res *providers.ChatResult, attempts int, err error) {
	if s.recorder == nil {
		return
	}
	if res == nil {
		res = &providers.ChatResult{Provider: s.client.Name(), ModelUsed: s.model}
	}
	opts := llmcall.RecordOptions{
		TaskID:     r.taskID,
		Kind:       kind,
		ChunkIndex: plan.chunk,
		PromptKey:  plan.promptKey,
		Attempts:   attempts,
		Err:        err,
	}
	if p, perr := s.prompts.Get(plan.promptKey); perr == nil {
		opts.PromptHash = p.Hash
	}
	s.recorder.Record(res, opts)
}

// nowUTC is swapped in tests.
var nowUTC = func() time.Time { return time.Now().UTC() }
