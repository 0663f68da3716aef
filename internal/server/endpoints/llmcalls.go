package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/llmcall"
	"github.com/jackzampolin/reportsum/internal/svcctx"
)

// TaskLLMCallsResponse is the model call ledger of one task.
type TaskLLMCallsResponse struct {
	TaskID  string          `json:"task_id"`
	Calls   []llmcall.Call  `json:"calls"`
	Summary llmcall.Summary `json:"summary"`
}

// TaskLLMCallsEndpoint handles GET /api/tasks/{id}/llmcalls.
type TaskLLMCallsEndpoint struct{}

var _ api.Endpoint = (*TaskLLMCallsEndpoint)(nil)

func (e *TaskLLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks/{id}/llmcalls", e.handler
}

func (e *TaskLLMCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Task model calls
//	@Description	Every model call made for a task, with token totals
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task ID"
//	@Success		200	{object}	TaskLLMCallsResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/tasks/{id}/llmcalls [get]
func (e *TaskLLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := svcctx.TasksFrom(r.Context()).Get(id); err != nil {
		writeTaskError(w, err)
		return
	}
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "llm call store not initialized")
		return
	}

	calls := store.List(llmcall.QueryFilter{TaskID: id})
	if calls == nil {
		calls = []llmcall.Call{}
	}
	writeJSON(w, http.StatusOK, TaskLLMCallsResponse{
		TaskID:  id,
		Calls:   calls,
		Summary: store.Summarize(id),
	})
}

func (e *TaskLLMCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "llmcalls <task-id>",
		Short: "List the model calls made for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TaskLLMCallsResponse
			if err := client.Get(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0])+"/llmcalls", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetLLMCallEndpoint handles GET /api/llmcalls/{id}.
type GetLLMCallEndpoint struct{}

var _ api.Endpoint = (*GetLLMCallEndpoint)(nil)

func (e *GetLLMCallEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/{id}", e.handler
}

func (e *GetLLMCallEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get LLM call
//	@Description	One recorded model call by ID
//	@Tags			llmcalls
//	@Produce		json
//	@Param			id	path		string	true	"Call ID"
//	@Success		200	{object}	llmcall.Call
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/llmcalls/{id} [get]
func (e *GetLLMCallEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "llm call store not initialized")
		return
	}
	call, ok := store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "llm call not found")
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (e *GetLLMCallEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an LLM call by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp llmcall.Call
			if err := client.Get(cmd.Context(), "/api/llmcalls/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
