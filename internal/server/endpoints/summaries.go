package endpoints

import (
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/schema"
	"github.com/jackzampolin/reportsum/internal/svcctx"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

// ListSummariesResponse lists completed tasks.
type ListSummariesResponse struct {
	Summaries []tasks.SummaryInfo `json:"summaries"`
}

// ListSummariesEndpoint handles GET /api/summaries.
type ListSummariesEndpoint struct{}

var _ api.Endpoint = (*ListSummariesEndpoint)(nil)

func (e *ListSummariesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/summaries", e.handler
}

func (e *ListSummariesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List summaries
//	@Description	Completed tasks of this server process
//	@Tags			summaries
//	@Produce		json
//	@Success		200	{object}	ListSummariesResponse
//	@Router			/api/summaries [get]
func (e *ListSummariesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListSummariesResponse{Summaries: svcctx.TasksFrom(r.Context()).Summaries()})
}

func (e *ListSummariesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List completed summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListSummariesResponse
			if err := client.Get(cmd.Context(), "/api/summaries", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetSummaryEndpoint handles GET /api/summaries/{id}.
type GetSummaryEndpoint struct{}

var _ api.Endpoint = (*GetSummaryEndpoint)(nil)

func (e *GetSummaryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/summaries/{id}", e.handler
}

func (e *GetSummaryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get summary
//	@Description	The SummaryResult of a completed task
//	@Tags			summaries
//	@Produce		json
//	@Param			id	path		string	true	"Task ID"
//	@Success		200	{object}	schema.Result
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/summaries/{id} [get]
func (e *GetSummaryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	res, err := svcctx.TasksFrom(r.Context()).Summary(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *GetSummaryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Get the summary of a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp schema.Result
			if err := client.Get(cmd.Context(), "/api/summaries/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
