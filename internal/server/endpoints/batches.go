package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/svcctx"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

// SubmitBatchRequest names server-local PDFs to process together.
type SubmitBatchRequest struct {
	Paths []string `json:"paths"`
}

// SubmitBatchResponse carries the batch id and one task id per path, in order.
type SubmitBatchResponse struct {
	BatchID string   `json:"batch_id"`
	TaskIDs []string `json:"task_ids"`
}

// SubmitBatchEndpoint handles POST /api/batches.
type SubmitBatchEndpoint struct{}

var _ api.Endpoint = (*SubmitBatchEndpoint)(nil)

func (e *SubmitBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/batches", e.handler
}

func (e *SubmitBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Submit a batch
//	@Description	Queue several server-local PDFs; each becomes an independent task
//	@Tags			batches
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SubmitBatchRequest	true	"PDF paths"
//	@Success		202		{object}	SubmitBatchResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/batches [post]
func (e *SubmitBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}

	inputs := make([]tasks.Input, len(req.Paths))
	for i, p := range req.Paths {
		if strings.TrimSpace(p) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("paths[%d] is empty", i))
			return
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path %q: %v", p, err))
			return
		}
		inputs[i] = tasks.Input{Path: abs}
	}

	batchID, created, err := svcctx.TasksFrom(r.Context()).SubmitBatch(inputs)
	if err != nil {
		writeTaskError(w, err)
		return
	}
	resp := SubmitBatchResponse{BatchID: batchID, TaskIDs: make([]string, len(created))}
	for i, t := range created {
		resp.TaskIDs[i] = t.ID
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (e *SubmitBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <path>...",
		Short: "Submit several PDFs on the server's filesystem as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := SubmitBatchRequest{Paths: make([]string, len(args))}
			for i, a := range args {
				abs, err := filepath.Abs(a)
				if err != nil {
					return err
				}
				req.Paths[i] = abs
			}
			client := api.NewClient(getServerURL())
			var resp SubmitBatchResponse
			if err := client.Post(cmd.Context(), "/api/batches", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// BatchStatusEndpoint handles GET /api/batches/{id}.
type BatchStatusEndpoint struct{}

var _ api.Endpoint = (*BatchStatusEndpoint)(nil)

func (e *BatchStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/batches/{id}", e.handler
}

func (e *BatchStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Batch status
//	@Description	Task counts per state for a batch
//	@Tags			batches
//	@Produce		json
//	@Param			id	path		string	true	"Batch ID"
//	@Success		200	{object}	tasks.BatchStatus
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/batches/{id} [get]
func (e *BatchStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st, err := svcctx.TasksFrom(r.Context()).Batch(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (e *BatchStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get batch status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp tasks.BatchStatus
			if err := client.Get(cmd.Context(), "/api/batches/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
