package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/svcctx"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

// SubmitTaskRequest names a server-local PDF to process.
type SubmitTaskRequest struct {
	Path string `json:"path"`
}

// SubmitTaskResponse is returned when a task is accepted.
type SubmitTaskResponse struct {
	TaskID string      `json:"task_id"`
	State  tasks.State `json:"state"`
}

// SubmitTaskEndpoint handles POST /api/tasks.
type SubmitTaskEndpoint struct{}

var _ api.Endpoint = (*SubmitTaskEndpoint)(nil)

func (e *SubmitTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/tasks", e.handler
}

func (e *SubmitTaskEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Submit a report
//	@Description	Queue a server-local PDF for summarization
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SubmitTaskRequest	true	"PDF path"
//	@Success		202		{object}	SubmitTaskResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/tasks [post]
func (e *SubmitTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	path, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}

	task, err := svcctx.TasksFrom(r.Context()).Submit(tasks.Input{Path: path})
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitTaskResponse{TaskID: task.ID, State: task.State})
}

func (e *SubmitTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <path>",
		Short: "Submit a PDF on the server's filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			var resp SubmitTaskResponse
			if err := client.Post(cmd.Context(), "/api/tasks", SubmitTaskRequest{Path: path}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// maxUploadSize bounds the request body of an upload.
const maxUploadSize = 200 << 20

// UploadTaskEndpoint handles POST /api/tasks/upload with a multipart PDF.
type UploadTaskEndpoint struct{}

var _ api.Endpoint = (*UploadTaskEndpoint)(nil)

func (e *UploadTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/tasks/upload", e.handler
}

func (e *UploadTaskEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload a report
//	@Description	Upload a PDF and queue it for summarization
//	@Tags			tasks
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"PDF report"
//	@Success		202		{object}	SubmitTaskResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/tasks/upload [post]
func (e *UploadTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	src, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer src.Close()

	name := filepath.Base(fh.Filename)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", name))
		return
	}

	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not initialized")
		return
	}
	if err := os.MkdirAll(homeDir.UploadsPath(), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create upload dir: %v", err))
		return
	}

	dest := homeDir.UploadPath(uuid.NewString())
	if err := saveUpload(dest, src); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save file: %v", err))
		return
	}

	task, err := svcctx.TasksFrom(r.Context()).Submit(tasks.Input{Path: dest, SourceFile: name})
	if err != nil {
		os.Remove(dest)
		writeTaskError(w, err)
		return
	}

	if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
		logger.Info("report uploaded", "task_id", task.ID, "source", name, "path", dest)
	}
	writeJSON(w, http.StatusAccepted, SubmitTaskResponse{TaskID: task.ID, State: task.State})
}

// saveUpload writes src to dest. A partially written file is removed.
func saveUpload(dest string, src io.Reader) error {
	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := copyAndClose(dst, src); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// copyAndClose reports a Close failure too; buffered writes can surface there.
func copyAndClose(dst io.WriteCloser, src io.Reader) error {
	_, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return err
}

func (e *UploadTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a local PDF to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SubmitTaskResponse
			if err := client.PostFile(cmd.Context(), "/api/tasks/upload", "file", args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListTasksResponse is the response for listing tasks.
type ListTasksResponse struct {
	Tasks []tasks.Task `json:"tasks"`
}

// ListTasksEndpoint handles GET /api/tasks.
type ListTasksEndpoint struct{}

var _ api.Endpoint = (*ListTasksEndpoint)(nil)

func (e *ListTasksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks", e.handler
}

func (e *ListTasksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List tasks
//	@Description	List tasks in submission order with optional filtering
//	@Tags			tasks
//	@Produce		json
//	@Param			batch_id	query		string	false	"Filter by batch"
//	@Param			state		query		string	false	"Filter by state"
//	@Param			limit		query		int		false	"Maximum tasks returned"
//	@Success		200			{object}	ListTasksResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/tasks [get]
func (e *ListTasksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := tasks.ListFilter{BatchID: q.Get("batch_id")}
	if s := q.Get("state"); s != "" {
		state, ok := tasks.ParseState(strings.ToUpper(s))
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", s))
			return
		}
		filter.State = state
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	list := svcctx.TasksFrom(r.Context()).List(filter)
	writeJSON(w, http.StatusOK, ListTasksResponse{Tasks: list})
}

func (e *ListTasksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var batchID, state string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/tasks"
			params := url.Values{}
			if batchID != "" {
				params.Set("batch_id", batchID)
			}
			if state != "" {
				params.Set("state", state)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			client := api.NewClient(getServerURL())
			var resp ListTasksResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "Filter by batch ID")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, RUNNING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum tasks to return")
	return cmd
}

// GetTaskEndpoint handles GET /api/tasks/{id}.
type GetTaskEndpoint struct{}

var _ api.Endpoint = (*GetTaskEndpoint)(nil)

func (e *GetTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks/{id}", e.handler
}

func (e *GetTaskEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get task
//	@Description	Task state, plus the result when COMPLETED or the error when FAILED
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task ID"
//	@Success		200	{object}	tasks.Task
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/tasks/{id} [get]
func (e *GetTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	task, err := svcctx.TasksFrom(r.Context()).Get(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (e *GetTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a task by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp tasks.Task
			if err := client.Get(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CancelTaskEndpoint handles POST /api/tasks/{id}/cancel.
type CancelTaskEndpoint struct{}

var _ api.Endpoint = (*CancelTaskEndpoint)(nil)

func (e *CancelTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/tasks/{id}/cancel", e.handler
}

func (e *CancelTaskEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel task
//	@Description	A pending task fails immediately; a running task stops at its next model call boundary
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task ID"
//	@Success		202	{object}	tasks.Task
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/tasks/{id}/cancel [post]
func (e *CancelTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	task, err := svcctx.TasksFrom(r.Context()).Cancel(r.PathValue("id"))
	if err != nil {
		writeTaskError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (e *CancelTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp tasks.Task
			if err := client.Post(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0])+"/cancel", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
