package endpoints

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/reportsum/internal/api"
	"github.com/jackzampolin/reportsum/internal/archive"
	"github.com/jackzampolin/reportsum/internal/schema"
	"github.com/jackzampolin/reportsum/internal/svcctx"
)

// ListArchiveResponse lists archived summary files.
type ListArchiveResponse struct {
	Files []archive.Entry `json:"files"`
}

// ListArchiveEndpoint handles GET /api/archive.
type ListArchiveEndpoint struct{}

var _ api.Endpoint = (*ListArchiveEndpoint)(nil)

func (e *ListArchiveEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/archive", e.handler
}

func (e *ListArchiveEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List archived summaries
//	@Description	Summary files on disk, newest first
//	@Tags			archive
//	@Produce		json
//	@Success		200	{object}	ListArchiveResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/archive [get]
func (e *ListArchiveEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	arch := svcctx.ArchiveFrom(r.Context())
	if arch == nil {
		writeError(w, http.StatusServiceUnavailable, "archive not initialized")
		return
	}
	entries, err := arch.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListArchiveResponse{Files: entries})
}

func (e *ListArchiveEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived summary files",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListArchiveResponse
			if err := client.Get(cmd.Context(), "/api/archive", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetArchiveEndpoint handles GET /api/archive/{filename}.
type GetArchiveEndpoint struct{}

var _ api.Endpoint = (*GetArchiveEndpoint)(nil)

func (e *GetArchiveEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/archive/{filename}", e.handler
}

func (e *GetArchiveEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get archived summary
//	@Description	Read one archived summary file
//	@Tags			archive
//	@Produce		json
//	@Param			filename	path		string	true	"Archive file name"
//	@Success		200			{object}	schema.Result
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/archive/{filename} [get]
func (e *GetArchiveEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	arch := svcctx.ArchiveFrom(r.Context())
	if arch == nil {
		writeError(w, http.StatusServiceUnavailable, "archive not initialized")
		return
	}
	res, err := arch.Get(r.PathValue("filename"))
	switch {
	case errors.Is(err, archive.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (e *GetArchiveEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <filename>",
		Short: "Get an archived summary file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp schema.Result
			if err := client.Get(cmd.Context(), "/api/archive/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
