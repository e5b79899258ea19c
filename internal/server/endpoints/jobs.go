package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/svcctx"
)

// GetJobEndpoint handles GET /api/jobs/{id}, the polling counterpart to the
// SSE Progress Channel.
type GetJobEndpoint struct{}

var _ api.Endpoint = (*GetJobEndpoint)(nil)

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.MetadataStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not initialized")
		return
	}

	job, err := store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "job [job-id]",
		Short: "Get a job's status and progress events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp json.RawMessage
			if err := client.Get(cmd.Context(), fmt.Sprintf("/api/jobs/%s", args[0]), &resp); err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, resp, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
}
