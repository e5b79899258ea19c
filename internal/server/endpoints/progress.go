package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/svcctx"
)

// ProgressStreamEndpoint handles GET /api/progress, an SSE stream of a
// single target key's Job progress events.
// The target key is a job's TargetKey (the target_key field of the record
// GET /api/jobs/{id} returns), not the job id: all jobs sharing a target key
// (e.g. a resubmission after a failure) appear on the same stream.
type ProgressStreamEndpoint struct{}

var _ api.Endpoint = (*ProgressStreamEndpoint)(nil)

func (e *ProgressStreamEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/progress", e.handler
}

func (e *ProgressStreamEndpoint) RequiresInit() bool { return true }

func (e *ProgressStreamEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	broker := svcctx.BrokerFrom(r.Context())
	if broker == nil {
		writeError(w, http.StatusServiceUnavailable, "progress broker not initialized")
		return
	}
	broker.ServeHTTP(w, r)
}

func (e *ProgressStreamEndpoint) Command(getServerURL func() string) *cobra.Command {
	var targetKey string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream progress events for a target key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetKey == "" {
				return fmt.Errorf("--target-key is required")
			}
			url := fmt.Sprintf("%s/api/progress?target_key=%s", getServerURL(), targetKey)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			buf := make([]byte, 4096)
			for {
				n, err := resp.Body.Read(buf)
				if n > 0 {
					fmt.Fprint(cmd.OutOrStdout(), string(buf[:n]))
				}
				if err != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&targetKey, "target-key", "", "job target key to watch (required)")
	return cmd
}
