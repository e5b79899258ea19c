package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/align"
	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/config"
	"github.com/readalong/readalong/internal/pipeline"
	"github.com/readalong/readalong/internal/svcctx"
	"github.com/readalong/readalong/internal/types"
)

// AutoSyncRequest is the request body for "auto-sync".
type AutoSyncRequest struct {
	Language string `json:"lang,omitempty"`
	// Engine selects the Aligner backend: "passthrough", "asr_forced", or
	// "dtw". Defaults to the configured align_method.
	Engine string `json:"engine,omitempty"`
}

// buildAligner resolves the named engine (or the configured default) to a
// concrete Aligner.
func buildAligner(engine string, cfg *config.Config, blobs blobstore.Store) (align.Aligner, error) {
	if engine == "" {
		engine = cfg.Defaults.AlignMethod
	}
	switch engine {
	case "passthrough", "":
		return align.NewPassthrough(), nil
	case "asr_forced":
		if cfg.ASR.BaseURL == "" {
			return nil, fmt.Errorf("asr_forced align method requires asr.base_url to be configured")
		}
		return align.NewASRForced(blobs, cfg.ASR.BaseURL, config.ResolveEnvVars(cfg.ASR.APIKey)), nil
	case "dtw":
		return align.NewDTW(blobs), nil
	default:
		return nil, fmt.Errorf("unknown align engine %q", engine)
	}
}

// AutoSyncEndpoint handles POST /api/books/{id}/chapters/{index}/sync.
type AutoSyncEndpoint struct{}

var _ api.Endpoint = (*AutoSyncEndpoint)(nil)

func (e *AutoSyncEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/chapters/{index}/sync", e.handler
}

func (e *AutoSyncEndpoint) RequiresInit() bool { return true }

func (e *AutoSyncEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID, chapterIdx, lang, err := parseBookChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req AutoSyncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Language != "" {
			lang = req.Language
		}
	}

	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	controller := svcctx.ControllerFrom(r.Context())
	cfgMgr := svcctx.ConfigManagerFrom(r.Context())
	if store == nil || blobs == nil || controller == nil || cfgMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}
	cfg := cfgMgr.Get()

	aligner, err := buildAligner(req.Engine, cfg, blobs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := align.NewJob(bookID, chapterIdx, lang, aligner, cfg.Defaults.CoverageThreshold, store)

	fingerprint := pipeline.Fingerprint([]byte(fmt.Sprintf("%s|%s", req.Engine, lang)))
	jobID, deduped, err := controller.Submit(r.Context(), job, fingerprint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, JobAccepted{JobID: jobID, Deduped: deduped})
}

func (e *AutoSyncEndpoint) Command(getServerURL func() string) *cobra.Command {
	var lang, engine string
	cmd := &cobra.Command{
		Use:   "sync [book-id] [index]",
		Short: "Auto-sync a chapter's token table against its canonical audio",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := AutoSyncRequest{Language: lang, Engine: engine}
			var resp JobAccepted
			path := fmt.Sprintf("/api/books/%s/chapters/%s/sync", args[0], args[1])
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job: %s\n", resp.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "language (defaults to en)")
	cmd.Flags().StringVar(&engine, "engine", "", "align backend: passthrough, asr_forced, or dtw (defaults to the configured align_method)")
	return cmd
}

// GetSyncTableEndpoint handles GET /api/books/{id}/chapters/{index}/sync.
type GetSyncTableEndpoint struct{}

var _ api.Endpoint = (*GetSyncTableEndpoint)(nil)

func (e *GetSyncTableEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/chapters/{index}/sync", e.handler
}

func (e *GetSyncTableEndpoint) RequiresInit() bool { return true }

func (e *GetSyncTableEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID, chapterIdx, lang, err := parseBookChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := svcctx.MetadataStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not initialized")
		return
	}

	table, err := store.GetSyncTable(r.Context(), bookID, chapterIdx, lang)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, syncTableResponse{Table: table, Coverage: align.Coverage(table)})
}

type syncTableResponse struct {
	Table    types.SyncTable `json:"table"`
	Coverage float64         `json:"coverage"`
}

func (e *GetSyncTableEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-table [book-id] [index]",
		Short: "Get a chapter's sync table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp syncTableResponse
			path := fmt.Sprintf("/api/books/%s/chapters/%s/sync", args[0], args[1])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}
