package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/audio"
	"github.com/readalong/readalong/internal/pipeline"
	"github.com/readalong/readalong/internal/svcctx"
	"github.com/readalong/readalong/internal/types"
)

func newEditor(r *http.Request) (*audio.Editor, bool) {
	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	home := svcctx.HomeFrom(r.Context())
	if store == nil || blobs == nil || home == nil {
		return nil, false
	}
	return audio.NewEditor(store, blobs, home.DataPath()), true
}

func submitEditJob(w http.ResponseWriter, r *http.Request, job *audio.EditJob, fingerprintInput string) {
	controller := svcctx.ControllerFrom(r.Context())
	if controller == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline controller not initialized")
		return
	}
	fingerprint := pipeline.Fingerprint([]byte(fingerprintInput))
	jobID, deduped, err := controller.Submit(r.Context(), job, fingerprint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	controller.Invalidate(job.TargetKey())
	writeJSON(w, http.StatusAccepted, JobAccepted{JobID: jobID, Deduped: deduped})
}

// TrimAudioRequest is the request body for "trim audio". Exactly
// one of the range or skip-word forms must be set.
type TrimAudioRequest struct {
	TrimStart   *int     `json:"trim_start,omitempty"`
	TrimEnd     *int     `json:"trim_end,omitempty"`
	SkipWordIDs []string `json:"skip_word_ids,omitempty"`
}

// TrimAudioEndpoint handles POST /api/books/{id}/chapters/{index}/audio/trim.
type TrimAudioEndpoint struct{}

var _ api.Endpoint = (*TrimAudioEndpoint)(nil)

func (e *TrimAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/chapters/{index}/audio/trim", e.handler
}

func (e *TrimAudioEndpoint) RequiresInit() bool { return true }

func (e *TrimAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID, chapterIdx, lang, err := parseBookChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TrimAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	editor, ok := newEditor(r)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	job := &audio.EditJob{Editor: editor, BookID: bookID, ChapterIndex: chapterIdx, Language: lang}
	var fingerprintInput string
	switch {
	case (req.TrimStart != nil || req.TrimEnd != nil) && len(req.SkipWordIDs) > 0:
		writeError(w, http.StatusBadRequest, "set either trim_start/trim_end or skip_word_ids, not both")
		return
	case req.TrimStart != nil && req.TrimEnd != nil:
		job.Op = types.EditOpRangeCut
		job.TrimStart, job.TrimEnd = *req.TrimStart, *req.TrimEnd
		fingerprintInput = fmt.Sprintf("range_cut|%d|%d", job.TrimStart, job.TrimEnd)
	case len(req.SkipWordIDs) > 0:
		job.Op = types.EditOpSkipCut
		job.SkipWordIDs = req.SkipWordIDs
		fingerprintInput = fmt.Sprintf("skip_cut|%v", req.SkipWordIDs)
	default:
		writeError(w, http.StatusBadRequest, "either trim_start/trim_end or skip_word_ids is required")
		return
	}

	submitEditJob(w, r, job, fingerprintInput)
}

func (e *TrimAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	var trimStart, trimEnd int
	var skipWordIDs []string
	cmd := &cobra.Command{
		Use:   "trim-audio [book-id] [index]",
		Short: "Trim or skip-cut a chapter's canonical audio",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := TrimAudioRequest{SkipWordIDs: skipWordIDs}
			if cmd.Flags().Changed("trim-start") || cmd.Flags().Changed("trim-end") {
				req.TrimStart, req.TrimEnd = &trimStart, &trimEnd
			}
			var resp JobAccepted
			path := fmt.Sprintf("/api/books/%s/chapters/%s/audio/trim", args[0], args[1])
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job: %s\n", resp.JobID)
			return nil
		},
	}
	cmd.Flags().IntVar(&trimStart, "trim-start", 0, "start of range to remove, in ms")
	cmd.Flags().IntVar(&trimEnd, "trim-end", 0, "end of range to remove, in ms")
	cmd.Flags().StringSliceVar(&skipWordIDs, "skip-word-id", nil, "token id to remove (repeatable)")
	return cmd
}

// RestoreAudioEndpoint handles POST /api/books/{id}/chapters/{index}/audio/restore.
type RestoreAudioEndpoint struct{}

var _ api.Endpoint = (*RestoreAudioEndpoint)(nil)

func (e *RestoreAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/chapters/{index}/audio/restore", e.handler
}

func (e *RestoreAudioEndpoint) RequiresInit() bool { return true }

func (e *RestoreAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID, chapterIdx, lang, err := parseBookChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	editor, ok := newEditor(r)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	job := &audio.EditJob{Editor: editor, BookID: bookID, ChapterIndex: chapterIdx, Language: lang, Op: types.EditOpRestore}
	submitEditJob(w, r, job, "restore")
}

func (e *RestoreAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-audio [book-id] [index]",
		Short: "Restore a chapter's canonical audio to its original source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobAccepted
			path := fmt.Sprintf("/api/books/%s/chapters/%s/audio/restore", args[0], args[1])
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job: %s\n", resp.JobID)
			return nil
		},
	}
}
