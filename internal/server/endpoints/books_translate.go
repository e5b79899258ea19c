package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/pipeline"
	"github.com/readalong/readalong/internal/svcctx"
	"github.com/readalong/readalong/internal/translate"
)

// TranslateChapterRequest is the request body for "translate chapter"
//
type TranslateChapterRequest struct {
	TargetLang string `json:"target_lang"`
	Provider   string `json:"provider,omitempty"`
}

// TranslateChapterEndpoint handles POST /api/books/{id}/chapters/{index}/translate.
type TranslateChapterEndpoint struct{}

var _ api.Endpoint = (*TranslateChapterEndpoint)(nil)

func (e *TranslateChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/chapters/{index}/translate", e.handler
}

func (e *TranslateChapterEndpoint) RequiresInit() bool { return true }

func (e *TranslateChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID, chapterIdx, _, err := parseBookChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TranslateChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.TargetLang == "" {
		writeError(w, http.StatusBadRequest, "target_lang is required")
		return
	}

	registry := svcctx.RegistryFrom(r.Context())
	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	controller := svcctx.ControllerFrom(r.Context())
	if registry == nil || store == nil || blobs == nil || controller == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	llmName := req.Provider
	if llmName == "" {
		names := registry.ListLLM()
		if len(names) == 0 {
			writeError(w, http.StatusServiceUnavailable, "no llm provider registered")
			return
		}
		llmName = names[0]
	}
	llm, err := registry.GetLLM(llmName)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("llm provider %s: %v", llmName, err))
		return
	}

	job := translate.NewJob(bookID, chapterIdx, req.TargetLang, llm, llmName, store, blobs)

	fingerprint := pipeline.Fingerprint([]byte(fmt.Sprintf("%s|%s", llmName, req.TargetLang)))
	jobID, deduped, err := controller.Submit(r.Context(), job, fingerprint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, JobAccepted{JobID: jobID, Deduped: deduped})
}

func (e *TranslateChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	var targetLang, provider string
	cmd := &cobra.Command{
		Use:   "translate [book-id] [index]",
		Short: "Translate a chapter's token table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := TranslateChapterRequest{TargetLang: targetLang, Provider: provider}
			var resp JobAccepted
			path := fmt.Sprintf("/api/books/%s/chapters/%s/translate", args[0], args[1])
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job: %s\n", resp.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&targetLang, "target-lang", "", "target language (required)")
	cmd.Flags().StringVar(&provider, "provider", "", "llm provider name (defaults to the first registered)")
	return cmd
}
