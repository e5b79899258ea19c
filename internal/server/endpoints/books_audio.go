package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/audio"
	"github.com/readalong/readalong/internal/pipeline"
	"github.com/readalong/readalong/internal/svcctx"
)

func parseBookChapter(r *http.Request) (bookID string, chapterIdx int, lang string, err error) {
	bookID = r.PathValue("id")
	chapterIdx, err = strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return "", 0, "", fmt.Errorf("chapter index must be an integer")
	}
	lang = r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}
	return bookID, chapterIdx, lang, nil
}

// AudioDescriptor is the response for "get audio descriptor".
type AudioDescriptor struct {
	URL      string `json:"url"`
	Duration int    `json:"duration"`
	Source   string `json:"source"`
}

// GetAudioDescriptorEndpoint handles GET /api/books/{id}/chapters/{index}/audio.
type GetAudioDescriptorEndpoint struct{}

var _ api.Endpoint = (*GetAudioDescriptorEndpoint)(nil)

func (e *GetAudioDescriptorEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/chapters/{index}/audio", e.handler
}

func (e *GetAudioDescriptorEndpoint) RequiresInit() bool { return true }

func (e *GetAudioDescriptorEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	artifact, err := store.GetAudioArtifact(r.Context(), bookID, chapterIdx, lang)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, AudioDescriptor{
		URL:      fmt.Sprintf("/api/books/%s/chapters/%d/audio/stream?lang=%s", bookID, chapterIdx, lang),
		Duration: artifact.CanonicalDurationMS,
		Source:   string(artifact.Source),
	})
}

func (e *GetAudioDescriptorEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "audio-descriptor [book-id] [index]",
		Short: "Get a chapter's audio descriptor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AudioDescriptor
			path := fmt.Sprintf("/api/books/%s/chapters/%s/audio", args[0], args[1])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}

// StreamAudioEndpoint handles GET /api/books/{id}/chapters/{index}/audio/stream,
// serving the canonical audio blob with HTTP byte-range support.
type StreamAudioEndpoint struct{}

var _ api.Endpoint = (*StreamAudioEndpoint)(nil)

func (e *StreamAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/chapters/{index}/audio/stream", e.handler
}

func (e *StreamAudioEndpoint) RequiresInit() bool { return true }

func (e *StreamAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID, chapterIdx, lang, err := parseBookChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	if store == nil || blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store or blob store not initialized")
		return
	}

	artifact, err := store.GetAudioArtifact(r.Context(), bookID, chapterIdx, lang)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	data, err := blobs.Get(artifact.CanonicalBlobKey)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("canonical audio not found: %v", err))
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, artifact.CanonicalBlobKey, time.Time{}, bytes.NewReader(data))
}

func (e *StreamAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "audio-stream [book-id] [index]",
		Short: "Print the chapter audio stream URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s/api/books/%s/chapters/%s/audio/stream\n", getServerURL(), args[0], args[1])
			return nil
		},
	}
}

// GenerateAudioRequest is the request body for "generate audio".
type GenerateAudioRequest struct {
	Voice          string `json:"voice"`
	Language       string `json:"lang,omitempty"`
	UseTranslation bool   `json:"use_translation,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Format         string `json:"format,omitempty"`
}

// JobAccepted is returned when a mutation is admitted as an async Job.
type JobAccepted struct {
	JobID   string `json:"job_id"`
	Deduped bool   `json:"deduped,omitempty"`
}

// GenerateAudioEndpoint handles POST /api/books/{id}/chapters/{index}/audio.
type GenerateAudioEndpoint struct{}

var _ api.Endpoint = (*GenerateAudioEndpoint)(nil)

func (e *GenerateAudioEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/chapters/{index}/audio", e.handler
}

func (e *GenerateAudioEndpoint) RequiresInit() bool { return true }

func (e *GenerateAudioEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID, chapterIdx, lang, err := parseBookChapter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req GenerateAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Language != "" {
		lang = req.Language
	}
	if req.Voice == "" {
		writeError(w, http.StatusBadRequest, "voice is required")
		return
	}
	if req.Format == "" {
		req.Format = "mp3"
	}

	registry := svcctx.RegistryFrom(r.Context())
	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	controller := svcctx.ControllerFrom(r.Context())
	home := svcctx.HomeFrom(r.Context())
	if registry == nil || store == nil || blobs == nil || controller == nil || home == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = registry.ListTTS()[0]
	}
	provider, err := registry.GetTTS(providerName)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("tts provider %s: %v", providerName, err))
		return
	}

	book, err := store.GetBook(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	job := audio.NewSynthesizeJob(bookID, chapterIdx, lang, provider, providerName, req.Voice, req.Format, req.UseTranslation, book.Language, store, blobs, home.DataPath())

	fingerprint := pipeline.Fingerprint([]byte(fmt.Sprintf("%s|%s|%s|%v", providerName, req.Voice, req.Format, req.UseTranslation)))
	jobID, deduped, err := controller.Submit(r.Context(), job, fingerprint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, JobAccepted{JobID: jobID, Deduped: deduped})
}

func (e *GenerateAudioEndpoint) Command(getServerURL func() string) *cobra.Command {
	var voice, lang, provider, format string
	var useTranslation bool
	cmd := &cobra.Command{
		Use:   "generate-audio [book-id] [index]",
		Short: "Generate canonical audio for a chapter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := GenerateAudioRequest{Voice: voice, Language: lang, Provider: provider, Format: format, UseTranslation: useTranslation}
			var resp JobAccepted
			path := fmt.Sprintf("/api/books/%s/chapters/%s/audio", args[0], args[1])
			if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job: %s\n", resp.JobID)
			return nil
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "voice id (required)")
	cmd.Flags().StringVar(&lang, "lang", "", "language (defaults to en)")
	cmd.Flags().StringVar(&provider, "provider", "", "tts provider name (defaults to the first registered)")
	cmd.Flags().StringVar(&format, "format", "mp3", "audio format")
	cmd.Flags().BoolVar(&useTranslation, "use-translation", false, "synthesize from the translated token table")
	return cmd
}
