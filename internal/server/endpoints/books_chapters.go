package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/svcctx"
)

// ChapterResponse is the response for "get chapter HTML".
type ChapterResponse struct {
	HTML    string      `json:"html"`
	Chapter interface{} `json:"chapter"`
}

// GetChapterEndpoint handles GET /api/books/{id}/chapters/{index}.
type GetChapterEndpoint struct{}

var _ api.Endpoint = (*GetChapterEndpoint)(nil)

func (e *GetChapterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/chapters/{index}", e.handler
}

func (e *GetChapterEndpoint) RequiresInit() bool { return true }

func (e *GetChapterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chapter index must be an integer")
		return
	}

	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	if store == nil || blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store or blob store not initialized")
		return
	}

	chapter, err := store.GetChapter(r.Context(), bookID, idx)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	html, err := blobs.Get(chapter.NormalizedHTMLBlobKey)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("chapter html not found: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, ChapterResponse{HTML: string(html), Chapter: chapter})
}

func (e *GetChapterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "chapter [book-id] [index]",
		Short: "Print a chapter's normalized HTML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ChapterResponse
			path := fmt.Sprintf("/api/books/%s/chapters/%s", args[0], args[1])
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.HTML)
			return nil
		},
	}
}
