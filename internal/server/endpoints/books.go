package endpoints

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/epub"
	"github.com/readalong/readalong/internal/svcctx"
	"github.com/readalong/readalong/internal/types"
)

// UploadBookEndpoint handles POST /api/books, accepting a multipart EPUB
// upload and returning the created Book record.
type UploadBookEndpoint struct{}

var _ api.Endpoint = (*UploadBookEndpoint)(nil)

func (e *UploadBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books", e.handler
}

func (e *UploadBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload an EPUB
//	@Description	Unpack and register a new book from an EPUB file
//	@Tags			books
//	@Accept			mpfd
//	@Produce		json
//	@Param			file	formData	file	true	"EPUB file"
//	@Success		201		{object}	types.Book
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books [post]
func (e *UploadBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 500 << 20 // 500MB upload ceiling
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".epub") {
		writeError(w, http.StatusBadRequest, "file must be an .epub")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	if store == nil || blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store or blob store not initialized")
		return
	}

	unpacked, err := epub.Unpack(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to unpack epub: %v", err))
		return
	}

	bookID := uuid.NewString()
	keys := blobstore.BookKeys{BookID: bookID}

	if err := blobs.Put(keys.OriginalEPUB(), data); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store original: %v", err))
		return
	}

	chapterRefs := make([]types.ChapterRef, 0, len(unpacked.Chapters))
	for i, ch := range unpacked.Chapters {
		rewriteURL := func(href string) string { return "assets/" + href }
		normalized, err := epub.Normalize(ch.XHTML, rewriteURL)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("failed to normalize chapter %d: %v", i, err))
			return
		}

		if err := blobs.Put(keys.ChapterHTML(i), []byte(normalized.Body)); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store chapter %d: %v", i, err))
			return
		}

		title := normalized.Title
		if title == "" {
			title = ch.Href
		}

		chapter := &types.Chapter{
			BookID:                bookID,
			Index:                 i,
			Title:                 title,
			WordCount:             normalized.WordCount,
			NormalizedHTMLBlobKey: keys.ChapterHTML(i),
			TokenTable:            normalized.TokenTable,
		}
		if err := store.PutChapter(r.Context(), chapter); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to persist chapter %d: %v", i, err))
			return
		}
		chapterRefs = append(chapterRefs, types.ChapterRef{Index: i, Title: title})
	}

	for _, asset := range unpacked.Assets {
		if err := blobs.Put(keys.Asset(asset.Href), asset.Data); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store asset %s: %v", asset.Href, err))
			return
		}
	}

	book := &types.Book{
		ID:          bookID,
		Title:       unpacked.Title,
		Author:      unpacked.Author,
		Language:    unpacked.Language,
		Publisher:   unpacked.Publisher,
		TOC:         unpacked.TOC,
		Chapters:    chapterRefs,
		StorageRoot: bookID,
	}
	if err := store.CreateBook(r.Context(), book); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to persist book: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

func (e *UploadBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an EPUB and register it as a new book",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				return fmt.Errorf("--file is required")
			}
			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("opening %s: %w", filePath, err)
			}
			defer f.Close()

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			part, err := mw.CreateFormFile("file", filepath.Base(filePath))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			if err := mw.Close(); err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, getServerURL()+"/api/books", &body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", mw.FormDataContentType())

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var book types.Book
			if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(book)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to the .epub file")
	return cmd
}

// ListBooksEndpoint handles GET /api/books.
type ListBooksEndpoint struct{}

var _ api.Endpoint = (*ListBooksEndpoint)(nil)

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.MetadataStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not initialized")
		return
	}
	books, err := store.ListBooks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all books",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var books []*types.Book
			if err := client.Get(cmd.Context(), "/api/books", &books); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(books)
		},
	}
}

// GetBookEndpoint handles GET /api/books/{id}.
type GetBookEndpoint struct{}

var _ api.Endpoint = (*GetBookEndpoint)(nil)

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.MetadataStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata store not initialized")
		return
	}
	book, err := store.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get [book-id]",
		Short: "Get a book by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var book types.Book
			if err := client.Get(cmd.Context(), "/api/books/"+args[0], &book); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(book)
		},
	}
}
