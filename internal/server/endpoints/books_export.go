package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/readalong/readalong/internal/api"
	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/epub"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/svcctx"
	"github.com/readalong/readalong/internal/types"
)

// ExportEPUBEndpoint handles GET /api/books/{id}/export, assembling a
// conformant EPUB 3 package with SMIL Media Overlays for every chapter
// that has canonical audio in the requested language.
type ExportEPUBEndpoint struct{}

var _ api.Endpoint = (*ExportEPUBEndpoint)(nil)

func (e *ExportEPUBEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/export", e.handler
}

func (e *ExportEPUBEndpoint) RequiresInit() bool { return true }

func (e *ExportEPUBEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}

	store := svcctx.MetadataStoreFrom(r.Context())
	blobs := svcctx.BlobStoreFrom(r.Context())
	home := svcctx.HomeFrom(r.Context())
	if store == nil || blobs == nil || home == nil {
		writeError(w, http.StatusServiceUnavailable, "services not initialized")
		return
	}

	book, err := store.GetBook(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	exporter, cleanup, err := buildExporter(r.Context(), book, lang, store, blobs, home.DataPath())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cleanup()

	outPath, err := os.CreateTemp(home.DataPath(), fmt.Sprintf("%s-export-*.epub", bookID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("creating export file: %v", err))
		return
	}
	outPath.Close()
	defer os.Remove(outPath.Name())

	if err := exporter.Build(outPath.Name()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("building export: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/epub+zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", book.Title+".epub"))
	http.ServeFile(w, r, outPath.Name())
}

// buildExporter assembles an epub.Exporter from persisted chapters and,
// where present, each chapter's canonical audio and sync table in lang.
// Canonical audio blobs are materialized to workDir since the Exporter
// reads audio from disk; the returned cleanup func removes them and must
// be called after exporter.Build.
func buildExporter(ctx context.Context, book *types.Book, lang string, store metadatastore.Store, blobs blobstore.Store, workDir string) (exporter *epub.Exporter, cleanup func(), err error) {
	exChapters := make([]epub.Chapter, 0, len(book.Chapters))
	toc := make([]epub.TOCEntry, 0, len(book.TOC))
	for _, t := range book.TOC {
		toc = append(toc, convertTOCEntry(t))
	}

	var audioPaths []string
	var overlays []struct {
		chapterID string
		audio     epub.ChapterAudio
	}
	cleanup = func() {
		for _, p := range audioPaths {
			os.Remove(p)
		}
	}

	for _, ref := range book.Chapters {
		chapter, err := store.GetChapter(ctx, book.ID, ref.Index)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("loading chapter %d: %w", ref.Index, err)
		}
		html, err := blobs.Get(chapter.NormalizedHTMLBlobKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("loading chapter %d body: %w", ref.Index, err)
		}
		chapterID := fmt.Sprintf("ch%d", ref.Index)
		exChapters = append(exChapters, epub.Chapter{ID: chapterID, Title: chapter.Title, Body: string(html)})

		artifact, err := store.GetAudioArtifact(ctx, book.ID, ref.Index, lang)
		if err != nil {
			continue // no audio for this chapter/language; export without a media overlay
		}
		audioData, err := blobs.Get(artifact.CanonicalBlobKey)
		if err != nil {
			continue
		}
		audioPath := fmt.Sprintf("%s/%s-ch%d.bin", workDir, book.ID, ref.Index)
		if err := os.WriteFile(audioPath, audioData, 0o644); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("materializing chapter %d audio: %w", ref.Index, err)
		}
		audioPaths = append(audioPaths, audioPath)

		syncTable, err := store.GetSyncTable(ctx, book.ID, ref.Index, lang)
		if err != nil {
			syncTable = nil
		}
		overlays = append(overlays, struct {
			chapterID string
			audio     epub.ChapterAudio
		}{chapterID, epub.ChapterAudio{
			ChapterID: chapterID, AudioFile: audioPath,
			DurationMS: artifact.CanonicalDurationMS, Entries: syncTable,
		}})
	}

	exporter = epub.NewExporter(epub.Book{
		ID: book.ID, Title: book.Title, Author: book.Author,
		Language: book.Language, Publisher: book.Publisher,
	}, exChapters, toc)
	for _, ov := range overlays {
		exporter.AddChapterAudio(ov.chapterID, ov.audio)
	}
	return exporter, cleanup, nil
}

func convertTOCEntry(t types.TOCEntry) epub.TOCEntry {
	children := make([]epub.TOCEntry, 0, len(t.Children))
	for _, c := range t.Children {
		children = append(children, convertTOCEntry(c))
	}
	return epub.TOCEntry{Title: t.Title, Href: t.Href, ChapterIndex: t.ChapterIndex, Children: children}
}

func (e *ExportEPUBEndpoint) Command(getServerURL func() string) *cobra.Command {
	var lang, out string
	cmd := &cobra.Command{
		Use:   "export [book-id]",
		Short: "Export a book as an EPUB 3 package with media overlays",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[0] + ".epub"
			}
			url := fmt.Sprintf("%s/api/books/%s/export?lang=%s", getServerURL(), args[0], lang)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("export failed: status %d", resp.StatusCode)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := f.ReadFrom(resp.Body); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en", "audio language to overlay")
	cmd.Flags().StringVar(&out, "out", "", "output path (defaults to <book-id>.epub)")
	return cmd
}
