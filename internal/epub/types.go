// Package epub unpacks EPUB 3 containers, normalizes chapter XHTML into
// word-tokenized spans, and exports the result back out as an EPUB 3 with
// SMIL Media Overlays once audio has been aligned.
package epub

import (
	"fmt"
	"time"

	"github.com/readalong/readalong/internal/types"
)

// Book carries the metadata needed to export a synced EPUB.
type Book struct {
	ID        string
	Title     string
	Author    string
	Language  string // ISO 639-1 code (e.g., "en")
	Publisher string
	ISBN      string
	CreatedAt time.Time
}

// TOCEntry is one node of the navigation document, possibly nested.
type TOCEntry struct {
	Title        string
	Href         string
	ChapterIndex int
	Children     []TOCEntry
}

// Chapter is one spine item ready for export: its normalized XHTML body
// (already carrying `<span id="wN">` token wrappers). Audio timing to
// overlay on it is attached separately as a ChapterAudio.
type Chapter struct {
	ID    string // e.g. "ch0"
	Title string
	// Body is the normalized chapter content, already tokenized and with
	// asset URLs rewritten. It is the inner content of <body>...</body>.
	Body string
}

// Asset is a non-XHTML manifest item (image, stylesheet, font) carried
// through from the unpacked source package.
type Asset struct {
	Href      string // manifest-relative href, e.g. "images/cover.jpg"
	MediaType string
	Data      []byte
}

// ChapterAudio is the per-token timing to overlay on one chapter, derived
// from a SyncTable.
type ChapterAudio struct {
	ChapterID  string
	AudioFile  string // path to the canonical audio file on disk
	DurationMS int
	Entries    types.SyncTable
}

// formatClockTime converts milliseconds to SMIL clock time (HH:MM:SS.mmm).
func formatClockTime(ms int) string {
	hours := ms / 3600000
	minutes := (ms % 3600000) / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
