// Package types provides shared domain types used across multiple packages.
// This package has no dependencies on other readalong packages to avoid import cycles.
package types

import "time"

// Book is the top-level unit of ingestion: one EPUB file.
type Book struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Author      string       `json:"author,omitempty"`
	Language    string       `json:"language"`
	Publisher   string       `json:"publisher,omitempty"`
	TOC         []TOCEntry   `json:"toc,omitempty"`
	Chapters    []ChapterRef `json:"chapters"`
	StorageRoot string       `json:"storage_root"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TOCEntry is one node of the navigation document, possibly nested.
type TOCEntry struct {
	Title        string     `json:"title"`
	Href         string     `json:"href"`
	ChapterIndex int        `json:"chapter_index"`
	Children     []TOCEntry `json:"children,omitempty"`
}

// ChapterRef is a book's pointer to one of its chapters, kept separate from
// Chapter itself so Book listings don't have to carry full token tables.
type ChapterRef struct {
	Index int    `json:"index"`
	Title string `json:"title"`
}

// Chapter holds the normalized, word-tokenized form of one spine item.
type Chapter struct {
	BookID                string  `json:"book_id"`
	Index                 int     `json:"index"`
	Title                 string  `json:"title"`
	WordCount             int     `json:"word_count"`
	NormalizedHTMLBlobKey string  `json:"normalized_html_blob_key"`
	TokenTable            []Token `json:"token_table"`
}

// Token is a single word-level span produced by the chapter normalizer.
// ID is stable across re-normalization of the same source chapter and takes
// the form "w{N}", matching the span id injected into the normalized HTML.
type Token struct {
	ID         string `json:"id"`
	Surface    string `json:"surface"`    // exact text as it appears in the chapter
	Normalized string `json:"normalized"` // lowercased, diacritic-folded form used for alignment
}

// AudioSource identifies how an AudioArtifact's canonical audio was produced.
type AudioSource string

const (
	AudioSourceUpload         AudioSource = "upload"
	AudioSourceTTS            AudioSource = "tts"
	AudioSourceTTSTranslated  AudioSource = "tts_translated"
)

// TimingEntry is a provisional, TTS-reported word timing, consumed by the
// boundary-passthrough aligner backend before any forced alignment runs.
// The shape mirrors the word/start/end timestamp convention TTS engines and
// ASR services report by, in milliseconds for bookkeeping precision.
type TimingEntry struct {
	TokenID    string `json:"token_id"`
	ClipBeginMS int   `json:"clip_begin_ms"`
	ClipEndMS   int   `json:"clip_end_ms"`
}

// AudioArtifact is the audio attached to one (chapter, language) pair.
type AudioArtifact struct {
	BookID              string        `json:"book_id"`
	ChapterIndex        int           `json:"chapter_index"`
	Language            string        `json:"language"`
	Source              AudioSource   `json:"source"`
	Voice               string        `json:"voice,omitempty"`
	ProvisionalTiming   []TimingEntry `json:"provisional_timing,omitempty"`
	CanonicalBlobKey    string        `json:"canonical_blob_key"`
	CanonicalDurationMS int           `json:"canonical_duration_ms"`
	SourceBlobKeyRef    string        `json:"source_blob_key_ref"`
}

// SyncEntry pairs one token with its position in the canonical audio.
// ClipBeginMS/ClipEndMS are nil exactly when Skipped is true or the token
// could not be aligned (per the coverage rule in the Aligner invariants).
type SyncEntry struct {
	TokenID     string `json:"token_id"`
	ClipBeginMS *int   `json:"clip_begin_ms"`
	ClipEndMS   *int   `json:"clip_end_ms"`
	Skipped     bool   `json:"skipped"`
}

// SyncTable is the ordered, token-id-bijective alignment result for one
// (chapter, language) AudioArtifact.
type SyncTable []SyncEntry

// EditOp identifies an Audio Editor mutation kind.
type EditOp string

const (
	EditOpRangeCut EditOp = "range_cut"
	EditOpSkipCut  EditOp = "skip_cut"
	EditOpRestore  EditOp = "restore"
)

// EditJournalEntry records one applied Audio Editor mutation and the
// canonical duration before and after it. Restore does not replay the
// journal; it reloads the audio at source_blob_ref.
type EditJournalEntry struct {
	Op              EditOp          `json:"op"`
	Params          []byte          `json:"params"` // json.RawMessage, kept untyped here to avoid a json import cycle
	PreDurationMS   int             `json:"pre_duration_ms"`
	PostDurationMS  int             `json:"post_duration_ms"`
	AppliedAt       time.Time       `json:"applied_at"`
}

// JobState is the lifecycle state of a pipeline Job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// JobKind identifies which pipeline operation a Job is running.
type JobKind string

const (
	JobKindIngest          JobKind = "ingest"
	JobKindSynthesize      JobKind = "tts"
	JobKindAlign           JobKind = "align"
	JobKindTranslateChapter JobKind = "translate_chapter"
	JobKindExport          JobKind = "export"
	JobKindAudioEdit       JobKind = "audio_edit"
)

// ProgressEvent is one entry in a Job's Progress Channel stream.
type ProgressEvent struct {
	Kind    string    `json:"kind"` // "progress" | "error" | "done" | "summary"
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message,omitempty"`
	Percent float64   `json:"percent,omitempty"`
	At      time.Time `json:"at"`
}

// JobRecord is the persisted view of a pipeline Job.
type JobRecord struct {
	ID        string          `json:"id"`
	Kind      JobKind         `json:"kind"`
	TargetKey string          `json:"target_key"` // book_id/chapter_index/language/op-class
	State     JobState        `json:"state"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Events    []ProgressEvent `json:"events,omitempty"`
}
