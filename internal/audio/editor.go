package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/types"
)

// ErrInvalidRange is returned when a cut's bounds violate the editor's
// contract (0 <= start < end <= duration).
var ErrInvalidRange = fmt.Errorf("audio: invalid range")

// Editor applies range_cut and skip_cut mutations to a chapter's canonical
// audio and SyncTable as a single atomic unit, and can restore the original
// from the AudioArtifact's SourceBlobKeyRef.
type Editor struct {
	Store   metadatastore.Store
	Blobs   blobstore.Store
	WorkDir string
}

// NewEditor constructs an Editor.
func NewEditor(store metadatastore.Store, blobs blobstore.Store, workDir string) *Editor {
	return &Editor{Store: store, Blobs: blobs, WorkDir: workDir}
}

type rangeCutParams struct {
	TrimStart int `json:"trim_start"`
	TrimEnd   int `json:"trim_end"`
}

type skipCutParams struct {
	SkipWordIDs []string `json:"skip_word_ids"`
}

// RangeCut removes [trimStart, trimEnd) from the chapter's canonical audio,
// rewrites the SyncTable accordingly, and appends a journal entry. The swap
// into place is atomic: the new blob is written under a temp key and the
// caller's key mutex (internal/pipeline) must serialize concurrent access
// per (book, chapter, language).
func (e *Editor) RangeCut(ctx context.Context, bookID string, chapterIdx int, lang string, trimStart, trimEnd int) error {
	artifact, err := e.Store.GetAudioArtifact(ctx, bookID, chapterIdx, lang)
	if err != nil {
		return fmt.Errorf("audio: loading artifact: %w", err)
	}
	if trimStart < 0 || trimEnd <= trimStart || trimEnd > artifact.CanonicalDurationMS {
		return fmt.Errorf("%w: [%d, %d) against duration %d", ErrInvalidRange, trimStart, trimEnd, artifact.CanonicalDurationMS)
	}

	sync, err := e.Store.GetSyncTable(ctx, bookID, chapterIdx, lang)
	if err != nil {
		return fmt.Errorf("audio: loading sync table: %w", err)
	}

	srcPath, cleanup, err := e.materialize(ctx, artifact.CanonicalBlobKey)
	if err != nil {
		return err
	}
	defer cleanup()

	outPath := filepath.Join(e.WorkDir, fmt.Sprintf(".range-cut-%s-%d-%s.bin", bookID, chapterIdx, lang))
	defer os.Remove(outPath)

	if err := RemoveRange(ctx, srcPath, trimStart, trimEnd, outPath); err != nil {
		return fmt.Errorf("audio: applying range cut: %w", err)
	}

	cutLen := trimEnd - trimStart
	newSync := make(types.SyncTable, len(sync))
	for i, entry := range sync {
		newSync[i] = rewriteRangeCutEntry(entry, trimStart, trimEnd, cutLen)
	}

	newDuration := artifact.CanonicalDurationMS - cutLen
	return e.commit(ctx, bookID, chapterIdx, lang, artifact, outPath, newSync, newDuration,
		types.EditOpRangeCut, rangeCutParams{TrimStart: trimStart, TrimEnd: trimEnd})
}

func rewriteRangeCutEntry(e types.SyncEntry, trimStart, trimEnd, cutLen int) types.SyncEntry {
	if e.Skipped || e.ClipBeginMS == nil || e.ClipEndMS == nil {
		return e
	}
	begin, end := *e.ClipBeginMS, *e.ClipEndMS
	switch {
	case end <= trimStart:
		return e
	case begin >= trimEnd:
		newBegin, newEnd := begin-cutLen, end-cutLen
		return types.SyncEntry{TokenID: e.TokenID, ClipBeginMS: &newBegin, ClipEndMS: &newEnd}
	default:
		return types.SyncEntry{TokenID: e.TokenID, Skipped: true}
	}
}

// SkipCut removes the union of intervals covered by skipWordIDs from the
// canonical audio, marks those tokens skipped, and shifts all later entries
// left by the removed mass.
func (e *Editor) SkipCut(ctx context.Context, bookID string, chapterIdx int, lang string, skipWordIDs []string) error {
	artifact, err := e.Store.GetAudioArtifact(ctx, bookID, chapterIdx, lang)
	if err != nil {
		return fmt.Errorf("audio: loading artifact: %w", err)
	}
	sync, err := e.Store.GetSyncTable(ctx, bookID, chapterIdx, lang)
	if err != nil {
		return fmt.Errorf("audio: loading sync table: %w", err)
	}

	skipSet := make(map[string]bool, len(skipWordIDs))
	for _, id := range skipWordIDs {
		skipSet[id] = true
	}

	intervals := collectIntervals(sync, skipSet)
	if len(intervals) == 0 {
		return fmt.Errorf("audio: no timed, non-skipped entries among skip_word_ids")
	}
	coalesced := coalesce(intervals)

	srcPath, cleanup, err := e.materialize(ctx, artifact.CanonicalBlobKey)
	if err != nil {
		return err
	}
	defer cleanup()

	outPath := filepath.Join(e.WorkDir, fmt.Sprintf(".skip-cut-%s-%d-%s.bin", bookID, chapterIdx, lang))
	defer os.Remove(outPath)

	if err := removeIntervals(ctx, srcPath, coalesced, artifact.CanonicalDurationMS, outPath); err != nil {
		return fmt.Errorf("audio: applying skip cut: %w", err)
	}

	newSync := make(types.SyncTable, len(sync))
	for i, entry := range sync {
		newSync[i] = rewriteSkipCutEntry(entry, skipSet, coalesced)
	}

	totalRemoved := 0
	for _, iv := range coalesced {
		totalRemoved += iv.end - iv.start
	}
	newDuration := artifact.CanonicalDurationMS - totalRemoved

	return e.commit(ctx, bookID, chapterIdx, lang, artifact, outPath, newSync, newDuration,
		types.EditOpSkipCut, skipCutParams{SkipWordIDs: skipWordIDs})
}

func rewriteSkipCutEntry(e types.SyncEntry, skipSet map[string]bool, removed []interval) types.SyncEntry {
	if skipSet[e.TokenID] {
		return types.SyncEntry{TokenID: e.TokenID, Skipped: true}
	}
	if e.Skipped || e.ClipBeginMS == nil {
		return e
	}
	shift := 0
	for _, iv := range removed {
		if iv.end <= *e.ClipBeginMS {
			shift += iv.end - iv.start
		}
	}
	newBegin, newEnd := *e.ClipBeginMS-shift, *e.ClipEndMS-shift
	return types.SyncEntry{TokenID: e.TokenID, ClipBeginMS: &newBegin, ClipEndMS: &newEnd}
}

// Restore overwrites the canonical audio with the blob at SourceBlobKeyRef,
// discarding all prior edits, clears the SyncTable (an empty table is
// stored), and appends a restore journal entry.
func (e *Editor) Restore(ctx context.Context, bookID string, chapterIdx int, lang string) error {
	artifact, err := e.Store.GetAudioArtifact(ctx, bookID, chapterIdx, lang)
	if err != nil {
		return fmt.Errorf("audio: loading artifact: %w", err)
	}

	sourceData, err := e.Blobs.Get(artifact.SourceBlobKeyRef)
	if err != nil {
		return fmt.Errorf("audio: loading source blob: %w", err)
	}

	preDuration := artifact.CanonicalDurationMS
	if err := e.Blobs.Put(artifact.CanonicalBlobKey, sourceData); err != nil {
		return fmt.Errorf("audio: restoring canonical blob: %w", err)
	}

	tmp, err := os.CreateTemp(e.WorkDir, "restore-probe-*.bin")
	if err != nil {
		return fmt.Errorf("audio: creating probe file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sourceData); err != nil {
		tmp.Close()
		return fmt.Errorf("audio: writing probe file: %w", err)
	}
	tmp.Close()

	duration, err := DurationMS(ctx, tmp.Name())
	if err != nil {
		return fmt.Errorf("audio: probing restored duration: %w", err)
	}

	identity := make(types.SyncTable, 0)
	artifact.CanonicalDurationMS = duration
	if err := e.Store.PutAudioArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("audio: persisting restored artifact: %w", err)
	}
	if err := e.Store.PutSyncTable(ctx, bookID, chapterIdx, lang, identity); err != nil {
		return fmt.Errorf("audio: clearing sync table on restore: %w", err)
	}

	entry := types.EditJournalEntry{
		Op:             types.EditOpRestore,
		Params:         []byte("{}"),
		PreDurationMS:  preDuration,
		PostDurationMS: duration,
		AppliedAt:      time.Now().UTC(),
	}
	return e.Store.AppendEditJournal(ctx, bookID, chapterIdx, lang, entry)
}

// commit writes the new canonical blob, persists the updated artifact and
// SyncTable, and appends the journal entry — in that order, so a crash
// between steps never leaves the SyncTable referring to a blob that wasn't
// written.
func (e *Editor) commit(ctx context.Context, bookID string, chapterIdx int, lang string, artifact *types.AudioArtifact, newBlobPath string, newSync types.SyncTable, newDuration int, op types.EditOp, params any) error {
	data, err := os.ReadFile(newBlobPath)
	if err != nil {
		return fmt.Errorf("audio: reading new blob: %w", err)
	}
	preDuration := artifact.CanonicalDurationMS
	if err := e.Blobs.Put(artifact.CanonicalBlobKey, data); err != nil {
		return fmt.Errorf("audio: writing new canonical blob: %w", err)
	}

	artifact.CanonicalDurationMS = newDuration
	if err := e.Store.PutAudioArtifact(ctx, artifact); err != nil {
		return fmt.Errorf("audio: persisting artifact: %w", err)
	}
	if err := e.Store.PutSyncTable(ctx, bookID, chapterIdx, lang, newSync); err != nil {
		return fmt.Errorf("audio: persisting sync table: %w", err)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("audio: marshaling journal params: %w", err)
	}
	journalEntry := types.EditJournalEntry{
		Op:             op,
		Params:         paramsJSON,
		PreDurationMS:  preDuration,
		PostDurationMS: newDuration,
		AppliedAt:      time.Now().UTC(),
	}
	return e.Store.AppendEditJournal(ctx, bookID, chapterIdx, lang, journalEntry)
}

// materialize writes a blob's contents to a temp file on disk for ffmpeg to
// operate on, returning a cleanup func the caller must invoke.
func (e *Editor) materialize(ctx context.Context, blobKey string) (string, func(), error) {
	data, err := e.Blobs.Get(blobKey)
	if err != nil {
		return "", nil, fmt.Errorf("audio: loading blob %s: %w", blobKey, err)
	}
	f, err := os.CreateTemp(e.WorkDir, "source-*.bin")
	if err != nil {
		return "", nil, fmt.Errorf("audio: creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("audio: writing temp file: %w", err)
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

type interval struct{ start, end int }

func collectIntervals(sync types.SyncTable, skipSet map[string]bool) []interval {
	var out []interval
	for _, e := range sync {
		if !skipSet[e.TokenID] || e.Skipped || e.ClipBeginMS == nil || e.ClipEndMS == nil {
			continue
		}
		out = append(out, interval{start: *e.ClipBeginMS, end: *e.ClipEndMS})
	}
	return out
}

func coalesce(intervals []interval) []interval {
	if len(intervals) == 0 {
		return nil
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })
	merged := []interval{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.start <= last.end {
			if iv.end > last.end {
				last.end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// removeIntervals extracts the complement of the coalesced intervals within
// [0, duration) and concatenates it to outputPath.
func removeIntervals(ctx context.Context, src string, removed []interval, duration int, outputPath string) error {
	dir := filepath.Dir(outputPath)
	var parts []string
	cursor := 0
	for i, iv := range removed {
		if iv.start > cursor {
			part := filepath.Join(dir, fmt.Sprintf(".%s.keep-%d.tmp", filepath.Base(outputPath), i))
			if err := ExtractRange(ctx, src, cursor, iv.start, part); err != nil {
				return err
			}
			defer os.Remove(part)
			parts = append(parts, part)
		}
		cursor = iv.end
	}
	if cursor < duration {
		part := filepath.Join(dir, fmt.Sprintf(".%s.keep-tail.tmp", filepath.Base(outputPath)))
		if err := ExtractRange(ctx, src, cursor, duration, part); err != nil {
			return err
		}
		defer os.Remove(part)
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return fmt.Errorf("audio: removing all intervals would leave no audio")
	}
	return Concatenate(ctx, parts, outputPath)
}
