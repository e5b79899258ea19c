package align

import (
	"context"
	"errors"
	"testing"

	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/types"
)

// fakeStore implements the narrow slice of metadatastore.Store that
// align.Job touches; the rest panic if ever called.
type fakeStore struct {
	chapter      *types.Chapter
	artifact     *types.AudioArtifact
	putTable     types.SyncTable
	putCalled    bool
	existingSync types.SyncTable
}

func (s *fakeStore) CreateBook(ctx context.Context, b *types.Book) error  { panic("unused") }
func (s *fakeStore) GetBook(ctx context.Context, id string) (*types.Book, error) {
	panic("unused")
}
func (s *fakeStore) ListBooks(ctx context.Context) ([]*types.Book, error) { panic("unused") }
func (s *fakeStore) PutChapter(ctx context.Context, ch *types.Chapter) error {
	panic("unused")
}
func (s *fakeStore) GetChapter(ctx context.Context, bookID string, idx int) (*types.Chapter, error) {
	return s.chapter, nil
}
func (s *fakeStore) PutAudioArtifact(ctx context.Context, a *types.AudioArtifact) error {
	panic("unused")
}
func (s *fakeStore) GetAudioArtifact(ctx context.Context, bookID string, chapterIdx int, lang string) (*types.AudioArtifact, error) {
	return s.artifact, nil
}
func (s *fakeStore) PutSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string, st types.SyncTable) error {
	s.putCalled = true
	s.putTable = st
	return nil
}
func (s *fakeStore) GetSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string) (types.SyncTable, error) {
	return s.existingSync, nil
}
func (s *fakeStore) AppendEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string, e types.EditJournalEntry) error {
	panic("unused")
}
func (s *fakeStore) GetEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string) ([]types.EditJournalEntry, error) {
	panic("unused")
}
func (s *fakeStore) CreateJob(ctx context.Context, j *types.JobRecord) error { panic("unused") }
func (s *fakeStore) UpdateJob(ctx context.Context, j *types.JobRecord) error { panic("unused") }
func (s *fakeStore) GetJob(ctx context.Context, id string) (*types.JobRecord, error) {
	panic("unused")
}
func (s *fakeStore) ListJobsByState(ctx context.Context, state types.JobState) ([]*types.JobRecord, error) {
	panic("unused")
}

var _ metadatastore.Store = (*fakeStore)(nil)

type fakeAligner struct {
	table types.SyncTable
	err   error
}

func (a *fakeAligner) Align(ctx context.Context, artifact *types.AudioArtifact, tokens []types.Token) (types.SyncTable, error) {
	return a.table, a.err
}

func noopReport(step, message string, percent float64) {}

func TestJob_PersistsSyncTableAboveThreshold(t *testing.T) {
	store := &fakeStore{
		chapter:  &types.Chapter{BookID: "b1", Index: 0, TokenTable: []types.Token{{ID: "w0"}, {ID: "w1"}}},
		artifact: &types.AudioArtifact{BookID: "b1", ChapterIndex: 0, CanonicalDurationMS: 1000},
	}
	aligner := &fakeAligner{table: types.SyncTable{
		{TokenID: "w0", ClipBeginMS: ptr(0), ClipEndMS: ptr(400)},
		{TokenID: "w1", ClipBeginMS: ptr(400), ClipEndMS: ptr(800)},
	}}

	job := NewJob("b1", 0, "en", aligner, 0.8, store)
	if err := job.Run(context.Background(), noopReport); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.putCalled {
		t.Fatal("expected sync table to be persisted")
	}
}

func TestJob_RejectsLowCoverageWithoutPersisting(t *testing.T) {
	store := &fakeStore{
		chapter:  &types.Chapter{BookID: "b1", Index: 0, TokenTable: []types.Token{{ID: "w0"}, {ID: "w1"}}},
		artifact: &types.AudioArtifact{BookID: "b1", ChapterIndex: 0, CanonicalDurationMS: 1000},
	}
	aligner := &fakeAligner{table: types.SyncTable{
		{TokenID: "w0", ClipBeginMS: ptr(0), ClipEndMS: ptr(400)},
		{TokenID: "w1"}, // unalignable
	}}

	job := NewJob("b1", 0, "en", aligner, 0.8, store)
	err := job.Run(context.Background(), noopReport)
	if err == nil {
		t.Fatal("expected low coverage to return an error")
	}
	if !errors.Is(err, ErrAlignmentDiverged) {
		t.Errorf("expected ErrAlignmentDiverged, got %v", err)
	}
	if store.putCalled {
		t.Error("expected no sync table write on divergence")
	}
}

func TestJob_DefaultThresholdAppliedWhenUnset(t *testing.T) {
	store := &fakeStore{
		chapter:  &types.Chapter{BookID: "b1", Index: 0, TokenTable: []types.Token{{ID: "w0"}}},
		artifact: &types.AudioArtifact{BookID: "b1", ChapterIndex: 0, CanonicalDurationMS: 1000},
	}
	aligner := &fakeAligner{table: types.SyncTable{{TokenID: "w0"}}} // 0% coverage

	job := NewJob("b1", 0, "en", aligner, 0, store) // zero -> DefaultCoverageThreshold
	err := job.Run(context.Background(), noopReport)
	if !errors.Is(err, ErrAlignmentDiverged) {
		t.Fatalf("expected default threshold to reject 0%% coverage, got %v", err)
	}
}
