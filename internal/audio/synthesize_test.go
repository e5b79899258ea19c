package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/providers"
	"github.com/readalong/readalong/internal/types"
)

type fakeChapterStore struct {
	chapter  *types.Chapter
	artifact *types.AudioArtifact
	putErr   error
}

func (s *fakeChapterStore) CreateBook(ctx context.Context, b *types.Book) error { panic("unused") }
func (s *fakeChapterStore) GetBook(ctx context.Context, id string) (*types.Book, error) {
	panic("unused")
}
func (s *fakeChapterStore) ListBooks(ctx context.Context) ([]*types.Book, error) { panic("unused") }
func (s *fakeChapterStore) PutChapter(ctx context.Context, ch *types.Chapter) error {
	panic("unused")
}
func (s *fakeChapterStore) GetChapter(ctx context.Context, bookID string, idx int) (*types.Chapter, error) {
	return s.chapter, nil
}
func (s *fakeChapterStore) PutAudioArtifact(ctx context.Context, a *types.AudioArtifact) error {
	s.artifact = a
	return s.putErr
}
func (s *fakeChapterStore) GetAudioArtifact(ctx context.Context, bookID string, chapterIdx int, lang string) (*types.AudioArtifact, error) {
	return s.artifact, nil
}
func (s *fakeChapterStore) PutSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string, st types.SyncTable) error {
	panic("unused")
}
func (s *fakeChapterStore) GetSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string) (types.SyncTable, error) {
	panic("unused")
}
func (s *fakeChapterStore) AppendEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string, e types.EditJournalEntry) error {
	panic("unused")
}
func (s *fakeChapterStore) GetEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string) ([]types.EditJournalEntry, error) {
	panic("unused")
}
func (s *fakeChapterStore) CreateJob(ctx context.Context, j *types.JobRecord) error { panic("unused") }
func (s *fakeChapterStore) UpdateJob(ctx context.Context, j *types.JobRecord) error { panic("unused") }
func (s *fakeChapterStore) GetJob(ctx context.Context, id string) (*types.JobRecord, error) {
	panic("unused")
}
func (s *fakeChapterStore) ListJobsByState(ctx context.Context, state types.JobState) ([]*types.JobRecord, error) {
	panic("unused")
}

var _ metadatastore.Store = (*fakeChapterStore)(nil)

type fakeTTSProvider struct {
	failN      int
	calls      int
	durationMS int
}

func (f *fakeTTSProvider) Name() string { return "fake" }
func (f *fakeTTSProvider) Generate(ctx context.Context, req *providers.TTSRequest) (*providers.TTSResult, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, errors.New("provider unavailable")
	}
	return &providers.TTSResult{Success: true, Audio: []byte("fake-audio-bytes"), DurationMS: f.durationMS}, nil
}
func (f *fakeTTSProvider) ListVoices(ctx context.Context) ([]providers.Voice, error) { panic("unused") }
func (f *fakeTTSProvider) HealthCheck(ctx context.Context) error                     { return nil }
func (f *fakeTTSProvider) RequestsPerSecond() float64                                { return 10 }
func (f *fakeTTSProvider) MaxRetries() int                                           { return 3 }
func (f *fakeTTSProvider) RetryDelayBase() time.Duration                             { return time.Millisecond }

func noopReport(step, message string, percent float64) {}

func TestSynthesizeJob_RetriesTransientProviderFailures(t *testing.T) {
	store := &fakeChapterStore{chapter: &types.Chapter{
		BookID: "b1", Index: 0,
		TokenTable: []types.Token{{ID: "w0", Surface: "Hello"}, {ID: "w1", Surface: "world"}},
	}}
	blobs := blobstore.NewFilesystemStore(t.TempDir())
	provider := &fakeTTSProvider{failN: 2, durationMS: 1000}

	job := NewSynthesizeJob("b1", 0, "en", provider, "fake", "voice1", "mp3", false, "", store, blobs, t.TempDir())
	if err := job.Run(context.Background(), noopReport); err != nil {
		t.Fatalf("expected retry to recover, got: %v", err)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 attempts (2 failures + success), got %d", provider.calls)
	}
	if store.artifact.Source != types.AudioSourceTTS {
		t.Errorf("expected source tts, got %s", store.artifact.Source)
	}
}

func TestSynthesizeJob_UsesTranslatedTokenTableWhenRequested(t *testing.T) {
	store := &fakeChapterStore{chapter: &types.Chapter{
		BookID: "b1", Index: 0,
		TokenTable: []types.Token{{ID: "w0", Surface: "Hello"}},
	}}
	blobs := blobstore.NewFilesystemStore(t.TempDir())
	keys := blobstore.BookKeys{BookID: "b1"}
	if err := blobs.Put(keys.TranslatedTokenTable(0, "es"), []byte(`[{"id":"w0","surface":"Hola"}]`)); err != nil {
		t.Fatalf("seeding translated token table: %v", err)
	}

	provider := &fakeTTSProvider{durationMS: 500}
	job := NewSynthesizeJob("b1", 0, "es", provider, "fake", "voice1", "mp3", true, "en", store, blobs, t.TempDir())
	if err := job.Run(context.Background(), noopReport); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.artifact.Source != types.AudioSourceTTSTranslated {
		t.Errorf("expected source tts_translated, got %s", store.artifact.Source)
	}
}

func TestSynthesizeJob_SameLanguageSkipsTranslationBranch(t *testing.T) {
	store := &fakeChapterStore{chapter: &types.Chapter{
		BookID: "b1", Index: 0,
		TokenTable: []types.Token{{ID: "w0", Surface: "Hello"}},
	}}
	blobs := blobstore.NewFilesystemStore(t.TempDir())
	provider := &fakeTTSProvider{durationMS: 500}

	job := NewSynthesizeJob("b1", 0, "en", provider, "fake", "voice1", "mp3", true, "en", store, blobs, t.TempDir())
	if err := job.Run(context.Background(), noopReport); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.artifact.Source != types.AudioSourceTTS {
		t.Errorf("expected source tts when language matches source language, got %s", store.artifact.Source)
	}
}
