package translate

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/providers"
	"github.com/readalong/readalong/internal/types"
)

type fakeStore struct {
	chapter *types.Chapter
}

func (s *fakeStore) CreateBook(ctx context.Context, b *types.Book) error { panic("unused") }
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
	panic("unused")
}
func (s *fakeStore) PutSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string, st types.SyncTable) error {
	panic("unused")
}
func (s *fakeStore) GetSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string) (types.SyncTable, error) {
	panic("unused")
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

type memBlobStore struct {
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore { return &memBlobStore{blobs: map[string][]byte{}} }

func (m *memBlobStore) Put(key string, data []byte) error { m.blobs[key] = data; return nil }
func (m *memBlobStore) PutReader(key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.blobs[key] = data
	return nil
}
func (m *memBlobStore) Get(key string) ([]byte, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}
func (m *memBlobStore) Open(key string) (io.ReadCloser, error) { panic("unused") }
func (m *memBlobStore) Delete(key string) error                { delete(m.blobs, key); return nil }
func (m *memBlobStore) Exists(key string) bool                 { _, ok := m.blobs[key]; return ok }

type fakeLLM struct {
	content string
	failN   int
	calls   int
}

func (f *fakeLLM) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, errors.New("backend unavailable")
	}
	return &providers.ChatResult{Content: f.content}, nil
}
func (f *fakeLLM) ChatWithTools(ctx context.Context, req *providers.ChatRequest, tools []providers.Tool) (*providers.ChatResult, error) {
	panic("unused")
}
func (f *fakeLLM) Name() string { return "fake" }

func noopReport(step, message string, percent float64) {}

func TestJob_TranslatesAndPersistsTokenTable(t *testing.T) {
	store := &fakeStore{chapter: &types.Chapter{
		BookID: "b1", Index: 0,
		TokenTable: []types.Token{{ID: "w0", Surface: "Hello"}, {ID: "w1", Surface: "world"}},
	}}
	blobs := newMemBlobStore()
	llm := &fakeLLM{content: "Hola\nmundo"}

	job := NewJob("b1", 0, "es", llm, "fake-llm", store, blobs)
	if err := job.Run(context.Background(), noopReport); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := LoadTokenTable(blobs, "b1", 0, "es")
	if err != nil {
		t.Fatalf("loading translated table: %v", err)
	}
	if len(table) != 2 || table[0].Surface != "Hola" || table[1].Surface != "mundo" {
		t.Errorf("expected translated surfaces with original ids preserved, got %+v", table)
	}
	if table[0].ID != "w0" || table[1].ID != "w1" {
		t.Error("expected token ids to survive translation unchanged")
	}
}

func TestJob_RetriesTransientChatFailures(t *testing.T) {
	store := &fakeStore{chapter: &types.Chapter{
		BookID: "b1", Index: 0,
		TokenTable: []types.Token{{ID: "w0", Surface: "Hello"}},
	}}
	blobs := newMemBlobStore()
	llm := &fakeLLM{content: "Ciao", failN: 2}

	job := NewJob("b1", 0, "it", llm, "fake-llm", store, blobs)
	job.RetryDelay = time.Millisecond
	if err := job.Run(context.Background(), noopReport); err != nil {
		t.Fatalf("expected retry to recover from transient failures, got: %v", err)
	}
	if llm.calls != 3 {
		t.Errorf("expected 3 attempts (2 failures + 1 success), got %d", llm.calls)
	}
}

func TestJob_GivesUpAfterMaxRetries(t *testing.T) {
	store := &fakeStore{chapter: &types.Chapter{
		BookID: "b1", Index: 0,
		TokenTable: []types.Token{{ID: "w0", Surface: "Hello"}},
	}}
	blobs := newMemBlobStore()
	llm := &fakeLLM{content: "Ciao", failN: 99}

	job := NewJob("b1", 0, "it", llm, "fake-llm", store, blobs)
	job.MaxRetries = 2
	job.RetryDelay = time.Millisecond
	if err := job.Run(context.Background(), noopReport); err == nil {
		t.Fatal("expected persistent failure to surface after exhausting retries")
	}
	if llm.calls != 2 {
		t.Errorf("expected exactly MaxRetries attempts, got %d", llm.calls)
	}
}

func TestLoadTokenTable_MissingBlobReturnsError(t *testing.T) {
	blobs := newMemBlobStore()
	if _, err := LoadTokenTable(blobs, "b1", 0, "fr"); err == nil {
		t.Fatal("expected error for a chapter never translated into the requested language")
	}
}
