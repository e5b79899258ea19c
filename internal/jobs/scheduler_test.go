package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/types"
)

type fakeJobStore struct {
	records map[string]*types.JobRecord
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{records: make(map[string]*types.JobRecord)}
}

func (s *fakeJobStore) CreateBook(ctx context.Context, b *types.Book) error { panic("unused") }
func (s *fakeJobStore) GetBook(ctx context.Context, id string) (*types.Book, error) {
	panic("unused")
}
func (s *fakeJobStore) ListBooks(ctx context.Context) ([]*types.Book, error) { panic("unused") }
func (s *fakeJobStore) PutChapter(ctx context.Context, ch *types.Chapter) error {
	panic("unused")
}
func (s *fakeJobStore) GetChapter(ctx context.Context, bookID string, idx int) (*types.Chapter, error) {
	panic("unused")
}
func (s *fakeJobStore) PutAudioArtifact(ctx context.Context, a *types.AudioArtifact) error {
	panic("unused")
}
func (s *fakeJobStore) GetAudioArtifact(ctx context.Context, bookID string, chapterIdx int, lang string) (*types.AudioArtifact, error) {
	panic("unused")
}
func (s *fakeJobStore) PutSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string, st types.SyncTable) error {
	panic("unused")
}
func (s *fakeJobStore) GetSyncTable(ctx context.Context, bookID string, chapterIdx int, lang string) (types.SyncTable, error) {
	panic("unused")
}
func (s *fakeJobStore) AppendEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string, e types.EditJournalEntry) error {
	panic("unused")
}
func (s *fakeJobStore) GetEditJournal(ctx context.Context, bookID string, chapterIdx int, lang string) ([]types.EditJournalEntry, error) {
	panic("unused")
}
func (s *fakeJobStore) CreateJob(ctx context.Context, j *types.JobRecord) error {
	s.records[j.ID] = j
	return nil
}
func (s *fakeJobStore) UpdateJob(ctx context.Context, j *types.JobRecord) error {
	s.records[j.ID] = j
	return nil
}
func (s *fakeJobStore) GetJob(ctx context.Context, id string) (*types.JobRecord, error) {
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}
func (s *fakeJobStore) ListJobsByState(ctx context.Context, state types.JobState) ([]*types.JobRecord, error) {
	panic("unused")
}

var _ metadatastore.Store = (*fakeJobStore)(nil)

type fakeJob struct {
	targetKey string
	err       error
	reportAt  float64
}

func (j *fakeJob) ID() string          { return "" }
func (j *fakeJob) Kind() types.JobKind { return types.JobKindSynthesize }
func (j *fakeJob) TargetKey() string   { return j.targetKey }
func (j *fakeJob) Run(ctx context.Context, report ProgressFunc) error {
	report("working", "in progress", j.reportAt)
	return j.err
}

func waitForSnapshot(t *testing.T, s *Scheduler, targetKey, wantKind string) types.ProgressEvent {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := s.Snapshot(targetKey); ok && ev.Kind == wantKind {
			return ev
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for snapshot kind %q on %q", wantKind, targetKey)
	return types.ProgressEvent{}
}

func TestScheduler_SnapshotReflectsInFlightProgress(t *testing.T) {
	store := newFakeJobStore()
	s := NewScheduler(SchedulerConfig{Store: store})

	job := &fakeJob{targetKey: "book1/0/en/synthesize", reportAt: 0.4}
	if _, err := s.Submit(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := waitForSnapshot(t, s, "book1/0/en/synthesize", "done")
	if ev.Percent != 1.0 {
		t.Errorf("expected terminal snapshot percent 1.0, got %v", ev.Percent)
	}
}

func TestScheduler_SnapshotRecordsFailure(t *testing.T) {
	store := newFakeJobStore()
	s := NewScheduler(SchedulerConfig{Store: store})

	job := &fakeJob{targetKey: "book1/0/en/synthesize", err: errors.New("tts backend down")}
	if _, err := s.Submit(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := waitForSnapshot(t, s, "book1/0/en/synthesize", "error")
	if ev.Message != "tts backend down" {
		t.Errorf("expected error message to carry through, got %q", ev.Message)
	}
}

func TestScheduler_SnapshotUnknownKeyReturnsFalse(t *testing.T) {
	store := newFakeJobStore()
	s := NewScheduler(SchedulerConfig{Store: store})

	if _, ok := s.Snapshot("nobody/subscribed/to/this"); ok {
		t.Error("expected no snapshot for a target key no job ever reported on")
	}
}
