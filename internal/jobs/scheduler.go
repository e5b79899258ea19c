package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/metrics"
	"github.com/readalong/readalong/internal/types"
)

// Publisher delivers progress events to whatever Progress Channel transport
// is attached to a job's target key (see internal/progress).
type Publisher interface {
	Publish(targetKey string, ev types.ProgressEvent)
}

// Scheduler runs Jobs on a bounded pool of goroutines, persisting state
// transitions to a MetadataStore and streaming progress through a Publisher.
// It mirrors a worker/results-channel dispatch shape, simplified
// to a single execution pool since this domain has no per-provider routing
// concern.
type Scheduler struct {
	store     metadatastore.Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Recorder

	sem chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelFunc
	latest  map[string]types.ProgressEvent
}

// SchedulerConfig configures a new Scheduler.
type SchedulerConfig struct {
	Store           metadatastore.Store
	Publisher       Publisher
	Logger          *slog.Logger
	MetricsRecorder *metrics.Recorder
	Concurrency     int // max jobs running at once; defaults to 4
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Scheduler{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logger,
		metrics:   cfg.MetricsRecorder,
		sem:       make(chan struct{}, concurrency),
		running:   make(map[string]context.CancelFunc),
		latest:    make(map[string]types.ProgressEvent),
	}
}

// Snapshot returns the most recent ProgressEvent published for targetKey, if
// any job has reported one. A late subscriber uses this to catch up on
// current state before the live event stream starts.
func (s *Scheduler) Snapshot(targetKey string) (types.ProgressEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.latest[targetKey]
	return ev, ok
}

func (s *Scheduler) recordLatest(targetKey string, ev types.ProgressEvent) {
	s.mu.Lock()
	s.latest[targetKey] = ev
	s.mu.Unlock()
}

// Submit creates a JobRecord and starts the job asynchronously. It returns
// the assigned job id immediately; the caller observes progress and
// completion via the Progress Channel or by polling GetJob.
func (s *Scheduler) Submit(ctx context.Context, j Job) (string, error) {
	id := j.ID()
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	record := &types.JobRecord{
		ID:        id,
		Kind:      j.Kind(),
		TargetKey: j.TargetKey(),
		State:     types.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJob(ctx, record); err != nil {
		return "", fmt.Errorf("jobs: creating record: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[id] = cancel
	s.mu.Unlock()

	go s.run(runCtx, id, j)

	return id, nil
}

// Cancel requests cancellation of a running job. It is a no-op if the job
// is not currently running.
func (s *Scheduler) Cancel(jobID string) {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Scheduler) run(ctx context.Context, id string, j Job) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	started := time.Now()
	if err := s.transition(ctx, id, types.JobRunning, ""); err != nil {
		s.logger.Error("jobs: failed to mark running", "job_id", id, "error", err)
		return
	}

	report := func(step, message string, percent float64) {
		ev := types.ProgressEvent{Kind: "progress", Step: step, Message: message, Percent: percent, At: time.Now().UTC()}
		s.recordLatest(j.TargetKey(), ev)
		if s.publisher != nil {
			s.publisher.Publish(j.TargetKey(), ev)
		}
	}

	err := j.Run(ctx, report)

	state := types.JobSucceeded
	errMsg := ""
	if err != nil {
		if ctx.Err() != nil {
			state = types.JobCanceled
		} else {
			state = types.JobFailed
			errMsg = err.Error()
		}
	}

	if terr := s.transition(context.Background(), id, state, errMsg); terr != nil {
		s.logger.Error("jobs: failed to persist final state", "job_id", id, "error", terr)
	}

	if s.metrics != nil {
		s.metrics.RecordJobDuration(string(j.Kind()), state == types.JobSucceeded, time.Since(started))
	}

	kind := "done"
	if err != nil {
		kind = "error"
	}
	terminal := types.ProgressEvent{Kind: kind, Message: errMsg, Percent: 1.0, At: time.Now().UTC()}
	s.recordLatest(j.TargetKey(), terminal)
	if s.publisher != nil {
		s.publisher.Publish(j.TargetKey(), terminal)
	}
}

func (s *Scheduler) transition(ctx context.Context, id string, state types.JobState, errMsg string) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	job.State = state
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	return s.store.UpdateJob(ctx, job)
}

// Get returns the current JobRecord.
func (s *Scheduler) Get(ctx context.Context, id string) (*types.JobRecord, error) {
	return s.store.GetJob(ctx, id)
}
