package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/readalong/readalong/internal/jobs"
	"github.com/readalong/readalong/internal/types"
)

type fakeJob struct {
	targetKey string
}

func (j *fakeJob) ID() string                                              { return "" }
func (j *fakeJob) Kind() types.JobKind                                     { return types.JobKindSynthesize }
func (j *fakeJob) TargetKey() string                                       { return j.targetKey }
func (j *fakeJob) Run(ctx context.Context, report jobs.ProgressFunc) error { return nil }

type fakeSubmitter struct {
	calls int32
	fail  int32 // number of leading calls that fail
}

func (s *fakeSubmitter) Submit(ctx context.Context, j jobs.Job) (string, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= s.fail {
		return "", fmt.Errorf("transient failure")
	}
	return fmt.Sprintf("job-%d", n), nil
}

func TestController_CachesByFingerprint(t *testing.T) {
	sub := &fakeSubmitter{}
	c := NewController(ControllerConfig{Submitter: sub})

	job := &fakeJob{targetKey: "book1/0/en/synthesize"}
	id1, deduped1, err := c.Submit(context.Background(), job, "fingerprint-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deduped1 {
		t.Error("expected first submission to not be deduped")
	}

	id2, deduped2, err := c.Submit(context.Background(), job, "fingerprint-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deduped2 {
		t.Error("expected second submission with same fingerprint to be deduped")
	}
	if id1 != id2 {
		t.Errorf("expected cached job id %q, got %q", id1, id2)
	}
	if sub.calls != 1 {
		t.Errorf("expected exactly one underlying submission, got %d", sub.calls)
	}
}

func TestController_DifferentFingerprintResubmits(t *testing.T) {
	sub := &fakeSubmitter{}
	c := NewController(ControllerConfig{Submitter: sub})

	job := &fakeJob{targetKey: "book1/0/en/synthesize"}
	if _, _, err := c.Submit(context.Background(), job, "fingerprint-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := c.Submit(context.Background(), job, "fingerprint-b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.calls != 2 {
		t.Errorf("expected two underlying submissions for distinct fingerprints, got %d", sub.calls)
	}
}

func TestController_SubmitFailurePropagates(t *testing.T) {
	sub := &fakeSubmitter{fail: 1}
	c := NewController(ControllerConfig{Submitter: sub})

	job := &fakeJob{targetKey: "book1/0/en/synthesize"}
	if _, _, err := c.Submit(context.Background(), job, ""); err == nil {
		t.Fatal("expected the submitter's transient failure to propagate, not be retried")
	}
	if sub.calls != 1 {
		t.Errorf("expected exactly one submission attempt, got %d", sub.calls)
	}
}

func TestController_Invalidate(t *testing.T) {
	sub := &fakeSubmitter{}
	c := NewController(ControllerConfig{Submitter: sub})

	job := &fakeJob{targetKey: "book1/0/en/synthesize"}
	if _, _, err := c.Submit(context.Background(), job, "fingerprint-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Invalidate(job.TargetKey())

	if _, _, err := c.Submit(context.Background(), job, "fingerprint-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.calls != 2 {
		t.Errorf("expected invalidation to force a resubmission, got %d calls", sub.calls)
	}
}
