package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/providers"
)

// Recorder handles recording pipeline-stage metrics to the metadata store.
type Recorder struct {
	client *metadatastore.Client
}

// NewRecorder creates a new metrics recorder.
func NewRecorder(client *metadatastore.Client) *Recorder {
	return &Recorder{client: client}
}

// RecordOpts provides context for a metric recording.
type RecordOpts struct {
	JobID       string
	BookID      string
	Stage       string // "ingest" | "synthesize" | "align" | "translate" | "export" | "audio_edit"
	ItemKey     string // e.g., "chapter_0003"
	OutputDocID string
	OutputCID   string
	OutputType  string // collection name (e.g., "AudioArtifact", "SyncTable")
}

// Record stores a single metric.
func (r *Recorder) Record(ctx context.Context, m Metric) (string, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return r.client.Create(ctx, "Metric", m.ToMap())
}

// RecordLLMCall records metrics from a translation LLM chat result.
func (r *Recorder) RecordLLMCall(ctx context.Context, opts RecordOpts, result *providers.ChatResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil chat result")
	}

	m := Metric{
		JobID:   opts.JobID,
		BookID:  opts.BookID,
		Stage:   opts.Stage,
		ItemKey: opts.ItemKey,

		OutputDocID: opts.OutputDocID,
		OutputCID:   opts.OutputCID,
		OutputType:  opts.OutputType,

		Provider: result.Provider,
		Model:    result.ModelUsed,

		CostUSD:          result.CostUSD,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		ReasoningTokens:  result.ReasoningTokens,
		TotalTokens:      result.TotalTokens,

		QueueSeconds:     result.QueueTime.Seconds(),
		ExecutionSeconds: result.ExecutionTime.Seconds(),
		TotalSeconds:     result.TotalTime.Seconds(),

		Success:   result.Success,
		ErrorType: result.ErrorType,

		CreatedAt: time.Now(),
	}

	return r.Record(ctx, m)
}

// RecordTTSCall records metrics from a speech-synthesis request.
func (r *Recorder) RecordTTSCall(ctx context.Context, opts RecordOpts, provider string, durationMS int, execTime time.Duration, success bool, errType string) (string, error) {
	m := Metric{
		JobID:   opts.JobID,
		BookID:  opts.BookID,
		Stage:   opts.Stage,
		ItemKey: opts.ItemKey,

		OutputDocID: opts.OutputDocID,
		OutputCID:   opts.OutputCID,
		OutputType:  opts.OutputType,

		Provider: provider,

		ExecutionSeconds: execTime.Seconds(),
		TotalSeconds:     execTime.Seconds(),

		Success:   success,
		ErrorType: errType,

		CreatedAt: time.Now(),
	}
	_ = durationMS // surfaced via AudioArtifact.CanonicalDurationMS, not duplicated in the metric
	return r.Record(ctx, m)
}

// RecordJobDuration records a pipeline job's total wall-clock time, keyed by
// job kind rather than a specific provider call.
func (r *Recorder) RecordJobDuration(jobKind string, success bool, d time.Duration) {
	_, _ = r.Record(context.Background(), Metric{
		Stage:        jobKind,
		TotalSeconds: d.Seconds(),
		Success:      success,
		CreatedAt:    time.Now(),
	})
}

// RecordError records a failed operation as a metric.
func (r *Recorder) RecordError(ctx context.Context, opts RecordOpts, provider, model, errorType string, duration time.Duration) (string, error) {
	m := Metric{
		JobID:   opts.JobID,
		BookID:  opts.BookID,
		Stage:   opts.Stage,
		ItemKey: opts.ItemKey,

		Provider: provider,
		Model:    model,

		TotalSeconds: duration.Seconds(),

		Success:   false,
		ErrorType: errorType,

		CreatedAt: time.Now(),
	}

	return r.Record(ctx, m)
}
