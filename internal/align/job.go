package align

import (
	"context"
	"fmt"

	"github.com/readalong/readalong/internal/jobs"
	"github.com/readalong/readalong/internal/metadatastore"
	"github.com/readalong/readalong/internal/types"
)

// DefaultCoverageThreshold is the minimum fraction of tokens a SyncTable
// must have timed before it is accepted, absent an operator override.
const DefaultCoverageThreshold = 0.8

// Job runs an Aligner over a chapter's tokens and provisional timing and
// persists the resulting SyncTable.
type Job struct {
	BookID       string
	ChapterIndex int
	Language     string
	Aligner      Aligner

	// CoverageThreshold is the minimum fraction of tokens that must receive
	// timing before a sync table is accepted. Zero means DefaultCoverageThreshold.
	CoverageThreshold float64

	Store metadatastore.Store
}

// NewJob constructs an align Job.
func NewJob(bookID string, chapterIndex int, language string, aligner Aligner, coverageThreshold float64, store metadatastore.Store) *Job {
	return &Job{
		BookID:            bookID,
		ChapterIndex:      chapterIndex,
		Language:          language,
		Aligner:           aligner,
		CoverageThreshold: coverageThreshold,
		Store:             store,
	}
}

func (j *Job) ID() string          { return "" }
func (j *Job) Kind() types.JobKind { return types.JobKindAlign }
func (j *Job) TargetKey() string {
	return fmt.Sprintf("%s/%d/%s/align", j.BookID, j.ChapterIndex, j.Language)
}

func (j *Job) Run(ctx context.Context, report jobs.ProgressFunc) error {
	report("load", "loading chapter and audio artifact", 0.1)

	chapter, err := j.Store.GetChapter(ctx, j.BookID, j.ChapterIndex)
	if err != nil {
		return fmt.Errorf("align: loading chapter: %w", err)
	}
	artifact, err := j.Store.GetAudioArtifact(ctx, j.BookID, j.ChapterIndex, j.Language)
	if err != nil {
		return fmt.Errorf("align: loading audio artifact: %w", err)
	}

	report("align", "computing sync table", 0.5)
	table, err := j.Aligner.Align(ctx, artifact, chapter.TokenTable)
	if err != nil {
		return fmt.Errorf("align: %w", err)
	}

	threshold := j.CoverageThreshold
	if threshold <= 0 {
		threshold = DefaultCoverageThreshold
	}
	coverage := Coverage(table)
	if coverage < threshold {
		// The prior SyncTable, if any, is left untouched: a failed
		// realignment must not regress an already-synced chapter.
		return fmt.Errorf("%w: coverage %.2f below threshold %.2f", ErrAlignmentDiverged, coverage, threshold)
	}

	if err := j.Store.PutSyncTable(ctx, j.BookID, j.ChapterIndex, j.Language, table); err != nil {
		return fmt.Errorf("align: persisting sync table: %w", err)
	}

	report("done", fmt.Sprintf("coverage %.0f%%", coverage*100), 1.0)
	return nil
}
