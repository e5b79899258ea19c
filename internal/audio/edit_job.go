package audio

import (
	"context"
	"fmt"

	"github.com/readalong/readalong/internal/jobs"
	"github.com/readalong/readalong/internal/types"
)

// EditJob runs one Editor mutation as a pipeline Job, giving range_cut,
// skip_cut, and restore the same keyed-exclusion behavior as every other
// chapter mutation. A failed edit is not retried.
type EditJob struct {
	Editor *Editor

	BookID       string
	ChapterIndex int
	Language     string
	Op           types.EditOp

	TrimStart   int
	TrimEnd     int
	SkipWordIDs []string
}

func (j *EditJob) ID() string          { return "" }
func (j *EditJob) Kind() types.JobKind { return types.JobKindAudioEdit }
func (j *EditJob) TargetKey() string {
	return fmt.Sprintf("%s/%d/%s/synthesize", j.BookID, j.ChapterIndex, j.Language)
}

func (j *EditJob) Run(ctx context.Context, report jobs.ProgressFunc) error {
	report(string(j.Op), "applying edit", 0.2)

	var err error
	switch j.Op {
	case types.EditOpRangeCut:
		err = j.Editor.RangeCut(ctx, j.BookID, j.ChapterIndex, j.Language, j.TrimStart, j.TrimEnd)
	case types.EditOpSkipCut:
		err = j.Editor.SkipCut(ctx, j.BookID, j.ChapterIndex, j.Language, j.SkipWordIDs)
	case types.EditOpRestore:
		err = j.Editor.Restore(ctx, j.BookID, j.ChapterIndex, j.Language)
	default:
		return fmt.Errorf("audio: unknown edit op %q", j.Op)
	}
	if err != nil {
		return err
	}

	report("done", "edit applied", 1.0)
	return nil
}
