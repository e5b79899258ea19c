// Package jobs runs pipeline operations (ingest, synthesize, align, translate,
// export, audio edit) as asynchronous units of work, reporting progress and
// final state through a MetadataStore-backed JobRecord.
package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/readalong/readalong/internal/types"
)

// ErrNotFound is returned when a job is not found.
var ErrNotFound = errors.New("job not found")

// Job is a single pipeline operation. Unlike a one-shot function, a Job can
// report incremental progress through the Progress callback passed to Run,
// so a caller streaming a Progress Channel sees updates as they happen
// rather than only at completion.
type Job interface {
	// ID returns the unique job identifier.
	ID() string
	// Kind returns which pipeline operation this job performs.
	Kind() types.JobKind
	// TargetKey identifies the book/chapter/language/operation-class this
	// job acts on, used for keyed mutual exclusion by the Pipeline Controller.
	TargetKey() string
	// Run executes the job to completion or failure. report may be called
	// any number of times before Run returns.
	Run(ctx context.Context, report ProgressFunc) error
}

// ProgressFunc reports one progress event for a running job.
type ProgressFunc func(step, message string, percent float64)

// Dependencies provides shared resources to job constructors.
type Dependencies struct {
	Logger *slog.Logger
}

type depsKey struct{}

// ContextWithDeps returns a new context with Dependencies attached.
func ContextWithDeps(ctx context.Context, deps Dependencies) context.Context {
	return context.WithValue(ctx, depsKey{}, deps)
}

// DepsFromContext retrieves Dependencies from the context, or a zero value
// if none were attached.
func DepsFromContext(ctx context.Context) Dependencies {
	deps, ok := ctx.Value(depsKey{}).(Dependencies)
	if !ok {
		return Dependencies{}
	}
	return deps
}
