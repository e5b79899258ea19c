// Package align produces a chapter's SyncTable from its canonical audio
// and token table. It exposes a single Aligner interface so the Pipeline
// Controller never depends on which backend actually timed the audio.
package align

import (
	"context"
	"errors"

	"github.com/readalong/readalong/internal/types"
)

// Aligner maps a chapter's tokens onto time intervals in its canonical
// audio.
type Aligner interface {
	Align(ctx context.Context, artifact *types.AudioArtifact, tokens []types.Token) (types.SyncTable, error)
}

// ErrAlignmentDiverged is returned when a backend's output (after
// postprocessing) still falls below the configured coverage threshold.
var ErrAlignmentDiverged = errors.New("align: alignment diverged")

// Coverage returns the fraction of tokens in table that carry a non-nil,
// non-skipped clip interval.
func Coverage(table types.SyncTable) float64 {
	if len(table) == 0 {
		return 0
	}
	timed := 0
	for _, e := range table {
		if !e.Skipped && e.ClipBeginMS != nil && e.ClipEndMS != nil {
			timed++
		}
	}
	return float64(timed) / float64(len(table))
}
