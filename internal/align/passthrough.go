package align

import (
	"context"

	"github.com/readalong/readalong/internal/types"
)

// Passthrough trusts the TTS provider's own reported word timings as the
// SyncTable, with no refinement pass: the cheapest backend, used when the
// TTS engine already returned reliable per-token boundaries.
type Passthrough struct{}

// NewPassthrough constructs a Passthrough aligner.
func NewPassthrough() *Passthrough { return &Passthrough{} }

func (p *Passthrough) Align(ctx context.Context, artifact *types.AudioArtifact, tokens []types.Token) (types.SyncTable, error) {
	byToken := make(map[string]types.TimingEntry, len(artifact.ProvisionalTiming))
	for _, t := range artifact.ProvisionalTiming {
		byToken[t.TokenID] = t
	}

	table := make(types.SyncTable, len(tokens))
	for i, tok := range tokens {
		t, ok := byToken[tok.ID]
		if !ok {
			// No provisional timing candidate: unalignable, not skipped. A
			// skip is an editor decision; this token was never offered one.
			table[i] = types.SyncEntry{TokenID: tok.ID}
			continue
		}
		begin, end := t.ClipBeginMS, t.ClipEndMS
		table[i] = types.SyncEntry{TokenID: tok.ID, ClipBeginMS: &begin, ClipEndMS: &end}
	}
	table = Postprocess(table)
	return ClipBounds(table, artifact.CanonicalDurationMS), nil
}
