package align

import (
	"context"
	"fmt"
	"math"

	"github.com/readalong/readalong/internal/blobstore"
	"github.com/readalong/readalong/internal/types"
)

// DTW aligns a TTS-derived reference timeline against the canonical
// waveform by dynamic time warping. The reference signal is the per-token
// duration profile reported in provisional_timing (the TTS engine's own
// word boundaries, re-synthesized from the tokens); the target signal is
// a coarse per-bucket energy profile of the canonical audio bytes.
// Reference word boundaries are then propagated through the resulting
// warp path. There is no DTW library available, so the cost matrix and
// backtrace are hand-rolled here.
type DTW struct {
	Blobs blobstore.Store
}

// NewDTW constructs a DTW aligner.
func NewDTW(blobs blobstore.Store) *DTW { return &DTW{Blobs: blobs} }

func (d *DTW) Align(ctx context.Context, artifact *types.AudioArtifact, tokens []types.Token) (types.SyncTable, error) {
	n := len(tokens)
	table := make(types.SyncTable, n)
	for i, tok := range tokens {
		table[i] = types.SyncEntry{TokenID: tok.ID}
	}
	if n == 0 {
		return table, nil
	}

	reference := referenceProfile(artifact.ProvisionalTiming, tokens)
	if reference == nil {
		// No reference timeline to warp against; every token is unalignable.
		return Postprocess(table), nil
	}

	audio, err := d.Blobs.Get(artifact.CanonicalBlobKey)
	if err != nil {
		return nil, fmt.Errorf("align: loading canonical audio: %w", err)
	}
	target := energyBuckets(audio, n)

	path := warpPath(reference, target)
	bucketMS := float64(artifact.CanonicalDurationMS) / float64(n)
	for i := 0; i < n; i++ {
		bucket := path[i]
		begin := int(float64(bucket) * bucketMS)
		end := int(float64(bucket+1) * bucketMS)
		table[i] = types.SyncEntry{TokenID: tokens[i].ID, ClipBeginMS: &begin, ClipEndMS: &end}
	}

	table = Postprocess(table)
	return ClipBounds(table, artifact.CanonicalDurationMS), nil
}

// referenceProfile builds a per-token duration signal from provisional
// timing, normalized to sum to 1. Returns nil if no token has timing.
func referenceProfile(timing []types.TimingEntry, tokens []types.Token) []float64 {
	byToken := make(map[string]types.TimingEntry, len(timing))
	for _, t := range timing {
		byToken[t.TokenID] = t
	}
	durations := make([]float64, len(tokens))
	total := 0.0
	any := false
	for i, tok := range tokens {
		t, ok := byToken[tok.ID]
		if !ok || t.ClipEndMS <= t.ClipBeginMS {
			continue
		}
		durations[i] = float64(t.ClipEndMS - t.ClipBeginMS)
		total += durations[i]
		any = true
	}
	if !any || total == 0 {
		return nil
	}
	for i := range durations {
		durations[i] /= total
	}
	return durations
}

// energyBuckets splits raw audio bytes into n equal-width buckets and
// returns each bucket's mean absolute deviation from the midpoint byte
// value (128), normalized to sum to 1, as a coarse amplitude-energy
// proxy in lieu of decoding PCM samples.
func energyBuckets(audio []byte, n int) []float64 {
	buckets := make([]float64, n)
	if len(audio) == 0 || n == 0 {
		return buckets
	}
	width := len(audio) / n
	if width == 0 {
		width = 1
	}
	total := 0.0
	for i := 0; i < n; i++ {
		start := i * width
		end := start + width
		if i == n-1 || end > len(audio) {
			end = len(audio)
		}
		if start >= end {
			continue
		}
		sum := 0.0
		for _, b := range audio[start:end] {
			sum += math.Abs(float64(b) - 128)
		}
		buckets[i] = sum / float64(end-start)
		total += buckets[i]
	}
	if total > 0 {
		for i := range buckets {
			buckets[i] /= total
		}
	}
	return buckets
}

// warpPath computes the standard DTW cost matrix between reference and
// target and backtraces the optimal alignment, returning for each
// reference index the target index it warps onto. The result is
// monotonically non-decreasing in i.
func warpPath(reference, target []float64) []int {
	n, m := len(reference), len(target)
	const inf = math.MaxFloat64 / 2

	cost := make([][]float64, n+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
		for j := range cost[i] {
			cost[i][j] = inf
		}
	}
	cost[0][0] = 0

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			d := math.Abs(reference[i-1] - target[j-1])
			best := cost[i-1][j]
			if cost[i][j-1] < best {
				best = cost[i][j-1]
			}
			if cost[i-1][j-1] < best {
				best = cost[i-1][j-1]
			}
			cost[i][j] = d + best
		}
	}

	path := make([]int, n)
	i, j := n, m
	for i > 0 {
		if j > 0 {
			path[i-1] = j - 1
		} else {
			path[i-1] = 0
		}
		if i == 1 {
			break
		}
		switch {
		case j <= 1 || cost[i-1][j-1] <= cost[i-1][j] && cost[i-1][j-1] <= cost[i][j-1]:
			i, j = i-1, max(j-1, 0)
		case cost[i-1][j] <= cost[i][j-1]:
			i--
		default:
			j--
		}
	}
	return path
}
