package align

import "github.com/readalong/readalong/internal/types"

// Postprocess enforces the backend-independent monotonicity invariant every
// Aligner must satisfy before its SyncTable is accepted: timed entries never
// overlap, skipping untimed entries to find the next neighbor. Clipping
// against the audio duration is done separately by ClipBounds. It never
// changes which entries are timed versus untimed or skipped — only their
// bounds.
func Postprocess(table types.SyncTable) types.SyncTable {
	prev := -1
	for i := range table {
		e := &table[i]
		if e.Skipped || e.ClipBeginMS == nil || e.ClipEndMS == nil {
			continue
		}
		if *e.ClipBeginMS > *e.ClipEndMS {
			*e.ClipEndMS = *e.ClipBeginMS
		}
		if prev >= 0 {
			p := &table[prev]
			if *e.ClipBeginMS < *p.ClipEndMS {
				mid := (*p.ClipEndMS + *e.ClipBeginMS) / 2
				if mid < *p.ClipBeginMS {
					mid = *p.ClipBeginMS
				}
				if mid > *e.ClipEndMS {
					mid = *e.ClipEndMS
				}
				*p.ClipEndMS = mid
				*e.ClipBeginMS = mid
			}
		}
		prev = i
	}
	return table
}

// ClipBounds clips every timed entry's bounds into [0, durationMS],
// applied after Postprocess's monotonicity pass so a downstream clip
// can't reintroduce an overlap.
func ClipBounds(table types.SyncTable, durationMS int) types.SyncTable {
	for i := range table {
		e := &table[i]
		if e.Skipped || e.ClipBeginMS == nil || e.ClipEndMS == nil {
			continue
		}
		if *e.ClipBeginMS < 0 {
			*e.ClipBeginMS = 0
		}
		if *e.ClipEndMS > durationMS {
			*e.ClipEndMS = durationMS
		}
		if *e.ClipBeginMS > *e.ClipEndMS {
			*e.ClipBeginMS = *e.ClipEndMS
		}
	}
	return table
}
