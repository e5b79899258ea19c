package audio

import (
	"testing"

	"github.com/readalong/readalong/internal/types"
)

func ptr(i int) *int { return &i }

func TestRewriteRangeCutEntry(t *testing.T) {
	t.Run("entry before cut is unchanged", func(t *testing.T) {
		e := types.SyncEntry{TokenID: "w0", ClipBeginMS: ptr(0), ClipEndMS: ptr(100)}
		got := rewriteRangeCutEntry(e, 200, 300, 100)
		if *got.ClipBeginMS != 0 || *got.ClipEndMS != 100 {
			t.Errorf("expected unchanged entry, got %+v", got)
		}
	})

	t.Run("entry after cut shifts left", func(t *testing.T) {
		e := types.SyncEntry{TokenID: "w1", ClipBeginMS: ptr(400), ClipEndMS: ptr(500)}
		got := rewriteRangeCutEntry(e, 200, 300, 100)
		if *got.ClipBeginMS != 300 || *got.ClipEndMS != 400 {
			t.Errorf("expected shifted entry, got %+v", got)
		}
	})

	t.Run("entry straddling the cut is skipped", func(t *testing.T) {
		e := types.SyncEntry{TokenID: "w2", ClipBeginMS: ptr(250), ClipEndMS: ptr(350)}
		got := rewriteRangeCutEntry(e, 200, 300, 100)
		if !got.Skipped || got.ClipBeginMS != nil {
			t.Errorf("expected straddling entry to be skipped, got %+v", got)
		}
	})

	t.Run("already skipped entry is unchanged", func(t *testing.T) {
		e := types.SyncEntry{TokenID: "w3", Skipped: true}
		got := rewriteRangeCutEntry(e, 0, 100, 100)
		if !got.Skipped {
			t.Errorf("expected skipped entry to remain skipped")
		}
	})
}

func TestCoalesce(t *testing.T) {
	t.Run("merges overlapping intervals", func(t *testing.T) {
		got := coalesce([]interval{{0, 100}, {50, 150}, {300, 400}})
		if len(got) != 2 {
			t.Fatalf("expected 2 merged intervals, got %d: %+v", len(got), got)
		}
		if got[0].start != 0 || got[0].end != 150 {
			t.Errorf("expected first merged interval [0,150), got %+v", got[0])
		}
		if got[1].start != 300 || got[1].end != 400 {
			t.Errorf("expected second interval [300,400), got %+v", got[1])
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := coalesce(nil); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("adjacent intervals merge", func(t *testing.T) {
		got := coalesce([]interval{{0, 100}, {100, 200}})
		if len(got) != 1 {
			t.Fatalf("expected adjacent intervals to merge, got %d", len(got))
		}
	})
}

func TestRewriteSkipCutEntry(t *testing.T) {
	removed := []interval{{100, 200}}
	skipSet := map[string]bool{"w1": true}

	t.Run("skipped token is marked skipped", func(t *testing.T) {
		e := types.SyncEntry{TokenID: "w1", ClipBeginMS: ptr(100), ClipEndMS: ptr(200)}
		got := rewriteSkipCutEntry(e, skipSet, removed)
		if !got.Skipped {
			t.Errorf("expected entry to be skipped")
		}
	})

	t.Run("entry after removed interval shifts left", func(t *testing.T) {
		e := types.SyncEntry{TokenID: "w2", ClipBeginMS: ptr(300), ClipEndMS: ptr(400)}
		got := rewriteSkipCutEntry(e, skipSet, removed)
		if *got.ClipBeginMS != 200 || *got.ClipEndMS != 300 {
			t.Errorf("expected shifted entry, got %+v", got)
		}
	})

	t.Run("entry before removed interval is unchanged", func(t *testing.T) {
		e := types.SyncEntry{TokenID: "w0", ClipBeginMS: ptr(0), ClipEndMS: ptr(50)}
		got := rewriteSkipCutEntry(e, skipSet, removed)
		if *got.ClipBeginMS != 0 || *got.ClipEndMS != 50 {
			t.Errorf("expected unchanged entry, got %+v", got)
		}
	})
}

func TestCollectIntervals(t *testing.T) {
	sync := types.SyncTable{
		{TokenID: "w0", ClipBeginMS: ptr(0), ClipEndMS: ptr(100)},
		{TokenID: "w1", ClipBeginMS: ptr(100), ClipEndMS: ptr(200)},
		{TokenID: "w2", Skipped: true},
	}
	skipSet := map[string]bool{"w0": true, "w2": true}

	got := collectIntervals(sync, skipSet)
	if len(got) != 1 {
		t.Fatalf("expected 1 interval (w2 is already skipped), got %d", len(got))
	}
	if got[0].start != 0 || got[0].end != 100 {
		t.Errorf("expected interval [0,100), got %+v", got[0])
	}
}
