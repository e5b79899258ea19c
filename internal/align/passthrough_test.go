package align

import (
	"context"
	"testing"

	"github.com/readalong/readalong/internal/types"
)

func TestPassthrough_UntimedTokenIsUnalignableNotSkipped(t *testing.T) {
	artifact := &types.AudioArtifact{
		CanonicalDurationMS: 5000,
		ProvisionalTiming: []types.TimingEntry{
			{TokenID: "w0", ClipBeginMS: 0, ClipEndMS: 400},
		},
	}
	tokens := []types.Token{
		{ID: "w0", Surface: "Hello"},
		{ID: "w1", Surface: "world"},
	}

	table, err := NewPassthrough().Align(context.Background(), artifact, tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w1 := table[1]
	if w1.Skipped {
		t.Error("expected untimed token to be unalignable (Skipped=false), not editor-skipped")
	}
	if w1.ClipBeginMS != nil || w1.ClipEndMS != nil {
		t.Error("expected untimed token to have nil clip bounds")
	}
}

func TestPassthrough_TimedTokenCarriesBounds(t *testing.T) {
	artifact := &types.AudioArtifact{
		CanonicalDurationMS: 5000,
		ProvisionalTiming: []types.TimingEntry{
			{TokenID: "w0", ClipBeginMS: 0, ClipEndMS: 400},
		},
	}
	tokens := []types.Token{{ID: "w0", Surface: "Hello"}}

	table, err := NewPassthrough().Align(context.Background(), artifact, tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table[0].ClipBeginMS == nil || *table[0].ClipBeginMS != 0 {
		t.Error("expected timed token's begin bound to carry through")
	}
	if table[0].ClipEndMS == nil || *table[0].ClipEndMS != 400 {
		t.Error("expected timed token's end bound to carry through")
	}
}

func TestPassthrough_Coverage(t *testing.T) {
	artifact := &types.AudioArtifact{
		CanonicalDurationMS: 5000,
		ProvisionalTiming: []types.TimingEntry{
			{TokenID: "w0", ClipBeginMS: 0, ClipEndMS: 400},
		},
	}
	tokens := []types.Token{
		{ID: "w0", Surface: "Hello"},
		{ID: "w1", Surface: "world"},
	}

	table, err := NewPassthrough().Align(context.Background(), artifact, tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Coverage(table); got != 0.5 {
		t.Errorf("expected coverage 0.5 with one of two tokens timed, got %v", got)
	}
}
