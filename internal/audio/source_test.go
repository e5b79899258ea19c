package audio

import (
	"strings"
	"testing"

	"github.com/readalong/readalong/internal/types"
)

func TestSplitForTTS_Basic(t *testing.T) {
	text := "First sentence. Second sentence! Third sentence?"
	got := splitForTTS(text, 4096)
	if len(got) != 1 {
		t.Fatalf("expected single chunk under the limit, got %d: %#v", len(got), got)
	}
}

func TestSplitForTTS_OversizedFallback(t *testing.T) {
	parts := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		parts = append(parts, "word")
	}
	text := strings.Join(parts, " ") + "."

	got := splitForTTS(text, 4096)
	if len(got) < 2 {
		t.Fatalf("expected oversized text to split into multiple chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if len(chunk) > 4096 {
			t.Fatalf("chunk %d exceeds max chars: %d", i, len(chunk))
		}
	}
}

func TestSplitForTTS_Empty(t *testing.T) {
	got := splitForTTS("   \n\t ", 4096)
	if len(got) != 0 {
		t.Fatalf("expected no chunks, got %#v", got)
	}
}

func TestSplitForTTS_PrefersSentenceBoundary(t *testing.T) {
	text := strings.Repeat("word ", 400) + "." + strings.Repeat("more ", 400) + "."
	got := splitForTTS(text, len(text)/2+10)
	if len(got) < 2 {
		t.Fatalf("expected split, got %d chunks", len(got))
	}
	if !strings.HasSuffix(got[0], ".") {
		t.Errorf("expected first chunk to end on a sentence boundary, got %q", got[0][len(got[0])-20:])
	}
}

func TestTokensToText(t *testing.T) {
	tokens := []types.Token{
		{ID: "w0", Surface: "Hello"},
		{ID: "w1", Surface: "world"},
	}
	got := tokensToText(tokens)
	if got != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got)
	}
}
