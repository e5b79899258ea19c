package align

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/readalong/readalong/internal/types"
)

func TestASRForced_MapsMatchedWordsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req asrForcedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Words) != 2 {
			t.Fatalf("expected 2 words in request, got %d", len(req.Words))
		}
		json.NewEncoder(w).Encode(asrForcedResponse{Words: []asrForcedWord{
			{Index: 0, ClipBeginMS: 0, ClipEndMS: 300, Matched: true},
			{Index: 1, Matched: false},
		}})
	}))
	defer srv.Close()

	blobs := newMemBlobStore()
	blobs.Put("b/audio.bin", []byte("fake-mp3-bytes"))

	a := NewASRForced(blobs, srv.URL, "")
	a.RetryDelay = time.Millisecond
	artifact := &types.AudioArtifact{CanonicalBlobKey: "b/audio.bin", CanonicalDurationMS: 1000}
	tokens := []types.Token{{ID: "w0", Surface: "hello"}, {ID: "w1", Surface: "world"}}

	table, err := a.Align(context.Background(), artifact, tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table[0].ClipBeginMS == nil || *table[0].ClipBeginMS != 0 {
		t.Error("expected matched word to carry its clip bounds")
	}
	if table[1].ClipBeginMS != nil {
		t.Error("expected unmatched word to remain unalignable")
	}
	if table[1].Skipped {
		t.Error("expected unmatched word to be unalignable, not editor-skipped")
	}
}

func TestASRForced_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(asrForcedResponse{Words: []asrForcedWord{
			{Index: 0, ClipBeginMS: 0, ClipEndMS: 200, Matched: true},
		}})
	}))
	defer srv.Close()

	blobs := newMemBlobStore()
	blobs.Put("b/audio.bin", []byte("fake"))

	a := NewASRForced(blobs, srv.URL, "")
	a.RetryDelay = time.Millisecond
	artifact := &types.AudioArtifact{CanonicalBlobKey: "b/audio.bin", CanonicalDurationMS: 500}
	tokens := []types.Token{{ID: "w0", Surface: "hi"}}

	if _, err := a.Align(context.Background(), artifact, tokens); err != nil {
		t.Fatalf("expected retry to eventually succeed, got: %v", err)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestASRForced_SendsBearerTokenWhenConfigured(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(asrForcedResponse{})
	}))
	defer srv.Close()

	blobs := newMemBlobStore()
	blobs.Put("b/audio.bin", []byte("fake"))

	a := NewASRForced(blobs, srv.URL, "secret-key")
	artifact := &types.AudioArtifact{CanonicalBlobKey: "b/audio.bin", CanonicalDurationMS: 500}
	if _, err := a.Align(context.Background(), artifact, []types.Token{{ID: "w0"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
}
