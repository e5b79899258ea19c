package align

import (
	"context"
	"io"
	"testing"

	"github.com/readalong/readalong/internal/types"
)

type memBlobStore struct {
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore { return &memBlobStore{blobs: map[string][]byte{}} }

func (m *memBlobStore) Put(key string, data []byte) error { m.blobs[key] = data; return nil }
func (m *memBlobStore) PutReader(key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.blobs[key] = data
	return nil
}
func (m *memBlobStore) Get(key string) ([]byte, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return data, nil
}
func (m *memBlobStore) Open(key string) (io.ReadCloser, error) { panic("unused") }
func (m *memBlobStore) Delete(key string) error                { delete(m.blobs, key); return nil }
func (m *memBlobStore) Exists(key string) bool                 { _, ok := m.blobs[key]; return ok }

func TestDTW_NoReferenceTimingLeavesTokensUnalignable(t *testing.T) {
	artifact := &types.AudioArtifact{CanonicalBlobKey: "b/audio.bin", CanonicalDurationMS: 2000}
	tokens := []types.Token{{ID: "w0"}, {ID: "w1"}}

	table, err := NewDTW(newMemBlobStore()).Align(context.Background(), artifact, tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range table {
		if e.ClipBeginMS != nil || e.ClipEndMS != nil {
			t.Errorf("expected unalignable entry with no reference timing, got %+v", e)
		}
	}
}

func TestDTW_WarpsAgainstEnergyProfile(t *testing.T) {
	blobs := newMemBlobStore()
	audio := make([]byte, 4000)
	for i := range audio {
		if i < 2000 {
			audio[i] = 128 // silence in the first half
		} else {
			audio[i] = byte(128 + (i % 100)) // energy in the second half
		}
	}
	blobs.Put("b/audio.bin", audio)

	artifact := &types.AudioArtifact{
		CanonicalBlobKey:    "b/audio.bin",
		CanonicalDurationMS: 4000,
		ProvisionalTiming: []types.TimingEntry{
			{TokenID: "w0", ClipBeginMS: 0, ClipEndMS: 100},
			{TokenID: "w1", ClipBeginMS: 100, ClipEndMS: 200},
		},
	}
	tokens := []types.Token{{ID: "w0"}, {ID: "w1"}}

	table, err := NewDTW(blobs).Align(context.Background(), artifact, tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, e := range table {
		if e.ClipBeginMS == nil || e.ClipEndMS == nil {
			t.Fatalf("token %d: expected bounds to be set", i)
		}
		if *e.ClipBeginMS < 0 || *e.ClipEndMS > 4000 {
			t.Errorf("token %d: bounds out of range: %d-%d", i, *e.ClipBeginMS, *e.ClipEndMS)
		}
	}
	if *table[0].ClipBeginMS > *table[1].ClipBeginMS {
		t.Error("expected warp path to remain monotonic across tokens")
	}
}

func TestDTW_EmptyTokensReturnsEmptyTable(t *testing.T) {
	artifact := &types.AudioArtifact{CanonicalDurationMS: 1000}
	table, err := NewDTW(newMemBlobStore()).Align(context.Background(), artifact, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 0 {
		t.Errorf("expected empty table for no tokens, got %d entries", len(table))
	}
}
