package blobstore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestFilesystemStorePutGetRoundTrip(t *testing.T) {
	store := NewFilesystemStore(t.TempDir())

	if err := store.Put("b1/metadata.json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := store.Get("b1/metadata.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("unexpected data: %s", data)
	}
	if !store.Exists("b1/metadata.json") {
		t.Fatal("expected key to exist")
	}
}

func TestFilesystemStorePutLeavesNoTempFileBehind(t *testing.T) {
	root := t.TempDir()
	store := NewFilesystemStore(root)

	if err := store.Put("b1/audio/0/en/voice.bin", bytes.Repeat([]byte{0xAB}, 1024)); err != nil {
		t.Fatalf("put: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "b1/audio/0/en"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFilesystemStorePutReaderOverwritesAtomically(t *testing.T) {
	store := NewFilesystemStore(t.TempDir())
	key := "b1/export/book.epub"

	if err := store.Put(key, []byte("v1")); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	if err := store.PutReader(key, bytes.NewReader([]byte("v2"))); err != nil {
		t.Fatalf("putreader v2: %v", err)
	}
	data, err := store.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("expected v2, got %s", data)
	}
}

func TestFilesystemStoreConcurrentPutsNeverExposePartialWrite(t *testing.T) {
	store := NewFilesystemStore(t.TempDir())
	key := "b1/audio/0/en/voice.bin"
	if err := store.Put(key, bytes.Repeat([]byte{0x00}, 4096)); err != nil {
		t.Fatalf("seed put: %v", err)
	}

	var wg sync.WaitGroup
	payloads := [][]byte{
		bytes.Repeat([]byte{0x01}, 4096),
		bytes.Repeat([]byte{0x02}, 4096),
	}
	for _, p := range payloads {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Put(key, p); err != nil {
				t.Errorf("put: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := store.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(data) != 4096 {
		t.Fatalf("expected full-length blob, got %d bytes (torn write)", len(data))
	}
	first := data[0]
	for _, b := range data {
		if b != first {
			t.Fatal("blob contains bytes from both writers: torn write")
		}
	}
}

func TestFilesystemStoreGetMissingKeyReturnsErrNotFound(t *testing.T) {
	store := NewFilesystemStore(t.TempDir())
	if _, err := store.Get("nope"); err == nil {
		t.Fatal("expected error for missing key")
	} else if !bytes.Contains([]byte(err.Error()), []byte("blob not found")) {
		t.Fatalf("expected ErrNotFound-wrapped error, got %v", err)
	}
}
