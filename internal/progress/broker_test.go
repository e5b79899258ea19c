package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/readalong/readalong/internal/types"
)

func TestBroker_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	events, unsubscribe := b.Subscribe("book1/0/en/synthesize")
	defer unsubscribe()

	b.Publish("book1/0/en/synthesize", types.ProgressEvent{Kind: "progress", Percent: 0.5})

	select {
	case ev := <-events:
		if ev.Percent != 0.5 {
			t.Errorf("expected delivered event percent 0.5, got %v", ev.Percent)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestBroker_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	events, unsubscribe := b.Subscribe("book1/0/en/synthesize")
	unsubscribe()

	b.Publish("book1/0/en/synthesize", types.ProgressEvent{Kind: "progress"})

	if _, ok := <-events; ok {
		t.Error("expected channel closed after unsubscribe")
	}
}

func TestServeHTTP_EmitsSnapshotBeforeLiveEvents(t *testing.T) {
	b := NewBroker()
	b.SnapshotFunc = func(targetKey string) (types.ProgressEvent, bool) {
		return types.ProgressEvent{Kind: "progress", Message: "in flight", Percent: 0.3}, true
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/progress?target_key=book1/0/en/synthesize", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req)
		close(done)
	}()

	// Give ServeHTTP time to subscribe and flush the snapshot before we
	// publish the terminal event that ends the stream.
	time.Sleep(20 * time.Millisecond)
	b.Publish("book1/0/en/synthesize", types.ProgressEvent{Kind: "done", Percent: 1.0})

	select {
	case <-done:
	case <-time.After(time.Second):
		cancel()
		t.Fatal("timed out waiting for stream to finish")
	}
	cancel()

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	if len(lines) < 2 {
		t.Fatalf("expected at least 2 SSE frames (summary + done), got %d: %q", len(lines), rec.Body.String())
	}

	var first types.ProgressEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &first); err != nil {
		t.Fatalf("decoding first frame: %v", err)
	}
	if first.Kind != "summary" {
		t.Errorf("expected first frame to be the snapshot summary, got kind %q", first.Kind)
	}

	var last types.ProgressEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[len(lines)-1], "data: ")), &last); err != nil {
		t.Fatalf("decoding last frame: %v", err)
	}
	if last.Kind != "done" {
		t.Errorf("expected stream to end on the done event, got kind %q", last.Kind)
	}
}

func TestServeHTTP_NoSnapshotFuncSkipsSummaryFrame(t *testing.T) {
	b := NewBroker()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/progress?target_key=book1/0/en/synthesize", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	b.Publish("book1/0/en/synthesize", types.ProgressEvent{Kind: "done"})

	select {
	case <-done:
	case <-time.After(time.Second):
		cancel()
		t.Fatal("timed out waiting for stream to finish")
	}
	cancel()

	if strings.Contains(rec.Body.String(), `"summary"`) {
		t.Error("expected no summary frame when SnapshotFunc is unset")
	}
}

func TestServeHTTP_RequiresTargetKey(t *testing.T) {
	b := NewBroker()
	req := httptest.NewRequest(http.MethodGet, "/progress", nil)
	rec := httptest.NewRecorder()

	b.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing target_key, got %d", rec.Code)
	}
}
