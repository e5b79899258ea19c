package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeHTTP streams progress events for the target key given in the
// "target_key" query parameter as a text/event-stream response. There is no
// SSE library anywhere in the retrieved reference pack, so this handler is
// written directly against net/http per the standard SSE recipe.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	targetKey := r.URL.Query().Get("target_key")
	if targetKey == "" {
		http.Error(w, "target_key is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := b.Subscribe(targetKey)
	defer unsubscribe()

	if b.SnapshotFunc != nil {
		if snapshot, ok := b.SnapshotFunc(targetKey); ok {
			snapshot.Kind = "summary"
			if payload, err := json.Marshal(snapshot); err == nil {
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if ev.Kind == "done" || ev.Kind == "error" {
				return
			}
		}
	}
}
