// Package progress fans out job progress events to HTTP clients watching a
// target key's SSE stream. It implements jobs.Publisher using the same
// mutex-guarded subscriber map the Scheduler uses to track running jobs.
package progress

import (
	"sync"

	"github.com/readalong/readalong/internal/types"
)

// Broker distributes ProgressEvents published for a target key to every
// subscriber currently watching that key.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan types.ProgressEvent]struct{}

	// SnapshotFunc, when set, is consulted by ServeHTTP at subscribe time so
	// a late subscriber receives the target key's current state as a single
	// summary event before live events start streaming.
	SnapshotFunc func(targetKey string) (types.ProgressEvent, bool)
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan types.ProgressEvent]struct{})}
}

// Publish delivers ev to every subscriber of targetKey. When a subscriber's
// buffer is full the event is dropped for that subscriber rather than
// allowed to block the publishing job.
func (b *Broker) Publish(targetKey string, ev types.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[targetKey] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new listener for targetKey and returns the channel
// to read events from plus an unsubscribe func the caller must defer.
func (b *Broker) Subscribe(targetKey string) (<-chan types.ProgressEvent, func()) {
	ch := make(chan types.ProgressEvent, 16)

	b.mu.Lock()
	if b.subs[targetKey] == nil {
		b.subs[targetKey] = make(map[chan types.ProgressEvent]struct{})
	}
	b.subs[targetKey][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs[targetKey], ch)
		if len(b.subs[targetKey]) == 0 {
			delete(b.subs, targetKey)
		}
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}
