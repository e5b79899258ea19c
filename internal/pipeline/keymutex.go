package pipeline

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// KeyMutex enforces at-most-one concurrent mutation per target key
// (book/chapter/language/operation-class). It is built on singleflight
// rather than a hand-rolled mutex map: concurrent callers racing on the
// same key share a single in-flight submission and all observe the same
// result, which is exactly the "later call observes the earlier artifact"
// rule the Audio Source Manager requires.
type KeyMutex struct {
	g singleflight.Group
}

// NewKeyMutex creates an empty KeyMutex.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{}
}

// Do runs fn under exclusion for key. If another call for the same key is
// already in flight, this call blocks and returns that call's result
// instead of running fn again.
func (m *KeyMutex) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error, bool) {
	v, err, shared := m.g.Do(key, func() (any, error) {
		return fn(ctx)
	})
	return v, err, shared
}
