// Package dedup collapses concurrent identical reads into one call.
package dedup

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Group is the registry of in-flight reads, keyed like the cache. While a
// call for a key is running, every other Join for that key waits for and
// shares its result instead of starting a new one.
type Group struct {
	sf singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGroup() *Group {
	return &Group{inflight: make(map[string]struct{})}
}

// Join runs fn unless a call for key is already in flight, in which case it
// waits for that call. shared reports whether the result went to more than
// one caller. The key is released when fn returns, whether it succeeded,
// failed or panicked.
func (g *Group) Join(key string, fn func() (any, error)) (v any, shared bool, err error) {
	v, err, shared = g.sf.Do(key, func() (any, error) {
		g.track(key)
		defer g.release(key)
		return fn()
	})
	return v, shared, err
}

// Do is the typed form of Join.
func Do[T any](g *Group, key string, fn func() (T, error)) (T, bool, error) {
	v, shared, err := g.Join(key, func() (any, error) {
		return fn()
	})
	typed, _ := v.(T)
	return typed, shared, err
}

// InFlight reports whether a call for key is running.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[key]
	return ok
}

// Len is the number of keys with a call running.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

func (g *Group) track(key string) {
	g.mu.Lock()
	g.inflight[key] = struct{}{}
	g.mu.Unlock()
}

func (g *Group) release(key string) {
	g.mu.Lock()
	delete(g.inflight, key)
	g.mu.Unlock()
}
