package cache

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/guarzo/platformapi/common"
)

// DefaultTTL applies when a caller stores an entry without a positive TTL.
const DefaultTTL = 5 * time.Minute

// Entry is a cached value with its lifetime. An entry is logically absent once
// now is after ExpiresAt.
type Entry[V any] struct {
	Value     V
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// EntryCache is the in-process tier: a mutex-guarded map that lives as long
// as the process. Expired entries are removed lazily when they are looked up.
type EntryCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]Entry[V]
	defaultTTL time.Duration
	now        func() time.Time
}

var _ common.Invalidator = (*EntryCache[int])(nil)

// NewEntryCache creates an empty entry tier. A non-positive defaultTTL means
// DefaultTTL.
func NewEntryCache[V any](defaultTTL time.Duration, opts ...Option) *EntryCache[V] {
	o := buildOptions(opts)
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &EntryCache[V]{
		entries:    make(map[string]Entry[V]),
		defaultTTL: defaultTTL,
		now:        o.now,
	}
}

// Get returns the value for key if it is present and unexpired. An expired
// entry is evicted.
func (c *EntryCache[V]) Get(key string) (V, bool) {
	ent, ok := c.Lookup(key)
	return ent.Value, ok
}

// Lookup is Get that also returns the entry timestamps.
func (c *EntryCache[V]) Lookup(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	if ent.Expired(c.now()) {
		delete(c.entries, key)
		return Entry[V]{}, false
	}
	return ent, true
}

// Has reports whether key holds an unexpired value, evicting it otherwise.
func (c *EntryCache[V]) Has(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Set stores value under key for ttl, replacing whatever was there.
func (c *EntryCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()

	c.mu.Lock()
	c.entries[key] = Entry[V]{Value: value, StoredAt: now, ExpiresAt: now.Add(ttl)}
	c.mu.Unlock()
}

// SetUntil stores value with an absolute expiry. Values that would already be
// expired are not stored.
func (c *EntryCache[V]) SetUntil(key string, value V, expiresAt time.Time) {
	now := c.now()
	if !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	c.entries[key] = Entry[V]{Value: value, StoredAt: now, ExpiresAt: expiresAt}
	c.mu.Unlock()
}

// Invalidate removes key.
func (c *EntryCache[V]) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateMatching removes every key accepted by match.
func (c *EntryCache[V]) InvalidateMatching(_ context.Context, match common.Matcher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
		}
	}
}

// InvalidatePattern removes every key matching re.
func (c *EntryCache[V]) InvalidatePattern(ctx context.Context, re *regexp.Regexp) {
	c.InvalidateMatching(ctx, common.MatchRegexp(re))
}

// InvalidatePrefix removes every key starting with prefix.
func (c *EntryCache[V]) InvalidatePrefix(ctx context.Context, prefix string) {
	c.InvalidateMatching(ctx, common.MatchPrefix(prefix))
}

// Clear removes everything.
func (c *EntryCache[V]) Clear(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]Entry[V])
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included.
func (c *EntryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
