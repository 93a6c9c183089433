package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guarzo/platformapi/common"
)

// Storage namespaces in use. Each durable tier owns every storage key that
// starts with "<namespace>_".
const (
	NamespaceCache = "cache"
	NamespaceDraft = "draft"
)

// degradedAfter is how many writes in a row must fail before a tier reports
// itself degraded.
const degradedAfter = 3

// envelope is the serialized form of an entry. StoredAt is not persisted.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt int64           `json:"expiresAt"`
}

// WriteResult is the outcome of a best-effort write. Callers may ignore it;
// Err says why a write did not land.
type WriteResult struct {
	Stored bool
	Err    error
}

// MigrationResult is the outcome of moving a legacy entry to its versioned key.
type MigrationResult struct {
	Migrated bool
	Err      error
}

// DurableStats counts what a durable tier has done since it was created.
type DurableStats struct {
	Hits          int64
	Misses        int64
	Writes        int64
	WriteFailures int64
	ReadFailures  int64
	Migrations    int64
}

// DurableCache keeps entries in a Storage as JSON envelopes under
// "<namespace>_<version>:<key>". Entries written by builds with another
// version read as absent. Entries under the pre-versioning key
// "<namespace>_<key>" are migrated on first read.
//
// Storage failures never reach callers: reads degrade to misses and writes
// report through WriteResult. Operations on one DurableCache are serialized,
// so a read that migrates a legacy entry cannot undo a concurrent write or
// invalidation.
type DurableCache struct {
	mu sync.Mutex

	storage    Storage
	namespace  string
	version    string
	defaultTTL time.Duration
	now        func() time.Time
	logger     common.Logger

	consecutiveFailures atomic.Int64

	hits, misses, writes, writeFailures, readFailures, migrations atomic.Int64
}

var _ common.Invalidator = (*DurableCache)(nil)

// NewDurableCache creates a durable tier over storage.
func NewDurableCache(storage Storage, namespace, version string, defaultTTL time.Duration, opts ...Option) *DurableCache {
	o := buildOptions(opts)
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &DurableCache{
		storage:    storage,
		namespace:  namespace,
		version:    version,
		defaultTTL: defaultTTL,
		now:        o.now,
		logger:     o.logger,
	}
}

// VersionedKey is the storage key for key under the current version.
func (d *DurableCache) VersionedKey(key string) string {
	return d.namespace + "_" + d.version + ":" + key
}

// LegacyKey is the storage key older builds used for key.
func (d *DurableCache) LegacyKey(key string) string {
	return d.namespace + "_" + key
}

func (d *DurableCache) prefix() string {
	return d.namespace + "_"
}

// cacheKey recovers the cache key from a storage key in this namespace.
func (d *DurableCache) cacheKey(storageKey string) string {
	if rest, ok := strings.CutPrefix(storageKey, d.prefix()+d.version+":"); ok {
		return rest
	}
	return strings.TrimPrefix(storageKey, d.prefix())
}

// Get returns the entry for key when one is stored and unexpired.
func (d *DurableCache) Get(ctx context.Context, key string) (Entry[json.RawMessage], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	storageKey := d.VersionedKey(key)
	raw, found := d.read(ctx, storageKey)
	legacy := false
	if !found {
		storageKey = d.LegacyKey(key)
		raw, found = d.read(ctx, storageKey)
		legacy = found
	}
	if !found {
		d.misses.Add(1)
		return Entry[json.RawMessage]{}, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		d.logger.Debugf("durable cache %s: dropping corrupt entry %s: %v", d.namespace, storageKey, err)
		d.remove(ctx, storageKey)
		d.misses.Add(1)
		return Entry[json.RawMessage]{}, false
	}

	expiresAt := time.UnixMilli(env.ExpiresAt)
	if d.now().After(expiresAt) {
		d.remove(ctx, d.VersionedKey(key))
		d.remove(ctx, d.LegacyKey(key))
		d.misses.Add(1)
		return Entry[json.RawMessage]{}, false
	}

	if legacy {
		if res := d.migrate(ctx, key, raw, expiresAt); res.Err != nil {
			d.logger.Warnf("durable cache %s: migrating %s: %v", d.namespace, key, res.Err)
		}
	}

	d.hits.Add(1)
	return Entry[json.RawMessage]{Value: env.Data, ExpiresAt: expiresAt}, true
}

// Migrate moves a legacy entry for key to its versioned key and removes the
// legacy one. Nothing happens when there is no legacy entry, so calling it
// twice is safe.
func (d *DurableCache) Migrate(ctx context.Context, key string) MigrationResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, found, err := d.storage.GetItem(ctx, d.LegacyKey(key))
	if err != nil {
		return MigrationResult{Err: fmt.Errorf("read legacy key: %w", err)}
	}
	if !found {
		return MigrationResult{}
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		d.remove(ctx, d.LegacyKey(key))
		return MigrationResult{Err: fmt.Errorf("legacy entry: %w", err)}
	}
	return d.migrate(ctx, key, raw, time.UnixMilli(env.ExpiresAt))
}

// migrate expects d.mu held.
func (d *DurableCache) migrate(ctx context.Context, key, raw string, expiresAt time.Time) MigrationResult {
	if err := d.write(ctx, d.VersionedKey(key), raw, expiresAt); err != nil {
		d.recordWriteFailure()
		return MigrationResult{Err: fmt.Errorf("write versioned key: %w", err)}
	}
	d.recordWriteSuccess()
	if err := d.storage.RemoveItem(ctx, d.LegacyKey(key)); err != nil {
		return MigrationResult{Migrated: true, Err: fmt.Errorf("remove legacy key: %w", err)}
	}
	d.migrations.Add(1)
	return MigrationResult{Migrated: true}
}

// Set stores value for ttl (DefaultTTL when ttl is not positive).
func (d *DurableCache) Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) WriteResult {
	if ttl <= 0 {
		ttl = d.defaultTTL
	}
	return d.SetUntil(ctx, key, value, d.now().Add(ttl))
}

// SetUntil stores value with an absolute expiry.
func (d *DurableCache) SetUntil(ctx context.Context, key string, value json.RawMessage, expiresAt time.Time) WriteResult {
	raw, err := json.Marshal(envelope{Data: value, ExpiresAt: expiresAt.UnixMilli()})
	if err != nil {
		d.writeFailures.Add(1)
		return WriteResult{Err: fmt.Errorf("encode envelope: %w", err)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write(ctx, d.VersionedKey(key), string(raw), expiresAt); err != nil {
		d.recordWriteFailure()
		d.logger.Warnf("durable cache %s: write %s failed: %v", d.namespace, key, err)
		return WriteResult{Err: err}
	}
	d.recordWriteSuccess()
	return WriteResult{Stored: true}
}

// Remove deletes both the versioned and the legacy entry for key.
func (d *DurableCache) Remove(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(ctx, d.VersionedKey(key))
	d.remove(ctx, d.LegacyKey(key))
}

// Invalidate is Remove.
func (d *DurableCache) Invalidate(ctx context.Context, key string) {
	d.Remove(ctx, key)
}

// InvalidateMatching removes every entry in the namespace whose cache key is
// accepted by match, whatever version wrote it.
func (d *DurableCache) InvalidateMatching(ctx context.Context, match common.Matcher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys, ok := d.keys(ctx)
	if !ok {
		return
	}
	for _, storageKey := range keys {
		if match(d.cacheKey(storageKey)) {
			d.remove(ctx, storageKey)
		}
	}
}

// InvalidatePattern removes every entry whose cache key matches re.
func (d *DurableCache) InvalidatePattern(ctx context.Context, re *regexp.Regexp) {
	d.InvalidateMatching(ctx, common.MatchRegexp(re))
}

// InvalidatePrefix removes every entry whose cache key starts with prefix.
func (d *DurableCache) InvalidatePrefix(ctx context.Context, prefix string) {
	d.InvalidateMatching(ctx, common.MatchPrefix(prefix))
}

// Clear removes every storage key in the namespace. Other namespaces sharing
// the storage are untouched.
func (d *DurableCache) Clear(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys, ok := d.keys(ctx)
	if !ok {
		return
	}
	for _, storageKey := range keys {
		d.remove(ctx, storageKey)
	}
}

// Prune removes expired and unreadable envelopes in the namespace and returns
// how many were removed.
func (d *DurableCache) Prune(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys, err := d.storage.Keys(ctx, d.prefix())
	if err != nil {
		return 0, fmt.Errorf("list %s keys: %w", d.namespace, err)
	}
	now := d.now()
	removed := 0
	for _, storageKey := range keys {
		raw, found, err := d.storage.GetItem(ctx, storageKey)
		if err != nil {
			return removed, fmt.Errorf("read %s: %w", storageKey, err)
		}
		if !found {
			continue
		}
		env, err := decodeEnvelope(raw)
		if err == nil && !now.After(time.UnixMilli(env.ExpiresAt)) {
			continue
		}
		if err := d.storage.RemoveItem(ctx, storageKey); err != nil {
			return removed, fmt.Errorf("remove %s: %w", storageKey, err)
		}
		removed++
	}
	return removed, nil
}

// Degraded reports whether the last few writes all failed, e.g. because the
// storage is full or disabled. One successful write clears it.
func (d *DurableCache) Degraded() bool {
	return d.consecutiveFailures.Load() >= degradedAfter
}

// Stats returns a snapshot of the tier's counters.
func (d *DurableCache) Stats() DurableStats {
	return DurableStats{
		Hits:          d.hits.Load(),
		Misses:        d.misses.Load(),
		Writes:        d.writes.Load(),
		WriteFailures: d.writeFailures.Load(),
		ReadFailures:  d.readFailures.Load(),
		Migrations:    d.migrations.Load(),
	}
}

// Namespace returns the storage namespace of the tier.
func (d *DurableCache) Namespace() string {
	return d.namespace
}

func (d *DurableCache) read(ctx context.Context, storageKey string) (string, bool) {
	raw, found, err := d.storage.GetItem(ctx, storageKey)
	if err != nil {
		d.readFailures.Add(1)
		d.logger.Warnf("durable cache %s: read %s failed: %v", d.namespace, storageKey, err)
		return "", false
	}
	return raw, found
}

// write hands the expiry to storages that can evict on their own.
func (d *DurableCache) write(ctx context.Context, storageKey, raw string, expiresAt time.Time) error {
	if es, ok := d.storage.(ExpiringStorage); ok {
		if ttl := expiresAt.Sub(d.now()); ttl > 0 {
			return es.SetItemTTL(ctx, storageKey, raw, ttl)
		}
	}
	return d.storage.SetItem(ctx, storageKey, raw)
}

func (d *DurableCache) remove(ctx context.Context, storageKey string) {
	if err := d.storage.RemoveItem(ctx, storageKey); err != nil {
		d.logger.Warnf("durable cache %s: remove %s failed: %v", d.namespace, storageKey, err)
	}
}

func (d *DurableCache) keys(ctx context.Context) ([]string, bool) {
	keys, err := d.storage.Keys(ctx, d.prefix())
	if err != nil {
		d.logger.Warnf("durable cache %s: listing keys failed: %v", d.namespace, err)
		return nil, false
	}
	return keys, true
}

func (d *DurableCache) recordWriteFailure() {
	d.writeFailures.Add(1)
	d.consecutiveFailures.Add(1)
}

func (d *DurableCache) recordWriteSuccess() {
	d.writes.Add(1)
	d.consecutiveFailures.Store(0)
}

var errNoData = errors.New("envelope has no data")

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, err
	}
	if len(env.Data) == 0 {
		return envelope{}, errNoData
	}
	return env, nil
}
