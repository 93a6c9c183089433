package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrQuotaExceeded is returned by a storage that has no room for a write.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrStorageDisabled is returned by a storage that refuses all access.
	ErrStorageDisabled = errors.New("storage disabled")
)

// Storage is a string key/value store that durable tiers serialize into.
// GetItem reports a missing key as ("", false, nil); errors are reserved
// for the backend itself failing.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// ExpiringStorage is a Storage that can drop an item by itself once its
// envelope has expired. Durable tiers use SetItemTTL when the backend offers it.
type ExpiringStorage interface {
	Storage
	SetItemTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// MemoryStorage keeps items for the life of the process. It backs the session
// tier when no shared store is configured.
type MemoryStorage struct {
	mu       sync.RWMutex
	items    map[string]string
	quota    int
	used     int
	disabled bool
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

// SetQuota caps the bytes (keys plus values) the storage accepts; 0 removes
// the cap.
func (m *MemoryStorage) SetQuota(bytes int) {
	m.mu.Lock()
	m.quota = bytes
	m.mu.Unlock()
}

// SetDisabled makes every call fail with ErrStorageDisabled.
func (m *MemoryStorage) SetDisabled(disabled bool) {
	m.mu.Lock()
	m.disabled = disabled
	m.mu.Unlock()
}

func (m *MemoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return "", false, ErrStorageDisabled
	}
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrStorageDisabled
	}

	used := m.used + len(key) + len(value)
	if old, ok := m.items[key]; ok {
		used -= len(key) + len(old)
	}
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}
	m.items[key] = value
	m.used = used
	return nil
}

func (m *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrStorageDisabled
	}
	if old, ok := m.items[key]; ok {
		m.used -= len(key) + len(old)
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.disabled {
		return nil, ErrStorageDisabled
	}
	var keys []string
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
