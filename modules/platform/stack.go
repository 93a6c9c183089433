package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/guarzo/platformapi/common"
	"github.com/guarzo/platformapi/modules/cache"
	"github.com/guarzo/platformapi/modules/dedup"
	"github.com/guarzo/platformapi/modules/invalidate"
)

// Stack is every long-lived piece of the client, built once at startup and
// shared by whatever runs in the process.
type Stack struct {
	Config     common.Config
	HTTP       common.HttpClient
	Stores     Stores
	Drafts     *cache.DraftStore
	Invalidate *invalidate.Registry
	Client     Client
	Service    PlatformService

	storages []cache.Storage
}

// NewStack wires the stack from cfg. The session tier uses Redis when
// SessionRedisURL is set, the persistent tier uses SQLite when PersistentPath
// is set; either falls back to process memory.
func NewStack(ctx context.Context, cfg common.Config, logger common.Logger) (*Stack, error) {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	s := &Stack{Config: cfg}

	sessionStorage, err := s.openSession(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	persistentStorage, err := s.openPersistent(cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	httpClient, err := common.NewPlatformHttpClient(cfg.UserAgent, &http.Client{}, cfg.HTTPTimeout)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.HTTP = httpClient

	opts := []cache.Option{cache.WithLogger(logger)}
	s.Stores = Stores{
		Entry:      cache.NewEntryCache[json.RawMessage](cfg.DefaultCacheTTL, opts...),
		Session:    cache.NewDurableCache(sessionStorage, cache.NamespaceCache, cfg.CacheVersion, cfg.DefaultCacheTTL, opts...),
		Persistent: cache.NewDurableCache(persistentStorage, cache.NamespaceCache, cfg.CacheVersion, cfg.DefaultCacheTTL, opts...),
		Inflight:   dedup.NewGroup(),
	}
	s.Drafts = cache.NewDraftStore(persistentStorage, cfg.CacheVersion, opts...)
	s.Invalidate = invalidate.NewRegistry(logger, s.Stores.Entry, s.Stores.Session, s.Stores.Persistent)

	client, err := NewClient(cfg.BaseURL, httpClient, s.Stores, common.StaticTokenSource(cfg.AccessToken), logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Client = client
	s.Service = NewPlatformService(client, s.Invalidate, s.Drafts, logger)

	logger.Debugf("platform stack ready: base=%s version=%s", cfg.BaseURL, cfg.CacheVersion)
	return s, nil
}

func (s *Stack) openSession(ctx context.Context, cfg common.Config, logger common.Logger) (cache.Storage, error) {
	if cfg.SessionRedisURL == "" {
		st := cache.NewMemoryStorage()
		s.storages = append(s.storages, st)
		return st, nil
	}
	st, err := cache.OpenRedisStorage(ctx, cfg.SessionRedisURL)
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}
	logger.Infof("session cache backed by redis")
	s.storages = append(s.storages, st)
	return st, nil
}

func (s *Stack) openPersistent(cfg common.Config, logger common.Logger) (cache.Storage, error) {
	if cfg.PersistentPath == "" {
		logger.Warnf("PLATFORM_CACHE_PATH not set, persistent cache will not survive restarts")
		st := cache.NewMemoryStorage()
		s.storages = append(s.storages, st)
		return st, nil
	}
	st, err := cache.OpenSQLiteStorage(cfg.PersistentPath)
	if err != nil {
		return nil, fmt.Errorf("open persistent storage: %w", err)
	}
	logger.Infof("persistent cache at %s", cfg.PersistentPath)
	s.storages = append(s.storages, st)
	return st, nil
}

// Prune drops expired envelopes from both durable tiers and the drafts.
func (s *Stack) Prune(ctx context.Context) (int, error) {
	total := 0
	for _, prune := range []func(context.Context) (int, error){
		s.Stores.Session.Prune,
		s.Stores.Persistent.Prune,
		s.Drafts.Prune,
	} {
		n, err := prune(ctx)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close releases the storage backends and idle connections.
func (s *Stack) Close() error {
	var errs []error
	for _, st := range s.storages {
		if err := st.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.storages = nil
	if s.HTTP != nil {
		s.HTTP.CloseIdleConnections()
	}
	return errors.Join(errs...)
}
