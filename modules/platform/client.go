package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/guarzo/platformapi/common"
	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/cache"
	"github.com/guarzo/platformapi/modules/dedup"
)

// CSRF cookie and header names agreed with the API.
const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
)

// Client is the single path every platform HTTP call goes through.
// Reads may be served from the cache tiers and are deduplicated; mutations
// always hit the network and never touch the caches. Callers that mutate are
// expected to invalidate what they changed.
type Client interface {
	GetJSON(ctx context.Context, endpoint string, out interface{}, policy *CachePolicy) error
	GetBytes(ctx context.Context, endpoint string, policy *CachePolicy) ([]byte, error)
	PostJSON(ctx context.Context, endpoint string, body, out interface{}) error
	PutJSON(ctx context.Context, endpoint string, body, out interface{}) error
	PatchJSON(ctx context.Context, endpoint string, body, out interface{}) error
	DeleteJSON(ctx context.Context, endpoint string, body, out interface{}) error
	DoRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error)
	Stats() Stats
}

// Tier selects which durable cache a read is persisted to.
type Tier int

const (
	// TierSession lives as long as the session store (process or shared Redis).
	TierSession Tier = iota
	// TierPersistent survives restarts.
	TierPersistent
)

// CachePolicy controls caching for one read. A nil policy means no caching;
// the read is still deduplicated.
type CachePolicy struct {
	UseCache bool
	TTL      time.Duration // zero means each tier's default
	Key      string        // overrides the key derived from the endpoint
	Tier     Tier
}

// CacheFor caches in the session tier for ttl.
func CacheFor(ttl time.Duration) *CachePolicy {
	return &CachePolicy{UseCache: true, TTL: ttl}
}

// PersistFor caches in the persistent tier for ttl.
func PersistFor(ttl time.Duration) *CachePolicy {
	return &CachePolicy{UseCache: true, TTL: ttl, Tier: TierPersistent}
}

// WithKey returns a copy of p using key instead of the derived one.
func (p *CachePolicy) WithKey(key string) *CachePolicy {
	cp := *p
	cp.Key = key
	return &cp
}

// Stores are the process-wide cache singletons the client reads through.
// Nil members are replaced with private in-memory instances.
type Stores struct {
	Entry      *cache.EntryCache[json.RawMessage]
	Session    *cache.DurableCache
	Persistent *cache.DurableCache
	Inflight   *dedup.Group
}

// Stats counts what the client has done.
type Stats struct {
	NetworkCalls int64
	Successes    int64
	NotFound     int64
	Failures     int64
	EntryHits    int64
	DurableHits  int64
	SharedCalls  int64
}

type platformClient struct {
	baseURL    string
	httpClient common.HttpClient
	stores     Stores
	tokens     common.TokenSource
	logger     common.Logger

	totalCalls, successCount, notFoundCount, failCount atomic.Int64
	entryHits, durableHits, sharedCalls                atomic.Int64
}

// NewClient creates a Client for the API at baseURL. tokens may be nil.
func NewClient(baseURL string, httpClient common.HttpClient, stores Stores, tokens common.TokenSource, logger common.Logger) (Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	if logger == nil {
		logger = common.DiscardLogger()
	}
	if stores.Entry == nil {
		stores.Entry = cache.NewEntryCache[json.RawMessage](cache.DefaultTTL)
	}
	if stores.Session == nil {
		stores.Session = cache.NewDurableCache(cache.NewMemoryStorage(), cache.NamespaceCache, "local", cache.DefaultTTL)
	}
	if stores.Persistent == nil {
		stores.Persistent = cache.NewDurableCache(cache.NewMemoryStorage(), cache.NamespaceCache, "local", cache.DefaultTTL)
	}
	if stores.Inflight == nil {
		stores.Inflight = dedup.NewGroup()
	}

	return &platformClient{
		baseURL:    strings.TrimRight(base.String(), "/"),
		httpClient: httpClient,
		stores:     stores,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// ---------------------------------------------------
// Reads
// ---------------------------------------------------

// GetJSON reads endpoint and unmarshals the body into out.
func (c *platformClient) GetJSON(ctx context.Context, endpoint string, out interface{}, policy *CachePolicy) error {
	data, err := c.get(ctx, endpoint, policy)
	if err != nil {
		return err
	}
	return c.decode(endpoint, data, out)
}

// GetBytes reads endpoint and returns the raw JSON body.
func (c *platformClient) GetBytes(ctx context.Context, endpoint string, policy *CachePolicy) ([]byte, error) {
	data, err := c.get(ctx, endpoint, policy)
	if err != nil {
		return nil, err
	}
	// cached and shared slices must not be handed out for mutation
	return bytes.Clone(data), nil
}

func (c *platformClient) get(ctx context.Context, endpoint string, policy *CachePolicy) (json.RawMessage, error) {
	key := cache.EndpointKey(c.relativeEndpoint(endpoint))
	if policy != nil && policy.Key != "" {
		key = policy.Key
	}
	useCache := policy != nil && policy.UseCache

	if useCache {
		if data, ok := c.lookup(ctx, key, policy.Tier); ok {
			return data, nil
		}
	}

	urlStr, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}

	// The shared call must not die with whichever caller happened to start
	// it, and it still fills the cache when every caller has gone away.
	fetchCtx := context.WithoutCancel(ctx)
	res, shared, err := dedup.Do(c.stores.Inflight, key, func() (flightResult, error) {
		return c.fetch(fetchCtx, urlStr, key, useCache, policy)
	})
	if shared {
		c.sharedCalls.Add(1)
	}
	if err != nil {
		return nil, err
	}
	// A caching read that joined a flight started without caching, or for
	// another tier, stores the result itself.
	if useCache && res.data != nil && (!res.cached || res.tier != policy.Tier) {
		c.store(fetchCtx, key, res.data, policy)
	}
	return res.data, nil
}

// flightResult is what one shared GET hands to every caller that joined it.
type flightResult struct {
	data   json.RawMessage
	cached bool
	tier   Tier
}

// relativeEndpoint strips the client's own base URL so that the absolute and
// relative spelling of one endpoint share a cache key.
func (c *platformClient) relativeEndpoint(endpoint string) string {
	if rest, ok := strings.CutPrefix(endpoint, c.baseURL+"/"); ok {
		return "/" + rest
	}
	return endpoint
}

// lookup checks the entry tier, then the durable tier, promoting durable hits.
func (c *platformClient) lookup(ctx context.Context, key string, tier Tier) (json.RawMessage, bool) {
	if data, ok := c.stores.Entry.Get(key); ok {
		c.entryHits.Add(1)
		c.logger.Debugf("cache hit (entry) %s", key)
		return data, true
	}
	ent, ok := c.durable(tier).Get(ctx, key)
	if !ok {
		return nil, false
	}
	c.stores.Entry.SetUntil(key, ent.Value, ent.ExpiresAt)
	c.durableHits.Add(1)
	c.logger.Debugf("cache hit (durable) %s", key)
	return ent.Value, true
}

func (c *platformClient) fetch(ctx context.Context, urlStr, key string, useCache bool, policy *CachePolicy) (flightResult, error) {
	// A flight that settled between our lookup and Join has already filled
	// the entry tier.
	if useCache {
		if data, ok := c.stores.Entry.Get(key); ok {
			c.entryHits.Add(1)
			return flightResult{data: data, cached: true, tier: policy.Tier}, nil
		}
	}

	data, err := c.DoRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return flightResult{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return flightResult{}, nil
	}
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return flightResult{}, &ParseError{URL: urlStr, Err: err}
	}

	if !useCache {
		return flightResult{data: raw}, nil
	}
	c.store(ctx, key, raw, policy)
	return flightResult{data: raw, cached: true, tier: policy.Tier}, nil
}

// store writes data to the entry tier and the policy's durable tier. A zero
// TTL falls through to each tier's default.
func (c *platformClient) store(ctx context.Context, key string, data json.RawMessage, policy *CachePolicy) {
	c.stores.Entry.Set(key, data, policy.TTL)
	c.durable(policy.Tier).Set(ctx, key, data, policy.TTL)
}

func (c *platformClient) durable(tier Tier) *cache.DurableCache {
	if tier == TierPersistent {
		return c.stores.Persistent
	}
	return c.stores.Session
}

// ---------------------------------------------------
// Mutations
// ---------------------------------------------------

// PostJSON sends body as JSON and decodes the response into out (if non-nil).
func (c *platformClient) PostJSON(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPost, endpoint, body, out)
}

// PutJSON replaces the resource at endpoint.
func (c *platformClient) PutJSON(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPut, endpoint, body, out)
}

// PatchJSON partially updates the resource at endpoint.
func (c *platformClient) PatchJSON(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.sendJSON(ctx, http.MethodPatch, endpoint, body, out)
}

// DeleteJSON deletes the resource at endpoint; body may be nil.
func (c *platformClient) DeleteJSON(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.sendJSON(ctx, http.MethodDelete, endpoint, body, out)
}

func (c *platformClient) sendJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	data, err := c.DoRequest(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	return c.decode(endpoint, data, out)
}

// ---------------------------------------------------
// Transport
// ---------------------------------------------------

// DoRequest performs one HTTP request against endpoint (relative to the base
// URL, or absolute) and returns the body of a 2xx response. It never
// consults the caches.
func (c *platformClient) DoRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	urlStr, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if !isSafeMethod(method) {
		if token := c.csrfToken(req.URL); token != "" {
			req.Header.Set(csrfHeaderName, token)
		}
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain access token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	c.totalCalls.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failCount.Add(1)
		c.logger.Debugf("%s %s failed: %v", method, urlStr, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.successCount.Add(1)
	case resp.StatusCode == http.StatusNotFound:
		c.notFoundCount.Add(1)
		return nil, common.NewAPIError(resp.StatusCode, data)
	default:
		c.failCount.Add(1)
		return nil, common.NewAPIError(resp.StatusCode, data)
	}

	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}
	return data, nil
}

// Stats returns a snapshot of the client's counters.
func (c *platformClient) Stats() Stats {
	return Stats{
		NetworkCalls: c.totalCalls.Load(),
		Successes:    c.successCount.Load(),
		NotFound:     c.notFoundCount.Load(),
		Failures:     c.failCount.Load(),
		EntryHits:    c.entryHits.Load(),
		DurableHits:  c.durableHits.Load(),
		SharedCalls:  c.sharedCalls.Load(),
	}
}

// buildURL joins the base URL and endpoint; absolute endpoints pass through.
func (c *platformClient) buildURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.IsAbs() {
		return endpoint, nil
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/"), nil
}

func (c *platformClient) csrfToken(u *url.URL) string {
	for _, cookie := range c.httpClient.Cookies(u) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *platformClient) decode(endpoint string, data []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := model.JSONUnmarshal(data, out); err != nil {
		return &ParseError{URL: endpoint, Err: err}
	}
	return nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
