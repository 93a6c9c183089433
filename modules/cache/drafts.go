package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DraftTTL is how long an unsubmitted form draft is kept.
const DraftTTL = 7 * 24 * time.Hour

// DraftStore keeps unsubmitted form input in the "draft" namespace, next to
// but separate from cached responses.
type DraftStore struct {
	cache *DurableCache
}

// NewDraftStore creates a draft store over storage.
func NewDraftStore(storage Storage, version string, opts ...Option) *DraftStore {
	return &DraftStore{cache: NewDurableCache(storage, NamespaceDraft, version, DraftTTL, opts...)}
}

// Save stores draft for formID, replacing any earlier draft.
func (s *DraftStore) Save(ctx context.Context, formID string, draft any) WriteResult {
	data, err := json.Marshal(draft)
	if err != nil {
		return WriteResult{Err: fmt.Errorf("encode draft: %w", err)}
	}
	return s.cache.Set(ctx, formID, data, DraftTTL)
}

// Load decodes the draft for formID into out. It reports false when there is
// no usable draft.
func (s *DraftStore) Load(ctx context.Context, formID string, out any) bool {
	ent, ok := s.cache.Get(ctx, formID)
	if !ok {
		return false
	}
	if err := json.Unmarshal(ent.Value, out); err != nil {
		s.cache.Remove(ctx, formID)
		return false
	}
	return true
}

// Discard drops the draft for formID, typically after the form was submitted.
func (s *DraftStore) Discard(ctx context.Context, formID string) {
	s.cache.Remove(ctx, formID)
}

// Clear drops every draft.
func (s *DraftStore) Clear(ctx context.Context) {
	s.cache.Clear(ctx)
}

// Prune removes expired drafts.
func (s *DraftStore) Prune(ctx context.Context) (int, error) {
	return s.cache.Prune(ctx)
}
