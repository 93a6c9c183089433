package platform

import (
	"context"
	"fmt"

	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/cache"
)

// ListContests returns the first limit contests.
func (s *platformService) ListContests(ctx context.Context, limit int) (*model.Page[model.Contest], error) {
	endpoint := fmt.Sprintf("contests?limit=%d", limit)
	var page model.Page[model.Contest]
	if err := s.client.GetJSON(ctx, endpoint, &page, CacheFor(contestListTTL)); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetContest fetches one contest, cached under "contest:<id>".
func (s *platformService) GetContest(ctx context.Context, id int64) (*model.Contest, error) {
	endpoint := fmt.Sprintf("contests/%d", id)
	policy := CacheFor(contestTTL).WithKey(cache.ResourceKey("contest", id))
	var contest model.Contest
	if err := s.client.GetJSON(ctx, endpoint, &contest, policy); err != nil {
		return nil, err
	}
	return &contest, nil
}
