package standings

import (
	"context"
	"fmt"
	"time"

	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/invalidate"
	"github.com/guarzo/platformapi/modules/platform"
)

// Scoreboards of running contests move, finished ones never change again.
const (
	runningPageTTL  = 30 * time.Second
	finishedPageTTL = 30 * 24 * time.Hour
)

// StandingsClient fetches single scoreboard pages through the cached client.
type StandingsClient interface {
	GetPage(ctx context.Context, contestID int64, page int, running bool) ([]model.StandingRow, error)
	RemoveContest(ctx context.Context, contestID int64)
	BuildCacheKey(contestID int64, page int) string
}

type standingsClient struct {
	client     platform.Client
	invalidate *invalidate.Registry
}

// NewStandingsClient constructs a StandingsClient. registry may be nil when
// nothing needs RemoveContest.
func NewStandingsClient(client platform.Client, registry *invalidate.Registry) StandingsClient {
	if registry == nil {
		registry = invalidate.NewRegistry(nil)
	}
	return &standingsClient{
		client:     client,
		invalidate: registry,
	}
}

// BuildCacheKey is "standings:<contest>:<page>".
func (sc *standingsClient) BuildCacheKey(contestID int64, page int) string {
	return fmt.Sprintf("standings:%d:%d", contestID, page)
}

// RemoveContest drops every cached page of one contest.
func (sc *standingsClient) RemoveContest(ctx context.Context, contestID int64) {
	sc.invalidate.Prefix(ctx, fmt.Sprintf("standings:%d:", contestID))
}

// GetPage fetches one page. Pages of a running contest live briefly in the
// session tier; pages of a finished contest go to the persistent tier.
func (sc *standingsClient) GetPage(ctx context.Context, contestID int64, page int, running bool) ([]model.StandingRow, error) {
	endpoint := fmt.Sprintf("contests/%d/standings?page=%d", contestID, page)

	policy := platform.PersistFor(finishedPageTTL)
	if running {
		policy = platform.CacheFor(runningPageTTL)
	}
	policy = policy.WithKey(sc.BuildCacheKey(contestID, page))

	var rows []model.StandingRow
	if err := sc.client.GetJSON(ctx, endpoint, &rows, policy); err != nil {
		return nil, fmt.Errorf("standings page %d of contest %d: %w", page, contestID, err)
	}
	return rows, nil
}
