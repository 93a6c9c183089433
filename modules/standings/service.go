package standings

import (
	"context"
	"sort"
	"time"

	"github.com/guarzo/platformapi/common"
	"github.com/guarzo/platformapi/common/model"
)

// maxPages bounds how far a scoreboard is paged.
const maxPages = 100

// ContestSource looks up the contest a scoreboard belongs to.
type ContestSource interface {
	GetContest(ctx context.Context, id int64) (*model.Contest, error)
}

// StandingsService assembles full scoreboards from pages.
type StandingsService interface {
	GetStandings(ctx context.Context, contestID int64) ([]model.StandingRow, error)
	Refresh(ctx context.Context, contestID int64) ([]model.StandingRow, error)
}

type standingsService struct {
	StandingsClient
	contests ContestSource
	logger   common.Logger
	now      func() time.Time
}

// NewStandingsService constructs a StandingsService.
func NewStandingsService(client StandingsClient, contests ContestSource, logger common.Logger) StandingsService {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	return &standingsService{
		StandingsClient: client,
		contests:        contests,
		logger:          logger,
		now:             time.Now,
	}
}

// GetStandings pages through the scoreboard until an empty page and returns
// the rows ordered by rank, one per user.
func (svc *standingsService) GetStandings(ctx context.Context, contestID int64) ([]model.StandingRow, error) {
	contest, err := svc.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	running := contest.Running(svc.now())

	var rows []model.StandingRow
	seen := make(map[int64]bool)
	for page := 1; page <= maxPages; page++ {
		batch, err := svc.GetPage(ctx, contestID, page, running)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		rows = mergeRows(rows, batch, seen)
		if page == maxPages {
			svc.logger.Warnf("standings for contest %d truncated at %d pages", contestID, maxPages)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
	return rows, nil
}

// Refresh drops the cached pages of the contest and fetches them again.
func (svc *standingsService) Refresh(ctx context.Context, contestID int64) ([]model.StandingRow, error) {
	svc.RemoveContest(ctx, contestID)
	return svc.GetStandings(ctx, contestID)
}

// mergeRows appends batch to rows, skipping users already seen. Rows shift
// between pages while a contest runs, so a user can show up twice.
func mergeRows(rows, batch []model.StandingRow, seen map[int64]bool) []model.StandingRow {
	for _, r := range batch {
		if seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		rows = append(rows, r)
	}
	return rows
}
