package standings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/standings"
)

type mockStandingsClient struct {
	pageFunc func(ctx context.Context, contestID int64, page int, running bool) ([]model.StandingRow, error)
	removed  []int64
}

func (m *mockStandingsClient) GetPage(ctx context.Context, contestID int64, page int, running bool) ([]model.StandingRow, error) {
	return m.pageFunc(ctx, contestID, page, running)
}
func (m *mockStandingsClient) RemoveContest(_ context.Context, contestID int64) {
	m.removed = append(m.removed, contestID)
}
func (m *mockStandingsClient) BuildCacheKey(int64, int) string { return "dummyKey" }

type mockContests struct {
	contest model.Contest
	err     error
}

func (m *mockContests) GetContest(context.Context, int64) (*model.Contest, error) {
	if m.err != nil {
		return nil, m.err
	}
	c := m.contest
	return &c, nil
}

func finishedContest() model.Contest {
	now := time.Now()
	return model.Contest{ID: 1, StartsAt: now.Add(-48 * time.Hour), EndsAt: now.Add(-24 * time.Hour)}
}

func TestStandingsService_GetStandings(t *testing.T) {
	calls := 0
	var sawRunning bool
	mockClient := &mockStandingsClient{
		pageFunc: func(ctx context.Context, contestID int64, page int, running bool) ([]model.StandingRow, error) {
			calls++
			sawRunning = running
			switch page {
			case 1:
				return []model.StandingRow{{UserID: 10, Rank: 2}, {UserID: 11, Rank: 1}}, nil
			case 2:
				// user 11 slid onto page 2 while paging
				return []model.StandingRow{{UserID: 11, Rank: 3}, {UserID: 12, Rank: 4}}, nil
			}
			return nil, nil
		},
	}

	svc := standings.NewStandingsService(mockClient, &mockContests{contest: finishedContest()}, nil)
	rows, err := svc.GetStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// pages 1 and 2 plus the empty page 3
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if sawRunning {
		t.Error("finished contest must not be fetched as running")
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].UserID != 11 || rows[1].UserID != 10 || rows[2].UserID != 12 {
		t.Errorf("unexpected order %+v", rows)
	}
}

func TestStandingsService_RunningContest(t *testing.T) {
	now := time.Now()
	running := model.Contest{ID: 2, StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	var sawRunning bool
	mockClient := &mockStandingsClient{
		pageFunc: func(_ context.Context, _ int64, page int, r bool) ([]model.StandingRow, error) {
			sawRunning = r
			return nil, nil
		},
	}
	svc := standings.NewStandingsService(mockClient, &mockContests{contest: running}, nil)
	rows, err := svc.GetStandings(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
	if !sawRunning {
		t.Error("expected running contest pages to be fetched as running")
	}
}

func TestStandingsService_PageErrorStops(t *testing.T) {
	boom := errors.New("boom")
	mockClient := &mockStandingsClient{
		pageFunc: func(_ context.Context, _ int64, page int, _ bool) ([]model.StandingRow, error) {
			if page == 2 {
				return nil, boom
			}
			return []model.StandingRow{{UserID: int64(page)}}, nil
		},
	}
	svc := standings.NewStandingsService(mockClient, &mockContests{contest: finishedContest()}, nil)
	if _, err := svc.GetStandings(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("expected page error, got %v", err)
	}
}

func TestStandingsService_StopsAtMaxPages(t *testing.T) {
	calls := 0
	mockClient := &mockStandingsClient{
		pageFunc: func(_ context.Context, _ int64, page int, _ bool) ([]model.StandingRow, error) {
			calls++
			return []model.StandingRow{{UserID: int64(page), Rank: page}}, nil
		},
	}
	svc := standings.NewStandingsService(mockClient, &mockContests{contest: finishedContest()}, nil)
	rows, err := svc.GetStandings(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 100 || len(rows) != 100 {
		t.Errorf("expected paging to stop at 100 pages, got %d calls and %d rows", calls, len(rows))
	}
}

func TestStandingsService_Refresh(t *testing.T) {
	mockClient := &mockStandingsClient{
		pageFunc: func(context.Context, int64, int, bool) ([]model.StandingRow, error) { return nil, nil },
	}
	svc := standings.NewStandingsService(mockClient, &mockContests{contest: finishedContest()}, nil)
	if _, err := svc.Refresh(context.Background(), 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mockClient.removed) != 1 || mockClient.removed[0] != 7 {
		t.Errorf("expected contest 7 invalidated, got %v", mockClient.removed)
	}
}

func TestStandingsService_ContestLookupError(t *testing.T) {
	svc := standings.NewStandingsService(&mockStandingsClient{}, &mockContests{err: errors.New("not found")}, nil)
	if _, err := svc.GetStandings(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}
