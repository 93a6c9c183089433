package platform

import (
	"context"
	"fmt"

	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/cache"
)

// GetTeam fetches one team, cached under "team:<id>".
func (s *platformService) GetTeam(ctx context.Context, id int64) (*model.Team, error) {
	endpoint := fmt.Sprintf("teams/%d", id)
	policy := CacheFor(teamTTL).WithKey(cache.ResourceKey("team", id))
	var team model.Team
	if err := s.client.GetJSON(ctx, endpoint, &team, policy); err != nil {
		return nil, err
	}
	return &team, nil
}

// CreateTeam creates a team, drops cached team views and discards the form
// draft.
func (s *platformService) CreateTeam(ctx context.Context, input model.TeamInput) (*model.Team, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	var team model.Team
	if err := s.client.PostJSON(ctx, "teams", input, &team); err != nil {
		return nil, err
	}
	s.invalidate.Teams(ctx)
	if s.drafts != nil {
		s.drafts.Discard(ctx, teamDraftForm)
	}
	return &team, nil
}

// SaveTeamDraft keeps unsubmitted create-team input. The write is best
// effort; the result says whether it landed.
func (s *platformService) SaveTeamDraft(ctx context.Context, input model.TeamInput) cache.WriteResult {
	if s.drafts == nil {
		return cache.WriteResult{Err: cache.ErrStorageDisabled}
	}
	return s.drafts.Save(ctx, teamDraftForm, input)
}

// LoadTeamDraft returns the saved create-team input, if any.
func (s *platformService) LoadTeamDraft(ctx context.Context) (model.TeamInput, bool) {
	var input model.TeamInput
	if s.drafts == nil {
		return input, false
	}
	ok := s.drafts.Load(ctx, teamDraftForm, &input)
	return input, ok
}
