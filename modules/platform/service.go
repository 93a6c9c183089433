package platform

import (
	"context"
	"time"

	"github.com/guarzo/platformapi/common"
	"github.com/guarzo/platformapi/common/model"
	"github.com/guarzo/platformapi/modules/cache"
	"github.com/guarzo/platformapi/modules/invalidate"
)

// Cache lifetimes per resource.
const (
	contestListTTL = 2 * time.Minute
	contestTTL     = 5 * time.Minute
	courseTTL      = 10 * time.Minute
	mentorTTL      = time.Hour
	teamTTL        = 5 * time.Minute
	statsTTL       = time.Minute
)

// teamDraftForm is the draft slot for the create-team form.
const teamDraftForm = "team-create"

// PlatformService is the typed API views call into.
type PlatformService interface {
	ListContests(ctx context.Context, limit int) (*model.Page[model.Contest], error)
	GetContest(ctx context.Context, id int64) (*model.Contest, error)

	ListCourses(ctx context.Context, limit int) (*model.Page[model.Course], error)
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	UpdateCourse(ctx context.Context, id int64, input model.CourseUpdate) (*model.Course, error)
	ListMentors(ctx context.Context) ([]model.Mentor, error)

	GetTeam(ctx context.Context, id int64) (*model.Team, error)
	CreateTeam(ctx context.Context, input model.TeamInput) (*model.Team, error)
	SaveTeamDraft(ctx context.Context, input model.TeamInput) cache.WriteResult
	LoadTeamDraft(ctx context.Context) (model.TeamInput, bool)

	GetStats(ctx context.Context) (*model.Stats, error)
	Logout(ctx context.Context) error
}

type platformService struct {
	client     Client
	invalidate *invalidate.Registry
	drafts     *cache.DraftStore
	logger     common.Logger
}

// NewPlatformService builds the service. drafts may be nil, in which case
// draft calls are no-ops.
func NewPlatformService(client Client, registry *invalidate.Registry, drafts *cache.DraftStore, logger common.Logger) PlatformService {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	if registry == nil {
		registry = invalidate.NewRegistry(logger)
	}
	return &platformService{
		client:     client,
		invalidate: registry,
		drafts:     drafts,
		logger:     logger,
	}
}

// GetStats returns the platform counters.
func (s *platformService) GetStats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := s.client.GetJSON(ctx, "stats", &stats, CacheFor(statsTTL)); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Logout ends the session on the server and forgets everything cached for
// it. Local state is cleared even when the server call fails.
func (s *platformService) Logout(ctx context.Context) error {
	err := s.client.PostJSON(ctx, "auth/logout", nil, nil)
	if err != nil {
		s.logger.Warnf("logout request failed, clearing local state anyway: %v", err)
	}
	s.invalidate.All(ctx)
	if s.drafts != nil {
		s.drafts.Clear(ctx)
	}
	return err
}
