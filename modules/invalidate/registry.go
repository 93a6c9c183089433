package invalidate

import (
	"context"
	"regexp"

	"github.com/guarzo/platformapi/common"
)

// Registry fans invalidations out to every cache tier. It owns no data;
// mutation call sites use it after a write, and logout uses All.
type Registry struct {
	tiers  []common.Invalidator
	logger common.Logger
}

// NewRegistry builds a registry over tiers (entry, session, persistent).
// Nil tiers are skipped.
func NewRegistry(logger common.Logger, tiers ...common.Invalidator) *Registry {
	if logger == nil {
		logger = common.DiscardLogger()
	}
	r := &Registry{logger: logger}
	for _, t := range tiers {
		if t != nil {
			r.tiers = append(r.tiers, t)
		}
	}
	return r
}

// All clears every tier.
func (r *Registry) All(ctx context.Context) {
	r.logger.Debugf("invalidate: clearing all cache tiers")
	for _, t := range r.tiers {
		t.Clear(ctx)
	}
}

// Key removes one exact key from every tier.
func (r *Registry) Key(ctx context.Context, key string) {
	for _, t := range r.tiers {
		t.Invalidate(ctx, key)
	}
}

// Matching removes every key accepted by match from every tier.
func (r *Registry) Matching(ctx context.Context, match common.Matcher) {
	for _, t := range r.tiers {
		t.InvalidateMatching(ctx, match)
	}
}

// Pattern removes every key containing substr.
func (r *Registry) Pattern(ctx context.Context, substr string) {
	r.logger.Debugf("invalidate: keys containing %q", substr)
	r.Matching(ctx, common.MatchSubstring(substr))
}

// Regexp removes every key matching re.
func (r *Registry) Regexp(ctx context.Context, re *regexp.Regexp) {
	r.Matching(ctx, common.MatchRegexp(re))
}

// Prefix removes every key under prefix, e.g. a whole namespace ("course:").
func (r *Registry) Prefix(ctx context.Context, prefix string) {
	r.Matching(ctx, common.MatchPrefix(prefix))
}

// Named invalidations for the platform's resources. Each covers both the
// resource keys ("course:42") and the list endpoints ("api:/courses?...").

func (r *Registry) Contests(ctx context.Context) { r.Pattern(ctx, "contest") }
func (r *Registry) Courses(ctx context.Context)  { r.Pattern(ctx, "course") }
func (r *Registry) Mentors(ctx context.Context)  { r.Pattern(ctx, "mentor") }
func (r *Registry) Teams(ctx context.Context)    { r.Pattern(ctx, "team") }
func (r *Registry) Stats(ctx context.Context)    { r.Pattern(ctx, "stats") }

// Standings drops the cached scoreboard pages.
func (r *Registry) Standings(ctx context.Context) { r.Pattern(ctx, "standings") }

// User drops everything cached about the signed-in user.
func (r *Registry) User(ctx context.Context) {
	r.Matching(ctx, common.MatchAny(
		common.MatchPrefix("user:"),
		common.MatchSubstring("/me"),
	))
}
