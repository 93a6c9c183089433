package common

import (
	"context"
	"regexp"
	"strings"
)

// Matcher selects cache keys for bulk invalidation.
type Matcher func(key string) bool

// Invalidator is the removal surface every cache tier exposes. The entry tier
// and both durable tiers implement it, so invalidation can fan out across
// them without knowing where a key was stored.
type Invalidator interface {
	Invalidate(ctx context.Context, key string)
	InvalidateMatching(ctx context.Context, match Matcher)
	Clear(ctx context.Context)
}

// MatchSubstring matches keys that contain s anywhere.
func MatchSubstring(s string) Matcher {
	return func(key string) bool {
		return strings.Contains(key, s)
	}
}

// MatchPrefix matches keys that start with prefix.
func MatchPrefix(prefix string) Matcher {
	return func(key string) bool {
		return strings.HasPrefix(key, prefix)
	}
}

// MatchRegexp matches keys accepted by re.
func MatchRegexp(re *regexp.Regexp) Matcher {
	return re.MatchString
}

// MatchAny matches keys accepted by at least one of matchers.
func MatchAny(matchers ...Matcher) Matcher {
	return func(key string) bool {
		for _, m := range matchers {
			if m(key) {
				return true
			}
		}
		return false
	}
}
