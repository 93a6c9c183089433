package cache

import (
	"time"

	"github.com/guarzo/platformapi/common"
)

// Option tunes a cache tier.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger common.Logger
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets where storage failures are reported.
func WithLogger(logger common.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: common.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
