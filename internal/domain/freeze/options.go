package freeze

import (
	"time"

	"github.com/okian/huddle/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDefaultFreezeHours sets the lead time used when an event does not define one.
func WithDefaultFreezeHours(hours int) Option {
	return func(c *Controller) {
		if hours > 0 {
			c.defaultFreezeHours = hours
		}
	}
}

// WithGuardHonorsOverride controls whether the override lock also lifts the
// time-based guard. When false the lock only stops explicit freezes.
func WithGuardHonorsOverride(honor bool) Option {
	return func(c *Controller) {
		c.guardHonorsOverride = honor
	}
}

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
