package reconcile

import (
	"time"

	"github.com/okian/huddle/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithStaleAfter sets how long a group may stay forming before it is resolved.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the reconciler logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}
