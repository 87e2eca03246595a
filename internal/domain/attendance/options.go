package attendance

import (
	"time"

	"github.com/okian/huddle/pkg/logger"
)

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithWindow sets how long before and after the event start check-in is accepted.
func WithWindow(before, after time.Duration) Option {
	return func(v *Validator) {
		if before >= 0 && after >= 0 {
			v.before = before
			v.after = after
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger sets the validator logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// TokenOption applies a configuration option to the TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithValidity sets how long after the event start a token stays valid.
func WithValidity(d time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if d > 0 {
			t.validity = d
		}
	}
}

// WithTokenClock overrides the time source used for expiry.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}
