package postgres

import (
	"time"

	"github.com/okian/huddle/pkg/logger"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithMaxIdleConns sets the idle pool size.
func WithMaxIdleConns(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxIdleConns = n
		}
	}
}

// WithConnMaxLifetime recycles connections older than d.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.connMaxLifetime = d
		}
	}
}

// WithStreakRetries sets how often ApplyStreak retries after losing an insert race.
func WithStreakRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.streakRetries = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
