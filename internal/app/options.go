package service

import (
	"time"

	"github.com/okian/huddle/internal/config"
	"github.com/okian/huddle/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service and its components.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGroupSize sets the default micro-group size.
func WithGroupSize(size int) Option {
	return func(s *Service) {
		if size >= 2 {
			s.groupSize = size
		}
	}
}

// WithMaxLeftoverAbsorb sets how many leftovers may join existing groups.
func WithMaxLeftoverAbsorb(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxLeftoverAbsorb = n
		}
	}
}

// WithMaxCandidates caps the pool size of one assembly request.
func WithMaxCandidates(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

// WithScoreWeights sets the interest, energy and location weights.
func WithScoreWeights(interest, energy, location float64) Option {
	return func(s *Service) {
		s.weights = [3]float64{interest, energy, location}
	}
}

// WithFreezeHours sets the freeze lead time for events without their own.
func WithFreezeHours(hours int) Option {
	return func(s *Service) {
		if hours > 0 {
			s.freezeHours = hours
		}
	}
}

// WithGuardHonorsOverride controls whether the override lock opens the guard.
func WithGuardHonorsOverride(honor bool) Option {
	return func(s *Service) {
		s.guardHonorsOverride = honor
	}
}

// WithAutoFreeze runs the automatic freeze sweep every interval for events
// starting within lookahead. A zero interval disables the loop.
func WithAutoFreeze(interval, lookahead time.Duration) Option {
	return func(s *Service) {
		s.autoFreezeInterval = interval
		if lookahead > 0 {
			s.autoFreezeLookahead = lookahead
		}
	}
}

// WithStaleAfter sets the age after which a forming group is stale.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithReconcileInterval runs the stale-group sweep every interval. Zero disables it.
func WithReconcileInterval(d time.Duration) Option {
	return func(s *Service) {
		s.reconcileInterval = d
	}
}

// WithCheckInWindow sets the accepted offsets around event start.
func WithCheckInWindow(before, after time.Duration) Option {
	return func(s *Service) {
		if before >= 0 && after >= 0 {
			s.windowBefore, s.windowAfter = before, after
		}
	}
}

// WithTokenSecret sets the key for check-in token checksums.
func WithTokenSecret(secret string) Option {
	return func(s *Service) {
		s.tokenSecret = secret
	}
}

// WithTokenValidity sets how long after start a check-in token is accepted.
func WithTokenValidity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tokenValidity = d
		}
	}
}

// WithWorkerCount sets the number of streak workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the streak job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the streak idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// OptionsFromConfig translates process configuration into service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	before, after := cfg.CheckInWindow()
	return []Option{
		WithGroupSize(cfg.GroupSize),
		WithMaxLeftoverAbsorb(cfg.MaxLeftoverAbsorb),
		WithMaxCandidates(cfg.MaxCandidates),
		WithScoreWeights(cfg.InterestWeight, cfg.EnergyWeight, cfg.LocationWeight),
		WithFreezeHours(cfg.FreezeHoursBefore),
		WithGuardHonorsOverride(cfg.GuardHonorsOverride),
		WithAutoFreeze(cfg.AutoFreezeInterval(), cfg.AutoFreezeLookahead()),
		WithStaleAfter(cfg.StaleGroupTimeout()),
		WithReconcileInterval(cfg.ReconcileInterval()),
		WithCheckInWindow(before, after),
		WithTokenSecret(cfg.CheckInTokenSecret),
		WithTokenValidity(cfg.CheckInTokenValidity()),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.StreakQueueSize),
		WithDedupeSize(cfg.DedupeSize),
	}
}
