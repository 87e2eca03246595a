// Package streak maintains weekly attendance streaks per user and organizer.
//
// A streak is credited at most once per ISO week: the row remembers the hash
// "{userId}-{orgId}-{year}-{week}" of its last credit and a call producing
// the same hash is a no-op.
package streak

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// ErrInvalidKey reports a missing user or organizer.
var ErrInvalidKey = errors.New("streak requires user and organizer")

const lastWeekBeforeWrap = 52

// Result is the streak after an update.
type Result struct {
	CurrentStreak int  `json:"current_streak"`
	LongestStreak int  `json:"longest_streak"`
	Applied       bool `json:"applied"`
}

// Tracker updates streaks through a StreakStore.
type Tracker struct {
	store  repository.StreakStore
	now    func() time.Time
	logger logger.Logger
}

// NewTracker creates a tracker with configuration options.
func NewTracker(store repository.StreakStore, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now, logger: logger.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ISOWeek returns the ISO-8601 year and week of t in UTC.
func ISOWeek(t time.Time) (year, week int) {
	return t.UTC().ISOWeek()
}

// UpdateHash is the idempotency key of one weekly credit.
func UpdateHash(userID, orgID string, year, week int) string {
	return fmt.Sprintf("%s-%s-%d-%d", userID, orgID, year, week)
}

// Consecutive reports whether (year, week) directly follows the previous
// attendance week. Only week 52 wraps to week 1 of the next year; a year
// with 53 ISO weeks therefore continues 52 to 53 but resets 53 to 1.
func Consecutive(prevYear, prevWeek, year, week int) bool {
	if year == prevYear && week == prevWeek+1 {
		return true
	}
	return year == prevYear+1 && prevWeek == lastWeekBeforeWrap && week == 1
}

// Advance computes the next streak row. It returns false when the week was
// already credited for the key.
func Advance(prev *model.UserStreak, key model.StreakKey, year, week int, at time.Time) (model.UserStreak, bool) {
	hash := UpdateHash(key.UserID, key.OrgID, year, week)
	if prev != nil && prev.LastUpdateHash == hash {
		return *prev, false
	}

	next := model.UserStreak{
		UserID:             key.UserID,
		OrgID:              key.OrgID,
		Category:           key.Category,
		CurrentStreak:      1,
		LastAttendanceWeek: week,
		LastAttendanceYear: year,
		LastUpdateHash:     hash,
		UpdatedAt:          at,
	}
	if prev != nil {
		if Consecutive(prev.LastAttendanceYear, prev.LastAttendanceWeek, year, week) {
			next.CurrentStreak = prev.CurrentStreak + 1
		}
		next.LongestStreak = prev.LongestStreak
	}
	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	return next, true
}

// UpdateStreak credits the current week for the key.
func (t *Tracker) UpdateStreak(ctx context.Context, userID, orgID, category string) (Result, error) {
	return t.UpdateStreakAt(ctx, model.StreakKey{UserID: userID, OrgID: orgID, Category: category}, t.now())
}

// UpdateStreakAt credits the ISO week containing at. The read-check-write
// runs inside the store's ApplyStreak so concurrent calls cannot double-credit.
func (t *Tracker) UpdateStreakAt(ctx context.Context, key model.StreakKey, at time.Time) (Result, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return Result{}, err
	}
	year, week := ISOWeek(at)

	row, applied, err := t.store.ApplyStreak(ctx, key, func(prev *model.UserStreak) (model.UserStreak, bool) {
		return Advance(prev, key, year, week, at)
	})
	if err != nil {
		metrics.RecordStreakError()
		return Result{}, fmt.Errorf("apply streak: %w", err)
	}
	metrics.RecordStreakUpdate(applied)
	if applied {
		t.logger.Debug(ctx, "streak credited",
			logger.String("userID", key.UserID),
			logger.String("orgID", key.OrgID),
			logger.Int("current", row.CurrentStreak),
			logger.Int("year", year),
			logger.Int("week", week),
		)
	}
	return Result{CurrentStreak: row.CurrentStreak, LongestStreak: row.LongestStreak, Applied: applied}, nil
}

// GetStreak returns the stored streak, repository.ErrNotFound if absent.
func (t *Tracker) GetStreak(ctx context.Context, key model.StreakKey) (model.UserStreak, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return model.UserStreak{}, err
	}
	return t.store.GetStreak(ctx, key)
}

func normalizeKey(key model.StreakKey) (model.StreakKey, error) {
	key.UserID = strings.TrimSpace(key.UserID)
	key.OrgID = strings.TrimSpace(key.OrgID)
	key.Category = strings.TrimSpace(key.Category)
	if key.UserID == "" || key.OrgID == "" {
		return model.StreakKey{}, ErrInvalidKey
	}
	return key, nil
}
