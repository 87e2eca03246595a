// Package attendance validates and records event check-ins.
//
// A check-in is accepted inside a window around the event start. The unique
// (user, event) constraint of the store arbitrates concurrent requests: the
// loser observes a duplicate and reports AlreadyCheckedIn instead of failing.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

const (
	defaultWindowBefore = 30 * time.Minute
	defaultWindowAfter  = 60 * time.Minute
)

// Store is the persistence the validator needs.
type Store interface {
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	HasCheckedIn(ctx context.Context, userID, eventID string) (bool, error)
	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error
	RegisterParticipant(ctx context.Context, p model.Participant) error
	MarkParticipantCheckedIn(ctx context.Context, eventID, userID string) error
	AttendanceCounts(ctx context.Context, eventID string) (registered, checkedIn int, err error)
}

// CheckInResult is the structured outcome of a check-in. Policy rejections
// and duplicates are results, not errors.
type CheckInResult struct {
	Success            bool                    `json:"success"`
	AlreadyCheckedIn   bool                    `json:"already_checked_in,omitempty"`
	OutsideWindow      bool                    `json:"outside_window,omitempty"`
	MinutesBeforeStart int                     `json:"minutes_before_start"`
	Reason             string                  `json:"reason,omitempty"`
	Record             *model.AttendanceRecord `json:"record,omitempty"`
}

// Recorded reports whether this call inserted the attendance record.
func (r CheckInResult) Recorded() bool {
	return r.Success && !r.AlreadyCheckedIn
}

// Validator enforces the check-in window and records attendance.
type Validator struct {
	store  Store
	before time.Duration
	after  time.Duration
	now    func() time.Time
	logger logger.Logger
}

// NewValidator creates a validator with configuration options.
func NewValidator(store Store, opts ...Option) *Validator {
	v := &Validator{
		store:  store,
		before: defaultWindowBefore,
		after:  defaultWindowAfter,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Window returns the inclusive check-in window of an event.
func (v *Validator) Window(e model.Event) (opens, closes time.Time) {
	return e.StartsAt.Add(-v.before), e.StartsAt.Add(v.after)
}

// HasCheckedIn reports whether the user already checked in to the event.
func (v *Validator) HasCheckedIn(ctx context.Context, userID, eventID string) (bool, error) {
	ok, err := v.store.HasCheckedIn(ctx, userID, eventID)
	if err != nil {
		return false, fmt.Errorf("has checked in: %w", err)
	}
	return ok, nil
}

// RecordCheckIn checks the user in to the event. orgID defaults to the
// event's organizer. The participant status update after a successful insert
// is best effort and never undoes the attendance record.
func (v *Validator) RecordCheckIn(ctx context.Context, userID, eventID, orgID string) (CheckInResult, error) {
	userID = strings.TrimSpace(userID)
	eventID = strings.TrimSpace(eventID)
	if userID == "" || eventID == "" {
		return CheckInResult{}, fmt.Errorf("%w: user and event are required", ErrInvalidInput)
	}

	e, err := v.store.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return CheckInResult{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return CheckInResult{}, v.fail(fmt.Errorf("get event: %w", err))
	}
	if orgID == "" {
		orgID = e.OrgID
	}

	now := v.now()
	minutes := MinutesBeforeStart(e.StartsAt, now)
	opens, closes := v.Window(e)
	if now.Before(opens) || now.After(closes) {
		metrics.RecordCheckIn(metrics.CheckInOutsideWindow)
		return CheckInResult{
			OutsideWindow:      true,
			MinutesBeforeStart: minutes,
			Reason:             windowReason(e.StartsAt.Sub(now), v.before, v.after),
		}, nil
	}

	already, err := v.store.HasCheckedIn(ctx, userID, eventID)
	if err != nil {
		return CheckInResult{}, v.fail(fmt.Errorf("has checked in: %w", err))
	}
	if already {
		return v.duplicate(minutes), nil
	}

	rec := model.AttendanceRecord{
		UserID:             userID,
		EventID:            eventID,
		OrgID:              orgID,
		CheckedInAt:        now,
		MinutesBeforeStart: minutes,
	}
	if err := v.store.InsertAttendance(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return v.duplicate(minutes), nil
		}
		return CheckInResult{}, v.fail(fmt.Errorf("insert attendance: %w", err))
	}

	if err := v.store.MarkParticipantCheckedIn(ctx, eventID, userID); err != nil {
		metrics.RecordErrorByComponent("attendance", "participant_status")
		v.logger.Warn(ctx, "participant status not updated",
			logger.String("eventID", eventID),
			logger.String("userID", userID),
			logger.Error(err),
		)
	}

	metrics.RecordCheckIn(metrics.CheckInAccepted)
	v.logger.Debug(ctx, "checked in",
		logger.String("eventID", eventID),
		logger.String("userID", userID),
		logger.Int("minutesBeforeStart", minutes),
	)
	return CheckInResult{Success: true, MinutesBeforeStart: minutes, Record: &rec}, nil
}

// RegisterParticipant registers a user for an event.
func (v *Validator) RegisterParticipant(ctx context.Context, eventID, userID string) error {
	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user and event are required", ErrInvalidInput)
	}
	if _, err := v.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
		}
		return fmt.Errorf("get event: %w", err)
	}
	return v.store.RegisterParticipant(ctx, model.Participant{
		EventID:          eventID,
		UserID:           userID,
		AttendanceStatus: model.AttendanceRegistered,
	})
}

// Summary returns registrations, check-ins and the no-show rate of an event.
func (v *Validator) Summary(ctx context.Context, eventID string) (model.AttendanceSummary, error) {
	registered, checkedIn, err := v.store.AttendanceCounts(ctx, eventID)
	if err != nil {
		return model.AttendanceSummary{}, fmt.Errorf("attendance counts: %w", err)
	}
	return Summarize(eventID, registered, checkedIn), nil
}

// Summarize derives no-shows from registration and check-in counts.
func Summarize(eventID string, registered, checkedIn int) model.AttendanceSummary {
	s := model.AttendanceSummary{EventID: eventID, Registered: registered, CheckedIn: checkedIn}
	if registered > checkedIn {
		s.NoShows = registered - checkedIn
	}
	if registered > 0 {
		s.NoShowRate = float64(s.NoShows) / float64(registered)
	}
	return s
}

// MinutesBeforeStart returns the signed whole minutes from at to start,
// positive before the event starts.
func MinutesBeforeStart(start, at time.Time) int {
	return int(math.Round(start.Sub(at).Minutes()))
}

func (v *Validator) duplicate(minutes int) CheckInResult {
	metrics.RecordCheckIn(metrics.CheckInDuplicate)
	return CheckInResult{
		Success:            true,
		AlreadyCheckedIn:   true,
		MinutesBeforeStart: minutes,
		Reason:             "already checked in",
	}
}

func (v *Validator) fail(err error) error {
	metrics.RecordCheckIn(metrics.CheckInFailed)
	metrics.RecordErrorByComponent("attendance", "store")
	return err
}

// windowReason describes a rejected check-in. offset is the exact time left
// until the start, negative once the event has started. It is rounded up to
// the second so the text never reads as if the check-in was inside the window.
func windowReason(offset, before, after time.Duration) string {
	if offset > 0 {
		return fmt.Sprintf("check-in opens %d minutes before the event; the event starts in %s",
			int(before.Minutes()), ceilSecond(offset))
	}
	return fmt.Sprintf("check-in closed %d minutes after the event start; the event started %s ago",
		int(after.Minutes()), ceilSecond(-offset))
}

func ceilSecond(d time.Duration) time.Duration {
	return (d + time.Second - 1).Truncate(time.Second)
}
