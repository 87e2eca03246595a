package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/attendance"
	"github.com/okian/huddle/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var start = time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)

// brokenParticipants fails the secondary participant write.
type brokenParticipants struct {
	*repository.MemoryStore
}

func (brokenParticipants) MarkParticipantCheckedIn(context.Context, string, string) error {
	return errors.New("participants table unavailable")
}

// racingStore hides existing records from the pre-check so the insert
// observes the duplicate.
type racingStore struct {
	*repository.MemoryStore
}

func (racingStore) HasCheckedIn(context.Context, string, string) (bool, error) {
	return false, nil
}

func newValidator(store attendance.Store, now *time.Time) *attendance.Validator {
	return attendance.NewValidator(store, attendance.WithClock(func() time.Time { return *now }))
}

func TestValidator_Window(t *testing.T) {
	Convey("Given an event starting at 18:00", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore()
		So(s.UpsertEvent(ctx, model.Event{ID: "e1", OrgID: "org", StartsAt: start}), ShouldBeNil)
		now := start
		v := newValidator(s, &now)

		Convey("When checking in 31 minutes early", func() {
			now = start.Add(-31 * time.Minute)
			res, err := v.RecordCheckIn(ctx, "u1", "e1", "")

			Convey("Then it is rejected with the signed offset", func() {
				So(err, ShouldBeNil)
				So(res.Success, ShouldBeFalse)
				So(res.OutsideWindow, ShouldBeTrue)
				So(res.MinutesBeforeStart, ShouldEqual, 31)
				So(res.Reason, ShouldContainSubstring, "opens 30 minutes before")
				has, _ := s.HasCheckedIn(ctx, "u1", "e1")
				So(has, ShouldBeFalse)
			})
		})

		Convey("When checking in seconds before the window opens", func() {
			now = start.Add(-30*time.Minute - 20*time.Second)
			res, err := v.RecordCheckIn(ctx, "u1", "e1", "")

			Convey("Then the reason reports the exact lead over the limit", func() {
				So(err, ShouldBeNil)
				So(res.OutsideWindow, ShouldBeTrue)
				So(res.Reason, ShouldContainSubstring, "the event starts in 30m20s")
			})
		})

		Convey("When checking in just after the window closes", func() {
			now = start.Add(60*time.Minute + 500*time.Millisecond)
			res, err := v.RecordCheckIn(ctx, "u1", "e1", "")

			Convey("Then the elapsed time is rounded up past the limit", func() {
				So(err, ShouldBeNil)
				So(res.OutsideWindow, ShouldBeTrue)
				So(res.Reason, ShouldContainSubstring, "the event started 1h0m1s ago")
			})
		})

		Convey("When checking in exactly at the window edges", func() {
			now = start.Add(-30 * time.Minute)
			early, err := v.RecordCheckIn(ctx, "u1", "e1", "")
			So(err, ShouldBeNil)
			now = start.Add(60 * time.Minute)
			late, err := v.RecordCheckIn(ctx, "u2", "e1", "")
			So(err, ShouldBeNil)

			Convey("Then both are accepted", func() {
				So(early.Success, ShouldBeTrue)
				So(early.MinutesBeforeStart, ShouldEqual, 30)
				So(late.Success, ShouldBeTrue)
				So(late.MinutesBeforeStart, ShouldEqual, -60)
			})
		})

		Convey("When checking in 61 minutes late", func() {
			now = start.Add(61 * time.Minute)
			res, err := v.RecordCheckIn(ctx, "u1", "e1", "")

			Convey("Then it is rejected", func() {
				So(err, ShouldBeNil)
				So(res.OutsideWindow, ShouldBeTrue)
				So(res.MinutesBeforeStart, ShouldEqual, -61)
				So(res.Reason, ShouldContainSubstring, "closed")
			})
		})

		Convey("When a custom window is configured", func() {
			now = start.Add(-50 * time.Minute)
			wide := attendance.NewValidator(s,
				attendance.WithClock(func() time.Time { return now }),
				attendance.WithWindow(time.Hour, time.Hour))
			res, err := wide.RecordCheckIn(ctx, "u1", "e1", "")
			So(err, ShouldBeNil)
			So(res.Success, ShouldBeTrue)
		})
	})
}

func TestValidator_RecordCheckIn(t *testing.T) {
	Convey("Given an open check-in window", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore()
		So(s.UpsertEvent(ctx, model.Event{ID: "e1", OrgID: "org", StartsAt: start}), ShouldBeNil)
		So(s.RegisterParticipant(ctx, model.Participant{EventID: "e1", UserID: "u1"}), ShouldBeNil)
		now := start.Add(-10 * time.Minute)
		v := newValidator(s, &now)

		Convey("When the user checks in", func() {
			res, err := v.RecordCheckIn(ctx, "u1", "e1", "")

			Convey("Then the record is stored with the event organizer", func() {
				So(err, ShouldBeNil)
				So(res.Success, ShouldBeTrue)
				So(res.Recorded(), ShouldBeTrue)
				So(res.Record.OrgID, ShouldEqual, "org")
				So(res.Record.MinutesBeforeStart, ShouldEqual, 10)
				has, _ := v.HasCheckedIn(ctx, "u1", "e1")
				So(has, ShouldBeTrue)
				summary, _ := v.Summary(ctx, "e1")
				So(summary.CheckedIn, ShouldEqual, 1)
			})

			Convey("And checks in again", func() {
				again, err := v.RecordCheckIn(ctx, "u1", "e1", "")

				Convey("Then the duplicate is a success without effect", func() {
					So(err, ShouldBeNil)
					So(again.Success, ShouldBeTrue)
					So(again.AlreadyCheckedIn, ShouldBeTrue)
					So(again.Recorded(), ShouldBeFalse)
					So(again.Record, ShouldBeNil)
				})
			})
		})

		Convey("When an explicit organizer is passed", func() {
			res, err := v.RecordCheckIn(ctx, "u1", "e1", "other-org")
			So(err, ShouldBeNil)
			So(res.Record.OrgID, ShouldEqual, "other-org")
		})

		Convey("When the insert loses the race after the pre-check", func() {
			So(s.InsertAttendance(ctx, model.AttendanceRecord{UserID: "u1", EventID: "e1", CheckedInAt: now}), ShouldBeNil)
			res, err := newValidator(racingStore{s}, &now).RecordCheckIn(ctx, "u1", "e1", "")

			Convey("Then the unique violation maps to already checked in", func() {
				So(err, ShouldBeNil)
				So(res.AlreadyCheckedIn, ShouldBeTrue)
			})
		})

		Convey("When the participant update fails", func() {
			res, err := newValidator(brokenParticipants{s}, &now).RecordCheckIn(ctx, "u1", "e1", "")

			Convey("Then the attendance record is kept", func() {
				So(err, ShouldBeNil)
				So(res.Success, ShouldBeTrue)
				has, _ := s.HasCheckedIn(ctx, "u1", "e1")
				So(has, ShouldBeTrue)
			})
		})

		Convey("When the event or input is invalid", func() {
			_, err := v.RecordCheckIn(ctx, "u1", "missing", "")
			So(errors.Is(err, attendance.ErrEventNotFound), ShouldBeTrue)
			_, err = v.RecordCheckIn(ctx, " ", "e1", "")
			So(errors.Is(err, attendance.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestValidator_ConcurrentCheckIn(t *testing.T) {
	Convey("Given two concurrent check-ins for the same user and event", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore()
		So(s.UpsertEvent(ctx, model.Event{ID: "e1", OrgID: "org", StartsAt: start}), ShouldBeNil)
		now := start
		v := newValidator(s, &now)

		results := make([]attendance.CheckInResult, 2)
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = v.RecordCheckIn(ctx, "u1", "e1", "")
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one records and the other reports already checked in", func() {
			So(errs[0], ShouldBeNil)
			So(errs[1], ShouldBeNil)
			recorded := 0
			duplicates := 0
			for _, r := range results {
				So(r.Success, ShouldBeTrue)
				if r.Recorded() {
					recorded++
				}
				if r.AlreadyCheckedIn {
					duplicates++
				}
			}
			So(recorded, ShouldEqual, 1)
			So(duplicates, ShouldEqual, 1)
			_, checkedIn, _ := s.AttendanceCounts(ctx, "e1")
			So(checkedIn, ShouldEqual, 1)
		})
	})
}

func TestValidator_Summary(t *testing.T) {
	Convey("Given registrations and check-ins", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore()
		So(s.UpsertEvent(ctx, model.Event{ID: "e1", StartsAt: start}), ShouldBeNil)
		now := start
		v := newValidator(s, &now)
		for _, u := range []string{"a", "b", "c", "d"} {
			So(v.RegisterParticipant(ctx, "e1", u), ShouldBeNil)
		}
		_, err := v.RecordCheckIn(ctx, "a", "e1", "")
		So(err, ShouldBeNil)

		Convey("Then the no-show rate is computed", func() {
			summary, err := v.Summary(ctx, "e1")
			So(err, ShouldBeNil)
			So(summary, ShouldResemble, model.AttendanceSummary{EventID: "e1", Registered: 4, CheckedIn: 1, NoShows: 3, NoShowRate: 0.75})
		})

		Convey("Then registering for an unknown event fails", func() {
			So(errors.Is(v.RegisterParticipant(ctx, "nope", "a"), attendance.ErrEventNotFound), ShouldBeTrue)
		})
	})

	Convey("Given edge counts", t, func() {
		So(attendance.Summarize("e", 0, 0).NoShowRate, ShouldEqual, 0)
		So(attendance.Summarize("e", 2, 3).NoShows, ShouldEqual, 0)
	})
}
