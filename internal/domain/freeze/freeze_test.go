package freeze_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/freeze"
	"github.com/okian/huddle/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var eventStart = time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store *repository.MemoryStore
	now   time.Time
	ctrl  *freeze.Controller
}

func newFixture(opts ...freeze.Option) *fixture {
	f := &fixture{store: repository.NewMemoryStore(), now: eventStart.Add(-3 * time.Hour)}
	opts = append([]freeze.Option{freeze.WithClock(func() time.Time { return f.now })}, opts...)
	f.ctrl = freeze.NewController(f.store, f.store, opts...)
	return f
}

func (f *fixture) event(id string, hours int, locked bool) {
	So(f.store.UpsertEvent(context.Background(), model.Event{
		ID: id, OrgID: "org", StartsAt: eventStart, FreezeHoursBefore: hours, FreezeOverrideLock: locked,
	}), ShouldBeNil)
}

func (f *fixture) group(id, eventID string) {
	So(f.store.CreateGroup(context.Background(), model.Group{
		ID: id, EventID: eventID, Status: model.StatusForming, CreatedAt: f.now,
	}, []model.GroupMember{{GroupID: id, UserID: id + "-host", Role: model.RoleHost}}), ShouldBeNil)
}

func TestController_IsFrozen(t *testing.T) {
	Convey("Given an event at 18:00 with a two hour freeze", t, func() {
		ctx := context.Background()
		f := newFixture()
		f.event("e1", 2, false)

		Convey("When it is 15:59", func() {
			f.now = time.Date(2025, 1, 10, 15, 59, 0, 0, time.UTC)
			frozen, err := f.ctrl.IsFrozen(ctx, "e1")
			So(err, ShouldBeNil)
			So(frozen, ShouldBeFalse)
		})

		Convey("When it is exactly 16:00", func() {
			f.now = time.Date(2025, 1, 10, 16, 0, 0, 0, time.UTC)
			frozen, _ := f.ctrl.IsFrozen(ctx, "e1")
			So(frozen, ShouldBeTrue)
		})

		Convey("When it is 16:00:01", func() {
			f.now = time.Date(2025, 1, 10, 16, 0, 1, 0, time.UTC)
			frozen, err := f.ctrl.IsFrozen(ctx, "e1")
			So(err, ShouldBeNil)
			So(frozen, ShouldBeTrue)
		})

		Convey("When time moves forward minute by minute", func() {
			seen := false
			for f.now = eventStart.Add(-4 * time.Hour); f.now.Before(eventStart.Add(2 * time.Hour)); f.now = f.now.Add(time.Minute) {
				frozen, err := f.ctrl.IsFrozen(ctx, "e1")
				So(err, ShouldBeNil)
				if seen {
					So(frozen, ShouldBeTrue)
				}
				seen = seen || frozen
			}

			Convey("Then the predicate never flips back", func() {
				So(seen, ShouldBeTrue)
			})
		})

		Convey("When the event does not exist", func() {
			_, err := f.ctrl.IsFrozen(ctx, "missing")
			So(errors.Is(err, freeze.ErrEventNotFound), ShouldBeTrue)
		})

		Convey("When the event has no lead time", func() {
			So(f.ctrl.FreezeAt(model.Event{StartsAt: eventStart}), ShouldEqual, eventStart.Add(-2*time.Hour))

			custom := freeze.NewController(f.store, f.store, freeze.WithDefaultFreezeHours(5))
			So(custom.FreezeAt(model.Event{StartsAt: eventStart}), ShouldEqual, eventStart.Add(-5*time.Hour))
		})
	})
}

func TestController_CheckGuard(t *testing.T) {
	Convey("Given events with and without the override lock", t, func() {
		ctx := context.Background()
		f := newFixture()
		f.event("open", 2, false)
		f.event("locked", 2, true)

		Convey("When the freeze time has not come", func() {
			res, err := f.ctrl.CheckGuard(ctx, "open", freeze.ActionJoin)
			So(err, ShouldBeNil)
			So(res.Allowed, ShouldBeTrue)
			So(res.Reason, ShouldBeEmpty)
		})

		Convey("When the freeze time has passed", func() {
			f.now = eventStart.Add(-time.Hour)
			res, err := f.ctrl.CheckGuard(ctx, "open", freeze.ActionLeave)

			Convey("Then the action is blocked with a reason", func() {
				So(err, ShouldBeNil)
				So(res.Allowed, ShouldBeFalse)
				So(res.Reason, ShouldContainSubstring, "leave")
			})

			Convey("Then a locked event still allows changes", func() {
				res, err := f.ctrl.CheckGuard(ctx, "locked", freeze.ActionJoin)
				So(err, ShouldBeNil)
				So(res.Allowed, ShouldBeTrue)
			})

			Convey("Then a guard ignoring the override blocks locked events too", func() {
				strict := freeze.NewController(f.store, f.store,
					freeze.WithClock(func() time.Time { return f.now }),
					freeze.WithGuardHonorsOverride(false))
				res, err := strict.CheckGuard(ctx, "locked", freeze.ActionJoin)
				So(err, ShouldBeNil)
				So(res.Allowed, ShouldBeFalse)
			})
		})

		Convey("When the action is unknown", func() {
			_, err := f.ctrl.CheckGuard(ctx, "open", freeze.Action("dance"))
			So(errors.Is(err, freeze.ErrUnknownAction), ShouldBeTrue)
		})
	})
}

func TestParseAction(t *testing.T) {
	Convey("Given action names", t, func() {
		a, err := freeze.ParseAction(" Join ")
		So(err, ShouldBeNil)
		So(a, ShouldEqual, freeze.ActionJoin)

		for _, name := range []string{"leave", "reassign", "chat", "assemble"} {
			_, err := freeze.ParseAction(name)
			So(err, ShouldBeNil)
		}

		_, err = freeze.ParseAction("")
		So(errors.Is(err, freeze.ErrUnknownAction), ShouldBeTrue)
	})
}

func TestController_FreezeEventGroups(t *testing.T) {
	Convey("Given forming groups of an event", t, func() {
		ctx := context.Background()
		f := newFixture()
		f.event("e1", 2, false)
		f.group("g1", "e1")
		f.group("g2", "e1")

		Convey("When freezing twice", func() {
			first, err := f.ctrl.FreezeEventGroups(ctx, "e1", "alice")
			So(err, ShouldBeNil)
			second, err := f.ctrl.FreezeEventGroups(ctx, "e1", "alice")
			So(err, ShouldBeNil)

			Convey("Then the second call affects no groups", func() {
				So(first.Success, ShouldBeTrue)
				So(first.Affected, ShouldEqual, 2)
				So(second.Success, ShouldBeTrue)
				So(second.Affected, ShouldEqual, 0)

				g, _, _ := f.store.GetGroup(ctx, "g1")
				So(g.Status, ShouldEqual, model.StatusLocked)
				So(g.Frozen, ShouldBeTrue)
				So(g.FrozenBy, ShouldEqual, "alice")
				So(*g.FrozenAt, ShouldEqual, f.now)
			})

			Convey("Then unfreezing reopens them", func() {
				res, err := f.ctrl.UnfreezeEventGroups(ctx, "e1")
				So(err, ShouldBeNil)
				So(res.Affected, ShouldEqual, 2)
				g, _, _ := f.store.GetGroup(ctx, "g2")
				So(g.Status, ShouldEqual, model.StatusForming)
				So(g.Frozen, ShouldBeFalse)
			})
		})

		Convey("When no actor is given", func() {
			_, err := f.ctrl.FreezeEventGroups(ctx, "e1", "")
			So(err, ShouldBeNil)
			g, _, _ := f.store.GetGroup(ctx, "g1")
			So(g.FrozenBy, ShouldEqual, "admin")
		})

		Convey("When the override lock is set", func() {
			f.event("e1", 2, true)
			res, err := f.ctrl.FreezeEventGroups(ctx, "e1", "alice")

			Convey("Then the freeze is refused without touching groups", func() {
				So(err, ShouldBeNil)
				So(res.Success, ShouldBeFalse)
				So(res.Reason, ShouldContainSubstring, "override lock")
				g, _, _ := f.store.GetGroup(ctx, "g1")
				So(g.Frozen, ShouldBeFalse)
			})

			Convey("Then unfreeze is still allowed", func() {
				res, err := f.ctrl.UnfreezeEventGroups(ctx, "e1")
				So(err, ShouldBeNil)
				So(res.Success, ShouldBeTrue)
			})
		})

		Convey("When the event is missing", func() {
			_, err := f.ctrl.FreezeEventGroups(ctx, "missing", "alice")
			So(errors.Is(err, freeze.ErrEventNotFound), ShouldBeTrue)
			_, err = f.ctrl.UnfreezeEventGroups(ctx, "missing")
			So(errors.Is(err, freeze.ErrEventNotFound), ShouldBeTrue)
		})
	})
}

func TestController_AutoFreeze(t *testing.T) {
	Convey("Given events at different distances from now", t, func() {
		ctx := context.Background()
		f := newFixture()
		f.now = eventStart.Add(-90 * time.Minute)
		f.event("due", 2, false)
		f.group("g-due", "due")
		So(f.store.UpsertEvent(ctx, model.Event{ID: "later", StartsAt: eventStart.Add(24 * time.Hour), FreezeHoursBefore: 2}), ShouldBeNil)
		f.group("g-later", "later")
		So(f.store.UpsertEvent(ctx, model.Event{ID: "locked", StartsAt: eventStart.Add(time.Minute), FreezeHoursBefore: 2, FreezeOverrideLock: true}), ShouldBeNil)
		f.group("g-locked", "locked")

		report, err := f.ctrl.AutoFreeze(ctx, 48*time.Hour)

		Convey("Then only due, unlocked events are frozen by the system", func() {
			So(err, ShouldBeNil)
			So(report.Events, ShouldEqual, 2)
			So(report.Frozen, ShouldEqual, 1)
			So(report.Skipped, ShouldEqual, 1)
			So(report.Failed, ShouldEqual, 0)

			g, _, _ := f.store.GetGroup(ctx, "g-due")
			So(g.Frozen, ShouldBeTrue)
			So(g.FrozenBy, ShouldEqual, freeze.SystemActor)

			later, _, _ := f.store.GetGroup(ctx, "g-later")
			So(later.Frozen, ShouldBeFalse)
		})

		Convey("Then running the loop stops with the context", func() {
			cctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				f.ctrl.Run(cctx, 5*time.Millisecond, time.Hour)
				close(done)
			}()
			time.Sleep(20 * time.Millisecond)
			cancel()
			stopped := false
			select {
			case <-done:
				stopped = true
			case <-time.After(time.Second):
			}
			So(stopped, ShouldBeTrue)
		})
	})
}
