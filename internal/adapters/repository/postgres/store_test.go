package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const testDSNEnv = "HUDDLE_TEST_DATABASE_URL"

func TestIsUniqueViolation(t *testing.T) {
	Convey("Given driver errors", t, func() {
		So(isUniqueViolation(&pq.Error{Code: "23505"}), ShouldBeTrue)
		So(isUniqueViolation(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})), ShouldBeTrue)
		So(isUniqueViolation(&pq.Error{Code: "23503"}), ShouldBeFalse)
		So(isUniqueViolation(errors.New("boom")), ShouldBeFalse)
		So(isUniqueViolation(nil), ShouldBeFalse)
	})
}

func TestLoadMigrations(t *testing.T) {
	Convey("Given the embedded migrations", t, func() {
		migs, err := EmbeddedMigrations()

		Convey("Then the initial schema is present with a checksum", func() {
			So(err, ShouldBeNil)
			So(len(migs), ShouldBeGreaterThanOrEqualTo, 1)
			So(migs[0].Version, ShouldEqual, "001")
			So(migs[0].Name, ShouldEqual, "initial_schema")
			So(migs[0].SQL, ShouldContainSubstring, "attendance_records_user_event_key")
			So(migs[0].Checksum, ShouldHaveLength, 64)
		})
	})

	Convey("Given an arbitrary migrations directory", t, func() {
		fsys := fstest.MapFS{
			"migrations/010_b.sql":     {Data: []byte("SELECT 2;")},
			"migrations/002_a.sql":     {Data: []byte("SELECT 1;")},
			"migrations/README.md":     {Data: []byte("docs")},
			"migrations/noversion.sql": {Data: []byte("SELECT 3;")},
		}
		migs, err := LoadMigrations(fsys)

		Convey("Then only well-named files are returned in version order", func() {
			So(err, ShouldBeNil)
			So(migs, ShouldHaveLength, 2)
			So(migs[0].Version, ShouldEqual, "002")
			So(migs[1].Version, ShouldEqual, "010")
			So(migs[0].Checksum, ShouldNotEqual, migs[1].Checksum)
		})
	})
}

// openTestStore connects to the database named by HUDDLE_TEST_DATABASE_URL
// and migrates it. Tests are skipped when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := NewMigrator(s.DB(), nil).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Integration(t *testing.T) {
	s := openTestStore(t)

	Convey("Given a migrated postgres store", t, func() {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Microsecond)
		eventID := "evt-" + uuid.NewString()

		So(s.UpsertEvent(ctx, model.Event{ID: eventID, OrgID: "org", StartsAt: now.Add(time.Hour), FreezeHoursBefore: 2}), ShouldBeNil)

		Convey("When migrating again", func() {
			So(NewMigrator(s.DB(), nil).Up(ctx), ShouldBeNil)
		})

		Convey("When the event is read back", func() {
			e, err := s.GetEvent(ctx, eventID)
			So(err, ShouldBeNil)
			So(e.OrgID, ShouldEqual, "org")
			So(e.StartsAt.Equal(now.Add(time.Hour)), ShouldBeTrue)

			_, err = s.GetEvent(ctx, "missing-"+eventID)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When groups are frozen and reconciled", func() {
			stale := now.Add(-10 * time.Minute)
			g1, g2 := uuid.NewString(), uuid.NewString()
			So(s.CreateGroup(ctx, model.Group{ID: g1, EventID: eventID, Status: model.StatusForming, CreatedAt: stale},
				[]model.GroupMember{{GroupID: g1, UserID: "a", Role: model.RoleHost, JoinedAt: stale}, {GroupID: g1, UserID: "b", Role: model.RoleMember, JoinedAt: stale}}), ShouldBeNil)
			So(s.CreateGroup(ctx, model.Group{ID: g2, EventID: eventID, Status: model.StatusForming, CreatedAt: stale},
				[]model.GroupMember{{GroupID: g2, UserID: "c", Role: model.RoleHost, JoinedAt: stale}}), ShouldBeNil)

			ok, err := s.FinalizeGroup(ctx, g1)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			ok, err = s.DeleteGroup(ctx, g2)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			_, _, err = s.GetGroup(ctx, g2)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			n, err := s.CountMembers(ctx, g2)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)

			g3 := uuid.NewString()
			So(s.CreateGroup(ctx, model.Group{ID: g3, EventID: eventID, Status: model.StatusForming, CreatedAt: now}, nil), ShouldBeNil)
			first, err := s.FreezeEventGroups(ctx, eventID, "admin", now)
			So(err, ShouldBeNil)
			So(first, ShouldEqual, 1)
			second, err := s.FreezeEventGroups(ctx, eventID, "admin", now)
			So(err, ShouldBeNil)
			So(second, ShouldEqual, 0)

			g, _, err := s.GetGroup(ctx, g3)
			So(err, ShouldBeNil)
			So(g.Frozen, ShouldBeTrue)
			So(g.Status, ShouldEqual, model.StatusLocked)
			So(g.FrozenBy, ShouldEqual, "admin")

			unfrozen, err := s.UnfreezeEventGroups(ctx, eventID)
			So(err, ShouldBeNil)
			So(unfrozen, ShouldEqual, 1)
		})

		Convey("When a batch seats a user who already holds a seat", func() {
			seated, fresh, clash := uuid.NewString(), uuid.NewString(), uuid.NewString()
			So(s.CreateGroup(ctx, model.Group{ID: seated, EventID: eventID, Status: model.StatusForming, CreatedAt: now},
				[]model.GroupMember{{GroupID: seated, UserID: "p", Role: model.RoleHost, JoinedAt: now}}), ShouldBeNil)

			err := s.CreateGroups(ctx, []model.GroupDetail{
				{Group: model.Group{ID: fresh, EventID: eventID, Status: model.StatusForming, CreatedAt: now},
					Members: []model.GroupMember{{GroupID: fresh, UserID: "q", Role: model.RoleHost, JoinedAt: now}}},
				{Group: model.Group{ID: clash, EventID: eventID, Status: model.StatusForming, CreatedAt: now},
					Members: []model.GroupMember{{GroupID: clash, UserID: "p", Role: model.RoleHost, JoinedAt: now}}},
			})

			Convey("Then the whole batch is rolled back", func() {
				So(errors.Is(err, repository.ErrAlreadyGrouped), ShouldBeTrue)
				_, _, err := s.GetGroup(ctx, fresh)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				active, err := s.ActiveMembers(ctx, eventID)
				So(err, ShouldBeNil)
				users := make([]string, 0, len(active))
				for _, m := range active {
					users = append(users, m.UserID)
				}
				So(users, ShouldContain, "p")
				So(users, ShouldNotContain, "q")
			})
		})

		Convey("When the same check-in is inserted concurrently", func() {
			var wg sync.WaitGroup
			var okCount, dupCount atomic.Int32
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.InsertAttendance(ctx, model.AttendanceRecord{UserID: "u1", EventID: eventID, OrgID: "org", CheckedInAt: now})
					if err == nil {
						okCount.Add(1)
					} else if errors.Is(err, repository.ErrDuplicate) {
						dupCount.Add(1)
					}
				}()
			}
			wg.Wait()

			So(okCount.Load(), ShouldEqual, 1)
			So(dupCount.Load(), ShouldEqual, 7)

			So(s.RegisterParticipant(ctx, model.Participant{EventID: eventID, UserID: "u1"}), ShouldBeNil)
			So(s.RegisterParticipant(ctx, model.Participant{EventID: eventID, UserID: "u2"}), ShouldBeNil)
			So(s.MarkParticipantCheckedIn(ctx, eventID, "u1"), ShouldBeNil)
			So(errors.Is(s.MarkParticipantCheckedIn(ctx, eventID, "ghost"), repository.ErrNotFound), ShouldBeTrue)

			registered, checkedIn, err := s.AttendanceCounts(ctx, eventID)
			So(err, ShouldBeNil)
			So(registered, ShouldEqual, 2)
			So(checkedIn, ShouldEqual, 1)
		})

		Convey("When streaks are applied concurrently", func() {
			key := model.StreakKey{UserID: "u-" + uuid.NewString(), OrgID: "org"}
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _, _ = s.ApplyStreak(ctx, key, func(prev *model.UserStreak) (model.UserStreak, bool) {
						next := model.UserStreak{CurrentStreak: 1, UpdatedAt: now}
						if prev != nil {
							next.CurrentStreak = prev.CurrentStreak + 1
						}
						return next, true
					})
				}()
			}
			wg.Wait()

			st, err := s.GetStreak(ctx, key)
			So(err, ShouldBeNil)
			So(st.CurrentStreak, ShouldBeBetweenOrEqual, 1, 10)
			So(st.Category, ShouldBeEmpty)
		})
	})
}
