package simulate

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/huddle/internal/adapters/http/api"
	"github.com/okian/huddle/internal/adapters/repository"
	service "github.com/okian/huddle/internal/app"
	"github.com/okian/huddle/internal/domain/grouping"
	"github.com/okian/huddle/pkg/logger"
)

func TestGeneratePool(t *testing.T) {
	Convey("Given a seed", t, func() {
		a := GeneratePool(7, 50)
		b := GeneratePool(7, 50)
		c := GeneratePool(8, 50)

		Convey("Then pools are deterministic and well formed", func() {
			So(a, ShouldResemble, b)
			So(a[0].UserID, ShouldNotEqual, c[0].UserID)
			for _, cand := range a {
				So(cand.Profile.SocialEnergy, ShouldBeBetweenOrEqual, 1, 5)
				So(len(cand.Profile.Interests), ShouldBeBetweenOrEqual, 1, maxInterests)
				So(cand.Profile.UserID, ShouldEqual, cand.UserID)
			}
		})
	})
}

func TestVerifyFormations(t *testing.T) {
	Convey("Given a greedy assembly", t, func() {
		pool := GeneratePool(3, 11)
		formations := grouping.NewGreedy(grouping.WithMaxLeftoverAbsorb(2)).Assemble(pool, 4)

		Convey("Then the invariants hold", func() {
			So(verifyFormations(pool, formations, 4, 2), ShouldBeNil)
		})

		Convey("When a member is duplicated", func() {
			formations[0].Members = append(formations[0].Members, formations[1].Members[0])
			err := verifyFormations(pool, formations, 4, 2)

			Convey("Then the violation is reported", func() {
				So(errors.Is(err, ErrInvariant), ShouldBeTrue)
			})
		})

		Convey("When the expected count differs", func() {
			err := verifyFormations(pool, formations[1:], 4, 2)

			Convey("Then the violation is reported", func() {
				So(errors.Is(err, ErrInvariant), ShouldBeTrue)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a local simulation", t, func() {
		report, err := Run(context.Background(), Config{
			Candidates: 41,
			GroupSize:  5,
			Absorb:     1,
			Rounds:     6,
			Seed:       11,
			Workers:    3,
		}, logger.Nop())

		Convey("Then every round is verified and summarized", func() {
			So(err, ShouldBeNil)
			So(report.Rounds, ShouldEqual, 6)
			So(report.Candidates, ShouldEqual, 246)
			So(report.Groups, ShouldEqual, 6*grouping.ExpectedGroups(41, 5, 1))
			So(report.MinScore, ShouldBeLessThanOrEqualTo, report.MedianScore)
			So(report.MedianScore, ShouldBeLessThanOrEqualTo, report.P90Score)
			So(report.P90Score, ShouldBeLessThanOrEqualTo, 1)
		})
	})

	Convey("Given a running service", t, func() {
		svc, err := service.New(repository.NewMemoryStore(), service.WithTokenSecret("sim"))
		So(err, ShouldBeNil)
		srv := httptest.NewServer(api.NewServer(svc).Handler(context.Background()))
		defer srv.Close()

		report, err := Run(context.Background(), Config{
			Candidates: 23,
			GroupSize:  4,
			Rounds:     1,
			Seed:       5,
			BaseURL:    srv.URL,
			EventID:    "meetup",
		}, logger.Nop())

		Convey("Then the remote groups partition the pool", func() {
			So(err, ShouldBeNil)
			So(report.RemoteGroups, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given an unreachable service", t, func() {
		_, err := Run(context.Background(), Config{Rounds: 1, BaseURL: "http://127.0.0.1:1"}, logger.Nop())

		Convey("Then the remote check fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
