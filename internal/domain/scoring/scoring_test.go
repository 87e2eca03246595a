package scoring_test

import (
	"math/rand"
	"testing"

	"github.com/okian/huddle/internal/domain/model"
	scoring "github.com/okian/huddle/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInterest(t *testing.T) {
	Convey("Given interest sets", t, func() {
		Convey("When they overlap partially", func() {
			So(scoring.Interest([]string{"music", "food"}, []string{"food", "art"}), ShouldAlmostEqual, 1.0/3.0, 1e-9)
		})

		Convey("When casing and whitespace differ", func() {
			So(scoring.Interest([]string{"Music ", "FOOD"}, []string{"music", "food"}), ShouldEqual, 1.0)
		})

		Convey("When either set is empty", func() {
			So(scoring.Interest(nil, []string{"music"}), ShouldEqual, 0)
			So(scoring.Interest([]string{"music"}, []string{}), ShouldEqual, 0)
		})
	})
}

func TestEnergy(t *testing.T) {
	Convey("Given social energies", t, func() {
		So(scoring.Energy(3, 3), ShouldEqual, 1.0)
		So(scoring.Energy(1, 5), ShouldEqual, 0.0)
		So(scoring.Energy(2, 4), ShouldEqual, 0.5)

		Convey("When values are out of range they are clamped", func() {
			So(scoring.Energy(0, 9), ShouldEqual, 0.0)
			So(scoring.Energy(-3, 1), ShouldEqual, 1.0)
		})
	})
}

func TestWeighted_Pair(t *testing.T) {
	Convey("Given a default weighted scorer", t, func() {
		s := scoring.NewWeighted()

		Convey("When both profiles are identical and share a city", func() {
			p := model.Profile{Interests: []string{"music"}, SocialEnergy: 3, City: "Berlin"}

			Convey("Then the score is one", func() {
				So(s.Pair(p, p), ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		Convey("When cities differ by case only", func() {
			a := model.Profile{Interests: []string{"music"}, SocialEnergy: 3, City: "berlin"}
			b := model.Profile{Interests: []string{"music"}, SocialEnergy: 3, City: "BERLIN"}

			Convey("Then the location counts as the same", func() {
				So(s.Pair(a, b), ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		Convey("When profiles are opposite in every component", func() {
			a := model.Profile{Interests: []string{"music"}, SocialEnergy: 1, City: "Berlin"}
			b := model.Profile{Interests: []string{"chess"}, SocialEnergy: 5, City: "Paris"}

			Convey("Then only the different-city share remains", func() {
				So(s.Pair(a, b), ShouldAlmostEqual, 0.2*0.3, 1e-9)
				So(s.Pair(a, a), ShouldBeGreaterThanOrEqualTo, s.Pair(a, b))
			})
		})

		Convey("When a city is unknown", func() {
			a := model.Profile{Interests: []string{"music", "food"}, SocialEnergy: 3}
			b := model.Profile{Interests: []string{"food", "art"}, SocialEnergy: 3, City: "Rome"}

			Convey("Then location contributes the unknown score", func() {
				So(s.Pair(a, b), ShouldAlmostEqual, 0.5/3.0+0.3+0.2*0.5, 1e-9)
			})
		})

		Convey("When scoring random profiles", func() {
			rng := rand.New(rand.NewSource(7))
			interests := []string{"music", "food", "art", "chess", "hiking", "film"}
			cities := []string{"", "Berlin", "Paris", "Rome"}
			random := func() model.Profile {
				var in []string
				for _, i := range interests {
					if rng.Intn(2) == 0 {
						in = append(in, i)
					}
				}
				return model.Profile{Interests: in, SocialEnergy: rng.Intn(7), City: cities[rng.Intn(len(cities))]}
			}

			Convey("Then every score stays within [0,1] and is symmetric", func() {
				for i := 0; i < 500; i++ {
					a, b := random(), random()
					score := s.Pair(a, b)
					So(score, ShouldBeBetweenOrEqual, 0, 1)
					So(score, ShouldAlmostEqual, s.Pair(b, a), 1e-12)
				}
			})
		})
	})
}

func TestWeighted_Group(t *testing.T) {
	Convey("Given a default weighted scorer", t, func() {
		s := scoring.NewWeighted()
		a := model.Profile{Interests: []string{"music"}, SocialEnergy: 3}
		b := model.Profile{Interests: []string{"music"}, SocialEnergy: 3}
		c := model.Profile{Interests: []string{"chess"}, SocialEnergy: 3}

		Convey("When fewer than two profiles are given", func() {
			So(s.Group(nil), ShouldEqual, 0)
			So(s.Group([]model.Profile{a}), ShouldEqual, 0)
		})

		Convey("When three profiles are given", func() {
			want := (s.Pair(a, b) + s.Pair(a, c) + s.Pair(b, c)) / 3

			Convey("Then the group score is the mean over pairs", func() {
				So(s.Group([]model.Profile{a, b, c}), ShouldAlmostEqual, want, 1e-9)
			})
		})
	})
}

func TestWeighted_Options(t *testing.T) {
	Convey("Given custom weights", t, func() {
		a := model.Profile{Interests: []string{"music"}, SocialEnergy: 1}
		b := model.Profile{Interests: []string{"music"}, SocialEnergy: 5}

		Convey("When only interests count", func() {
			s := scoring.NewWeighted(scoring.WithWeights(1, 0, 0))
			So(s.Pair(a, b), ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("When weights do not sum to one they are normalized", func() {
			s := scoring.NewWeighted(scoring.WithWeights(2, 2, 0))
			So(s.Pair(a, b), ShouldAlmostEqual, 0.5, 1e-9)
		})

		Convey("When weights are invalid the defaults are kept", func() {
			s := scoring.NewWeighted(scoring.WithWeights(0, 0, 0), scoring.WithWeights(-1, 1, 1))
			So(s.Pair(a, b), ShouldAlmostEqual, scoring.NewWeighted().Pair(a, b), 1e-9)
		})

		Convey("When location scores are overridden", func() {
			s := scoring.NewWeighted(scoring.WithWeights(0, 0, 1), scoring.WithLocationScores(1, 0, 0.25))
			So(s.Pair(a, b), ShouldAlmostEqual, 0.25, 1e-9)
		})
	})
}
