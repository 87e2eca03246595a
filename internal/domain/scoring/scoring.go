// Package scoring computes compatibility between attendee profiles.
package scoring

import (
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/okian/huddle/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultInterestWeight = 0.5
	defaultEnergyWeight   = 0.3
	defaultLocationWeight = 0.2

	defaultSameCity      = 1.0
	defaultDifferentCity = 0.3
	defaultUnknownCity   = 0.5

	minEnergy = 1
	maxEnergy = 5
)

// Scorer computes compatibility scores in [0,1].
type Scorer interface {
	// Pair scores two profiles.
	Pair(a, b model.Profile) float64
	// Group returns the mean pair score over all unordered pairs, 0 for fewer than two profiles.
	Group(profiles []model.Profile) float64
}

// Weighted combines interest overlap, social energy and location into one score.
type Weighted struct {
	interestWeight float64
	energyWeight   float64
	locationWeight float64

	sameCity      float64
	differentCity float64
	unknownCity   float64
}

// NewWeighted creates a weighted scorer with configuration options.
func NewWeighted(opts ...Option) *Weighted {
	w := &Weighted{
		interestWeight: defaultInterestWeight,
		energyWeight:   defaultEnergyWeight,
		locationWeight: defaultLocationWeight,
		sameCity:       defaultSameCity,
		differentCity:  defaultDifferentCity,
		unknownCity:    defaultUnknownCity,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Pair implements Scorer.
func (w *Weighted) Pair(a, b model.Profile) float64 {
	score := w.interestWeight*Interest(a.Interests, b.Interests) +
		w.energyWeight*Energy(a.SocialEnergy, b.SocialEnergy) +
		w.locationWeight*w.location(a.City, b.City)
	return math.Max(0, math.Min(1, score))
}

// Group implements Scorer.
func (w *Weighted) Group(profiles []model.Profile) float64 {
	if len(profiles) < 2 {
		return 0
	}
	pairs := make(stats.Float64Data, 0, len(profiles)*(len(profiles)-1)/2)
	for i := 0; i < len(profiles); i++ {
		for j := i + 1; j < len(profiles); j++ {
			pairs = append(pairs, w.Pair(profiles[i], profiles[j]))
		}
	}
	mean, err := stats.Mean(pairs)
	if err != nil {
		return 0
	}
	return mean
}

func (w *Weighted) location(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	switch {
	case a == "" || b == "":
		return w.unknownCity
	case a == b:
		return w.sameCity
	default:
		return w.differentCity
	}
}

// Interest returns the Jaccard index of two interest sets, compared
// case-insensitively. It is 0 when either set is empty.
func Interest(a, b []string) float64 {
	setA := normalize(a)
	setB := normalize(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

// Energy returns 1 - |a-b|/4 with both energies clamped to the 1..5 scale.
func Energy(a, b int) float64 {
	a = clampEnergy(a)
	b = clampEnergy(b)
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 1 - float64(diff)/float64(maxEnergy-minEnergy)
}

func clampEnergy(e int) int {
	if e < minEnergy {
		return minEnergy
	}
	if e > maxEnergy {
		return maxEnergy
	}
	return e
}

func normalize(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}
