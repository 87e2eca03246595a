// Package grouping partitions a candidate pool into small compatible groups.
package grouping

import (
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/domain/scoring"
)

const defaultMaxLeftoverAbsorb = 2

// Formation is one assembled group before it is persisted.
// Members[0] is the seed and becomes the host.
type Formation struct {
	Members []model.Candidate
	Score   float64
}

// UserIDs returns the member ids in order.
func (f Formation) UserIDs() []string {
	ids := make([]string, len(f.Members))
	for i, m := range f.Members {
		ids[i] = m.UserID
	}
	return ids
}

// Assembler partitions candidates into groups of a target size.
type Assembler interface {
	Assemble(candidates []model.Candidate, size int) []Formation
}

// Greedy seeds each group with the first remaining candidate and repeatedly
// adds the candidate that maximizes the resulting group score. It is a local
// heuristic and gives no optimality guarantee.
type Greedy struct {
	scorer            scoring.Scorer
	maxLeftoverAbsorb int
}

// NewGreedy creates a greedy assembler with configuration options.
func NewGreedy(opts ...Option) *Greedy {
	g := &Greedy{
		scorer:            scoring.NewWeighted(),
		maxLeftoverAbsorb: defaultMaxLeftoverAbsorb,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Assemble implements Assembler. The result is deterministic for a given input
// order. Fewer than two candidates, or a size below two, yields no groups.
func (g *Greedy) Assemble(candidates []model.Candidate, size int) []Formation {
	if len(candidates) < 2 || size < 2 {
		return nil
	}

	remaining := make([]model.Candidate, len(candidates))
	copy(remaining, candidates)

	var out []Formation
	for len(remaining) >= size {
		members := []model.Candidate{remaining[0]}
		remaining = remaining[1:]

		for len(members) < size {
			best := g.bestCandidate(members, remaining)
			members = append(members, remaining[best])
			remaining = append(remaining[:best], remaining[best+1:]...)
		}
		out = append(out, Formation{Members: members, Score: g.score(members)})
	}

	switch {
	case len(remaining) == 0:
	case len(out) > 0 && len(remaining) <= g.maxLeftoverAbsorb:
		for _, c := range remaining {
			idx := g.bestGroup(out, c)
			out[idx].Members = append(out[idx].Members, c)
			out[idx].Score = g.score(out[idx].Members)
		}
	default:
		out = append(out, Formation{Members: remaining, Score: g.score(remaining)})
	}
	return out
}

// bestCandidate returns the index in pool of the candidate whose addition
// yields the highest group score. Ties keep the first maximum.
func (g *Greedy) bestCandidate(members, pool []model.Candidate) int {
	profiles := profilesOf(members)
	profiles = append(profiles, model.Profile{})
	last := len(profiles) - 1

	best, bestScore := 0, -1.0
	for i, c := range pool {
		profiles[last] = c.Profile
		if s := g.scorer.Group(profiles); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// bestGroup returns the index of the formation whose score after inserting c
// is highest. Ties keep the first maximum.
func (g *Greedy) bestGroup(groups []Formation, c model.Candidate) int {
	best, bestScore := 0, -1.0
	for i, f := range groups {
		profiles := append(profilesOf(f.Members), c.Profile)
		if s := g.scorer.Group(profiles); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func (g *Greedy) score(members []model.Candidate) float64 {
	return g.scorer.Group(profilesOf(members))
}

func profilesOf(members []model.Candidate) []model.Profile {
	out := make([]model.Profile, len(members), len(members)+1)
	for i, m := range members {
		out[i] = m.Profile
	}
	return out
}

// ExpectedGroups returns the number of groups Assemble emits for n candidates,
// target size k and the given leftover absorb limit.
func ExpectedGroups(n, k, absorb int) int {
	if n < 2 || k < 2 {
		return 0
	}
	full, rest := n/k, n%k
	switch {
	case rest == 0:
		return full
	case full > 0 && rest <= absorb:
		return full
	default:
		return full + 1
	}
}
