package grouping

import "github.com/okian/huddle/internal/domain/scoring"

// Option applies a configuration option to the Greedy assembler.
type Option func(*Greedy)

// WithScorer sets the scorer used to rank candidate groups.
func WithScorer(s scoring.Scorer) Option {
	return func(g *Greedy) {
		if s != nil {
			g.scorer = s
		}
	}
}

// WithMaxLeftoverAbsorb sets how many trailing candidates may be spread over
// existing groups instead of forming an undersized group.
func WithMaxLeftoverAbsorb(n int) Option {
	return func(g *Greedy) {
		if n >= 0 {
			g.maxLeftoverAbsorb = n
		}
	}
}
