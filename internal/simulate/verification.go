package simulate

import (
	"errors"
	"fmt"

	"github.com/okian/huddle/internal/domain/grouping"
	"github.com/okian/huddle/internal/domain/model"
)

// ErrInvariant is wrapped by every verification failure.
var ErrInvariant = errors.New("assembly invariant violated")

// verifyFormations checks a local assembly: the group count matches
// ExpectedGroups, every candidate is placed exactly once, sizes stay within
// k+absorb and scores within [0, 1].
func verifyFormations(pool []model.Candidate, formations []grouping.Formation, k, absorb int) error {
	if want := grouping.ExpectedGroups(len(pool), k, absorb); len(formations) != want {
		return fmt.Errorf("%w: got %d groups, want %d", ErrInvariant, len(formations), want)
	}
	members := make([][]string, len(formations))
	for i, f := range formations {
		if len(f.Members) > k+absorb {
			return fmt.Errorf("%w: group %d has %d members, limit %d", ErrInvariant, i, len(f.Members), k+absorb)
		}
		if f.Score < 0 || f.Score > 1 {
			return fmt.Errorf("%w: group %d score %.3f outside [0,1]", ErrInvariant, i, f.Score)
		}
		members[i] = f.UserIDs()
	}
	return verifyAssignment(pool, members)
}

// verifyAssignment checks that the groups partition the pool.
func verifyAssignment(pool []model.Candidate, groups [][]string) error {
	want := make(map[string]struct{}, len(pool))
	for _, c := range pool {
		want[c.UserID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(pool))
	for i, ids := range groups {
		for _, id := range ids {
			if _, ok := want[id]; !ok {
				return fmt.Errorf("%w: group %d holds unknown user %s", ErrInvariant, i, id)
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("%w: user %s placed twice", ErrInvariant, id)
			}
			seen[id] = struct{}{}
		}
	}
	if len(seen) != len(want) {
		return fmt.Errorf("%w: %d of %d users placed", ErrInvariant, len(seen), len(want))
	}
	return nil
}
