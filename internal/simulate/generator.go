package simulate

import (
	"math/rand/v2"
	"strconv"

	"github.com/okian/huddle/internal/domain/model"
)

// Constants for profile generation.
const (
	maxInterests = 4
	minEnergy    = 1
	maxEnergy    = 5
	// One candidate in noCityEvery leaves the city empty.
	noCityEvery = 10
	seedMix     = 0x9e3779b97f4a7c15
)

var (
	interestPool = []string{
		"music", "hiking", "chess", "cooking", "running", "film",
		"board games", "climbing", "photography", "books", "coffee", "yoga",
	}
	cityPool = []string{"Berlin", "Lisbon", "Paris", "Warsaw", "Madrid"}
)

// GeneratePool returns n candidates drawn deterministically from seed.
// User ids are "u-<seed>-<index>" so pools of different rounds never collide.
func GeneratePool(seed uint64, n int) []model.Candidate {
	r := rand.New(rand.NewPCG(seed, seed^seedMix))
	out := make([]model.Candidate, n)
	prefix := "u-" + strconv.FormatUint(seed, 10) + "-"
	for i := range out {
		id := prefix + strconv.Itoa(i)
		out[i] = model.Candidate{UserID: id, Profile: generateProfile(r, id)}
	}
	return out
}

func generateProfile(r *rand.Rand, id string) model.Profile {
	p := model.Profile{
		UserID:       id,
		SocialEnergy: minEnergy + r.IntN(maxEnergy-minEnergy+1),
	}
	for _, idx := range r.Perm(len(interestPool))[:1+r.IntN(maxInterests)] {
		p.Interests = append(p.Interests, interestPool[idx])
	}
	if r.IntN(noCityEvery) != 0 {
		p.City = cityPool[r.IntN(len(cityPool))]
	}
	return p
}
