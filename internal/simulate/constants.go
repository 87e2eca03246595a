package simulate

import "time"

// Defaults used when a Config field is left at zero.
const (
	DefaultCandidates = 200
	DefaultGroupSize  = 4
	DefaultAbsorb     = 2
	DefaultRounds     = 20
	DefaultTimeout    = 30 * time.Second
	DefaultEventID    = "simulation"
)

const p90 = 90
