package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	Candidates int           // Pool size per round
	GroupSize  int           // Target group size k
	Absorb     int           // Leftovers folded into existing groups
	Rounds     int           // Independent pools to assemble
	Seed       uint64        // Seed of the first round; round i uses Seed+i
	Workers    int           // Rounds assembled concurrently
	BaseURL    string        // Optional running service to exercise
	EventID    string        // Event used against BaseURL
	Timeout    time.Duration // HTTP request timeout
	Verbose    bool          // Log every round
}

// RoundResult is the outcome of assembling one pool.
type RoundResult struct {
	Round    int
	Groups   int
	Expected int
	Scores   []float64
	Duration time.Duration
}

// Report summarizes all rounds.
type Report struct {
	Rounds       int
	Groups       int
	Candidates   int
	MeanScore    float64
	MedianScore  float64
	P90Score     float64
	MinScore     float64
	RemoteGroups int
	Duration     time.Duration
}
