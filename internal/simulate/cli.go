package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/huddle/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the global logger on stdout and, when logFile is
// set, on that file too. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	var w io.Writer = os.Stdout
	closer := func() error { return nil }
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = f.Close
	}
	if err := logger.Init(logger.WithWriter(w)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closer, nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Huddle Group Simulation
=======================

Assembles synthetic candidate pools with the greedy matcher, verifies the
grouping invariants and reports compatibility score statistics.

Usage:
  go run ./cmd/simulate [options]

Options:
  -candidates int   Pool size per round (default 200)
  -size int         Target group size (default 4)
  -absorb int       Leftovers folded into existing groups (default 2)
  -rounds int       Number of pools (default 20)
  -seed uint        Seed of the first pool (default 1)
  -workers int      Rounds assembled concurrently (default CPU cores)
  -url string       Also post one pool to a running service
  -event string     Event id used with -url (default "simulation")
  -timeout duration HTTP request timeout (default 30s)
  -log string       Also write logs to this file
  -verbose          Log every round
  -help             Show this help message

Examples:
  go run ./cmd/simulate -candidates 1000 -size 5 -rounds 50
  go run ./cmd/simulate -url http://localhost:9080 -event meetup-42
`)
}
