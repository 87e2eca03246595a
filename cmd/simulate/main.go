package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/huddle/internal/simulate"
	"github.com/okian/huddle/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	var (
		candidates = flag.Int("candidates", simulate.DefaultCandidates, "Pool size per round")
		size       = flag.Int("size", simulate.DefaultGroupSize, "Target group size")
		absorb     = flag.Int("absorb", simulate.DefaultAbsorb, "Leftovers folded into existing groups")
		rounds     = flag.Int("rounds", simulate.DefaultRounds, "Number of pools")
		seed       = flag.Uint64("seed", 1, "Seed of the first pool")
		workers    = flag.Int("workers", runtime.NumCPU(), "Rounds assembled concurrently")
		baseURL    = flag.String("url", "", "Also post one pool to a running service")
		eventID    = flag.String("event", simulate.DefaultEventID, "Event id used with -url")
		timeout    = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Log every round")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	_, err = simulate.Run(ctx, simulate.Config{
		Candidates: *candidates,
		GroupSize:  *size,
		Absorb:     *absorb,
		Rounds:     *rounds,
		Seed:       *seed,
		Workers:    *workers,
		BaseURL:    *baseURL,
		EventID:    *eventID,
		Timeout:    *timeout,
		Verbose:    *verbose,
	}, logger.Named("simulate"))
	if err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
