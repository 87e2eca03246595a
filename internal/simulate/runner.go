// Package simulate assembles synthetic candidate pools, checks the grouping
// invariants on every result and reports score statistics. It can also drive
// a running service over HTTP.
package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/okian/huddle/internal/domain/grouping"
	"github.com/okian/huddle/pkg/logger"
)

// remoteLead is how far ahead the remote event starts, well past any freeze window.
const remoteLead = 7 * 24 * time.Hour

// Run executes every round and, when BaseURL is set, the remote check.
func Run(ctx context.Context, cfg Config, log logger.Logger) (Report, error) {
	cfg = withDefaults(cfg)
	start := time.Now()

	log.Info(ctx, "starting simulation",
		logger.Int("candidates", cfg.Candidates),
		logger.Int("groupSize", cfg.GroupSize),
		logger.Int("absorb", cfg.Absorb),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers),
		logger.String("baseURL", cfg.BaseURL))

	results, err := runRounds(ctx, cfg, log)
	if err != nil {
		return Report{}, err
	}
	report, err := summarize(results, cfg.Candidates)
	if err != nil {
		return Report{}, err
	}

	if cfg.BaseURL != "" {
		n, err := runRemote(ctx, cfg, log)
		if err != nil {
			return Report{}, fmt.Errorf("remote check: %w", err)
		}
		report.RemoteGroups = n
	}

	report.Duration = time.Since(start)
	log.Info(ctx, "simulation completed",
		logger.Int("groups", report.Groups),
		logger.Float64("meanScore", report.MeanScore),
		logger.Float64("medianScore", report.MedianScore),
		logger.Float64("p90Score", report.P90Score),
		logger.Float64("minScore", report.MinScore),
		logger.Int("remoteGroups", report.RemoteGroups),
		logger.Duration("duration", report.Duration))
	return report, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Candidates <= 0 {
		cfg.Candidates = DefaultCandidates
	}
	if cfg.GroupSize < 2 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.Absorb < 0 {
		cfg.Absorb = DefaultAbsorb
	}
	if cfg.Rounds <= 0 {
		cfg.Rounds = DefaultRounds
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.EventID == "" {
		cfg.EventID = DefaultEventID
	}
	return cfg
}

// runRounds assembles every round on a bounded errgroup. The first invariant
// violation cancels the rest.
func runRounds(ctx context.Context, cfg Config, log logger.Logger) ([]RoundResult, error) {
	assembler := grouping.NewGreedy(grouping.WithMaxLeftoverAbsorb(cfg.Absorb))
	results := make([]RoundResult, cfg.Rounds)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Rounds; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := runRound(assembler, cfg, i)
			if err != nil {
				return fmt.Errorf("round %d: %w", i, err)
			}
			if cfg.Verbose {
				log.Debug(gctx, "round done",
					logger.Int("round", i),
					logger.Int("groups", res.Groups),
					logger.Duration("duration", res.Duration))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runRound(assembler *grouping.Greedy, cfg Config, round int) (RoundResult, error) {
	pool := GeneratePool(cfg.Seed+uint64(round), cfg.Candidates)
	start := time.Now()
	formations := assembler.Assemble(pool, cfg.GroupSize)
	elapsed := time.Since(start)

	if err := verifyFormations(pool, formations, cfg.GroupSize, cfg.Absorb); err != nil {
		return RoundResult{}, err
	}
	scores := make([]float64, len(formations))
	for i, f := range formations {
		scores[i] = f.Score
	}
	return RoundResult{
		Round:    round,
		Groups:   len(formations),
		Expected: grouping.ExpectedGroups(len(pool), cfg.GroupSize, cfg.Absorb),
		Scores:   scores,
		Duration: elapsed,
	}, nil
}

func summarize(results []RoundResult, candidates int) (Report, error) {
	var scores []float64
	report := Report{Rounds: len(results), Candidates: candidates * len(results)}
	for _, r := range results {
		report.Groups += r.Groups
		scores = append(scores, r.Scores...)
	}
	if len(scores) == 0 {
		return report, nil
	}

	var err error
	if report.MeanScore, err = stats.Mean(scores); err != nil {
		return Report{}, fmt.Errorf("mean: %w", err)
	}
	if report.MedianScore, err = stats.Median(scores); err != nil {
		return Report{}, fmt.Errorf("median: %w", err)
	}
	if report.P90Score, err = stats.Percentile(scores, p90); err != nil {
		return Report{}, fmt.Errorf("p90: %w", err)
	}
	if report.MinScore, err = stats.Min(scores); err != nil {
		return Report{}, fmt.Errorf("min: %w", err)
	}
	return report, nil
}

// runRemote posts the first round's pool to the service and checks that the
// returned groups partition it.
func runRemote(ctx context.Context, cfg Config, log logger.Logger) (int, error) {
	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Ready(ctx); err != nil {
		return 0, err
	}
	if err := client.PutEvent(ctx, cfg.EventID, time.Now().Add(remoteLead)); err != nil {
		return 0, err
	}

	pool := GeneratePool(cfg.Seed, cfg.Candidates)
	res, err := client.Assemble(ctx, cfg.EventID, pool, cfg.GroupSize)
	if err != nil {
		return 0, err
	}
	if !res.Assembled {
		return 0, fmt.Errorf("service did not assemble: %s", res.Reason)
	}

	members := make([][]string, len(res.Groups))
	for i, g := range res.Groups {
		for _, m := range g.Members {
			members[i] = append(members[i], m.UserID)
		}
	}
	if err := verifyAssignment(pool, members); err != nil {
		return 0, err
	}
	log.Info(ctx, "remote assembly verified",
		logger.String("eventID", cfg.EventID),
		logger.Int("groups", len(res.Groups)))
	return len(res.Groups), nil
}
