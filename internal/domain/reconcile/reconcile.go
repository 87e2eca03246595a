// Package reconcile resolves groups left in the forming state past a timeout.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

const (
	defaultStaleAfter = 5 * time.Minute
	minMembers        = 2
)

// Store is the group access the reconciler needs. FinalizeGroup and
// DeleteGroup must only act on rows that are still forming and unfrozen.
type Store interface {
	ListStaleGroups(ctx context.Context, before time.Time) ([]model.Group, error)
	CountMembers(ctx context.Context, groupID string) (int, error)
	FinalizeGroup(ctx context.Context, groupID string) (bool, error)
	DeleteGroup(ctx context.Context, groupID string) (bool, error)
}

// Report aggregates one sweep. Skipped counts groups another caller resolved
// between listing and the conditional write.
type Report struct {
	Finalized      int `json:"finalized"`
	Cleaned        int `json:"cleaned"`
	Skipped        int `json:"skipped"`
	Failed         int `json:"failed"`
	TotalProcessed int `json:"total_processed"`
}

// Reconciler finalizes stale groups with enough members and discards the rest.
type Reconciler struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
	logger     logger.Logger
}

// New creates a reconciler with configuration options.
func New(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      store,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep resolves every group that is forming, unfrozen and older than the
// stale timeout. Per-group failures are logged and counted; only a failure
// to list groups aborts the sweep. Repeated or concurrent sweeps are safe.
func (r *Reconciler) Sweep(ctx context.Context) (Report, error) {
	start := time.Now()
	cutoff := r.now().Add(-r.staleAfter)

	groups, err := r.store.ListStaleGroups(ctx, cutoff)
	if err != nil {
		metrics.RecordErrorByComponent("reconciler", "list")
		return Report{}, fmt.Errorf("list stale groups: %w", err)
	}

	var report Report
	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		report.TotalProcessed++
		if err := r.resolve(ctx, g, &report); err != nil {
			report.Failed++
			metrics.RecordErrorByComponent("reconciler", "group")
			r.logger.Error(ctx, "failed to reconcile group",
				logger.String("groupID", g.ID),
				logger.String("eventID", g.EventID),
				logger.Error(err),
			)
		}
	}

	metrics.RecordReconcileSweep(report.Finalized, report.Cleaned, report.Failed, float64(time.Since(start).Milliseconds()))
	if report.TotalProcessed > 0 {
		r.logger.Info(ctx, "reconciled stale groups",
			logger.Int("finalized", report.Finalized),
			logger.Int("cleaned", report.Cleaned),
			logger.Int("skipped", report.Skipped),
			logger.Int("failed", report.Failed),
			logger.Int("total_processed", report.TotalProcessed),
		)
	}
	return report, nil
}

func (r *Reconciler) resolve(ctx context.Context, g model.Group, report *Report) error {
	n, err := r.store.CountMembers(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}

	if n >= minMembers {
		ok, err := r.store.FinalizeGroup(ctx, g.ID)
		if err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		if ok {
			report.Finalized++
		} else {
			report.Skipped++
		}
		return nil
	}

	ok, err := r.store.DeleteGroup(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if ok {
		report.Cleaned++
	} else {
		report.Skipped++
	}
	return nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error(ctx, "reconcile sweep failed", logger.Error(err))
			}
		}
	}
}
