// Package freeze implements the group freeze lifecycle: the time-based
// freeze predicate, the guard consulted before group mutations, and the
// explicit bulk freeze and unfreeze transitions.
package freeze

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

const (
	defaultFreezeHours = 2

	// SystemActor stamps groups frozen by the automatic sweep.
	SystemActor  = "system"
	defaultActor = "admin"
)

// Action is a group mutation subject to the freeze guard.
type Action string

// Guarded actions.
const (
	ActionJoin     Action = "join"
	ActionLeave    Action = "leave"
	ActionReassign Action = "reassign"
	ActionChat     Action = "chat"
	ActionAssemble Action = "assemble"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionJoin, ActionLeave, ActionReassign, ActionChat, ActionAssemble:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// EventSource reads events.
type EventSource interface {
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// GroupLocker performs the conditional bulk transitions.
type GroupLocker interface {
	FreezeEventGroups(ctx context.Context, eventID, actor string, at time.Time) (int, error)
	UnfreezeEventGroups(ctx context.Context, eventID string) (int, error)
}

// GuardResult is the outcome of a guard check.
type GuardResult struct {
	Allowed  bool      `json:"allowed"`
	Reason   string    `json:"reason,omitempty"`
	FreezeAt time.Time `json:"freeze_at"`
}

// Result is the outcome of a bulk freeze or unfreeze.
type Result struct {
	Success  bool   `json:"success"`
	Affected int    `json:"affected"`
	Reason   string `json:"reason,omitempty"`
}

// Status describes the freeze state of an event.
type Status struct {
	EventID        string    `json:"event_id"`
	Frozen         bool      `json:"frozen"`
	FreezeAt       time.Time `json:"freeze_at"`
	OverrideLocked bool      `json:"override_locked"`
}

// Controller evaluates and applies freeze transitions.
type Controller struct {
	events EventSource
	groups GroupLocker

	now                 func() time.Time
	defaultFreezeHours  int
	guardHonorsOverride bool
	logger              logger.Logger
}

// NewController creates a freeze controller with configuration options.
func NewController(events EventSource, groups GroupLocker, opts ...Option) *Controller {
	c := &Controller{
		events:              events,
		groups:              groups,
		now:                 time.Now,
		defaultFreezeHours:  defaultFreezeHours,
		guardHonorsOverride: true,
		logger:              logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FreezeAt returns the instant from which the event's groups are frozen.
// A non-positive FreezeHoursBefore falls back to the default lead time.
func (c *Controller) FreezeAt(e model.Event) time.Time {
	hours := e.FreezeHoursBefore
	if hours <= 0 {
		hours = c.defaultFreezeHours
	}
	return e.StartsAt.Add(-time.Duration(hours) * time.Hour)
}

// frozenAt reports whether the freeze predicate holds at t.
func (c *Controller) frozenAt(e model.Event, t time.Time) bool {
	return !t.Before(c.FreezeAt(e))
}

// IsFrozen evaluates now >= startsAt - freezeHoursBefore. It never writes.
func (c *Controller) IsFrozen(ctx context.Context, eventID string) (bool, error) {
	e, err := c.event(ctx, eventID)
	if err != nil {
		return false, err
	}
	return c.frozenAt(e, c.now()), nil
}

// Status returns the freeze predicate together with its inputs.
func (c *Controller) Status(ctx context.Context, eventID string) (Status, error) {
	e, err := c.event(ctx, eventID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		EventID:        e.ID,
		Frozen:         c.frozenAt(e, c.now()),
		FreezeAt:       c.FreezeAt(e),
		OverrideLocked: e.FreezeOverrideLock,
	}, nil
}

// CheckGuard decides whether a group mutation may proceed for the event.
// Blocking is an expected outcome and is reported in the result, not as an error.
func (c *Controller) CheckGuard(ctx context.Context, eventID string, action Action) (GuardResult, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return GuardResult{}, err
	}
	e, err := c.event(ctx, eventID)
	if err != nil {
		return GuardResult{}, err
	}
	res := GuardResult{Allowed: true, FreezeAt: c.FreezeAt(e)}
	switch {
	case c.guardHonorsOverride && e.FreezeOverrideLock:
	case c.frozenAt(e, c.now()):
		res.Allowed = false
		res.Reason = fmt.Sprintf("groups for this event are frozen since %s; %s is no longer possible",
			res.FreezeAt.UTC().Format(time.RFC3339), action)
	}
	metrics.RecordGuardDecision(string(action), res.Allowed)
	return res, nil
}

// FreezeEventGroups locks every forming, unfrozen group of the event. It is
// refused while the event's override lock is set and is idempotent otherwise.
func (c *Controller) FreezeEventGroups(ctx context.Context, eventID, actor string) (Result, error) {
	e, err := c.event(ctx, eventID)
	if err != nil {
		return Result{}, err
	}
	if e.FreezeOverrideLock {
		metrics.RecordFreezeRefused()
		c.logger.Info(ctx, "freeze refused by override lock", logger.String("eventID", eventID))
		return Result{Success: false, Reason: "freeze override lock is active for this event"}, nil
	}
	if actor == "" {
		actor = defaultActor
	}
	n, err := c.groups.FreezeEventGroups(ctx, eventID, actor, c.now())
	if err != nil {
		return Result{}, fmt.Errorf("freeze groups of %s: %w", eventID, err)
	}
	metrics.RecordGroupsFrozen(n)
	c.logger.Info(ctx, "froze event groups",
		logger.String("eventID", eventID),
		logger.String("actor", actor),
		logger.Int("affected", n),
	)
	return Result{Success: true, Affected: n}, nil
}

// UnfreezeEventGroups reopens every frozen, not done group of the event.
// The override lock does not apply.
func (c *Controller) UnfreezeEventGroups(ctx context.Context, eventID string) (Result, error) {
	if _, err := c.event(ctx, eventID); err != nil {
		return Result{}, err
	}
	n, err := c.groups.UnfreezeEventGroups(ctx, eventID)
	if err != nil {
		return Result{}, fmt.Errorf("unfreeze groups of %s: %w", eventID, err)
	}
	metrics.RecordGroupsUnfrozen(n)
	c.logger.Info(ctx, "unfroze event groups", logger.String("eventID", eventID), logger.Int("affected", n))
	return Result{Success: true, Affected: n}, nil
}

// AutoFreezeReport summarizes one automatic freeze sweep.
type AutoFreezeReport struct {
	Events  int `json:"events"`
	Frozen  int `json:"frozen"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// AutoFreeze freezes the groups of every event whose freeze time has passed
// but which has not started yet, looking ahead by lookahead. Per-event
// failures are logged and counted.
func (c *Controller) AutoFreeze(ctx context.Context, lookahead time.Duration) (AutoFreezeReport, error) {
	now := c.now()
	events, err := c.events.ListUpcomingEvents(ctx, now, now.Add(lookahead))
	if err != nil {
		return AutoFreezeReport{}, fmt.Errorf("list upcoming events: %w", err)
	}
	var report AutoFreezeReport
	for _, e := range events {
		if !c.frozenAt(e, now) {
			continue
		}
		report.Events++
		res, err := c.FreezeEventGroups(ctx, e.ID, SystemActor)
		switch {
		case err != nil:
			report.Failed++
			metrics.RecordErrorByComponent("freeze", "auto_freeze")
			c.logger.Error(ctx, "auto freeze failed", logger.String("eventID", e.ID), logger.Error(err))
		case !res.Success:
			report.Skipped++
		default:
			report.Frozen += res.Affected
		}
	}
	metrics.RecordAutoFreezeSweep()
	return report, nil
}

// Run executes AutoFreeze every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, interval, lookahead time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.AutoFreeze(ctx, lookahead); err != nil && ctx.Err() == nil {
				c.logger.Error(ctx, "auto freeze sweep failed", logger.Error(err))
			}
		}
	}
}

func (c *Controller) event(ctx context.Context, eventID string) (model.Event, error) {
	e, err := c.events.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return e, nil
}
