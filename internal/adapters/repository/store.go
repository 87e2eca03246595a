// Package repository defines the store ports used by the core and an in-memory implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/huddle/internal/domain/model"
)

// EventStore reads events owned by the event-management collaborator.
type EventStore interface {
	// GetEvent returns ErrNotFound if the event is unknown.
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	// UpsertEvent creates or replaces an event.
	UpsertEvent(ctx context.Context, e model.Event) error
	// ListUpcomingEvents returns events starting in [from, to) ordered by start.
	ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

// GroupStore persists groups and their members. Every bulk or lifecycle
// mutation is a conditional update on the current row state so concurrent
// callers converge.
type GroupStore interface {
	// CreateGroups inserts groups with their members in one atomic step. If any
	// member already belongs to a forming or locked group of the same event,
	// or appears twice in the batch, nothing is written and ErrAlreadyGrouped
	// is returned.
	CreateGroups(ctx context.Context, groups []model.GroupDetail) error
	// CreateGroup is CreateGroups for a single group.
	CreateGroup(ctx context.Context, g model.Group, members []model.GroupMember) error
	// ActiveMembers returns the members of every forming or locked group of the event.
	ActiveMembers(ctx context.Context, eventID string) ([]model.GroupMember, error)
	// GetGroup returns the group and its members, ErrNotFound if missing.
	GetGroup(ctx context.Context, groupID string) (model.Group, []model.GroupMember, error)
	// ListEventGroups returns the groups of an event ordered by creation.
	ListEventGroups(ctx context.Context, eventID string) ([]model.Group, error)

	// FreezeEventGroups sets frozen=true, status=locked on every forming,
	// unfrozen group of the event and returns the number of rows changed.
	FreezeEventGroups(ctx context.Context, eventID, actor string, at time.Time) (int, error)
	// UnfreezeEventGroups resets every frozen, not done group of the event to
	// forming and returns the number of rows changed.
	UnfreezeEventGroups(ctx context.Context, eventID string) (int, error)

	// ListStaleGroups returns forming, unfrozen groups created before the cutoff.
	ListStaleGroups(ctx context.Context, before time.Time) ([]model.Group, error)
	// CountMembers returns the number of members of a group.
	CountMembers(ctx context.Context, groupID string) (int, error)
	// FinalizeGroup locks a group that is still forming and unfrozen.
	// It reports false when the row no longer matches.
	FinalizeGroup(ctx context.Context, groupID string) (bool, error)
	// DeleteGroup removes a group that is still forming and unfrozen together
	// with its members. It reports false when the row no longer matches.
	DeleteGroup(ctx context.Context, groupID string) (bool, error)
}

// AttendanceStore records check-ins and registrations.
type AttendanceStore interface {
	// HasCheckedIn reports whether an attendance record exists for the pair.
	HasCheckedIn(ctx context.Context, userID, eventID string) (bool, error)
	// InsertAttendance appends a record; a second record for the same
	// (user, event) pair yields ErrDuplicate.
	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error
	// RegisterParticipant creates or keeps a registration.
	RegisterParticipant(ctx context.Context, p model.Participant) error
	// MarkParticipantCheckedIn updates the registration status, ErrNotFound if
	// the user is not registered for the event.
	MarkParticipantCheckedIn(ctx context.Context, eventID, userID string) error
	// AttendanceCounts returns the number of registrations and check-ins of an event.
	AttendanceCounts(ctx context.Context, eventID string) (registered, checkedIn int, err error)
}

// StreakFunc computes the next streak row from the previous one (nil if absent).
// Returning false leaves the stored row untouched.
type StreakFunc func(prev *model.UserStreak) (model.UserStreak, bool)

// StreakStore persists weekly attendance streaks.
type StreakStore interface {
	// GetStreak returns ErrNotFound if no row exists for the key.
	GetStreak(ctx context.Context, key model.StreakKey) (model.UserStreak, error)
	// ApplyStreak runs fn against the current row and stores its result
	// atomically with respect to other ApplyStreak calls on the same key.
	// It returns the resulting row and whether it was written.
	ApplyStreak(ctx context.Context, key model.StreakKey, fn StreakFunc) (model.UserStreak, bool, error)
}

// Store bundles every port.
type Store interface {
	EventStore
	GroupStore
	AttendanceStore
	StreakStore
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}
