package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrNotFound reports a missing event, group, participant or streak row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a unique constraint violation, e.g. a second
	// attendance record for the same user and event.
	ErrDuplicate = errors.New("duplicate")
	// ErrAlreadyGrouped reports a user who already holds a seat in an active
	// group of the same event.
	ErrAlreadyGrouped = errors.New("already in an active group")
)
