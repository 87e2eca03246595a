package service

import (
	"errors"
	"fmt"

	"github.com/okian/huddle/internal/adapters/repository"
	"github.com/okian/huddle/internal/domain/attendance"
	"github.com/okian/huddle/internal/domain/freeze"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/domain/streak"
)

// Sentinel kinds returned by the service. Domain errors are wrapped so callers
// only need to match these.
var (
	ErrInvalidInput = model.ErrInvalidInput
	ErrNotFound     = model.ErrNotFound

	ErrInvalidGroupSize   = fmt.Errorf("%w: group size must be at least 2", ErrInvalidInput)
	ErrTooManyCandidates  = fmt.Errorf("%w: too many candidates", ErrInvalidInput)
	ErrDuplicateCandidate = fmt.Errorf("%w: candidate listed twice", ErrInvalidInput)
)

// classify maps domain and store errors onto the service kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, freeze.ErrEventNotFound),
		errors.Is(err, attendance.ErrEventNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, freeze.ErrUnknownAction),
		errors.Is(err, attendance.ErrInvalidInput),
		errors.Is(err, attendance.ErrInvalidToken),
		errors.Is(err, streak.ErrInvalidKey):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
