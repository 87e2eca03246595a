package attendance

import "errors"

// Sentinel errors for check-in and token handling.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidInput  = errors.New("invalid check-in input")
	ErrInvalidToken  = errors.New("malformed check-in token")
	ErrMissingSecret = errors.New("check-in token secret is empty")
)
