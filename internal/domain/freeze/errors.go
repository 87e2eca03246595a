package freeze

import "errors"

// Sentinel errors for the freeze controller.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrUnknownAction = errors.New("unknown group action")
)
