package model

import "errors"

// Error kinds shared across layers. Services wrap domain failures with these
// so transports can map them without knowing every package's sentinels.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)
