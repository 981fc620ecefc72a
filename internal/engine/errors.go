package engine

import (
	"errors"

	"planwork/internal/storage"
)

// ErrNotFound surfaces a referenced template/rule/bundle/task that does not
// exist. It is the same sentinel the storage layer returns, so callers can
// errors.Is() against either package.
var ErrNotFound = storage.ErrNotFound

// ErrInvalidInput rejects malformed or out-of-bounds input before any write.
var ErrInvalidInput = errors.New("invalid input")

// ErrInvalidState rejects a state change whose preconditions are unmet
// (e.g. completing a task with a required link unfilled). The entity is
// left unchanged.
var ErrInvalidState = errors.New("invalid state")
