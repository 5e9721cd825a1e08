package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources (unknown policy, learner, snapshot).
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrValidation marks a snapshot or payload that failed validation; nothing was committed.
	ErrValidation = errors.New("validation failed")
)
