// Package repository holds the errors shared by job store implementations.
package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a job is not in the status an update requires.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrLeaseLost is returned to a worker whose claim was reclaimed and handed to another worker.
	ErrLeaseLost = errors.New("job claim no longer held")
)
