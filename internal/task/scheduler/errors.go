package scheduler

import "errors"

var (
	// ErrNoTimer is returned when an operation needs a pending or in-flight task and none exists.
	ErrNoTimer = errors.New("no pending task")
	// ErrExistingTimer is returned by Start while tasks are still pending or in flight.
	ErrExistingTimer = errors.New("scheduler already running")
)
