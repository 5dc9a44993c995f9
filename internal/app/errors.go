package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrInferenceFailure means a forward pass failed or panicked; the
	// batch produces no decisions.
	ErrInferenceFailure = errors.New("inference failure")
	// ErrNotStarted is returned by operations that need the worker pool.
	ErrNotStarted = errors.New("service not started")
	// ErrHistoryUnavailable is returned when no run store is configured.
	ErrHistoryUnavailable = errors.New("run history not configured")
)
