package source

import "errors"

// Sentinel error kinds for this package.
var (
	ErrFetch            = errors.New("fetch reports")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrNotConfigured    = errors.New("no source configured")
)
