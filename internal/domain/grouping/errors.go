package grouping

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrMalformedRecord marks a report missing a required field. Such
	// reports are dropped; the batch continues.
	ErrMalformedRecord = errors.New("malformed record")
	ErrTimestamp       = errors.New("unparseable timestamp")
)
