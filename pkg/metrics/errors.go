package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrCollectorMissing = errors.New("metrics collector missing")
)
