package uncertainty

import "errors"

// ErrNoSamples is returned when fewer than two passes succeed; a standard
// deviation needs at least two.
var ErrNoSamples = errors.New("not enough samples")
