package sequence

import "errors"

// ErrEmptyHistory marks an event with no usable reports. Callers exclude
// the event; it is not a failure.
var ErrEmptyHistory = errors.New("empty history")
