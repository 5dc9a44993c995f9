package forecast

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	// ErrModelUnavailable means weights are missing or corrupt. The process
	// keeps running without forecasts.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInvalidArchitecture means the architecture config cannot describe
	// a model. Fatal at startup.
	ErrInvalidArchitecture = errors.New("invalid model architecture")
)

// InputShapeError reports a sequence the model cannot consume. It is a
// caller bug, not a runtime condition.
type InputShapeError struct {
	Want   int
	Got    int
	Row    int
	Reason string
}

func (e *InputShapeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("input shape: row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("input shape: want %d rows, got %d", e.Want, e.Got)
}
