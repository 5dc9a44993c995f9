package report

import "errors"

// Sentinel error kinds for this package.
var (
	ErrDecode       = errors.New("decode report feed")
	ErrNumericParse = errors.New("numeric parse")
)
