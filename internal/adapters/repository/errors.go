package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("event not found")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrStorage      = errors.New("storage")
)
