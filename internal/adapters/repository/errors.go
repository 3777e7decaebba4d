package repository

import "errors"

// Sentinel kinds for transcript store errors.
var (
	ErrNotFound     = errors.New("meeting not found")
	ErrInvalidLimit = errors.New("invalid segment limit")
)
