package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrDateConflict = errors.New("date conflicts with driver availability")

	ErrAlreadyDecided = errors.New("booking has already been decided")
)
