package domain

import "errors"

// Sentinel errors shared by every store implementation.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
