package store

import "errors"

var (
	// ErrNotFound is returned when no document or row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when a unique email index rejects a write.
	ErrDuplicateEmail = errors.New("email already exists")
)
