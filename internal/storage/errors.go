package storage

import "errors"

// Storage errors shared across implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. For adjustment events this is how
	// the dedup guard surfaces: a repeated or concurrent detection run
	// inserting the same (player, format, type, bucket) event hits the
	// uniqueness constraint instead of double-creating the adjustment.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
