package store

import "errors"

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("store: record not found")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrConflict is returned when an optimistic transaction keeps losing races.
	ErrConflict = errors.New("store: too many concurrent updates")
	// ErrInvalidKey is returned for empty keys or session ids.
	ErrInvalidKey = errors.New("store: invalid key")
	// ErrCorruptRecord is returned when a persisted record cannot be decoded.
	ErrCorruptRecord = errors.New("store: corrupt record")
)
