package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")

	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")

	// ErrConstraintViolation is returned when a write breaks a schema constraint
	// other than key uniqueness.
	ErrConstraintViolation = errors.New("persistence: constraint violation")

	// ErrBusy is returned when the database stayed locked for every retry.
	ErrBusy = errors.New("persistence: database busy")
)
