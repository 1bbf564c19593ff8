package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when a guarded append finds the record
	// already present (e.g. a second match for the same item).
	ErrAlreadyExists = errors.New("entity already exists")
)
