package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a compare-and-set write lost a race.
	ErrConflict = errors.New("entity was modified concurrently")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("entity already exists")
)
