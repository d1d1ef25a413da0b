package storage

import "errors"

var (
	// ErrConfigNotFound is returned when a user has no configuration record
	ErrConfigNotFound = errors.New("config record not found")

	// ErrStaleRevision is returned when the store already holds a newer snapshot
	ErrStaleRevision = errors.New("config record has a newer revision")
)
