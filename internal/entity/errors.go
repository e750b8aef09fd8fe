package entity

import "errors"

// Domain errors for entity management.
var (
	// ErrEntityNotFound is returned when an entity id is not registered.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrInvalidEntityID is returned for ids not of the form domain.object_id.
	ErrInvalidEntityID = errors.New("entity: invalid entity id")

	// ErrLoopStopped is returned when work is submitted after the loop exited.
	ErrLoopStopped = errors.New("entity: event loop stopped")
)
