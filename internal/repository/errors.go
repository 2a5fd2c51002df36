// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// booking engine and the handlers to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup by primary key yields no rows.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update cannot be performed because of
// conflicting state, such as rescheduling a showtime that already has
// tickets.  Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
