package osu

import (
	"errors"
	"fmt"
)

// Sentinel errors for osu! API operations.
var (
	// ErrNotFound is returned when the API reports that a beatmap does not exist.
	ErrNotFound = errors.New("osu: beatmap not found")

	// ErrCredentials is returned when no access token could be obtained.
	ErrCredentials = errors.New("osu: credential exchange failed")

	// ErrInvalidID is returned for an empty beatmap identifier.
	ErrInvalidID = errors.New("osu: invalid beatmap id")
)

// StatusError reports an unexpected HTTP status from the API.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("osu: %s: unexpected status %s", e.Op, e.Status)
}
