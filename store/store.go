// Package store defines the object store that holds published mappacks.
//
// Objects are addressed by name (for mappacks, "{content key}.zip"). Because
// names are derived from content, an object is logically immutable once
// written: a second Put for the same name carries the same bytes, so
// overwriting is harmless and backends are not required to guard against it.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned by Get when no object exists under the name.
var ErrNotFound = errors.New("store: object not found")

// ErrInvalidName is returned when an object name is empty or unsafe.
var ErrInvalidName = errors.New("store: invalid object name")

// maxNameLen keeps names usable as file names and OCI tags.
const maxNameLen = 128

// Store is a persistent key-value blob store addressed by object name.
//
// The existence check is advisory: two writers racing on the same name may
// both observe a miss. Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether an object is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Get opens the object stored under name.
	// Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Put stores data under name, tagged with contentType.
	Put(ctx context.Context, name string, data []byte, contentType string) error
}

// ValidateName checks that name is a single, non-hidden path element.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidName, len(name), maxNameLen)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
