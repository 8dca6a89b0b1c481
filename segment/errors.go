package segment

import (
	"errors"
	"fmt"
)

// ErrSegmentNotFound is returned when a segment id does not exist.
var ErrSegmentNotFound = errors.New("segment not found")

// ErrFileNotFound is returned when a file id has no segments in the store.
var ErrFileNotFound = errors.New("file not found in store")

// CorruptStoreError indicates the persisted translation memory could not
// be parsed. Callers should recover from the most recent backup snapshot
// rather than silently dropping data.
//
// The underlying cause can be accessed via errors.Unwrap.
type CorruptStoreError struct {
	Path  string
	cause error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt translation memory at %s: %v", e.Path, e.cause)
}

func (e *CorruptStoreError) Unwrap() error { return e.cause }
