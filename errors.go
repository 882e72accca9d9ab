package cachengine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey marks a logical key that is empty or whitespace-only.
	// Local validation; the caller can always recover by fixing input.
	ErrInvalidKey = errors.New("cachengine: key must be a non-empty string")

	// ErrUnsupported marks an operation the backend has no primitive for,
	// e.g. Increment on the file engine. A capability gap, not a failure.
	ErrUnsupported = errors.New("cachengine: operation not supported by this backend")

	// ErrBackendUnavailable marks an engine whose store cannot be reached.
	// Fatal for the instance; reconstruct after reconfiguring.
	ErrBackendUnavailable = errors.New("cachengine: backend unavailable")
)

// WriteError wraps a backend write failure with the composed key involved.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cachengine: write %q failed: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
