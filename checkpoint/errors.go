package checkpoint

import (
	"fmt"

	"github.com/smallnest/checkpointgo/serde"
)

// ConfigurationError reports an unusable saver configuration, such as a
// missing connection source or thread id. It is returned before any I/O.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("checkpoint configuration error: %s", e.Reason)
}

// StoreError reports a backend failure during one store request. The
// operation is never retried internally.
type StoreError struct {
	Op       string
	ThreadID string
	ThreadTS string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("checkpoint %s failed for thread %q ts %q: %v",
		e.Op, e.ThreadID, e.ThreadTS, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SerializationError is an alias for serde.SerializationError so callers
// can match on it without importing the serde package.
type SerializationError = serde.SerializationError
