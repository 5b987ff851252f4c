package backend

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a single object in the store.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Lister enumerates objects below a key prefix.
type Lister interface {
	// List runs fn for each object whose key starts with prefix, in the order
	// the store returns them. When an error occurs (or fn returns an error),
	// List stops and returns it.
	//
	// The function fn is called exactly once for each object during
	// successful execution and at most once in case of an error.
	//
	// The function fn is called in the same Goroutine that List() is called
	// from.
	List(ctx context.Context, prefix string, fn func(ObjectInfo) error) error
}

// Loader retrieves object contents.
type Loader interface {
	// Load runs fn with a reader that yields the contents of the object at
	// key.
	//
	// The function fn may be called multiple times during the same Load
	// invocation and therefore must be idempotent.
	//
	// Implementations are encouraged to use DefaultLoad.
	Load(ctx context.Context, key string, fn func(rd io.Reader) error) error
}

// Backend is a read-only view of the bucket holding the backups.
//
// Backend operations that return an error will be retried when a Backend is
// wrapped in a retry.Backend. To prevent that from happening, the operations
// should return a github.com/cenkalti/backoff/v4.PermanentError. Errors from
// the context package need not be wrapped, as context cancellation is checked
// separately by the retrying logic.
type Backend interface {
	Lister
	Loader

	// Connections returns the maximum number of concurrent backend operations.
	Connections() uint

	// IsNotExist returns true if the error was caused by a non-existing
	// object in the backend.
	//
	// The argument may be a wrapped error. The implementation is responsible
	// for unwrapping it.
	IsNotExist(err error) bool

	// IsPermanentError returns true if the error can very likely not be
	// resolved by retrying the operation. Backends should return true if the
	// object is missing or the user is not authorized to read it.
	IsPermanentError(err error) bool

	// Close the backend
	Close() error
}

type Unwrapper interface {
	// Unwrap returns the underlying backend or nil if there is none.
	Unwrap() Backend
}

// AsBackend walks the chain of wrapped backends and returns the first one of
// type B, or the zero value if there is none.
func AsBackend[B Backend](b Backend) B {
	for b != nil {
		if be, ok := b.(B); ok {
			return be
		}

		if be, ok := b.(Unwrapper); ok {
			b = be.Unwrap()
		} else {
			// not the backend we're looking for
			break
		}
	}
	var be B
	return be
}
