package sema

import (
	"context"
	"io"

	"github.com/cenkalti/backoff/v4"
	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// make sure that connectionLimitedBackend implements backend.Backend
var _ backend.Backend = &connectionLimitedBackend{}

// connectionLimitedBackend limits the number of concurrent operations.
type connectionLimitedBackend struct {
	backend.Backend
	sem semaphore
}

// NewBackend creates a backend that limits the concurrent operations on the underlying backend
func NewBackend(be backend.Backend) backend.Backend {
	sem, err := newSemaphore(be.Connections())
	if err != nil {
		panic(err)
	}

	return &connectionLimitedBackend{
		Backend: be,
		sem:     sem,
	}
}

// Load runs fn with a reader that yields the contents of the object at key.
// The token is held until fn returns.
func (be *connectionLimitedBackend) Load(ctx context.Context, key string, fn func(rd io.Reader) error) error {
	if key == "" {
		return backoff.Permanent(errors.New("empty object key"))
	}

	be.sem.GetToken()
	defer be.sem.ReleaseToken()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return be.Backend.Load(ctx, key, fn)
}

// List is not limited: the S3 client lists in its own goroutine and hands
// results back through a channel, so holding a token here while fn starts a
// Load could deadlock.
func (be *connectionLimitedBackend) List(ctx context.Context, prefix string, fn func(backend.ObjectInfo) error) error {
	return be.Backend.List(ctx, prefix, fn)
}

func (be *connectionLimitedBackend) Unwrap() backend.Backend {
	return be.Backend
}
