package retry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// Backend retries operations on the backend in case of an error with a
// backoff.
type Backend struct {
	backend.Backend
	MaxTries uint
	Report   func(string, error, time.Duration)
	Success  func(string, int)

	failedLoads sync.Map
}

// statically ensure that RetryBackend implements backend.Backend.
var _ backend.Backend = &Backend{}

// New wraps be with a backend that retries operations after a
// backoff. report is called with a description and the error, if one occurred.
// success is called with the number of retries before a successful operation
// (it is not called if it succeeded on the first try)
func New(be backend.Backend, maxTries uint, report func(string, error, time.Duration), success func(string, int)) *Backend {
	return &Backend{
		Backend:  be,
		MaxTries: maxTries,
		Report:   report,
		Success:  success,
	}
}

// retryNotifyErrorWithSuccess is an extension of backoff.RetryNotify with notification of success after an error.
// success is NOT notified on the first run of operation (only after an error).
func retryNotifyErrorWithSuccess(operation backoff.Operation, b backoff.BackOffContext, notify backoff.Notify, success func(retries int)) error {
	var operationWrapper backoff.Operation
	if success == nil {
		operationWrapper = operation
	} else {
		retries := 0
		operationWrapper = func() error {
			err := operation()
			if err != nil {
				retries++
			} else if retries > 0 {
				success(retries)
			}
			return err
		}
	}
	err := backoff.RetryNotify(operationWrapper, b, notify)

	if err != nil && notify != nil && b.Context().Err() == nil {
		// log final error, unless the context was canceled
		notify(err, -1)
	}
	return err
}

func withRetryAtLeastOnce(delegate *backoff.ExponentialBackOff) *retryAtLeastOnce {
	return &retryAtLeastOnce{delegate: delegate}
}

type retryAtLeastOnce struct {
	delegate *backoff.ExponentialBackOff
	numTries uint64
}

func (b *retryAtLeastOnce) NextBackOff() time.Duration {
	delay := b.delegate.NextBackOff()

	b.numTries++
	if b.numTries == 1 && b.delegate.Stop == delay {
		return b.delegate.InitialInterval
	}
	return delay
}

func (b *retryAtLeastOnce) Reset() {
	b.numTries = 0
	b.delegate.Reset()
}

var fastRetries = false

func (be *Backend) retry(ctx context.Context, msg string, f func() error) error {
	// Don't do anything when called with an already cancelled context. There would be
	// no retries in that case either, so be consistent and abort always.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 15 * time.Minute
	if fastRetries {
		// speed up tests
		bo.InitialInterval = 1 * time.Millisecond
		bo.MaxElapsedTime = 200 * time.Millisecond
	}

	var b backoff.BackOff = withRetryAtLeastOnce(bo)
	if be.MaxTries > 0 {
		b = backoff.WithMaxRetries(b, uint64(be.MaxTries-1))
	}

	err := retryNotifyErrorWithSuccess(
		func() error {
			err := f()
			// don't retry permanent errors as those very likely cannot be fixed by retrying
			if err != nil && !errors.Is(err, &backoff.PermanentError{}) && be.Backend.IsPermanentError(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			if be.Report != nil {
				be.Report(msg, err, d)
			}
		},
		func(retries int) {
			if be.Success != nil {
				be.Success(msg, retries)
			}
		},
	)

	return err
}

// Failed loads expire after an hour
var failedLoadExpiry = time.Hour

// Load runs consumer with a reader that yields the contents of the object at
// key. consumer is called again for every retry and must be idempotent.
func (be *Backend) Load(ctx context.Context, key string, consumer func(rd io.Reader) error) (err error) {
	// Implement the circuit breaker pattern for objects that exhausted all retries due to a non-permanent error
	if v, ok := be.failedLoads.Load(key); ok {
		if time.Since(v.(time.Time)) > failedLoadExpiry {
			be.failedLoads.Delete(key)
		} else {
			// fail immediately if the object was already problematic during the last hour
			return fmt.Errorf("circuit breaker open for object %v", key)
		}
	}

	err = be.retry(ctx, fmt.Sprintf("Load(%v)", key),
		func() error {
			return be.Backend.Load(ctx, key, consumer)
		})

	if err != nil && ctx.Err() == nil && !be.IsPermanentError(err) {
		// We've exhausted the retries, the object is likely inaccessible. By excluding permanent
		// errors, missing objects are not recorded.
		debug.Log("Load(%v) exhausted retries: %v", key, err)
		be.failedLoads.LoadOrStore(key, time.Now())
	}

	return err
}

// List runs fn for each object below prefix. When an error is returned by
// the underlying backend, the request is retried. When fn returns an error,
// the operation is aborted and the error is returned to the caller.
func (be *Backend) List(ctx context.Context, prefix string, fn func(backend.ObjectInfo) error) error {
	// create a new context that we can cancel when fn returns an error, so
	// that listing is aborted
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listed := make(map[string]struct{}) // remember for which objects we already ran fn
	var innerErr error                  // remember when fn returned an error, so we can return that to the caller

	err := be.retry(listCtx, fmt.Sprintf("List(%v)", prefix), func() error {
		return be.Backend.List(ctx, prefix, func(fi backend.ObjectInfo) error {
			if _, ok := listed[fi.Key]; ok {
				return nil
			}
			listed[fi.Key] = struct{}{}

			innerErr = fn(fi)
			if innerErr != nil {
				// if fn returned an error, listing is aborted, so we cancel the context
				cancel()
			}
			return innerErr
		})
	})

	// the error fn returned takes precedence
	if innerErr != nil {
		return innerErr
	}

	return err
}

func (be *Backend) Unwrap() backend.Backend {
	return be.Backend
}
