package mock

import (
	"context"
	"io"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// Backend implements a mock backend.
type Backend struct {
	CloseFn            func() error
	IsNotExistFn       func(err error) bool
	IsPermanentErrorFn func(err error) bool
	OpenReaderFn       func(ctx context.Context, key string) (io.ReadCloser, error)
	ListFn             func(ctx context.Context, prefix string, fn func(backend.ObjectInfo) error) error
	ConnectionsFn      func() uint
}

// NewBackend returns new mock Backend instance
func NewBackend() *Backend {
	be := &Backend{}
	return be
}

// Close the backend.
func (m *Backend) Close() error {
	if m.CloseFn == nil {
		return nil
	}

	return m.CloseFn()
}

func (m *Backend) Connections() uint {
	if m.ConnectionsFn == nil {
		return 2
	}

	return m.ConnectionsFn()
}

// IsNotExist returns true if the error is caused by a missing object.
func (m *Backend) IsNotExist(err error) bool {
	if m.IsNotExistFn == nil {
		return false
	}

	return m.IsNotExistFn(err)
}

func (m *Backend) IsPermanentError(err error) bool {
	if m.IsPermanentErrorFn == nil {
		return false
	}

	return m.IsPermanentErrorFn(err)
}

// Load runs fn with a reader that yields the contents of the object at key.
func (m *Backend) Load(ctx context.Context, key string, fn func(rd io.Reader) error) error {
	return backend.DefaultLoad(ctx, key, m.openReader, fn)
}

func (m *Backend) openReader(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.OpenReaderFn == nil {
		return nil, errors.New("not implemented")
	}

	return m.OpenReaderFn(ctx, key)
}

// List objects below prefix.
func (m *Backend) List(ctx context.Context, prefix string, fn func(backend.ObjectInfo) error) error {
	if m.ListFn == nil {
		return nil
	}

	return m.ListFn(ctx, prefix, fn)
}

// Make sure that Backend implements the backend interface.
var _ backend.Backend = &Backend{}
