package test

import (
	"context"
	"io"
	"math/rand"
	"sync"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// ErrorBackend is used to induce errors into various function calls and test
// the retry functions.
type ErrorBackend struct {
	FailList     float32
	FailLoad     float32
	FailLoadRead float32
	backend.Backend

	r *rand.Rand
	m sync.Mutex
}

// statically ensure that ErrorBackend implements Backend.
var _ backend.Backend = &ErrorBackend{}

// NewErrorBackend wraps be with a backend that returns errors according to
// given probabilities.
func NewErrorBackend(be backend.Backend, seed int64) *ErrorBackend {
	return &ErrorBackend{
		Backend: be,
		r:       rand.New(rand.NewSource(seed)),
	}
}

func (be *ErrorBackend) fail(p float32) bool {
	be.m.Lock()
	v := be.r.Float32()
	be.m.Unlock()

	return v < p
}

// List lists objects below prefix, failing before the first entry with
// probability FailList.
func (be *ErrorBackend) List(ctx context.Context, prefix string, fn func(backend.ObjectInfo) error) error {
	if be.fail(be.FailList) {
		return errors.Errorf("List(%v) random error induced", prefix)
	}

	return be.Backend.List(ctx, prefix, fn)
}

// Load returns a reader that yields the contents of the object at key.
func (be *ErrorBackend) Load(ctx context.Context, key string, consumer func(rd io.Reader) error) error {
	if be.fail(be.FailLoad) {
		return errors.Errorf("Load(%v) random error induced", key)
	}

	return be.Backend.Load(ctx, key, func(rd io.Reader) error {
		if be.fail(be.FailLoadRead) {
			return errors.Errorf("Load(%v) random error induced while reading", key)
		}
		return consumer(rd)
	})
}

func (be *ErrorBackend) Unwrap() backend.Backend {
	return be.Backend
}
