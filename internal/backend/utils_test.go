package backend_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/backend/mem"
	"github.com/yabinmeng/opscs3restore/internal/backend/mock"
	"github.com/yabinmeng/opscs3restore/internal/backend/retry"
	"github.com/yabinmeng/opscs3restore/internal/backend/sema"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

func TestLoadAll(t *testing.T) {
	be := mem.New()
	var buf []byte

	for i := 0; i < 20; i++ {
		data := rtest.Random(23+i, 1024+i*37)
		key := "snapshots/host/sstables/mc-" + string(rune('a'+i)) + "-big-Data.db"
		be.Put(key, data)

		buf, err := backend.LoadAll(context.TODO(), buf, be, key)
		rtest.OK(t, err)

		if !bytes.Equal(buf, data) {
			t.Errorf("wrong data returned for %v", key)
		}
	}
}

func TestLoadAllBroken(t *testing.T) {
	be := mock.NewBackend()
	be.OpenReaderFn = func(ctx context.Context, key string) (io.ReadCloser, error) {
		return nil, errors.New("connection reset")
	}

	_, err := backend.LoadAll(context.TODO(), nil, be, "snapshots/host/opscenter_x/backup.json")
	rtest.Assert(t, err != nil, "expected error, got nil")
}

func TestLoadAllReusesBuffer(t *testing.T) {
	be := mem.New()
	data := rtest.Random(5, 512)
	be.Put("key", data)

	buf := make([]byte, 0, 4096)
	res, err := backend.LoadAll(context.TODO(), buf, be, "key")
	rtest.OK(t, err)
	rtest.Equals(t, data, res)
	rtest.Assert(t, cap(res) == 4096, "buffer was not reused, cap %d", cap(res))
}

type errorCloser struct {
	io.Reader
	closed bool
}

func (e *errorCloser) Close() error {
	e.closed = true
	return nil
}

func TestDefaultLoadClosesReader(t *testing.T) {
	rd := &errorCloser{Reader: bytes.NewReader([]byte("abc"))}
	err := backend.DefaultLoad(context.TODO(), "key", func(_ context.Context, _ string) (io.ReadCloser, error) {
		return rd, nil
	}, func(r io.Reader) error {
		return errors.New("consumer failed")
	})

	rtest.Assert(t, err != nil, "consumer error not returned")
	rtest.Assert(t, rd.closed, "reader not closed after consumer error")
}

func TestAsBackend(t *testing.T) {
	m := mem.New()
	be := retry.New(sema.NewBackend(m), 3, nil, nil)

	rtest.Assert(t, backend.AsBackend[*mem.MemoryBackend](be) == m, "did not find wrapped mem backend")
	rtest.Assert(t, backend.AsBackend[*retry.Backend](m) == nil, "found a backend that is not in the chain")
}
