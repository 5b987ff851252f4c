package mem

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

type object struct {
	data    []byte
	modTime time.Time
}

// make sure that MemoryBackend implements backend.Backend
var _ backend.Backend = &MemoryBackend{}

var errNotFound = errors.New("not found")

const connectionCount = 2

// MemoryBackend is a mock backend that uses a map for storing all data in
// memory. This should only be used for tests.
type MemoryBackend struct {
	data map[string]object
	m    sync.Mutex
}

// New returns a new backend that keeps all objects in a map in memory.
func New() *MemoryBackend {
	be := &MemoryBackend{
		data: make(map[string]object),
	}

	debug.Log("created new memory backend")

	return be
}

// Put stores data under key, replacing an existing object.
func (be *MemoryBackend) Put(key string, data []byte) {
	be.m.Lock()
	defer be.m.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	be.data[key] = object{data: buf, modTime: time.Now()}
}

// Len returns the number of stored objects.
func (be *MemoryBackend) Len() int {
	be.m.Lock()
	defer be.m.Unlock()

	return len(be.data)
}

// IsNotExist returns true if the object does not exist.
func (be *MemoryBackend) IsNotExist(err error) bool {
	return errors.Is(err, errNotFound)
}

func (be *MemoryBackend) IsPermanentError(err error) bool {
	return be.IsNotExist(err)
}

// Load runs fn with a reader that yields the contents of the object at key.
func (be *MemoryBackend) Load(ctx context.Context, key string, fn func(rd io.Reader) error) error {
	return backend.DefaultLoad(ctx, key, be.openReader, fn)
}

func (be *MemoryBackend) openReader(ctx context.Context, key string) (io.ReadCloser, error) {
	be.m.Lock()
	defer be.m.Unlock()

	obj, ok := be.data[key]
	if !ok {
		return nil, errors.Wrap(errNotFound, key)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), ctx.Err()
}

// List runs fn for each object below prefix in lexical key order, like S3
// does.
func (be *MemoryBackend) List(ctx context.Context, prefix string, fn func(backend.ObjectInfo) error) error {
	var entries []backend.ObjectInfo

	be.m.Lock()
	for key, obj := range be.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		entries = append(entries, backend.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.modTime,
		})
	}
	be.m.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	for _, fi := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(fi)
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return ctx.Err()
}

func (be *MemoryBackend) Connections() uint {
	return connectionCount
}

// Close closes the backend.
func (be *MemoryBackend) Close() error {
	return nil
}
