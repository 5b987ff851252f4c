package test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/test"
)

func seedRand(t testing.TB) {
	seed := time.Now().UnixNano()
	rand.Seed(seed)
	t.Logf("rand initialized with seed %d", seed)
}

// testPrefix returns a fresh key prefix so that tests do not see each
// other's objects.
func testPrefix(name string) string {
	return fmt.Sprintf("%s-%08x/snapshots", strings.ToLower(name), rand.Uint32())
}

// TestList tests that List returns exactly the objects below the prefix,
// with their sizes.
func (s *Suite[C]) TestList(t *testing.T) {
	seedRand(t)

	numTestFiles := rand.Intn(20) + 20
	base := testPrefix("list")
	prefix := base + "/host-1/sstables/"

	objects := make(map[string][]byte)
	list1 := make(map[string]int64)
	for i := 0; i < numTestFiles; i++ {
		data := test.Random(rand.Int(), rand.Intn(100)+55)
		key := fmt.Sprintf("%smc-%d-big-Data.db", prefix, i)
		objects[key] = data
		list1[key] = int64(len(data))
	}

	// objects of another host must not show up
	objects[base+"/host-10/sstables/mc-1-big-Data.db"] = []byte("other host")
	objects[base+"/host-1/opscenter_adhoc_2019-01-01-10-00-00-UTC/backup.json"] = []byte("{}")

	s.seed(t, objects)

	b := s.open(t)
	defer s.close(t, b)

	list2 := make(map[string]int64)
	var order []string
	err := b.List(context.TODO(), prefix, func(fi backend.ObjectInfo) error {
		list2[fi.Key] = fi.Size
		order = append(order, fi.Key)
		return nil
	})
	if err != nil {
		t.Fatalf("List returned error %v", err)
	}

	t.Logf("listed %v objects", len(list2))

	for key, size := range list1 {
		size2, ok := list2[key]
		if !ok {
			t.Errorf("key %v not returned by List()", key)
		}

		if size != size2 {
			t.Errorf("wrong size for key %v returned: want %v, got %v", key, size, size2)
		}
	}

	for key := range list2 {
		if _, ok := list1[key]; !ok {
			t.Errorf("extra key %v returned by List()", key)
		}
	}

	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("List() did not return keys in lexical order: %v before %v", order[i-1], order[i])
		}
	}
}

// TestListCancel tests that the context is respected and the error is returned by List.
func (s *Suite[C]) TestListCancel(t *testing.T) {
	seedRand(t)

	numTestFiles := 5
	prefix := testPrefix("listcancel") + "/host-1/sstables/"

	objects := make(map[string][]byte)
	for i := 0; i < numTestFiles; i++ {
		objects[fmt.Sprintf("%smc-%d-big-Data.db", prefix, i)] = []byte(fmt.Sprintf("random test blob %v", i))
	}
	s.seed(t, objects)

	b := s.open(t)
	defer s.close(t, b)

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.TODO())
		cancel()

		// pass in a cancelled context
		err := b.List(ctx, prefix, func(fi backend.ObjectInfo) error {
			t.Errorf("got ObjectInfo %v for cancelled context", fi)
			return nil
		})

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected error not found, want %v, got %v", context.Canceled, err)
		}
	})

	t.Run("First", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.TODO())
		defer cancel()

		i := 0
		err := b.List(ctx, prefix, func(fi backend.ObjectInfo) error {
			i++
			// cancel the context on the first file
			if i == 1 {
				cancel()
			}
			return nil
		})

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected error not found, want %v, got %v", context.Canceled, err)
		}

		if i != 1 {
			t.Fatalf("wrong number of files returned by List, want %v, got %v", 1, i)
		}
	})

	t.Run("Last", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.TODO())
		defer cancel()

		i := 0
		err := b.List(ctx, prefix, func(fi backend.ObjectInfo) error {
			// cancel the context at the last file
			i++
			if i == numTestFiles {
				cancel()
			}
			return nil
		})

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected error not found, want %v, got %v", context.Canceled, err)
		}

		if i != numTestFiles {
			t.Fatalf("wrong number of files returned by List, want %v, got %v", numTestFiles, i)
		}
	})

	t.Run("Callback", func(t *testing.T) {
		sentinel := errors.New("stop listing")

		i := 0
		err := b.List(context.TODO(), prefix, func(fi backend.ObjectInfo) error {
			i++
			return sentinel
		})

		if !errors.Is(err, sentinel) {
			t.Fatalf("expected error not found, want %v, got %v", sentinel, err)
		}

		if i != 1 {
			t.Fatalf("List continued after the callback failed, %v calls", i)
		}
	})
}

// TestLoad tests the backend's Load function.
func (s *Suite[C]) TestLoad(t *testing.T) {
	seedRand(t)

	prefix := testPrefix("load")
	key := prefix + "/host-1/sstables/mc-1-big-Data.db"
	data := test.Random(23, rand.Intn(4<<10)+1)
	s.seed(t, map[string][]byte{key: data})

	b := s.open(t)
	defer s.close(t, b)

	err := b.Load(context.TODO(), prefix+"/host-1/sstables/does-not-exist", func(rd io.Reader) error {
		_, err := io.Copy(io.Discard, rd)
		return err
	})
	if err == nil {
		t.Fatalf("Load() did not return an error for a missing object")
	}
	if !b.IsNotExist(err) {
		t.Fatalf("IsNotExist() did not detect the error for a missing object: %v", err)
	}
	if !b.IsPermanentError(err) {
		t.Fatalf("IsPermanentError() did not detect the error for a missing object: %v", err)
	}

	buf, err := backend.LoadAll(context.TODO(), nil, b, key)
	test.OK(t, err)
	if !bytes.Equal(buf, data) {
		t.Fatalf("wrong data returned by Load(), want %d bytes, got %d bytes", len(data), len(buf))
	}

	// test that errors returned by the consumer are passed through
	testErr := errors.New("consumer error")
	err = b.Load(context.TODO(), key, func(rd io.Reader) error {
		return testErr
	})
	if !errors.Is(err, testErr) {
		t.Fatalf("Load() did not return the consumer error, got %v", err)
	}
}
