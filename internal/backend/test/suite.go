package test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/test"
)

// Suite implements a test suite for backends.
type Suite[C any] struct {
	// Config should be used to configure the backend.
	Config C

	// NewConfig returns a config for a new temporary backend that will be used in tests.
	NewConfig func() (C, error)

	// Open opens the backend described by cfg.
	Open func(cfg C) (backend.Backend, error)

	// Seed stores objects (key to content) so that they are visible to a
	// backend opened with cfg.
	Seed func(cfg C, objects map[string][]byte) error

	// Cleanup removes data created during the tests.
	Cleanup func(cfg C) error
}

// RunTests executes all defined tests as subtests of t.
func (s *Suite[C]) RunTests(t *testing.T) {
	var err error
	s.Config, err = s.NewConfig()
	if err != nil {
		t.Fatal(err)
	}

	// test the open function first
	be := s.open(t)
	s.close(t, be)

	for _, test := range s.testFuncs(t) {
		t.Run(test.Name, test.Fn)
	}

	if !test.TestCleanupTempDirs {
		t.Logf("not cleaning up backend")
		return
	}

	if s.Cleanup != nil {
		if err = s.Cleanup(s.Config); err != nil {
			t.Fatal(err)
		}
	}
}

type testFunction struct {
	Name string
	Fn   func(*testing.T)
}

func (s *Suite[C]) testFuncs(t testing.TB) (funcs []testFunction) {
	tpe := reflect.TypeOf(s)
	v := reflect.ValueOf(s)

	for i := 0; i < tpe.NumMethod(); i++ {
		methodType := tpe.Method(i)
		name := methodType.Name

		// discard functions which do not have the right name
		if !strings.HasPrefix(name, "Test") {
			continue
		}

		iface := v.Method(i).Interface()
		f, ok := iface.(func(*testing.T))
		if !ok {
			t.Logf("warning: function %v of *Suite has the wrong signature for a test function\nwant: func(*testing.T),\nhave: %T",
				name, iface)
			continue
		}

		funcs = append(funcs, testFunction{
			Name: name,
			Fn:   f,
		})
	}

	return funcs
}

func (s *Suite[C]) open(t testing.TB) backend.Backend {
	be, err := s.Open(s.Config)
	if err != nil {
		t.Fatal(err)
	}
	return be
}

func (s *Suite[C]) close(t testing.TB, be backend.Backend) {
	err := be.Close()
	if err != nil {
		t.Fatal(err)
	}
}

func (s *Suite[C]) seed(t testing.TB, objects map[string][]byte) {
	err := s.Seed(s.Config, objects)
	if err != nil {
		t.Fatal(err)
	}
}
