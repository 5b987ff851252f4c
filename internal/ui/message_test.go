package ui

import (
	"bytes"
	"testing"

	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

func TestMessageVerbosity(t *testing.T) {
	for _, test := range []struct {
		verbosity uint
		stdout    string
	}{
		{0, ""},
		{1, "p\n"},
		{2, "p\nv\n"},
		{3, "p\nv\nvv\n"},
	} {
		var stdout, stderr bytes.Buffer
		m := NewMessage(&stdout, &stderr, test.verbosity)

		m.P("p")
		m.V("v")
		m.VV("vv\n")
		m.E("error %d", 1)

		rtest.Equals(t, test.stdout, stdout.String())
		rtest.Equals(t, "error 1\n", stderr.String())
	}
}

func TestMessageCounter(t *testing.T) {
	var stdout bytes.Buffer
	m := NewMessage(&stdout, &stdout, 1)
	rtest.Assert(t, m.NewCounter("download") == nil, "counter created without verbose")

	m = NewMessage(&stdout, &stdout, 2)
	c := m.NewCounter("download")
	rtest.Assert(t, c != nil, "no counter created")
	c.SetMax(2048)
	c.Add(1024)
	c.Done()

	rtest.Assert(t, bytes.Contains(stdout.Bytes(), []byte("download: 1.0 KiB")), "unexpected output %q", stdout.String())
}
