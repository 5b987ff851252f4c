// Package ui prints messages for the user.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/yabinmeng/opscs3restore/internal/ui/progress"
)

// Message prints messages on the terminal, filtered by verbosity. It is safe
// for concurrent use.
type Message struct {
	m         sync.Mutex
	stdout    io.Writer
	stderr    io.Writer
	verbosity uint
}

var _ progress.Printer = (*Message)(nil)

// NewMessage returns a Message writing regular output to stdout and errors to
// stderr. Verbosity 0 is quiet, 1 is the default.
func NewMessage(stdout, stderr io.Writer, verbosity uint) *Message {
	return &Message{stdout: stdout, stderr: stderr, verbosity: verbosity}
}

func (m *Message) print(w io.Writer, msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}

	m.m.Lock()
	defer m.m.Unlock()
	_, _ = io.WriteString(w, s)
}

// E prints an error message, regardless of verbosity.
func (m *Message) E(msg string, args ...interface{}) {
	m.print(m.stderr, msg, args...)
}

// P prints a message unless quiet.
func (m *Message) P(msg string, args ...interface{}) {
	if m.verbosity >= 1 {
		m.print(m.stdout, msg, args...)
	}
}

// V prints a message if verbose.
func (m *Message) V(msg string, args ...interface{}) {
	if m.verbosity >= 2 {
		m.print(m.stdout, msg, args...)
	}
}

// VV prints a message if very verbose.
func (m *Message) VV(msg string, args ...interface{}) {
	if m.verbosity >= 3 {
		m.print(m.stdout, msg, args...)
	}
}

// NewCounter returns a byte counter that reports through V every few seconds,
// or nil if not verbose.
func (m *Message) NewCounter(description string) *progress.Counter {
	if m.verbosity < 2 {
		return nil
	}
	return progress.NewCounter(5*time.Second, 0, func(value, total uint64, d time.Duration, final bool) {
		if final {
			m.V("%v: %v in %v", description, FormatBytes(value), FormatDuration(d))
			return
		}
		m.V("[%v] %v: %v of %v %v", FormatDuration(d), description,
			FormatBytes(value), FormatBytes(total), FormatPercent(value, total))
	})
}
