package progress_test

import (
	"testing"
	"time"

	"github.com/yabinmeng/opscs3restore/internal/test"
	"github.com/yabinmeng/opscs3restore/internal/ui/progress"
)

func TestCounter(t *testing.T) {
	const N = 100
	const startTotal = uint64(12345)

	var (
		finalSeen  = false
		increasing = true
		last       uint64
		lastTotal  = startTotal
		ncalls     int
		nmaxChange int
	)

	report := func(value uint64, total uint64, d time.Duration, final bool) {
		if final {
			finalSeen = true
		}
		if value < last {
			increasing = false
		}
		last = value
		if total != lastTotal {
			nmaxChange++
		}
		lastTotal = total
		ncalls++
	}
	c := progress.NewCounter(10*time.Millisecond, startTotal, report)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < N; i++ {
			time.Sleep(time.Millisecond)
			c.Add(1)
		}
		c.SetMax(42)
	}()

	<-done
	c.Done()

	test.Assert(t, finalSeen, "final call did not happen")
	test.Assert(t, increasing, "values not increasing")
	test.Equals(t, uint64(N), last)
	test.Equals(t, uint64(42), lastTotal)
	test.Equals(t, int(1), nmaxChange)

	t.Log("number of calls:", ncalls)
}

func TestCounterNil(t *testing.T) {
	// Shouldn't panic.
	var c *progress.Counter
	c.Add(1)
	c.SetMax(42)
	c.Done()
}

func TestCounterNoInterval(t *testing.T) {
	var calls, finals int
	var last uint64
	c := progress.NewCounter(0, 0, func(value uint64, total uint64, d time.Duration, final bool) {
		calls++
		if final {
			finals++
		}
		last = value
	})
	c.Add(7)
	c.Done()

	test.Equals(t, 1, calls)
	test.Equals(t, 1, finals)
	test.Equals(t, uint64(7), last)
}

func TestNoopPrinter(t *testing.T) {
	var p progress.Printer = &progress.NoopPrinter{}
	p.P("ignored %d", 1)
	c := p.NewCounter("nothing")
	test.Assert(t, c == nil, "noop printer returned a counter")
	// nil counters are usable
	c.Add(1)
	c.Done()
}
