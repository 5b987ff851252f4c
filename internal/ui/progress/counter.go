package progress

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yabinmeng/opscs3restore/internal/debug"
)

// A Func is a callback for a Counter.
//
// The final argument is true if Counter.Done has been called,
// which means that the current call will be the last.
type Func func(value uint64, total uint64, runtime time.Duration, final bool)

// A Counter tracks a running count and controls a goroutine that passes its
// value periodically to a Func.
//
// The Func is also called when SIGUSR1 (or SIGINFO, on BSD) is received.
type Counter struct {
	report  Func
	start   time.Time
	stopped chan struct{}
	stop    chan struct{}
	tick    *time.Ticker

	value, max atomic.Uint64
}

// NewCounter starts a new Counter. An interval of zero only reports on
// signals and on Done.
func NewCounter(interval time.Duration, total uint64, report Func) *Counter {
	c := &Counter{
		report:  report,
		start:   time.Now(),
		stopped: make(chan struct{}),
		stop:    make(chan struct{}),
	}
	c.max.Store(total)

	if interval > 0 {
		c.tick = time.NewTicker(interval)
	}

	go c.run()
	return c
}

// Add v to the Counter. This method is concurrency-safe.
func (c *Counter) Add(v uint64) {
	if c != nil {
		c.value.Add(v)
	}
}

// SetMax sets the maximum expected counter value. This method is concurrency-safe.
func (c *Counter) SetMax(max uint64) {
	if c != nil {
		c.max.Store(max)
	}
}

// Get returns the current value and the maximum of c.
// This method is concurrency-safe.
func (c *Counter) Get() (v, max uint64) {
	return c.value.Load(), c.max.Load()
}

// Done tells the Counter to stop and waits for the final report.
func (c *Counter) Done() {
	if c == nil {
		return
	}
	if c.tick != nil {
		c.tick.Stop()
	}
	close(c.stop)
	<-c.stopped
}

func (c *Counter) run() {
	defer close(c.stopped)
	defer func() {
		v, maxV := c.Get()
		c.report(v, maxV, time.Since(c.start), true)
	}()

	var tick <-chan time.Time
	if c.tick != nil {
		tick = c.tick.C
	}
	signalsCh := progressSignals()

	for {
		var now time.Time

		select {
		case now = <-tick:
		case sig := <-signalsCh:
			debug.Log("Signal received: %v\n", sig)
			now = time.Now()
		case <-c.stop:
			return
		}

		v, maxV := c.Get()
		c.report(v, maxV, now.Sub(c.start), false)
	}
}

// signals is a single global; only one listener receives each signal.
var signals struct {
	ch chan os.Signal
	sync.Once
}

func progressSignals() <-chan os.Signal {
	signals.Once.Do(func() {
		signals.ch = make(chan os.Signal, 1)
		setupSignals()
	})

	return signals.ch
}
