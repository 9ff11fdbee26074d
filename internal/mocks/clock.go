package mocks

import (
	"sync"
	"time"
)

// FakeTicker is a manually driven ticker. Tick blocks until the consumer receives.
type FakeTicker struct {
	ch       chan time.Time
	stopped  chan struct{}
	once     sync.Once
	Interval time.Duration
}

// NewFakeTicker returns a ticker that only fires on Tick.
func NewFakeTicker(d time.Duration) *FakeTicker {
	return &FakeTicker{ch: make(chan time.Time), stopped: make(chan struct{}), Interval: d}
}

func (t *FakeTicker) C() <-chan time.Time { return t.ch }

func (t *FakeTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

// Tick delivers one tick. It returns false if the ticker was stopped first.
func (t *FakeTicker) Tick() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-t.stopped:
		return false
	}
}

// Stopped reports whether Stop ran.
func (t *FakeTicker) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// FakeTimer is a manually fired one-shot timer.
type FakeTimer struct {
	ch       chan time.Time
	mu       sync.Mutex
	fired    bool
	stopped  bool
	Duration time.Duration
}

// NewFakeTimer returns a timer that only fires on Fire.
func NewFakeTimer(d time.Duration) *FakeTimer {
	return &FakeTimer{ch: make(chan time.Time, 1), Duration: d}
}

func (t *FakeTimer) C() <-chan time.Time { return t.ch }

// Stop reports whether the call prevented the timer from firing.
func (t *FakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Fire expires the timer unless it was stopped or already fired.
func (t *FakeTimer) Fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.fired = true
	t.ch <- time.Now()
	return true
}

// Stopped reports whether Stop cancelled the timer.
func (t *FakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// FakeClock hands out fake tickers and timers and remembers them for the test.
type FakeClock struct {
	mu      sync.Mutex
	tickers []*FakeTicker
	timers  []*FakeTimer
}

// NewFakeClock returns an empty clock.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

// NewTicker records and returns a FakeTicker.
func (c *FakeClock) NewTicker(d time.Duration) *FakeTicker {
	t := NewFakeTicker(d)
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// NewTimer records and returns a FakeTimer.
func (c *FakeClock) NewTimer(d time.Duration) *FakeTimer {
	t := NewFakeTimer(d)
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.mu.Unlock()
	return t
}

// Tickers returns every ticker created so far.
func (c *FakeClock) Tickers() []*FakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeTicker(nil), c.tickers...)
}

// Timers returns every timer created so far.
func (c *FakeClock) Timers() []*FakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeTimer(nil), c.timers...)
}

// LastTicker returns the newest ticker, or nil.
func (c *FakeClock) LastTicker() *FakeTicker {
	ts := c.Tickers()
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

// LastTimer returns the newest timer, or nil.
func (c *FakeClock) LastTimer() *FakeTimer {
	ts := c.Timers()
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}
