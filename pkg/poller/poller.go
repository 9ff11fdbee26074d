// Package poller periodically samples editor text and asks the gateway whether it looks
// problematic.
//
// At most one classification is outstanding at a time: a tick that fires while the
// previous call is still running is skipped and counted, never queued.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codecoach/pkg/gateway"
	"codecoach/pkg/logx"
	"codecoach/pkg/metrics"
	"codecoach/pkg/snapshot"
)

// Sampler returns the text to classify. false means there is nothing to sample.
type Sampler func() (snapshot.Snapshot, bool)

// Classifier is the part of the gateway the poller uses.
type Classifier interface {
	Classify(ctx context.Context, code string) (bool, gateway.Result)
}

// AlertFunc is called with the sampled snapshot when classification reports problems.
type AlertFunc func(ctx context.Context, snap snapshot.Snapshot)

// Ticker is the subset of time.Ticker the loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the loop's ticker.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// Config wires a Poller.
type Config struct {
	Interval   time.Duration
	Sample     Sampler
	Classifier Classifier
	OnAlert    AlertFunc
	Recorder   metrics.Recorder
	NewTicker  TickerFactory // nil uses NewRealTicker
}

// Poller runs the classification loop. Idle until Start, back to idle after Stop.
type Poller struct {
	cfg    Config
	logger *logx.Logger

	mu      sync.Mutex
	running bool
	run     uint64 // bumped by every Start
	cancel  context.CancelFunc
	done    chan struct{}

	inflight atomic.Bool
	skipped  atomic.Int64
	calls    sync.WaitGroup
}

// New returns an idle poller.
func New(cfg Config) *Poller {
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewRealTicker
	}
	cfg.Recorder = metrics.OrNop(cfg.Recorder)
	return &Poller{cfg: cfg, logger: logx.NewLogger("poller")}
}

// Start launches the loop. It returns false, and does nothing, when already running.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.run++
	p.cancel = cancel
	p.done = make(chan struct{})

	ticker := p.cfg.NewTicker(p.cfg.Interval)
	go p.loop(loopCtx, ticker, p.done, p.run)

	p.logger.DebugState("entered", "running", p.cfg.Interval.String())
	return true
}

// Stop cancels the loop and waits for it to exit. A classification already in flight is
// cancelled through its context and its result is dropped. Stop is idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.DebugState("entered", "idle")
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Skipped returns how many ticks were skipped because a call was still in flight.
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

// Wait blocks until every classification started by the poller has returned.
func (p *Poller) Wait() {
	p.calls.Wait()
}

// current reports whether run is still the active loop.
func (p *Poller) current(run uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.run == run
}

func (p *Poller) loop(ctx context.Context, ticker Ticker, done chan struct{}, run uint64) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.tick(ctx, run)
		}
	}
}

func (p *Poller) tick(ctx context.Context, run uint64) {
	if !p.inflight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.cfg.Recorder.ObservePollTick(metrics.TickSkippedInFlight)
		logx.Debug(ctx, "poller", "tick skipped: classification in flight")
		return
	}

	snap, ok := p.cfg.Sample()
	if !ok || snap.IsEmpty() {
		p.inflight.Store(false)
		p.cfg.Recorder.ObservePollTick(metrics.TickSkippedEmpty)
		return
	}

	p.calls.Add(1)
	go p.classify(ctx, snap, run)
}

// classify drops its result once the run that started it has been stopped, even if a new
// run has started since. OnAlert receives the run's context; a receiver that also calls
// Stop should check ctx.Err() under the lock it holds while stopping.
func (p *Poller) classify(ctx context.Context, snap snapshot.Snapshot, run uint64) {
	defer p.calls.Done()
	defer p.inflight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll tick panicked: %v", r)
		}
	}()

	p.cfg.Recorder.ObservePollTick(metrics.TickSampled)
	problematic, res := p.cfg.Classifier.Classify(ctx, snap.Text)
	if ctx.Err() != nil || !p.current(run) {
		logx.Debug(ctx, "poller", "result for snapshot #%d dropped: run %d stopped", snap.Seq, run)
		return
	}
	if !res.OK() {
		logx.Debug(ctx, "poller", "classification %s: %s", res.Outcome, res.Reason)
		return
	}
	if !problematic {
		return
	}

	p.cfg.Recorder.ObservePollTick(metrics.TickAlert)
	p.logger.Info("🔎 problems detected in snapshot #%d", snap.Seq)
	if p.cfg.OnAlert != nil {
		p.cfg.OnAlert(ctx, snap)
	}
}
