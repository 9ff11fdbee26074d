package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"codecoach/internal/mocks"
	"codecoach/pkg/gateway"
	"codecoach/pkg/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type classifierFunc func(ctx context.Context, code string) (bool, gateway.Result)

func (f classifierFunc) Classify(ctx context.Context, code string) (bool, gateway.Result) {
	return f(ctx, code)
}

func staticClassifier(problematic bool, res gateway.Result) classifierFunc {
	return func(context.Context, string) (bool, gateway.Result) { return problematic, res }
}

func sampleOf(text string) Sampler {
	return func() (snapshot.Snapshot, bool) {
		return snapshot.New(text, 1), text != ""
	}
}

func newTestPoller(clock *mocks.FakeClock, cfg Config) *Poller {
	cfg.Interval = 15 * time.Second
	cfg.NewTicker = func(d time.Duration) Ticker { return clock.NewTicker(d) }
	return New(cfg)
}

func TestStartIsIdempotent(t *testing.T) {
	clock := mocks.NewFakeClock()
	p := newTestPoller(clock, Config{
		Sample:     sampleOf("x"),
		Classifier: staticClassifier(false, gateway.Succeeded("ALL_CLEAR")),
	})

	assert.True(t, p.Start(context.Background()))
	assert.False(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	require.Len(t, clock.Tickers(), 1, "second Start must not create another interval")
	assert.Equal(t, 15*time.Second, clock.LastTicker().Interval)

	p.Stop()
	assert.False(t, p.Running())
	assert.True(t, clock.LastTicker().Stopped())

	assert.NotPanics(t, p.Stop)
}

func TestRestartAfterStop(t *testing.T) {
	clock := mocks.NewFakeClock()
	p := newTestPoller(clock, Config{
		Sample:     sampleOf("x"),
		Classifier: staticClassifier(false, gateway.Succeeded("ALL_CLEAR")),
	})

	require.True(t, p.Start(context.Background()))
	p.Stop()
	require.True(t, p.Start(context.Background()))
	defer p.Stop()
	assert.Len(t, clock.Tickers(), 2)
}

func TestTicksNeverOverlap(t *testing.T) {
	clock := mocks.NewFakeClock()
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	var calls atomic.Int32

	p := newTestPoller(clock, Config{
		Sample: sampleOf("def foo(:\n"),
		Classifier: classifierFunc(func(ctx context.Context, _ string) (bool, gateway.Result) {
			calls.Add(1)
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
			}
			return false, gateway.Succeeded("ALL_CLEAR")
		}),
	})
	require.True(t, p.Start(context.Background()))
	ticker := clock.LastTicker()

	require.True(t, ticker.Tick())
	<-started

	for range 3 {
		require.True(t, ticker.Tick())
	}
	assert.Eventually(t, func() bool { return p.Skipped() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	p.Wait()

	require.True(t, ticker.Tick())
	<-started
	p.Stop()
	p.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmptySampleIsSkipped(t *testing.T) {
	clock := mocks.NewFakeClock()
	var calls atomic.Int32
	p := newTestPoller(clock, Config{
		Sample: sampleOf(""),
		Classifier: classifierFunc(func(context.Context, string) (bool, gateway.Result) {
			calls.Add(1)
			return true, gateway.Succeeded("ISSUES")
		}),
	})
	require.True(t, p.Start(context.Background()))
	require.True(t, clock.LastTicker().Tick())
	require.True(t, clock.LastTicker().Tick())
	p.Stop()
	p.Wait()

	assert.Zero(t, calls.Load())
	assert.Zero(t, p.Skipped())
}

func TestAlertOnProblems(t *testing.T) {
	tests := []struct {
		name        string
		problematic bool
		result      gateway.Result
		wantAlert   bool
	}{
		{name: "problematic", problematic: true, result: gateway.Succeeded("ISSUES"), wantAlert: true},
		{name: "all clear", problematic: false, result: gateway.Succeeded("ALL_CLEAR")},
		{name: "failure", problematic: false, result: gateway.Failed("transient: reset")},
		{name: "timeout", problematic: false, result: gateway.TimedOut("deadline")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := mocks.NewFakeClock()
			var mu sync.Mutex
			var alerts []snapshot.Snapshot

			p := newTestPoller(clock, Config{
				Sample:     sampleOf("def foo(:\n"),
				Classifier: staticClassifier(tt.problematic, tt.result),
				OnAlert: func(_ context.Context, snap snapshot.Snapshot) {
					mu.Lock()
					alerts = append(alerts, snap)
					mu.Unlock()
				},
			})
			require.True(t, p.Start(context.Background()))
			require.True(t, clock.LastTicker().Tick())
			require.True(t, clock.LastTicker().Tick()) // the first tick has been handed off
			p.Stop()
			p.Wait()

			mu.Lock()
			defer mu.Unlock()
			if tt.wantAlert {
				require.NotEmpty(t, alerts)
				assert.Equal(t, "def foo(:\n", alerts[0].Text)
			} else {
				assert.Empty(t, alerts)
			}
		})
	}
}

func TestStopDropsInFlightResult(t *testing.T) {
	clock := mocks.NewFakeClock()
	started := make(chan struct{}, 1)
	var alerted atomic.Bool

	p := newTestPoller(clock, Config{
		Sample: sampleOf("def foo(:\n"),
		Classifier: classifierFunc(func(ctx context.Context, _ string) (bool, gateway.Result) {
			started <- struct{}{}
			<-ctx.Done()
			return true, gateway.Succeeded("ISSUES")
		}),
		OnAlert: func(context.Context, snapshot.Snapshot) { alerted.Store(true) },
	})
	require.True(t, p.Start(context.Background()))
	require.True(t, clock.LastTicker().Tick())
	<-started

	p.Stop()
	p.Wait()
	assert.False(t, alerted.Load())
}

func TestRestartDropsResultOfStoppedRun(t *testing.T) {
	clock := mocks.NewFakeClock()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var alerted atomic.Bool

	p := newTestPoller(clock, Config{
		Sample: sampleOf("def foo(:\n"),
		// ignores ctx so the result arrives after the run that asked for it is gone
		Classifier: classifierFunc(func(context.Context, string) (bool, gateway.Result) {
			started <- struct{}{}
			<-release
			return true, gateway.Succeeded("ISSUES")
		}),
		OnAlert: func(context.Context, snapshot.Snapshot) { alerted.Store(true) },
	})
	require.True(t, p.Start(context.Background()))
	require.True(t, clock.LastTicker().Tick())
	<-started

	p.Stop()
	require.True(t, p.Start(context.Background()))
	close(release)
	p.Wait()

	assert.False(t, alerted.Load(), "a result from a stopped run must not alert the new run")
	assert.True(t, p.Running())
	p.Stop()
}

func TestPanickingAlertDoesNotKillLoop(t *testing.T) {
	clock := mocks.NewFakeClock()
	var alerts atomic.Int32
	p := newTestPoller(clock, Config{
		Sample:     sampleOf("def foo(:\n"),
		Classifier: staticClassifier(true, gateway.Succeeded("ISSUES")),
		OnAlert: func(context.Context, snapshot.Snapshot) {
			alerts.Add(1)
			panic("surface gone")
		},
	})
	require.True(t, p.Start(context.Background()))
	idleAfter := func(n int32) func() bool {
		return func() bool { return alerts.Load() == n && !p.inflight.Load() }
	}

	require.True(t, clock.LastTicker().Tick())
	require.Eventually(t, idleAfter(1), time.Second, time.Millisecond)
	require.True(t, clock.LastTicker().Tick())
	require.Eventually(t, idleAfter(2), time.Second, time.Millisecond)
	assert.True(t, p.Running())
	p.Stop()
	p.Wait()
	assert.Equal(t, int32(2), alerts.Load())
}
