// Package metrics records orchestrator and LLM metrics.
package metrics

import "time"

// Poll tick results.
const (
	TickSampled         = "sampled"
	TickAlert           = "alert"
	TickSkippedInFlight = "skipped_in_flight"
	TickSkippedEmpty    = "skipped_empty"
)

// Recorder defines the interface for recording metrics.
type Recorder interface {
	// ObserveRequest records a completed provider call.
	ObserveRequest(
		model, operation string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveInference records a gateway result by operation and outcome.
	ObserveInference(operation, outcome string)

	// ObservePollTick records what one poller tick did.
	ObservePollTick(result string)

	// ObserveTransition records a navigator state change.
	ObserveTransition(from, to string)

	// ObserveSurface records the creation of a panel surface.
	ObserveSurface(panel string)

	// SessionOpened and SessionClosed track live sessions.
	SessionOpened()
	SessionClosed()
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

func (NoopRecorder) ObserveRequest(_, _ string, _, _ int, _ bool, _ string, _ time.Duration) {}
func (NoopRecorder) ObserveInference(_, _ string)                                            {}
func (NoopRecorder) ObservePollTick(_ string)                                                {}
func (NoopRecorder) ObserveTransition(_, _ string)                                           {}
func (NoopRecorder) ObserveSurface(_ string)                                                 {}
func (NoopRecorder) SessionOpened()                                                          {}
func (NoopRecorder) SessionClosed()                                                          {}

// OrNop returns r, or a no-op recorder when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop()
	}
	return r
}
