package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveRequest("gpt-4o-mini", "classify", 120, 2, true, "", 300*time.Millisecond)
	rec.ObserveRequest("gpt-4o-mini", "classify", 0, 0, false, "timeout", time.Second)
	rec.ObserveInference("classify", "success")
	rec.ObservePollTick(TickSkippedInFlight)
	rec.ObservePollTick(TickSkippedInFlight)
	rec.ObserveTransition("detecting", "start")
	rec.ObserveSurface("chat")
	rec.SessionOpened()
	rec.SessionOpened()
	rec.SessionClosed()

	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("gpt-4o-mini", "classify", "success", "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("gpt-4o-mini", "classify", "error", "timeout")), 0)
	assert.InDelta(t, 120, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("gpt-4o-mini", "classify", "prompt")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(rec.pollTicksTotal.WithLabelValues(TickSkippedInFlight)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.sessionsActive), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "codecoach_navigator_transitions_total")
	assert.Contains(t, names, "codecoach_surfaces_created_total")
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop(), OrNop(nil))
	rec := NewPrometheusRecorder(prometheus.NewRegistry())
	assert.Same(t, rec, OrNop(rec))
}
