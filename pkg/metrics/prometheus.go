package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codecoach"

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inferenceTotal  *prometheus.CounterVec
	pollTicksTotal  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	surfacesTotal   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
}

// NewPrometheusRecorder registers the collectors with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of LLM requests by model, operation and status",
			},
			[]string{"model", "operation", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Total number of tokens used in LLM requests",
			},
			[]string{"model", "operation", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of LLM requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model", "operation"},
		),
		inferenceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inference_results_total",
				Help:      "Gateway results by operation and outcome (success, failure, timeout)",
			},
			[]string{"operation", "outcome"},
		),
		pollTicksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poller_ticks_total",
				Help:      "Change poller ticks by result",
			},
			[]string{"result"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "navigator_transitions_total",
				Help:      "Panel navigator state transitions",
			},
			[]string{"from", "to"},
		),
		surfacesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surfaces_created_total",
				Help:      "Panel surfaces created by panel name",
			},
			[]string{"panel"},
		),
		sessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of open editor sessions",
			},
		),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, operation string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(model, operation, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, operation, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, operation, "completion").Add(float64(completionTokens))
	}
	p.requestDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveInference(operation, outcome string) {
	p.inferenceTotal.WithLabelValues(operation, outcome).Inc()
}

func (p *PrometheusRecorder) ObservePollTick(result string) {
	p.pollTicksTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ObserveTransition(from, to string) {
	p.transitions.WithLabelValues(from, to).Inc()
}

func (p *PrometheusRecorder) ObserveSurface(panel string) {
	p.surfacesTotal.WithLabelValues(panel).Inc()
}

func (p *PrometheusRecorder) SessionOpened() { p.sessionsActive.Inc() }
func (p *PrometheusRecorder) SessionClosed() { p.sessionsActive.Dec() }
