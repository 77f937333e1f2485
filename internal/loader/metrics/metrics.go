package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flow-db/flowload/internal/loader/domain"
)

const FlowloadMetricsPrefix = "flowload_"

// Metrics exported by a load test run. A nil *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	batches         *prometheus.CounterVec
	records         *prometheus.CounterVec
	retries         *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
	passDuration    *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg. Passing prometheus.DefaultRegisterer exposes them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: FlowloadMetricsPrefix + "requests_total",
				Help: "Number of document batch requests sent, by outcome",
			},
			[]string{"stream", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    FlowloadMetricsPrefix + "request_duration_seconds",
				Help:    "Time taken by one document batch request, by outcome",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"stream", "outcome"},
		),
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: FlowloadMetricsPrefix + "batches_total",
				Help: "Number of batches reaching a terminal outcome",
			},
			[]string{"stream", "outcome"},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: FlowloadMetricsPrefix + "records_total",
				Help: "Number of records in batches reaching a terminal outcome",
			},
			[]string{"stream", "outcome"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: FlowloadMetricsPrefix + "retries_total",
				Help: "Number of requests resent after a failed or timed out attempt",
			},
			[]string{"stream"},
		),
		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: FlowloadMetricsPrefix + "batches_in_flight",
				Help: "Number of batches currently holding a dispatch slot",
			},
			[]string{"stream"},
		),
		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    FlowloadMetricsPrefix + "pass_duration_seconds",
				Help:    "Time taken by a full pass over all batches",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"stream", "complete"},
		),
	}
}

func (m *Metrics) RecordRequest(stream string, outcome domain.Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(stream, outcome.String()).Inc()
	m.requestDuration.WithLabelValues(stream, outcome.String()).Observe(duration.Seconds())
}

func (m *Metrics) RecordBatch(stream string, result domain.DispatchResult) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(stream, result.Outcome.String()).Inc()
	m.records.WithLabelValues(stream, result.Outcome.String()).Add(float64(result.Records))
	if retries := result.Retries(); retries > 0 {
		m.retries.WithLabelValues(stream).Add(float64(retries))
	}
}

func (m *Metrics) BatchStarted(stream string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(stream).Inc()
}

func (m *Metrics) BatchFinished(stream string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(stream).Dec()
}

func (m *Metrics) RecordPass(stream string, summary domain.PassSummary) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(stream, strconv.FormatBool(summary.Complete())).Observe(summary.Duration().Seconds())
}
