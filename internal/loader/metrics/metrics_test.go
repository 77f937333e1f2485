package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/flow-db/flowload/internal/loader/domain"
)

func TestRecordBatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBatch("cars", domain.DispatchResult{Outcome: domain.Succeeded, Attempts: 3, Records: 100})
	m.RecordBatch("cars", domain.DispatchResult{Outcome: domain.Failed, Attempts: 1, Records: 50})
	m.RecordBatch("cars", domain.DispatchResult{Outcome: domain.Succeeded, Attempts: 1, Records: 100})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("cars", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("cars", "failed")))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.records.WithLabelValues("cars", "succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("cars")))
}

func TestRecordRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRequest("cars", domain.TimedOut, time.Second)
	m.RecordRequest("cars", domain.TimedOut, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("cars", "timed-out")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestInFlight(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.BatchStarted("cars")
	m.BatchStarted("cars")
	m.BatchFinished("cars")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight.WithLabelValues("cars")))
}

func TestRecordPass(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	start := time.Now()

	m.RecordPass("cars", domain.PassSummary{StartedAt: start, FinishedAt: start.Add(time.Second)})
	m.RecordPass("cars", domain.PassSummary{Cancelled: 1, StartedAt: start, FinishedAt: start.Add(time.Second)})

	assert.Equal(t, 2, testutil.CollectAndCount(m.passDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("cars", domain.Succeeded, time.Second)
		m.RecordBatch("cars", domain.DispatchResult{})
		m.BatchStarted("cars")
		m.BatchFinished("cars")
		m.RecordPass("cars", domain.PassSummary{})
	})
}
