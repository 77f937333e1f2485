package scheduling

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/flow-db/flowload/internal/common/flowcontext"
	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/loader/dispatch"
	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/internal/loader/metrics"
)

const cancelledBeforeDispatch = "run cancelled before the batch was dispatched"

type Config struct {
	// Upper bound on batches holding a slot, and so on requests in flight
	MaxConcurrency int
	// Extra attempts allowed for a batch that failed with a retryable outcome
	MaxRetries int
	// Delay before the first retry, doubled for each further retry
	RetryBackoff time.Duration
	// Cap on the delay between retries, zero for no cap
	MaxRetryBackoff time.Duration
}

func (c Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "maxConcurrency", Value: c.MaxConcurrency, Message: "must be at least 1"})
	}
	if c.MaxRetries < 0 {
		return errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "maxRetries", Value: c.MaxRetries, Message: "must not be negative"})
	}
	if c.RetryBackoff < 0 {
		return errors.WithStack(&flowerrors.ErrInvalidArgument{Name: "retryBackoff", Value: c.RetryBackoff, Message: "must not be negative"})
	}
	return nil
}

// Controller runs the batches of a pass through a fixed number of dispatch slots.
//
// Batches are admitted to slots in index order. A batch keeps its slot until it has a terminal result,
// including while waiting to retry, so retries never push the number of requests in flight above
// MaxConcurrency. Once the context is cancelled no further batch is admitted and no further retry is
// started: batches still waiting for a slot are recorded as cancelled, while requests already sent
// complete or time out.
type Controller struct {
	stream     string
	dispatcher dispatch.Dispatcher
	config     Config
	clock      clock.PassiveClock
	metrics    *metrics.Metrics
}

func NewController(stream string, dispatcher dispatch.Dispatcher, config Config, clock clock.PassiveClock, m *metrics.Metrics) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		stream:     stream,
		dispatcher: dispatcher,
		config:     config,
		clock:      clock,
		metrics:    m,
	}, nil
}

// RunPass blocks until every batch has a terminal result and returns the summary of the pass.
func (c *Controller) RunPass(ctx *flowcontext.Context, pass int, batches []domain.Batch) domain.PassSummary {
	startedAt := c.clock.Now()
	results := make([]domain.DispatchResult, len(batches))
	slots := semaphore.NewWeighted(int64(c.config.MaxConcurrency))
	tracker := &inFlightTracker{}
	wg := sync.WaitGroup{}

	admitted := 0
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		// Acquire may succeed on a cancelled context if a slot is free.
		if ctx.Err() != nil {
			slots.Release(1)
			break
		}
		admitted++
		wg.Add(1)
		go func(i int, batch domain.Batch) {
			defer wg.Done()
			defer slots.Release(1)
			tracker.start()
			c.metrics.BatchStarted(c.stream)
			results[i] = c.dispatchWithRetry(ctx, batch)
			c.metrics.BatchFinished(c.stream)
			tracker.finish()
			c.metrics.RecordBatch(c.stream, results[i])
		}(i, batch)
	}

	for i := admitted; i < len(batches); i++ {
		results[i] = cancelled(batches[i])
		c.metrics.RecordBatch(c.stream, results[i])
	}
	if admitted < len(batches) {
		ctx.Log.Warnf("pass cancelled, %d of %d batches not dispatched", len(batches)-admitted, len(batches))
	}

	wg.Wait()

	summary := domain.NewPassSummary(pass, results)
	summary.PeakInFlight = tracker.peakInFlight()
	summary.StartedAt = startedAt
	summary.FinishedAt = c.clock.Now()
	c.metrics.RecordPass(c.stream, summary)
	return summary
}

func (c *Controller) dispatchWithRetry(ctx *flowcontext.Context, batch domain.Batch) domain.DispatchResult {
	ctx = flowcontext.WithLogFields(ctx, logrus.Fields{"pass": batch.Pass, "batch": batch.Index})
	start := c.clock.Now()
	attempts := 0
	var last domain.DispatchResult

	_ = retry.Do(
		func() error {
			attempts++
			last = c.dispatcher.Dispatch(ctx, c.stream, batch)
			if last.Outcome == domain.Succeeded {
				return nil
			}
			ctx.Log.WithField("attempt", attempts).Debugf("batch %s: %s", last.Outcome, last.Reason)
			return &attemptFailed{result: last}
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.config.MaxRetries+1)),
		retry.Delay(c.config.RetryBackoff),
		retry.MaxDelay(c.config.MaxRetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var failed *attemptFailed
			return errors.As(err, &failed) && Retryable(failed.result)
		}),
	)

	if attempts == 0 {
		return cancelled(batch)
	}
	last.Attempts = attempts
	last.Duration = c.clock.Since(start)
	if last.Outcome != domain.Succeeded {
		ctx.Log.WithField("attempts", attempts).Warnf("batch %s: %s", last.Outcome, last.Reason)
	}
	return last
}

// Retryable reports whether a failed attempt may succeed if sent again: timeouts, transport errors,
// and the statuses a service uses for overload or transient failure. Any other rejection is final.
func Retryable(result domain.DispatchResult) bool {
	switch result.Outcome {
	case domain.TimedOut:
		return true
	case domain.Failed:
		code := result.StatusCode
		return code == 0 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
	default:
		return false
	}
}

func cancelled(batch domain.Batch) domain.DispatchResult {
	return domain.DispatchResult{
		Pass:       batch.Pass,
		BatchIndex: batch.Index,
		Outcome:    domain.Cancelled,
		Reason:     cancelledBeforeDispatch,
		Records:    len(batch.Records),
	}
}

type attemptFailed struct {
	result domain.DispatchResult
}

func (e *attemptFailed) Error() string {
	return e.result.Outcome.String() + ": " + e.result.Reason
}

type inFlightTracker struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (t *inFlightTracker) start() {
	n := t.current.Add(1)
	for {
		peak := t.peak.Load()
		if n <= peak || t.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (t *inFlightTracker) finish() {
	t.current.Add(-1)
}

func (t *inFlightTracker) peakInFlight() int {
	return int(t.peak.Load())
}
