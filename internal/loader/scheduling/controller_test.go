package scheduling

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/flow-db/flowload/internal/common/flowcontext"
	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/common/logging"
	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/pkg/api"
)

// stubDispatcher records how it is called and answers with respond, which defaults to success.
type stubDispatcher struct {
	delay   time.Duration
	respond func(batch domain.Batch, attempt int) domain.DispatchResult
	// If set, every dispatch signals started and then blocks until release is closed
	started chan int
	release chan struct{}

	mu       sync.Mutex
	inFlight int
	peak     int
	order    []int
	attempts map[int]int
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{attempts: map[int]int{}}
}

func (d *stubDispatcher) Dispatch(_ context.Context, _ string, batch domain.Batch) domain.DispatchResult {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.peak {
		d.peak = d.inFlight
	}
	d.order = append(d.order, batch.Index)
	d.attempts[batch.Index]++
	attempt := d.attempts[batch.Index]
	d.mu.Unlock()

	if d.started != nil {
		d.started <- batch.Index
		<-d.release
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	result := domain.DispatchResult{Pass: batch.Pass, BatchIndex: batch.Index, Outcome: domain.Succeeded, StatusCode: http.StatusCreated, Attempts: 1, Records: len(batch.Records)}
	if d.respond != nil {
		result = d.respond(batch, attempt)
		result.Pass, result.BatchIndex, result.Attempts, result.Records = batch.Pass, batch.Index, 1, len(batch.Records)
	}

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
	return result
}

func (d *stubDispatcher) dispatchOrder() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.order...)
}

func makeBatches(pass int, count int, size int) []domain.Batch {
	batches := make([]domain.Batch, count)
	for i := range batches {
		batches[i] = domain.Batch{
			Pass:    pass,
			Index:   i,
			Range:   domain.Range{Start: i * size, End: (i + 1) * size},
			Records: make([]api.Record, size),
		}
	}
	return batches
}

func testContext() *flowcontext.Context {
	return flowcontext.New(context.Background(), logrus.NewEntry(logging.NullLogger))
}

func newController(t *testing.T, dispatcher *stubDispatcher, config Config) *Controller {
	c, err := NewController("cars", dispatcher, config, clock.RealClock{}, nil)
	require.NoError(t, err)
	return c
}

func assertBalanced(t *testing.T, summary domain.PassSummary) {
	assert.Equal(t, summary.Batches, summary.Succeeded+summary.Failed+summary.TimedOut+summary.Cancelled)
	assert.Len(t, summary.Results, summary.Batches)
	for i, r := range summary.Results {
		assert.Equal(t, i, r.BatchIndex, "results must be ordered by batch index")
	}
}

func TestRunPass_NeverExceedsMaxConcurrency(t *testing.T) {
	for _, maxConcurrency := range []int{1, 3, 10} {
		dispatcher := newStubDispatcher()
		dispatcher.delay = 5 * time.Millisecond
		c := newController(t, dispatcher, Config{MaxConcurrency: maxConcurrency})

		summary := c.RunPass(testContext(), 1, makeBatches(1, 40, 10))

		assert.LessOrEqual(t, dispatcher.peak, maxConcurrency)
		assert.LessOrEqual(t, summary.PeakInFlight, maxConcurrency)
		assert.GreaterOrEqual(t, summary.PeakInFlight, 1)
		assert.Equal(t, 40, summary.Succeeded)
		assertBalanced(t, summary)
	}
}

func TestRunPass_DispatchesEveryBatchExactlyOnce(t *testing.T) {
	dispatcher := newStubDispatcher()
	c := newController(t, dispatcher, Config{MaxConcurrency: 7, MaxRetries: 3})

	summary := c.RunPass(testContext(), 1, makeBatches(1, 100, 10))

	require.Len(t, dispatcher.attempts, 100)
	for index, attempts := range dispatcher.attempts {
		assert.Equal(t, 1, attempts, "batch %d", index)
	}
	assert.Equal(t, 100, summary.Succeeded)
	assert.Equal(t, 0, summary.Retries)
	assertBalanced(t, summary)
}

func TestRunPass_AdmitsInIndexOrder(t *testing.T) {
	dispatcher := newStubDispatcher()
	c := newController(t, dispatcher, Config{MaxConcurrency: 1})

	c.RunPass(testContext(), 1, makeBatches(1, 20, 1))

	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, dispatcher.dispatchOrder())
}

func TestRunPass_FailuresAreRecorded(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.respond = func(batch domain.Batch, _ int) domain.DispatchResult {
		if batch.Index%3 == 0 {
			return domain.DispatchResult{Outcome: domain.Failed, StatusCode: http.StatusBadRequest, Reason: "status 400"}
		}
		return domain.DispatchResult{Outcome: domain.Succeeded, StatusCode: http.StatusCreated}
	}
	c := newController(t, dispatcher, Config{MaxConcurrency: 4, MaxRetries: 2})

	summary := c.RunPass(testContext(), 1, makeBatches(1, 10, 10))

	assert.Equal(t, 4, summary.Failed)
	assert.Equal(t, 6, summary.Succeeded)
	assert.Equal(t, 60, summary.RecordsSucceeded)
	assert.Equal(t, 100, summary.RecordsAttempted)
	assert.Equal(t, 0, summary.Retries, "client errors are not retried")
	assert.Equal(t, "status 400", summary.Results[0].Reason)
	assertBalanced(t, summary)
}

func TestRunPass_RetriesUntilSuccess(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.respond = func(_ domain.Batch, attempt int) domain.DispatchResult {
		if attempt < 3 {
			return domain.DispatchResult{Outcome: domain.Failed, StatusCode: http.StatusServiceUnavailable}
		}
		return domain.DispatchResult{Outcome: domain.Succeeded, StatusCode: http.StatusCreated}
	}
	c := newController(t, dispatcher, Config{MaxConcurrency: 2, MaxRetries: 3, RetryBackoff: time.Millisecond})

	summary := c.RunPass(testContext(), 1, makeBatches(1, 4, 10))

	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 8, summary.Retries)
	for _, r := range summary.Results {
		assert.Equal(t, 3, r.Attempts)
	}
	assertBalanced(t, summary)
}

func TestRunPass_RetriesExhausted(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.respond = func(_ domain.Batch, _ int) domain.DispatchResult {
		return domain.DispatchResult{Outcome: domain.TimedOut, Reason: "no response within request timeout"}
	}
	c := newController(t, dispatcher, Config{MaxConcurrency: 2, MaxRetries: 2, RetryBackoff: time.Millisecond, MaxRetryBackoff: 2 * time.Millisecond})

	summary := c.RunPass(testContext(), 1, makeBatches(1, 3, 10))

	assert.Equal(t, 3, summary.TimedOut)
	for index, attempts := range dispatcher.attempts {
		assert.Equal(t, 3, attempts, "batch %d", index)
	}
	assert.Equal(t, 3, summary.Results[0].Attempts)
	assertBalanced(t, summary)
}

func TestRunPass_RetriesHoldTheirSlot(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.delay = 2 * time.Millisecond
	dispatcher.respond = func(_ domain.Batch, attempt int) domain.DispatchResult {
		if attempt == 1 {
			return domain.DispatchResult{Outcome: domain.Failed, StatusCode: http.StatusInternalServerError}
		}
		return domain.DispatchResult{Outcome: domain.Succeeded}
	}
	c := newController(t, dispatcher, Config{MaxConcurrency: 3, MaxRetries: 1})

	summary := c.RunPass(testContext(), 1, makeBatches(1, 30, 10))

	assert.LessOrEqual(t, dispatcher.peak, 3)
	assert.Equal(t, 30, summary.Succeeded)
	assert.Equal(t, 30, summary.Retries)
}

func TestRunPass_Cancellation(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.started = make(chan int)
	dispatcher.release = make(chan struct{})
	c := newController(t, dispatcher, Config{MaxConcurrency: 2})

	ctx, cancel := flowcontext.WithCancel(testContext())
	done := make(chan domain.PassSummary)
	go func() {
		done <- c.RunPass(ctx, 1, makeBatches(1, 20, 10))
	}()

	// Both slots are taken, so batch 2 is waiting for admission when the pass is cancelled.
	first, second := <-dispatcher.started, <-dispatcher.started
	cancel()
	close(dispatcher.release)
	summary := <-done

	assert.ElementsMatch(t, []int{0, 1}, []int{first, second})
	assert.Equal(t, 2, summary.Succeeded, "requests in flight when cancelled complete")
	assert.Equal(t, 18, summary.Cancelled)
	assert.Len(t, dispatcher.dispatchOrder(), 2, "no batch is admitted after cancellation")
	for _, r := range summary.Results[2:] {
		assert.Equal(t, domain.Cancelled, r.Outcome)
		assert.Equal(t, 0, r.Attempts)
	}
	assert.Equal(t, 20, summary.RecordsAttempted)
	assertBalanced(t, summary)
}

func TestRunPass_CancellationStopsRetries(t *testing.T) {
	dispatcher := newStubDispatcher()
	dispatcher.respond = func(_ domain.Batch, _ int) domain.DispatchResult {
		return domain.DispatchResult{Outcome: domain.Failed, StatusCode: http.StatusBadGateway, Reason: "status 502"}
	}
	c := newController(t, dispatcher, Config{MaxConcurrency: 1, MaxRetries: 5, RetryBackoff: time.Hour})

	ctx, cancel := flowcontext.WithCancel(testContext())
	time.AfterFunc(50*time.Millisecond, cancel)
	summary := c.RunPass(ctx, 1, makeBatches(1, 3, 10))

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Results[0].Attempts)
	assert.Equal(t, "status 502", summary.Results[0].Reason)
	assert.Equal(t, 2, summary.Cancelled)
	assertBalanced(t, summary)
}

func TestRunPass_AlreadyCancelled(t *testing.T) {
	dispatcher := newStubDispatcher()
	c := newController(t, dispatcher, Config{MaxConcurrency: 4})

	ctx, cancel := flowcontext.WithCancel(testContext())
	cancel()
	summary := c.RunPass(ctx, 1, makeBatches(1, 5, 10))

	assert.Equal(t, 5, summary.Cancelled)
	assert.Empty(t, dispatcher.dispatchOrder())
	assertBalanced(t, summary)
}

func TestRunPass_Empty(t *testing.T) {
	c := newController(t, newStubDispatcher(), Config{MaxConcurrency: 4})
	summary := c.RunPass(testContext(), 3, nil)
	assert.Equal(t, 3, summary.Pass)
	assert.Equal(t, 0, summary.Batches)
	assertBalanced(t, summary)
}

func TestRunPass_Timestamps(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fakeClock := clocktesting.NewFakeClock(start)
	c, err := NewController("cars", newStubDispatcher(), Config{MaxConcurrency: 1}, fakeClock, nil)
	require.NoError(t, err)

	summary := c.RunPass(testContext(), 1, makeBatches(1, 2, 10))

	assert.Equal(t, start, summary.StartedAt)
	assert.Equal(t, start, summary.FinishedAt)
}

func TestNewController_InvalidConfig(t *testing.T) {
	tests := map[string]struct {
		config Config
		field  string
	}{
		"zero concurrency":     {Config{MaxConcurrency: 0}, "maxConcurrency"},
		"negative retries":     {Config{MaxConcurrency: 1, MaxRetries: -1}, "maxRetries"},
		"negative backoff":     {Config{MaxConcurrency: 1, RetryBackoff: -time.Second}, "retryBackoff"},
		"negative concurrency": {Config{MaxConcurrency: -3}, "maxConcurrency"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewController("cars", newStubDispatcher(), tc.config, clock.RealClock{}, nil)
			var invalid *flowerrors.ErrInvalidArgument
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tc.field, invalid.Name)
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := map[string]struct {
		result domain.DispatchResult
		want   bool
	}{
		"succeeded":         {domain.DispatchResult{Outcome: domain.Succeeded}, false},
		"cancelled":         {domain.DispatchResult{Outcome: domain.Cancelled}, false},
		"timed out":         {domain.DispatchResult{Outcome: domain.TimedOut}, true},
		"transport error":   {domain.DispatchResult{Outcome: domain.Failed}, true},
		"server error":      {domain.DispatchResult{Outcome: domain.Failed, StatusCode: 500}, true},
		"too many requests": {domain.DispatchResult{Outcome: domain.Failed, StatusCode: 429}, true},
		"request timeout":   {domain.DispatchResult{Outcome: domain.Failed, StatusCode: 408}, true},
		"bad request":       {domain.DispatchResult{Outcome: domain.Failed, StatusCode: 400}, false},
		"not found":         {domain.DispatchResult{Outcome: domain.Failed, StatusCode: 404}, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Retryable(tc.result))
		})
	}
}
