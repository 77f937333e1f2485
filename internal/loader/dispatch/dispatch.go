package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/flow-db/flowload/internal/common/flowcontext"
	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/internal/loader/metrics"
	"github.com/flow-db/flowload/pkg/client"
)

// Dispatcher sends one batch to a stream. It never returns an error: every outcome is a DispatchResult.
type Dispatcher interface {
	Dispatch(ctx context.Context, stream string, batch domain.Batch) domain.DispatchResult
}

// DocumentPoster is the part of client.Client used to send batches.
type DocumentPoster interface {
	PostDocuments(ctx context.Context, stream string, body []byte, requestId string) (int, error)
}

// HttpDispatcher posts each batch as a JSON array in exactly one request, without retrying.
// The request runs on a context detached from ctx, bounded only by the request timeout,
// so cancelling a run lets requests already sent finish or time out.
type HttpDispatcher struct {
	poster         DocumentPoster
	requestTimeout time.Duration
	clock          clock.PassiveClock
	metrics        *metrics.Metrics
}

func NewHttpDispatcher(poster DocumentPoster, requestTimeout time.Duration, clock clock.PassiveClock, m *metrics.Metrics) *HttpDispatcher {
	if requestTimeout <= 0 {
		requestTimeout = client.DefaultRequestTimeout
	}
	return &HttpDispatcher{
		poster:         poster,
		requestTimeout: requestTimeout,
		clock:          clock,
		metrics:        m,
	}
}

func (d *HttpDispatcher) Dispatch(ctx context.Context, stream string, batch domain.Batch) domain.DispatchResult {
	result := domain.DispatchResult{
		Pass:       batch.Pass,
		BatchIndex: batch.Index,
		Attempts:   1,
		Records:    len(batch.Records),
	}
	start := d.clock.Now()

	body, err := json.Marshal(batch.Records)
	if err != nil {
		result.Outcome = domain.Failed
		result.Reason = fmt.Sprintf("encoding batch: %s", err)
		return result
	}

	requestId := uuid.NewString()
	fctx := flowcontext.FromContext(ctx)
	log := fctx.Log.WithFields(logrus.Fields{
		"batch":     batch.Index,
		"range":     batch.Range.String(),
		"requestId": requestId,
	})

	requestCtx, cancel := context.WithTimeout(flowcontext.Detached(fctx), d.requestTimeout)
	defer cancel()
	result.StatusCode, err = d.poster.PostDocuments(requestCtx, stream, body, requestId)
	result.Duration = d.clock.Since(start)
	result.Outcome, result.Reason = classify(err)

	d.metrics.RecordRequest(stream, result.Outcome, result.Duration)
	if result.Outcome == domain.Succeeded {
		log.Debugf("batch sent in %s", result.Duration)
	} else {
		log.Debugf("batch %s after %s: %s", result.Outcome, result.Duration, result.Reason)
	}
	return result
}

func classify(err error) (domain.Outcome, string) {
	if err == nil {
		return domain.Succeeded, ""
	}
	var respErr *client.ResponseError
	if errors.As(err, &respErr) {
		if respErr.Body == "" {
			return domain.Failed, fmt.Sprintf("status %d", respErr.StatusCode)
		}
		return domain.Failed, fmt.Sprintf("status %d: %s", respErr.StatusCode, respErr.Body)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.TimedOut, "no response within request timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.TimedOut, netErr.Error()
	}
	return domain.Failed, errors.Cause(err).Error()
}
