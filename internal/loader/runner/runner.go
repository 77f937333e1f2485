// Package runner orchestrates a load test: it configures the stream once, then runs each pass over the
// batch plan to completion before starting the next.
package runner

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/flow-db/flowload/internal/common/flowcontext"
	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/common/util"
	"github.com/flow-db/flowload/internal/loader/configapplier"
	"github.com/flow-db/flowload/internal/loader/configuration"
	"github.com/flow-db/flowload/internal/loader/dispatch"
	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/internal/loader/generator"
	"github.com/flow-db/flowload/internal/loader/metrics"
	"github.com/flow-db/flowload/internal/loader/planner"
	"github.com/flow-db/flowload/internal/loader/scheduling"
	"github.com/flow-db/flowload/pkg/api"
	"github.com/flow-db/flowload/pkg/client"
)

// Applier configures a stream before any batch is sent.
type Applier interface {
	Apply(ctx *flowcontext.Context, stream api.StreamConfiguration) error
}

// PassListener is called with each finished pass, before the next pass starts.
type PassListener func(summary domain.PassSummary)

type Runner struct {
	applier    Applier
	dispatcher dispatch.Dispatcher
	clock      clock.PassiveClock
	metrics    *metrics.Metrics
	provider   generator.ValueProvider
	listeners  []PassListener
}

func New(applier Applier, dispatcher dispatch.Dispatcher, clock clock.PassiveClock, m *metrics.Metrics) *Runner {
	return &Runner{
		applier:    applier,
		dispatcher: dispatcher,
		clock:      clock,
		metrics:    m,
	}
}

// NewForConfig returns a runner talking to the service described by config over HTTP,
// with a connection pool sized to the dispatch concurrency.
func NewForConfig(config configuration.LoadTestConfig, m *metrics.Metrics) (*Runner, error) {
	connection := config.ApiConnectionDetails
	connection.MaxConnections = config.MaxConcurrency
	c, err := client.NewClient(&connection)
	if err != nil {
		return nil, err
	}
	realClock := clock.RealClock{}
	return New(
		configapplier.NewApplier(c, config.CheckHealth),
		dispatch.NewHttpDispatcher(c, config.RequestTimeout, realClock, m),
		realClock,
		m,
	), nil
}

// WithValueProvider replaces the faker backed provider used by the randomized strategy.
func (r *Runner) WithValueProvider(provider generator.ValueProvider) *Runner {
	r.provider = provider
	return r
}

func (r *Runner) WithPassListener(listener PassListener) *Runner {
	r.listeners = append(r.listeners, listener)
	return r
}

// Run executes config.Passes passes and returns their summaries in pass order.
//
// Invalid options, a rejected configuration and generated records that don't fit the schema are fatal:
// Run returns the error before sending any batch. Failed batches are not: they are counted in the summaries
// and later passes still run. If ctx is cancelled, Run returns the summaries of the passes it ran,
// including a partly dispatched one, with an *flowerrors.ErrRunCancelled.
func (r *Runner) Run(ctx *flowcontext.Context, config configuration.LoadTestConfig) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	stream, err := config.StreamConfiguration()
	if err != nil {
		return nil, err
	}
	gen, err := r.generator(config, stream)
	if err != nil {
		return nil, err
	}
	controller, err := scheduling.NewController(stream.Name, r.dispatcher, config.ControllerConfig(), r.clock, r.metrics)
	if err != nil {
		return nil, err
	}
	ranges, err := planner.Plan(config.TotalRecords, config.BatchSize)
	if err != nil {
		return nil, err
	}

	result := newResult(util.NewRunId(r.clock.Now()), stream.Name, config, r.clock.Now())
	ctx = flowcontext.WithLogFields(ctx, logrus.Fields{"runId": result.RunId, "stream": stream.Name})
	ctx.Log.Infof("planned %d batches of up to %d records per pass, %d passes", len(ranges), config.BatchSize, config.Passes)

	if err := r.applier.Apply(ctx, stream); err != nil {
		result.finish(r.clock.Now())
		return result, err
	}

	for pass := 1; pass <= config.Passes; pass++ {
		if ctx.Err() != nil {
			return r.cancelled(ctx, result, config.Passes)
		}
		passCtx := flowcontext.WithLogField(ctx, "pass", pass)

		batches, err := materialise(gen, ranges, pass)
		if err != nil {
			result.finish(r.clock.Now())
			return result, err
		}
		summary := controller.RunPass(passCtx, pass, batches)
		result.Summaries = append(result.Summaries, summary)

		passCtx.Log.WithFields(logrus.Fields{
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"timedOut":  summary.TimedOut,
			"cancelled": summary.Cancelled,
			"retries":   summary.Retries,
			"duration":  summary.Duration().String(),
		}).Info(summary.String())
		for _, listener := range r.listeners {
			listener(summary)
		}

		if !summary.Complete() {
			return r.cancelled(ctx, result, config.Passes)
		}
	}
	result.finish(r.clock.Now())
	return result, nil
}

func (r *Runner) generator(config configuration.LoadTestConfig, stream api.StreamConfiguration) (generator.Generator, error) {
	provider := r.provider
	if provider == nil && config.Strategy == domain.Randomized {
		provider = generator.NewFakerProvider(config.Seed)
	}
	return generator.New(generator.Config{
		Stream:    stream,
		Strategy:  config.Strategy,
		Constants: config.RecordConstants(),
		Provider:  provider,
		Strict:    config.ValidateRecords,
	})
}

func (r *Runner) cancelled(ctx *flowcontext.Context, result *Result, requested int) (*Result, error) {
	result.Cancelled = true
	result.finish(r.clock.Now())
	completed := 0
	for _, summary := range result.Summaries {
		if summary.Complete() {
			completed++
		}
	}
	ctx.Log.Warnf("run cancelled after %d of %d passes", completed, requested)
	return result, errors.WithStack(&flowerrors.ErrRunCancelled{CompletedPasses: completed, RequestedPasses: requested})
}

// materialise generates the records of every batch of a pass. Only one pass is held in memory at a time.
func materialise(gen generator.Generator, ranges []domain.Range, pass int) ([]domain.Batch, error) {
	batches := make([]domain.Batch, len(ranges))
	for i, r := range ranges {
		records, err := gen.Generate(r, pass)
		if err != nil {
			return nil, err
		}
		batches[i] = domain.Batch{Pass: pass, Index: i, Range: r, Records: records}
	}
	return batches, nil
}
