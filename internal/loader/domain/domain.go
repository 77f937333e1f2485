// Package domain holds the values passed between the stages of a load test run:
// planned index ranges, materialised batches, per-batch dispatch results and per-pass summaries.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/pkg/api"
)

// Range is the half open record index range [Start, End) covered by one batch.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Batch is the unit of dispatch: the records of one Range, sent in a single request.
// Records is read-only once the batch has been built.
type Batch struct {
	Pass    int
	Index   int
	Range   Range
	Records []api.Record
}

type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed-out"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// DispatchResult is the terminal outcome of one batch.
type DispatchResult struct {
	Pass       int
	BatchIndex int
	Outcome    Outcome
	// Why the batch failed or timed out, empty otherwise
	Reason string `json:",omitempty"`
	// Status of the last response, zero if none was received
	StatusCode int `json:",omitempty"`
	// Requests sent for this batch. Zero for a batch cancelled before admission.
	Attempts int
	Records  int
	Duration time.Duration
}

// Retries is the number of requests sent beyond the first.
func (r DispatchResult) Retries() int {
	if r.Attempts <= 1 {
		return 0
	}
	return r.Attempts - 1
}

// PassSummary aggregates the results of every batch of one pass.
// Succeeded + Failed + TimedOut + Cancelled always equals Batches.
type PassSummary struct {
	Pass             int
	Batches          int
	Succeeded        int
	Failed           int
	TimedOut         int
	Cancelled        int
	RecordsAttempted int
	RecordsSucceeded int
	Retries          int
	PeakInFlight     int
	StartedAt        time.Time
	FinishedAt       time.Time
	// Ordered by batch index
	Results []DispatchResult `json:",omitempty"`
}

// NewPassSummary builds the summary of a pass from its results, which must be ordered by batch index.
func NewPassSummary(pass int, results []DispatchResult) PassSummary {
	summary := PassSummary{
		Pass:    pass,
		Batches: len(results),
		Results: results,
	}
	for _, r := range results {
		summary.add(r)
	}
	return summary
}

func (s *PassSummary) add(r DispatchResult) {
	switch r.Outcome {
	case Succeeded:
		s.Succeeded++
		s.RecordsSucceeded += r.Records
	case Failed:
		s.Failed++
	case TimedOut:
		s.TimedOut++
	case Cancelled:
		s.Cancelled++
	}
	if r.Attempts > 0 {
		s.RecordsAttempted += r.Records
	}
	s.Retries += r.Retries()
}

func (s PassSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Complete reports whether every batch of the pass was dispatched, whatever the response.
func (s PassSummary) Complete() bool {
	return s.Cancelled == 0
}

func (s PassSummary) String() string {
	return fmt.Sprintf(
		"pass %d: %d batches, %d records attempted, %d succeeded, %d failed, %d timed out, %d cancelled",
		s.Pass, s.Batches, s.RecordsAttempted, s.Succeeded, s.Failed, s.TimedOut, s.Cancelled)
}

// Strategy selects how record field values are produced.
type Strategy string

const (
	Deterministic Strategy = "deterministic"
	Randomized    Strategy = "randomized"
)

func (s Strategy) Valid() bool {
	return s == Deterministic || s == Randomized
}

// UnmarshalText accepts a strategy name in any case.
func (s *Strategy) UnmarshalText(text []byte) error {
	strategy := Strategy(strings.ToLower(strings.TrimSpace(string(text))))
	if !strategy.Valid() {
		return errors.WithStack(&flowerrors.ErrInvalidArgument{
			Name:    "strategy",
			Value:   string(text),
			Message: fmt.Sprintf("must be %s or %s", Deterministic, Randomized),
		})
	}
	*s = strategy
	return nil
}
