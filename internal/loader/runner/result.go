package runner

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/loader/configuration"
	"github.com/flow-db/flowload/internal/loader/domain"
	"github.com/flow-db/flowload/internal/loader/history"
)

// Result is everything known about a run once Run returns.
type Result struct {
	RunId      string
	Stream     string
	Url        string
	Strategy   domain.Strategy
	Config     configuration.LoadTestConfig `json:"-"`
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	// One per pass run, in pass order
	Summaries []domain.PassSummary
}

func newResult(runId string, stream string, config configuration.LoadTestConfig, startedAt time.Time) *Result {
	return &Result{
		RunId:     runId,
		Stream:    stream,
		Url:       config.Url,
		Strategy:  config.Strategy,
		Config:    config,
		StartedAt: startedAt,
		Summaries: []domain.PassSummary{},
	}
}

func (r *Result) finish(at time.Time) {
	r.FinishedAt = at
}

// Totals adds up the summaries of all passes. Pass, timestamps and results are left empty.
func (r *Result) Totals() domain.PassSummary {
	total := domain.PassSummary{}
	for _, s := range r.Summaries {
		total.Batches += s.Batches
		total.Succeeded += s.Succeeded
		total.Failed += s.Failed
		total.TimedOut += s.TimedOut
		total.Cancelled += s.Cancelled
		total.RecordsAttempted += s.RecordsAttempted
		total.RecordsSucceeded += s.RecordsSucceeded
		total.Retries += s.Retries
		if s.PeakInFlight > total.PeakInFlight {
			total.PeakInFlight = s.PeakInFlight
		}
	}
	return total
}

// HistoryRun describes the run for the history database.
func (r *Result) HistoryRun() history.Run {
	return history.Run{
		RunId:          r.RunId,
		Stream:         r.Stream,
		Url:            r.Url,
		Strategy:       string(r.Strategy),
		TotalRecords:   r.Config.TotalRecords,
		BatchSize:      r.Config.BatchSize,
		Passes:         r.Config.Passes,
		MaxConcurrency: r.Config.MaxConcurrency,
		StartedAt:      r.StartedAt.UnixMilli(),
		FinishedAt:     r.FinishedAt.UnixMilli(),
		Cancelled:      r.Cancelled,
	}
}

// WriteFile writes the result as indented JSON, including every per-batch result.
func (r *Result) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed writing run result to %s", path)
	}
	return nil
}
