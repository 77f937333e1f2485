package runner

import (
	"fmt"
	"time"

	"github.com/flow-db/flowload/internal/common/util"
	"github.com/flow-db/flowload/internal/loader/domain"
)

var summaryHeader = []string{"PASS", "BATCHES", "RECORDS", "SUCCEEDED", "FAILED", "TIMED OUT", "CANCELLED", "RETRIES", "PEAK", "DURATION"}

// FormatSummaries renders one row per pass followed by a total row.
func FormatSummaries(summaries []domain.PassSummary) string {
	table := util.NewTable(summaryHeader...)
	var elapsed time.Duration
	for _, s := range summaries {
		table.Row(s.Pass, s.Batches, s.RecordsAttempted, s.Succeeded, s.Failed, s.TimedOut, s.Cancelled, s.Retries, s.PeakInFlight, round(s.Duration()))
		elapsed += s.Duration()
	}
	total := (&Result{Summaries: summaries}).Totals()
	table.Row("total", total.Batches, total.RecordsAttempted, total.Succeeded, total.Failed, total.TimedOut, total.Cancelled, total.Retries, total.PeakInFlight, round(elapsed))
	return table.String()
}

// FormatOutcome is the one line verdict printed after the table.
func FormatOutcome(result *Result) string {
	total := result.Totals()
	verdict := "completed"
	if result.Cancelled {
		verdict = "cancelled"
	}
	return fmt.Sprintf("run %s %s: %d of %d passes, %d of %d records ingested in %s",
		result.RunId, verdict, len(result.Summaries), result.Config.Passes,
		total.RecordsSucceeded, total.RecordsAttempted, round(result.FinishedAt.Sub(result.StartedAt)))
}

func round(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Millisecond)
}
