package flowctl

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/flow-db/flowload/internal/common/util"
	"github.com/flow-db/flowload/internal/loader/history"
	"github.com/flow-db/flowload/internal/loader/runner"
)

// History lists the most recent runs stored in the history database at dbPath.
func (a *App) History(ctx context.Context, dbPath string, limit uint) error {
	repository, err := history.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer repository.Close()

	runs, err := repository.ListRuns(ctx, limit)
	if err != nil {
		return errors.WithMessagef(err, "error listing runs in %s", dbPath)
	}
	if a.Params.Filter != "" {
		return a.printJson(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintf(a.Out, "No runs recorded in %s\n", dbPath)
		return nil
	}

	table := util.NewTable("RUN", "STREAM", "STARTED", "PASSES", "RECORDS", "SUCCEEDED", "FAILED", "TIMED OUT", "STATUS")
	for _, run := range runs {
		total := (&runner.Result{Summaries: run.Summaries}).Totals()
		status := "completed"
		if run.Cancelled {
			status = "cancelled"
		}
		table.Row(
			run.RunId,
			run.Stream,
			time.UnixMilli(run.StartedAt).UTC().Format(time.RFC3339),
			fmt.Sprintf("%d/%d", len(run.Summaries), run.Passes),
			total.RecordsAttempted,
			total.Succeeded,
			total.Failed,
			total.TimedOut,
			status,
		)
	}
	fmt.Fprint(a.Out, table.String())
	return nil
}

// HistoryRun prints the pass summaries of one stored run.
func (a *App) HistoryRun(ctx context.Context, dbPath string, runId string) error {
	repository, err := history.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer repository.Close()

	run, err := repository.GetRun(ctx, runId)
	if err != nil {
		return err
	}
	if a.Params.Filter != "" {
		return a.printJson(run)
	}
	fmt.Fprintf(a.Out, "Run %s against %s, stream %s, %s strategy\n", run.RunId, run.Url, run.Stream, run.Strategy)
	fmt.Fprintf(a.Out, "%d records in batches of %d, up to %d in flight\n\n", run.TotalRecords, run.BatchSize, run.MaxConcurrency)
	fmt.Fprint(a.Out, runner.FormatSummaries(run.Summaries))
	return nil
}
