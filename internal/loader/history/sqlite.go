package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/flow-db/flowload/internal/common/flowerrors"
	"github.com/flow-db/flowload/internal/loader/domain"
)

var (
	runsTable   = goqu.T("runs")
	passesTable = goqu.T("pass_summaries")

	runs_runId     = goqu.C("run_id")
	runs_startedAt = goqu.C("started_at")
	passes_runId   = goqu.C("run_id")
	passes_passNum = goqu.C("pass")
)

// Run describes one invocation of the load tester.
type Run struct {
	RunId          string `db:"run_id"`
	Stream         string `db:"stream"`
	Url            string `db:"url"`
	Strategy       string `db:"strategy"`
	TotalRecords   int    `db:"total_records"`
	BatchSize      int    `db:"batch_size"`
	Passes         int    `db:"passes"`
	MaxConcurrency int    `db:"max_concurrency"`
	// Unix milliseconds
	StartedAt  int64 `db:"started_at"`
	FinishedAt int64 `db:"finished_at"`
	Cancelled  bool  `db:"cancelled"`
}

// RunHistory is a stored run with the summaries of the passes it completed, in pass order.
type RunHistory struct {
	Run
	Summaries []domain.PassSummary
}

type passRow struct {
	RunId            string `db:"run_id"`
	Pass             int    `db:"pass"`
	Batches          int    `db:"batches"`
	Succeeded        int    `db:"succeeded"`
	Failed           int    `db:"failed"`
	TimedOut         int    `db:"timed_out"`
	Cancelled        int    `db:"cancelled"`
	RecordsAttempted int    `db:"records_attempted"`
	RecordsSucceeded int    `db:"records_succeeded"`
	Retries          int    `db:"retries"`
	PeakInFlight     int    `db:"peak_in_flight"`
	StartedAt        int64  `db:"started_at"`
	FinishedAt       int64  `db:"finished_at"`
}

func toPassRow(runId string, s domain.PassSummary) passRow {
	return passRow{
		RunId:            runId,
		Pass:             s.Pass,
		Batches:          s.Batches,
		Succeeded:        s.Succeeded,
		Failed:           s.Failed,
		TimedOut:         s.TimedOut,
		Cancelled:        s.Cancelled,
		RecordsAttempted: s.RecordsAttempted,
		RecordsSucceeded: s.RecordsSucceeded,
		Retries:          s.Retries,
		PeakInFlight:     s.PeakInFlight,
		StartedAt:        s.StartedAt.UnixMilli(),
		FinishedAt:       s.FinishedAt.UnixMilli(),
	}
}

func (r passRow) summary() domain.PassSummary {
	return domain.PassSummary{
		Pass:             r.Pass,
		Batches:          r.Batches,
		Succeeded:        r.Succeeded,
		Failed:           r.Failed,
		TimedOut:         r.TimedOut,
		Cancelled:        r.Cancelled,
		RecordsAttempted: r.RecordsAttempted,
		RecordsSucceeded: r.RecordsSucceeded,
		Retries:          r.Retries,
		PeakInFlight:     r.PeakInFlight,
		StartedAt:        time.UnixMilli(r.StartedAt).UTC(),
		FinishedAt:       time.UnixMilli(r.FinishedAt).UTC(),
	}
}

// SqliteRepository stores run history in a sqlite database file. Per-batch results aren't stored.
type SqliteRepository struct {
	db     *sql.DB
	goquDb *goqu.Database
	// SQLite only allows one write at a time, so writes are serialised to avoid SQLITE_BUSY.
	writeLock sync.Mutex
}

// Open opens or creates the database at path, creating its directory and tables if needed.
func Open(ctx context.Context, path string) (*SqliteRepository, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not make directory %s for sqlite db", dir)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening sqlite db %s", path)
	}
	r := &SqliteRepository{db: db, goquDb: goqu.New("sqlite3", db)}
	if err := r.setup(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) setup(ctx context.Context) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	statements := []string{
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			stream TEXT NOT NULL,
			url TEXT NOT NULL,
			strategy TEXT NOT NULL,
			total_records INTEGER NOT NULL,
			batch_size INTEGER NOT NULL,
			passes INTEGER NOT NULL,
			max_concurrency INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			cancelled INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS pass_summaries (
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			pass INTEGER NOT NULL,
			batches INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			timed_out INTEGER NOT NULL,
			cancelled INTEGER NOT NULL,
			records_attempted INTEGER NOT NULL,
			records_succeeded INTEGER NOT NULL,
			retries INTEGER NOT NULL,
			peak_in_flight INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, pass))`,
		"CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at)",
	}
	for _, statement := range statements {
		if _, err := r.db.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "error setting up sqlite history")
		}
	}
	return nil
}

// RecordRun stores a run and its pass summaries in one transaction.
func (r *SqliteRepository) RecordRun(ctx context.Context, run Run, summaries []domain.PassSummary) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	tx, err := r.goquDb.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	return tx.Wrap(func() error {
		if _, err := tx.Insert(runsTable).Rows(run).Executor().ExecContext(ctx); err != nil {
			return errors.Wrapf(err, "error inserting run %s", run.RunId)
		}
		if len(summaries) == 0 {
			return nil
		}
		rows := make([]passRow, len(summaries))
		for i, s := range summaries {
			rows[i] = toPassRow(run.RunId, s)
		}
		if _, err := tx.Insert(passesTable).Rows(rows).Executor().ExecContext(ctx); err != nil {
			return errors.Wrapf(err, "error inserting pass summaries of run %s", run.RunId)
		}
		return nil
	})
}

// ListRuns returns up to limit runs, most recent first.
func (r *SqliteRepository) ListRuns(ctx context.Context, limit uint) ([]RunHistory, error) {
	var runs []Run
	err := r.goquDb.From(runsTable).
		Order(runs_startedAt.Desc(), runs_runId.Desc()).
		Limit(limit).
		ScanStructsContext(ctx, &runs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(runs) == 0 {
		return []RunHistory{}, nil
	}

	runIds := make([]interface{}, len(runs))
	for i, run := range runs {
		runIds[i] = run.RunId
	}
	var rows []passRow
	err = r.goquDb.From(passesTable).
		Where(passes_runId.In(runIds...)).
		Order(passes_runId.Asc(), passes_passNum.Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	summaries := make(map[string][]domain.PassSummary, len(runs))
	for _, row := range rows {
		summaries[row.RunId] = append(summaries[row.RunId], row.summary())
	}
	result := make([]RunHistory, len(runs))
	for i, run := range runs {
		result[i] = RunHistory{Run: run, Summaries: summaries[run.RunId]}
	}
	return result, nil
}

// GetRun returns a single run, or *flowerrors.ErrNotFound.
func (r *SqliteRepository) GetRun(ctx context.Context, runId string) (RunHistory, error) {
	run := Run{}
	found, err := r.goquDb.From(runsTable).Where(runs_runId.Eq(runId)).ScanStructContext(ctx, &run)
	if err != nil {
		return RunHistory{}, errors.WithStack(err)
	}
	if !found {
		return RunHistory{}, errors.WithStack(&flowerrors.ErrNotFound{Type: "run", Value: runId})
	}
	var rows []passRow
	err = r.goquDb.From(passesTable).
		Where(passes_runId.Eq(runId)).
		Order(passes_passNum.Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return RunHistory{}, errors.WithStack(err)
	}
	history := RunHistory{Run: run}
	for _, row := range rows {
		history.Summaries = append(history.Summaries, row.summary())
	}
	return history, nil
}
