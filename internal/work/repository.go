package work

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/domain"
)

// RunRepository journals queue entries in results.db. Backtest runs and
// optimization runs live in separate tables; the run's kind picks one.
type RunRepository struct {
	db  *database.DB
	log zerolog.Logger
}

func NewRunRepository(db *database.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Insert journals a newly submitted run.
func (r *RunRepository) Insert(run *Run) error {
	var err error
	if run.Kind.table() == "optimization_runs" {
		_, err = r.db.Exec(`
			INSERT INTO optimization_runs (id, kind, symbol, strategy, metric, status, params, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(run.Kind), run.Symbol, run.Strategy, run.Metric,
			string(run.Status), nullableJSON(run.Params), run.StartedAt.Unix())
	} else {
		_, err = r.db.Exec(`
			INSERT INTO backtest_runs (id, kind, symbol, strategy, status, params, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(run.Kind), run.Symbol, run.Strategy,
			string(run.Status), nullableJSON(run.Params), run.StartedAt.Unix())
	}
	if err != nil {
		return fmt.Errorf("inserting %s run %s: %w", run.Kind, run.ID, err)
	}
	return nil
}

// MarkRunning moves a run to the running status.
func (r *RunRepository) MarkRunning(kind RunKind, id string) error {
	return r.setStatus(kind, id, StatusRunning, "", nil, false)
}

// Complete records the result payload and finishes the run.
func (r *RunRepository) Complete(kind RunKind, id string, result json.RawMessage) error {
	return r.setStatus(kind, id, StatusCompleted, "", result, true)
}

// Fail finishes the run with an error message.
func (r *RunRepository) Fail(kind RunKind, id, errMsg string) error {
	return r.setStatus(kind, id, StatusFailed, errMsg, nil, true)
}

// MarkCancelled finishes the run as cancelled.
func (r *RunRepository) MarkCancelled(kind RunKind, id string) error {
	return r.setStatus(kind, id, StatusCancelled, "", nil, true)
}

func (r *RunRepository) setStatus(kind RunKind, id string, status RunStatus, errMsg string, result json.RawMessage, finished bool) error {
	var finishedAt interface{}
	if finished {
		finishedAt = time.Now().Unix()
	}

	res, err := r.db.Exec(fmt.Sprintf(`
		UPDATE %s
		SET status = ?, error = ?, result = COALESCE(?, result), finished_at = COALESCE(?, finished_at)
		WHERE id = ?`, kind.table()),
		string(status), nullableString(errMsg), nullableJSON(result), finishedAt, id)
	if err != nil {
		return fmt.Errorf("updating run %s to %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
	}
	return nil
}

// Get looks a run up by id in both tables.
func (r *RunRepository) Get(id string) (*Run, error) {
	run, err := r.getFrom("backtest_runs", id)
	if err == nil {
		return run, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	run, err = r.getFrom("optimization_runs", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return run, nil
}

func (r *RunRepository) getFrom(table, id string) (*Run, error) {
	metric := "metric,"
	if table == "backtest_runs" {
		metric = "'',"
	}
	row := r.db.QueryRow(fmt.Sprintf(`
		SELECT id, kind, symbol, strategy, %s status, params, result, error, started_at, finished_at
		FROM %s WHERE id = ?`, metric, table), id)
	return scanRun(row)
}

// List returns the most recent runs across both tables, newest first.
func (r *RunRepository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, kind, symbol, strategy, '' AS metric, status, params, result, error, started_at, finished_at
		FROM backtest_runs
		UNION ALL
		SELECT id, kind, symbol, strategy, metric, status, params, result, error, started_at, finished_at
		FROM optimization_runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// FailInterrupted marks runs left pending or running by a previous process
// as failed. Called once on startup before workers begin.
func (r *RunRepository) FailInterrupted() (int, error) {
	total := 0
	for _, table := range []string{"backtest_runs", "optimization_runs"} {
		res, err := r.db.Exec(fmt.Sprintf(`
			UPDATE %s
			SET status = ?, error = 'interrupted by restart', finished_at = ?
			WHERE status IN (?, ?)`, table),
			string(StatusFailed), time.Now().Unix(),
			string(StatusPending), string(StatusRunning))
		if err != nil {
			return total, fmt.Errorf("failing interrupted runs in %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if total > 0 {
		r.log.Warn().Int("runs", total).Msg("Marked interrupted runs as failed")
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var symbol, strategy, metric, params, result, errMsg sql.NullString
	var startedAt int64
	var finishedAt sql.NullInt64

	err := row.Scan(&run.ID, (*string)(&run.Kind), &symbol, &strategy, &metric,
		(*string)(&run.Status), &params, &result, &errMsg, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Symbol = symbol.String
	run.Strategy = strategy.String
	run.Metric = metric.String
	run.Error = errMsg.String
	if params.Valid {
		run.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		run.Result = json.RawMessage(result.String)
	}
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
