package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExecutionRepository persists execution history.
//
// Records are written twice and only twice: Create inserts the Running row,
// Finish applies the single terminal update. Finish refuses rows that are
// not Running anymore, which makes the terminal transition idempotent at the
// storage layer.
type ExecutionRepository struct {
	db *sql.DB
}

const executionColumns = `execution_id, job_id, job_name, job_prompt, status,
	start_time, end_time, duration_seconds,
	result_summary, result_detail, error_message, error_detail,
	created_at, updated_at`

func scanExecution(row interface{ Scan(dest ...any) error }) (*Execution, error) {
	var (
		e                          Execution
		prompt                     sql.NullString
		status                     string
		startTime                  string
		endTime                    sql.NullString
		duration                   sql.NullInt64
		summary, detail, msg, edet sql.NullString
		createdAt, updatedAt       string
	)
	err := row.Scan(&e.ID, &e.JobID, &e.JobName, &prompt, &status,
		&startTime, &endTime, &duration,
		&summary, &detail, &msg, &edet,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.JobPrompt = prompt.String
	e.Status = RunStatus(status)
	e.StartTime = parseTime(startTime)
	if endTime.Valid {
		t := parseTime(endTime.String)
		e.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		e.DurationSeconds = &d
	}
	e.ResultSummary = summary.String
	e.ResultDetail = detail.String
	e.ErrorMessage = msg.String
	e.ErrorDetail = edet.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// Create inserts the Running row for a fresh run and returns its id.
func (r *ExecutionRepository) Create(ctx context.Context, e *Execution) (int64, error) {
	if e.Status == "" {
		e.Status = StatusRunning
	}
	if e.Status != StatusRunning {
		return 0, fmt.Errorf("store: new execution must be %s, got %s", StatusRunning, e.Status)
	}
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO executions(job_id, job_name, job_prompt, status, start_time, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)`,
		e.JobID, e.JobName, nullStr(e.JobPrompt), string(e.Status), fmtTime(e.StartTime), fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return id, nil
}

// Finish applies the terminal update. It only touches rows still in the
// Running state; a second Finish on the same id returns ErrNotFound.
func (r *ExecutionRepository) Finish(ctx context.Context, id int64, t TerminalState) error {
	if !t.Status.IsTerminal() {
		return fmt.Errorf("store: finish requires a terminal status, got %s", t.Status)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE executions
		 SET status=?, end_time=?, duration_seconds=?,
		     result_summary=?, result_detail=?, error_message=?, error_detail=?,
		     updated_at=?
		 WHERE execution_id=? AND status=?`,
		string(t.Status), fmtTime(t.EndTime), t.DurationSeconds,
		nullStr(t.ResultSummary), nullStr(t.ResultDetail), nullStr(t.ErrorMessage), nullStr(t.ErrorDetail),
		fmtTime(time.Now()),
		id, string(StatusRunning),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id int64) (*Execution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE execution_id=?`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns executions newest-first, filtered and paginated, plus the
// total matching count (for the API's {list, total} envelope).
func (r *ExecutionRepository) List(ctx context.Context, f ExecutionFilter) ([]Execution, int, error) {
	var (
		where []string
		args  []any
	)
	if f.JobID != nil {
		where = append(where, "job_id = ?")
		args = append(args, *f.JobID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	size := f.Size
	if size <= 0 {
		size = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions`+cond+
			` ORDER BY start_time DESC, execution_id DESC LIMIT ? OFFSET ?`,
		append(args, size, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// LatestForJob returns the most recent execution of a job.
func (r *ExecutionRepository) LatestForJob(ctx context.Context, jobID int64) (*Execution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions
		 WHERE job_id=? ORDER BY start_time DESC, execution_id DESC LIMIT 1`, jobID)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// StatsForJob aggregates a job's history. AvgDurationSeconds covers only
// terminal rows that carry a duration, rounded to 2 decimals in SQL.
func (r *ExecutionRepository) StatsForJob(ctx context.Context, jobID int64) (*JobStats, error) {
	st := &JobStats{JobID: jobID}
	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(*),
		   COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN status=? THEN 1 ELSE 0 END), 0),
		   ROUND(AVG(CASE WHEN status!=? AND duration_seconds IS NOT NULL THEN duration_seconds END), 2)
		 FROM executions WHERE job_id=?`,
		string(StatusSucceeded), string(StatusFailed), string(StatusRunning), string(StatusRunning), jobID,
	).Scan(&st.Total, &st.Succeeded, &st.Failed, &st.Running, &avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		st.AvgDurationSeconds = avg.Float64
	}

	latest, err := r.LatestForJob(ctx, jobID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	st.Latest = latest
	return st, nil
}

// ReapStale marks Running rows whose start_time is older than cutoff as
// failed. Used by the maintenance sweep to reconcile runs orphaned by an
// ungraceful shutdown; the scheduler itself never calls this.
func (r *ExecutionRepository) ReapStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE executions
		 SET status=?, end_time=?, error_message=?, updated_at=?
		 WHERE status=? AND start_time < ?`,
		string(StatusFailed), fmtTime(time.Now()), reason, fmtTime(time.Now()),
		string(StatusRunning), fmtTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneTerminal deletes terminal rows beyond the newest keep rows per job.
func (r *ExecutionRepository) PruneTerminal(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM executions
		 WHERE status != ?
		   AND execution_id NOT IN (
		     SELECT e.execution_id FROM executions e
		     WHERE e.job_id = executions.job_id
		     ORDER BY e.start_time DESC, e.execution_id DESC
		     LIMIT ?
		   )`,
		string(StatusRunning), keep,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
