package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// JobRepository persists job definitions.
type JobRepository struct {
	db *sql.DB
}

const jobColumns = `job_id, name, info, spec, prompt, enabled, created_at, updated_at`

func scanJob(row interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		j                    Job
		info, prompt         sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&j.ID, &j.Name, &info, &j.Spec, &prompt, &j.Enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.Info = info.String
	j.Prompt = prompt.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

// Create inserts a new job and fills in its assigned id and timestamps.
func (r *JobRepository) Create(ctx context.Context, j *Job) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs(name, info, spec, prompt, enabled, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)`,
		j.Name, nullStr(j.Info), j.Spec, nullStr(j.Prompt), j.Enabled, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	j.ID = id
	j.CreatedAt = now
	j.UpdatedAt = now
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// List returns all jobs, newest first, plus the total count.
func (r *JobRepository) List(ctx context.Context) ([]Job, int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY job_id DESC`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *j)
	}
	return out, len(out), rows.Err()
}

// ListEnabled is the scheduler's scan query: enabled jobs in ascending id
// order, so per-scan evaluation order is deterministic.
func (r *JobRepository) ListEnabled(ctx context.Context) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE enabled = 1 ORDER BY job_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a job and bumps updated_at.
func (r *JobRepository) Update(ctx context.Context, j *Job) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET name=?, info=?, spec=?, prompt=?, enabled=?, updated_at=? WHERE job_id=?`,
		j.Name, nullStr(j.Info), j.Spec, nullStr(j.Prompt), j.Enabled, fmtTime(now), j.ID,
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
	j.UpdatedAt = now
	return nil
}

func (r *JobRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET enabled=?, updated_at=? WHERE job_id=?`,
		enabled, fmtTime(time.Now()), id,
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

func (r *JobRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id=?`, id)
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
