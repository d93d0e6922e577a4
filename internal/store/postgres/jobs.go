package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

type jobs struct{ db *sql.DB }

func (j *jobs) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	id := job.ID
	if id == "" {
		id = uuid.New().String()
	}
	const stmt = `
		INSERT INTO jobs (id, owner_id, job_type, source_ref, queue_state, attempts, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'QUEUED',0,now(),now())
		RETURNING id, owner_id, job_type, source_ref, queue_state, attempts,
		          last_heartbeat, last_error, total_items, processed_items, failed_items,
		          created_at, updated_at`

	row := j.db.QueryRowContext(ctx, stmt, id, job.OwnerID, string(job.JobType), nullableString(job.SourceRef))
	return scanJob(row)
}

func (j *jobs) Get(ctx context.Context, jobID string) (*model.Job, error) {
	const stmt = `
		SELECT id, owner_id, job_type, source_ref, queue_state, attempts,
		       last_heartbeat, last_error, total_items, processed_items, failed_items,
		       created_at, updated_at
		FROM jobs WHERE id = $1`
	row := j.db.QueryRowContext(ctx, stmt, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	return job, err
}

// Transition enforces model.CanTransition before writing the new state
// (spec §4.3). A disallowed edge is reported as model.ErrValidation so
// callers (the registry, control-surface handlers) can surface a 409/400
// without a round trip to read current state first.
func (j *jobs) Transition(ctx context.Context, jobID string, to model.QueueState) error {
	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT queue_state FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return model.ErrNotFound
		}
		return err
	}
	if !model.CanTransition(model.QueueState(current), to) {
		return fmt.Errorf("transition %s -> %s: %w", current, to, model.ErrValidation)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET queue_state = $1, updated_at = now() WHERE id = $2`, string(to), jobID); err != nil {
		return err
	}
	return tx.Commit()
}

func (j *jobs) Heartbeat(ctx context.Context, jobID string) error {
	res, err := j.db.ExecContext(ctx, `UPDATE jobs SET last_heartbeat = now(), updated_at = now() WHERE id = $1`, jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (j *jobs) SetTotalItems(ctx context.Context, jobID string, total int) error {
	res, err := j.db.ExecContext(ctx, `UPDATE jobs SET total_items = $1, updated_at = now() WHERE id = $2`, total, jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (j *jobs) SetLastError(ctx context.Context, jobID string, errMsg string) error {
	res, err := j.db.ExecContext(ctx, `UPDATE jobs SET last_error = $1, updated_at = now() WHERE id = $2`, nullableString(errMsg), jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// RecomputeCounters derives the authoritative histogram from job_items via a
// single aggregate query rather than trusting incrementally-maintained
// counters, then refreshes the jobs row's hint columns (spec §3, §4.3).
func (j *jobs) RecomputeCounters(ctx context.Context, jobID string) (model.Counters, error) {
	const q = `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
			COUNT(*) FILTER (WHERE status = 'PROCESSING') AS processing,
			COUNT(*) FILTER (WHERE status = 'DONE') AS done,
			COUNT(*) FILTER (WHERE status = 'ERROR') AS error,
			COUNT(*) FILTER (WHERE status = 'NOT_FOUND') AS not_found,
			COUNT(*) FILTER (WHERE status = 'SKIPPED') AS skipped
		FROM job_items WHERE job_id = $1`

	var c model.Counters
	if err := j.db.QueryRowContext(ctx, q, jobID).Scan(
		&c.Total, &c.Pending, &c.Processing, &c.Done, &c.Error, &c.NotFound, &c.Skipped,
	); err != nil {
		return model.Counters{}, fmt.Errorf("recompute counters: %w", err)
	}

	_, err := j.db.ExecContext(ctx, `
		UPDATE jobs SET total_items = $1, processed_items = $2, failed_items = $3, updated_at = now()
		WHERE id = $4`, c.Total, c.Processed(), c.Failed(), jobID)
	if err != nil {
		return model.Counters{}, fmt.Errorf("refresh job counters: %w", err)
	}
	return c, nil
}

func scanJob(row *sql.Row) (*model.Job, error) {
	var j model.Job
	var jobType, state string
	var sourceRef, lastError sql.NullString
	var lastHeartbeat sql.NullTime

	if err := row.Scan(&j.ID, &j.OwnerID, &jobType, &sourceRef, &state, &j.Attempts,
		&lastHeartbeat, &lastError, &j.TotalItems, &j.ProcessedItems, &j.FailedItems,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.JobType = model.JobType(jobType)
	j.QueueState = model.QueueState(state)
	if sourceRef.Valid {
		j.SourceRef = sourceRef.String
	}
	if lastError.Valid {
		j.LastError = lastError.String
	}
	if lastHeartbeat.Valid {
		j.LastHeartbeat = lastHeartbeat.Time
	}
	return &j, nil
}
