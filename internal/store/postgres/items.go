package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

type items struct{ db *sql.DB }

// BulkInsert fills (owner_id, job_type, status=PENDING, updated_at=now(),
// attempts=0) for each row in a single transaction, as required by spec
// §4.1. A partial failure inside the batch is total failure for the batch —
// the transaction is rolled back and the caller (the ingester) retries with
// a smaller batch.
func (it *items) BulkInsert(ctx context.Context, jobID, ownerID string, jobType model.JobType, rows []model.RawInput) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := it.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `
		INSERT INTO job_items (id, job_id, owner_id, job_type, status, attempts, input_json, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'PENDING',0,$5,now(),now())`

	for _, r := range rows {
		raw, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("marshal row: %w", err)
		}
		if _, err := tx.ExecContext(ctx, stmt, uuid.New().String(), jobID, ownerID, string(jobType), raw); err != nil {
			return 0, fmt.Errorf("insert item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Claim atomically transitions up to limit eligible items to PROCESSING.
// Eligibility: status = PENDING, or status = PROCESSING with an expired
// lock (lock stealing, spec §3 invariants, §8). Uses SELECT ... FOR UPDATE
// SKIP LOCKED so concurrent claimers never block on, or double-claim, the
// same row — the same pattern as a claim-by-update-returning job queue.
func (it *items) Claim(ctx context.Context, workerID string, limit int, lockTTL time.Duration, filter model.ItemFilter) ([]*model.JobItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := it.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	where, args := filterClause(filter, 2)
	args = append([]interface{}{lockTTL.Seconds()}, args...)

	selectSQL := fmt.Sprintf(`
		SELECT id FROM job_items
		WHERE (status = 'PENDING' OR (status = 'PROCESSING' AND locked_at < now() - ($1 || ' seconds')::interval))
		  AND %s
		ORDER BY updated_at ASC, id ASC
		LIMIT %d
		FOR UPDATE SKIP LOCKED`, where, limit)

	rows, err := tx.QueryContext(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("select claimable: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	placeholders := make([]string, len(ids))
	updateArgs := make([]interface{}, 0, len(ids)+1)
	updateArgs = append(updateArgs, workerID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		updateArgs = append(updateArgs, id)
	}
	updateSQL := fmt.Sprintf(`
		UPDATE job_items
		SET status = 'PROCESSING', locked_by = $1, locked_at = now(), updated_at = now()
		WHERE id IN (%s)
		RETURNING id, job_id, owner_id, job_type, status, attempts, last_error,
		          locked_by, locked_at, input_json, normalized_json, result_json,
		          created_at, updated_at`, strings.Join(placeholders, ","))

	claimed, err := tx.QueryContext(ctx, updateSQL, updateArgs...)
	if err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}
	defer claimed.Close()

	var out []*model.JobItem
	for claimed.Next() {
		item, err := scanItem(claimed)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := claimed.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit()
}

// Checkpoint transitions an item out of PROCESSING iff locked_by still
// equals workerID — the only gate that matters once a lock may have been
// stolen (spec §5, §8). A checkpoint rejected by this gate returns
// model.ErrStaleLock; the caller discards its write rather than clobbering
// whoever now owns the item.
func (it *items) Checkpoint(ctx context.Context, itemID, workerID string, newStatus model.ItemStatus, result, normalized json.RawMessage, errMsg string, attemptsDelta int) error {
	tx, err := it.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `
		UPDATE job_items
		SET status = $1,
		    result_json = COALESCE($2, result_json),
		    normalized_json = COALESCE($3, normalized_json),
		    last_error = $4,
		    attempts = attempts + $5,
		    locked_by = NULL,
		    locked_at = NULL,
		    updated_at = now()
		WHERE id = $6 AND locked_by = $7
		RETURNING id`

	var id string
	err = tx.QueryRowContext(ctx, stmt, string(newStatus), nullableJSON(result), nullableJSON(normalized),
		nullableString(errMsg), attemptsDelta, itemID, workerID).Scan(&id)
	if err == sql.ErrNoRows {
		// Either the item doesn't exist, or the lock was stolen. Spec §8
		// treats both as "discard the write"; distinguish only for logs.
		var exists int
		if qerr := tx.QueryRowContext(ctx, `SELECT 1 FROM job_items WHERE id = $1`, itemID).Scan(&exists); qerr == sql.ErrNoRows {
			return fmt.Errorf("checkpoint item %s: %w", itemID, model.ErrNotFound)
		}
		return model.ErrStaleLock
	}
	if err != nil {
		return fmt.Errorf("checkpoint item %s: %w", itemID, err)
	}
	return tx.Commit()
}

// Reset transitions matching items back to PENDING with cleared locks.
// Never touches PROCESSING items (spec §4.7, §8), whether or not their lock
// has expired: the WHERE clause excludes that status outright.
func (it *items) Reset(ctx context.Context, filter model.ItemFilter, resetAttempts bool) (int, error) {
	where, args := filterClause(filter, 1)
	attemptsClause := ""
	if resetAttempts {
		attemptsClause = ", attempts = 0"
	}
	stmt := fmt.Sprintf(`
		UPDATE job_items
		SET status = 'PENDING', locked_by = NULL, locked_at = NULL, updated_at = now()%s
		WHERE status != 'PROCESSING' AND %s`, attemptsClause, where)

	res, err := it.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("reset items: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// List serves keyset-paginated reads ordered (updated_at, id) ascending
// (spec §4.1, §4.7). Offset-based pagination is never used: the WHERE
// clause carries the same (updated_at, id) comparator as the ORDER BY so
// the index serves the page directly.
func (it *items) List(ctx context.Context, filter model.ItemFilter, after *model.Cursor, limit int) ([]*model.JobItem, error) {
	if limit <= 0 {
		limit = 100
	}
	where, args := filterClause(filter, 1)
	if after != nil {
		args = append(args, after.UpdatedAt, after.ID)
		where = fmt.Sprintf("%s AND (updated_at, id) > ($%d, $%d)", where, len(args)-1, len(args))
	}
	stmt := fmt.Sprintf(`
		SELECT id, job_id, owner_id, job_type, status, attempts, last_error,
		       locked_by, locked_at, input_json, normalized_json, result_json,
		       created_at, updated_at
		FROM job_items
		WHERE %s
		ORDER BY updated_at ASC, id ASC
		LIMIT %d`, where, limit)

	rows, err := it.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*model.JobItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (it *items) Get(ctx context.Context, itemID string) (*model.JobItem, error) {
	const stmt = `
		SELECT id, job_id, owner_id, job_type, status, attempts, last_error,
		       locked_by, locked_at, input_json, normalized_json, result_json,
		       created_at, updated_at
		FROM job_items WHERE id = $1`
	row := it.db.QueryRowContext(ctx, stmt, itemID)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	return item, err
}

// scanner abstracts *sql.Row and *sql.Rows so scanItem serves both List/Claim and Get.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(s scanner) (*model.JobItem, error) {
	var it model.JobItem
	var jobType, status string
	var lockedBy sql.NullString
	var lockedAt sql.NullTime
	var lastError sql.NullString
	var normalized, result []byte

	if err := s.Scan(&it.ID, &it.JobID, &it.OwnerID, &jobType, &status, &it.Attempts, &lastError,
		&lockedBy, &lockedAt, &it.Input, &normalized, &result, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.JobType = model.JobType(jobType)
	it.Status = model.ItemStatus(status)
	if lastError.Valid {
		it.LastError = lastError.String
	}
	if lockedBy.Valid {
		v := lockedBy.String
		it.LockedBy = &v
	}
	if lockedAt.Valid {
		v := lockedAt.Time
		it.LockedAt = &v
	}
	if len(normalized) > 0 {
		it.Normalized = json.RawMessage(normalized)
	}
	if len(result) > 0 {
		it.Result = json.RawMessage(result)
	}
	return &it, nil
}

// filterClause renders an ItemFilter into a SQL WHERE fragment (without the
// leading "WHERE") and its positional args, starting at $argOffset.
func filterClause(f model.ItemFilter, argOffset int) (string, []interface{}) {
	clauses := []string{"1=1"}
	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", argOffset+len(args)-1)
	}
	if f.JobID != "" {
		clauses = append(clauses, "job_id = "+next(f.JobID))
	}
	if !f.Any && f.OwnerID != "" {
		clauses = append(clauses, "owner_id = "+next(f.OwnerID))
	}
	if f.JobType != "" {
		clauses = append(clauses, "job_type = "+next(string(f.JobType)))
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			placeholders[i] = next(string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if len(f.IDs) > 0 {
		placeholders := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			placeholders[i] = next(id)
		}
		clauses = append(clauses, "id IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.MaxAttempts > 0 {
		clauses = append(clauses, "attempts < "+next(f.MaxAttempts))
	}
	return strings.Join(clauses, " AND "), args
}

func nullableJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
