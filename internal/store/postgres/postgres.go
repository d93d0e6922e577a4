// Package postgres implements store.Store over database/sql using the pgx
// stdlib driver, the way the teacher's internal/store/postgres package opens
// and wires its own pgStore.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/priceline/replacement-pricer/server/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres-backed store.Store from an open *sql.DB.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Jobs() store.Jobs               { return &jobs{db: s.db} }
func (s *pgStore) Items() store.Items             { return &items{db: s.db} }
func (s *pgStore) SearchEvents() store.SearchEvents { return &searchEvents{db: s.db} }

// HealthPing implements a ping-based liveness check used by internal/apihealth.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PoolWaitCount implements store.PoolStatsProvider, letting the ingester
// observe database/sql's connection-pool wait counter directly rather than
// inferring pool pressure from latency alone (spec §4.2 step 5).
func (s *pgStore) PoolWaitCount() int64 {
	return s.db.Stats().WaitCount
}

// Bootstrap applies the schema (additive-only, per spec §6) and verifies
// connectivity. Safe to call repeatedly.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("postgres DSN is empty")
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// schemaDDL defines the three tables named in spec §6: jobs, job_items,
// search_events, plus the indexes required by §4.1. New columns are always
// nullable and no column is ever repurposed (schema evolution is additive).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	job_type         TEXT NOT NULL,
	source_ref       TEXT,
	queue_state      TEXT NOT NULL DEFAULT 'QUEUED',
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_heartbeat   TIMESTAMPTZ,
	last_error       TEXT,
	total_items      INTEGER NOT NULL DEFAULT 0,
	processed_items  INTEGER NOT NULL DEFAULT 0,
	failed_items     INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_items (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	owner_id         TEXT NOT NULL,
	job_type         TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'PENDING',
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT,
	locked_by        TEXT,
	locked_at        TIMESTAMPTZ,
	input_json       JSONB NOT NULL,
	normalized_json  JSONB,
	result_json      JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_job_items_job_status_cursor
	ON job_items (job_id, status, updated_at, id);
CREATE INDEX IF NOT EXISTS idx_job_items_fleet_cursor
	ON job_items (status, owner_id, updated_at, id);

CREATE TABLE IF NOT EXISTS search_events (
	id            TEXT PRIMARY KEY,
	job_item_id   TEXT NOT NULL REFERENCES job_items(id) ON DELETE CASCADE,
	provider      TEXT NOT NULL,
	query         TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	outcome       TEXT NOT NULL,
	latency_ms    BIGINT NOT NULL,
	error_kind    TEXT,
	result_count  INTEGER NOT NULL DEFAULT 0,
	chosen_url    TEXT
);

CREATE INDEX IF NOT EXISTS idx_search_events_item ON search_events (job_item_id);
`
