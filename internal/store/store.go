// Package store defines the persistence surface used by the application
// services. It hides concrete database details behind narrow, typed method
// contracts the way the teacher's internal/store package does for its own
// domain — drivers live under store/<driver>/ and implement these
// interfaces.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

// Store groups the three resource areas the pipeline persists (spec §3, §4.1).
type Store interface {
	Jobs() Jobs
	Items() Items
	SearchEvents() SearchEvents
}

// Jobs exposes C1/C3's write and read surface over the jobs table.
type Jobs interface {
	Create(ctx context.Context, j *model.Job) (*model.Job, error)
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Transition(ctx context.Context, jobID string, to model.QueueState) error
	Heartbeat(ctx context.Context, jobID string) error
	SetTotalItems(ctx context.Context, jobID string, total int) error
	SetLastError(ctx context.Context, jobID string, errMsg string) error
	// RecomputeCounters runs a histogram query over items and returns the
	// authoritative counts; it also refreshes the hint columns on Job.
	RecomputeCounters(ctx context.Context, jobID string) (model.Counters, error)
}

// Items exposes C1's item write/read/claim surface.
type Items interface {
	// BulkInsert inserts rows as PENDING items in a single statement/transaction.
	BulkInsert(ctx context.Context, jobID, ownerID string, jobType model.JobType, rows []model.RawInput) (int, error)

	// Claim atomically transitions up to limit eligible items
	// (PENDING, or PROCESSING with an expired lock) to PROCESSING under
	// workerID and returns them (spec §4.1, §4.4).
	Claim(ctx context.Context, workerID string, limit int, lockTTL time.Duration, filter model.ItemFilter) ([]*model.JobItem, error)

	// Checkpoint transitions an item out of PROCESSING. It succeeds only if
	// locked_by still equals workerID; otherwise it returns model.ErrStaleLock
	// and the caller must discard its write (spec §4.1, §8). result and
	// normalized are nil when that field should be left unchanged.
	Checkpoint(ctx context.Context, itemID, workerID string, newStatus model.ItemStatus, result, normalized json.RawMessage, errMsg string, attemptsDelta int) error

	// Reset transitions matching items back to PENDING with cleared locks
	// (spec §4.1, §4.7). If resetAttempts is true, attempts is zeroed too.
	Reset(ctx context.Context, filter model.ItemFilter, resetAttempts bool) (int, error)

	// List serves keyset-paginated reads ordered (updated_at, id) ascending
	// (spec §4.1, §4.7). after is nil for the first page.
	List(ctx context.Context, filter model.ItemFilter, after *model.Cursor, limit int) ([]*model.JobItem, error)

	// Get fetches a single item by ID (used by reprocess-by-id and export).
	Get(ctx context.Context, itemID string) (*model.JobItem, error)
}

// SearchEvents is C1's append-only audit surface.
type SearchEvents interface {
	Append(ctx context.Context, e *model.SearchEvent) error
}

// PoolStatsProvider is an optional capability a Store implementation may
// expose so callers (the ingester) can observe connection-pool pressure
// directly instead of inferring it from latency alone (spec §4.2 step 5).
type PoolStatsProvider interface {
	PoolWaitCount() int64
}
