// Package ingest implements the adaptive ingester (C2): it drains a
// RowIterator into persisted PENDING JobItems, sizing batches from live
// bulk-insert latency the way the teacher's outbox worker sizes its lease
// batches from a fixed config, except here the batch size itself adapts.
package ingest

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/store"
)

// Bounds carries the ingest configuration knobs from spec §6. They are
// bounds the controller moves within, not fixed constants.
type Bounds struct {
	MinRows      int
	MaxRows      int
	MaxBatchByte int
	P50TargetMs  float64
	P95TargetMs  float64
	EWMAAlpha    float64
}

// Ingester drains a ports.RowIterator into a Job's items, adapting batch
// size to live database latency (spec §4.2).
type Ingester struct {
	store  store.Store
	audit  ports.AuditSink
	bounds Bounds
	log    zerolog.Logger
}

// New constructs an Ingester against a store and an audit sink.
func New(s store.Store, audit ports.AuditSink, bounds Bounds, log zerolog.Logger) *Ingester {
	return &Ingester{store: s, audit: audit, bounds: bounds, log: log}
}

// Result summarizes one Ingest call's outcome.
type Result struct {
	JobID      string
	TotalItems int
}

// Ingest creates a Job for ownerID/jobType, drains rows from it, and
// persists them as PENDING JobItems, adapting batch size per spec §4.2.
// sourceRef is recorded on the Job for operator visibility; it does not
// gate deduplication (duplicate submissions of the same source_ref are
// explicitly permitted).
func (ig *Ingester) Ingest(ctx context.Context, ownerID string, jobType model.JobType, sourceRef string, rows ports.RowIterator) (Result, error) {
	job, err := ig.store.Jobs().Create(ctx, &model.Job{OwnerID: ownerID, JobType: jobType, SourceRef: sourceRef})
	if err != nil {
		return Result{}, err
	}
	ig.audit.Emit(model.AuditEvent{Kind: model.AuditJobCreated, JobID: job.ID, ActorID: ownerID, Ts: time.Now()})

	batchSize := clampInt(ig.bounds.MinRows, ig.bounds.MinRows, ig.bounds.MaxRows)
	latency := newEWMA(ig.bounds.EWMAAlpha)
	total := 0
	backoff := 100 * time.Millisecond
	poolStats, hasPoolStats := ig.store.(store.PoolStatsProvider)
	var lastWaitCount int64
	if hasPoolStats {
		lastWaitCount = poolStats.PoolWaitCount()
	}

	// Rows of a failed batch are retried, in batches of the shrunk size,
	// before any new rows are pulled, so a failed insert drops nothing.
	var carry []model.RawInput
	carryEOF := false
	for {
		var batch []model.RawInput
		var eof bool
		if len(carry) > 0 {
			n := clampInt(batchSize, 1, len(carry))
			batch, carry = carry[:n], carry[n:]
			eof = carryEOF && len(carry) == 0
		} else {
			batch, eof, err = pull(ctx, rows, batchSize, ig.bounds.MaxBatchByte)
			if err != nil {
				return Result{}, err
			}
		}
		if len(batch) == 0 {
			break
		}

		started := time.Now()
		n, insertErr := ig.store.Items().BulkInsert(ctx, job.ID, ownerID, jobType, batch)
		elapsedMs := float64(time.Since(started).Milliseconds())

		if insertErr != nil {
			ig.log.Warn().Err(insertErr).Str("job_id", job.ID).Int("batch_size", batchSize).Msg("bulk insert failed, shrinking and retrying")
			batchSize = clampInt(batchSize/4, ig.bounds.MinRows, ig.bounds.MaxRows)
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(jitter(backoff)):
			}
			backoff = minDuration(backoff*2, 10*time.Second)
			carry, carryEOF = append(append([]model.RawInput(nil), batch...), carry...), carryEOF || eof
			continue
		}

		backoff = 100 * time.Millisecond
		total += n
		avg := latency.observe(elapsedMs)
		ig.audit.Emit(model.AuditEvent{Kind: model.AuditBatchInserted, JobID: job.ID, ActorID: ownerID, Ts: time.Now(),
			Payload: map[string]interface{}{"count": n, "batch_size": batchSize, "latency_ms": elapsedMs}})

		poolWaited := false
		if hasPoolStats {
			wc := poolStats.PoolWaitCount()
			poolWaited = wc > lastWaitCount
			lastWaitCount = wc
		}

		switch {
		case poolWaited:
			batchSize = clampInt(batchSize/2, ig.bounds.MinRows, ig.bounds.MaxRows)
		case avg >= ig.bounds.P95TargetMs:
			batchSize = clampInt(batchSize/2, ig.bounds.MinRows, ig.bounds.MaxRows)
		case avg <= ig.bounds.P50TargetMs:
			batchSize = clampInt(batchSize*2, ig.bounds.MinRows, ig.bounds.MaxRows)
		}

		if eof {
			break
		}
	}

	if err := ig.store.Jobs().SetTotalItems(ctx, job.ID, total); err != nil {
		return Result{}, err
	}
	return Result{JobID: job.ID, TotalItems: total}, nil
}

// pull drains up to n rows from it, shrinking proportionally if the
// serialized payload would exceed maxBytes (spec §4.2 step 3). A rough
// per-row byte estimate avoids marshaling twice.
func pull(ctx context.Context, it ports.RowIterator, n, maxBytes int) ([]model.RawInput, bool, error) {
	const estBytesPerRow = 256
	if maxBytes > 0 && n*estBytesPerRow > maxBytes {
		n = maxBytes / estBytesPerRow
		if n < 1 {
			n = 1
		}
	}

	batch := make([]model.RawInput, 0, n)
	for len(batch) < n {
		row, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return batch, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		batch = append(batch, row)
	}
	return batch, false, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func minDuration(a, b time.Duration) time.Duration {
	return time.Duration(math.Min(float64(a), float64(b)))
}
