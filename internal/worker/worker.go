// Package worker implements the time-sliced worker (C4): claim a batch of
// PENDING items, dispatch each through the pricing state machine under a
// bounded-concurrency limit, checkpoint results, and return before the
// slice deadline — the claim/process/mark-done-or-failed loop the
// teacher's outbox worker runs on a fixed ticker, generalized here to a
// single bounded-wall-clock invocation driven by an external "kickoff".
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/pricing"
	"github.com/priceline/replacement-pricer/server/internal/registry"
	"github.com/priceline/replacement-pricer/server/internal/store"
)

// Bounds carries the worker configuration knobs from spec §6. Per-error-class
// attempt caps live in control.Bounds instead — the resolver, not the
// worker, is what retries against them (spec §4.6).
type Bounds struct {
	TargetSliceMs       int
	ClaimMin            int
	ClaimMax            int
	SafetyFactor        float64
	LockFloorMs         int
	LockCapMs           int
	HeartbeatIntervalMs int
	Concurrency         int
}

// Worker runs bounded wall-clock slices over a single job's PENDING items.
// One Worker instance is constructed per process/identity; its avg_item_ms
// EWMA is process-local (spec §4.4, §5).
type Worker struct {
	id       string
	store    store.Store
	registry *registry.Registry
	resolver *pricing.Resolver
	bounds   Bounds
	avgMs    float64
	avgSeen  int
	mu       sync.Mutex
	log      zerolog.Logger
}

func New(id string, s store.Store, reg *registry.Registry, resolver *pricing.Resolver, bounds Bounds, log zerolog.Logger) *Worker {
	return &Worker{id: id, store: s, registry: reg, resolver: resolver, bounds: bounds, log: log.With().Str("worker_id", id).Logger()}
}

// SliceResult summarizes one Run call (exposed as the kickoff response
// shape in spec §6).
type SliceResult struct {
	Claimed   int
	Completed int
	Failed    int
	ElapsedMs int64
}

// Run executes one bounded slice against jobID (spec §4.4). sliceMs bounds
// wall-clock time; in-flight items always run to their own per-item
// deadline rather than being killed mid-flight.
func (w *Worker) Run(ctx context.Context, jobID string, sliceMs int) (SliceResult, error) {
	started := time.Now()
	deadline := started.Add(time.Duration(sliceMs) * time.Millisecond)

	claimSize := w.claimSize()
	lockTTL := w.lockTTL()

	items, err := w.store.Items().Claim(ctx, w.id, claimSize, lockTTL, model.ItemFilter{JobID: jobID, Any: true})
	if err != nil {
		return SliceResult{}, err
	}
	if len(items) == 0 {
		return SliceResult{ElapsedMs: time.Since(started).Milliseconds()}, nil
	}

	heartbeatStop := w.startHeartbeat(ctx, jobID)
	defer heartbeatStop()

	result := w.dispatch(ctx, jobID, items, deadline)
	result.Claimed = len(items)
	result.ElapsedMs = time.Since(started).Milliseconds()

	if _, err := w.registry.RecomputeCounters(ctx, jobID); err != nil {
		w.log.Warn().Err(err).Str("job_id", jobID).Msg("recompute counters after slice failed")
	}
	return result, nil
}

// dispatch fans out claimed items under a concurrency limit K, stopping
// new dispatches as the slice deadline approaches; in-flight items are
// allowed to complete (spec §4.4 step 4).
func (w *Worker) dispatch(ctx context.Context, jobID string, items []*model.JobItem, deadline time.Time) SliceResult {
	k := w.resolver.DispatchConcurrency(w.bounds.Concurrency)
	sem := make(chan struct{}, k)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var completed, failed int

	for _, item := range items {
		if time.Now().After(deadline) {
			w.release(ctx, item)
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(it *model.JobItem) {
			defer wg.Done()
			defer func() { <-sem }()

			status := w.processOne(ctx, it)
			mu.Lock()
			switch status {
			case model.ItemDone, model.ItemNotFound:
				completed++
			case model.ItemError:
				failed++
			}
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return SliceResult{Completed: completed, Failed: failed}
}

// processOne resolves a single item and checkpoints the outcome. A stale
// lock discards the write silently; it is not a failure (spec §4.4 step 5,
// §7). It is not cut off at the slice deadline; the resolver's per-call
// timeouts bound it.
func (w *Worker) processOne(ctx context.Context, item *model.JobItem) model.ItemStatus {
	var raw model.RawInput
	_ = json.Unmarshal(item.Input, &raw)

	start := time.Now()
	outcome := w.resolver.Resolve(ctx, item.ID, raw, nil, w.avgItemMs(), item.Attempts)
	w.observeLatency(time.Since(start))

	var resultJSON, normalizedJSON []byte
	if outcome.Result != nil {
		resultJSON, _ = pricing.MarshalResult(outcome.Result)
	}
	if outcome.Normalized != nil {
		normalizedJSON, _ = pricing.MarshalNormalized(outcome.Normalized)
	}

	err := w.store.Items().Checkpoint(ctx, item.ID, w.id, outcome.Status, resultJSON, normalizedJSON, outcome.ErrorKind, 1)
	if err == model.ErrStaleLock {
		w.log.Info().Str("item_id", item.ID).Msg("checkpoint discarded: lock stolen")
		return outcome.Status
	}
	if err != nil {
		w.log.Error().Err(err).Str("item_id", item.ID).Msg("checkpoint failed")
	}
	return outcome.Status
}

// release returns an item to PENDING without marking it DONE/ERROR, used
// when the slice deadline preempts before a provider call started (spec
// §4.4 terminal-in-slice cases).
func (w *Worker) release(ctx context.Context, item *model.JobItem) {
	if err := w.store.Items().Checkpoint(ctx, item.ID, w.id, model.ItemPending, nil, nil, "", 0); err != nil && err != model.ErrStaleLock {
		w.log.Warn().Err(err).Str("item_id", item.ID).Msg("release on deadline preemption failed")
	}
}

func (w *Worker) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := time.Duration(w.bounds.HeartbeatIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.registry.Heartbeat(ctx, jobID); err != nil {
					w.log.Warn().Err(err).Msg("heartbeat failed")
				}
			}
		}
	}()
	return func() { close(stopCh) }
}

// claimSize computes claim_size per spec §4.4 step 2.
func (w *Worker) claimSize() int {
	avg := w.avgItemMs()
	if avg <= 0 {
		return clampInt(w.bounds.ClaimMin, w.bounds.ClaimMin, w.bounds.ClaimMax)
	}
	safety := w.bounds.SafetyFactor
	if safety <= 0 {
		safety = 0.7
	}
	raw := (float64(w.bounds.TargetSliceMs) / avg) * safety
	return clampInt(int(raw), w.bounds.ClaimMin, w.bounds.ClaimMax)
}

// lockTTL computes the adaptive lock TTL per spec §4.4 step 3.
func (w *Worker) lockTTL() time.Duration {
	avg := w.avgItemMs()
	floor := float64(w.bounds.LockFloorMs)
	ceiling := float64(w.bounds.LockCapMs)
	ttlMs := 2 * avg
	if ttlMs < floor {
		ttlMs = floor
	}
	if ttlMs > ceiling {
		ttlMs = ceiling
	}
	return time.Duration(ttlMs) * time.Millisecond
}

func (w *Worker) observeLatency(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ms := float64(d.Milliseconds())
	w.avgSeen++
	if w.avgSeen == 1 {
		w.avgMs = ms
		return
	}
	const alpha = 0.3
	w.avgMs = alpha*ms + (1-alpha)*w.avgMs
}

func (w *Worker) avgItemMs() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.avgMs
}

func clampInt(v, lo, hi int) int {
	if hi <= 0 {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
