// Package storetest exercises a minimal compliance suite against any
// store.Store implementation, the way the teacher's storetest package does
// for its own domain.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/store"
)

// Run exercises Jobs, Items, and SearchEvents against a clean, isolated
// store.Store. Implementations provide the store via makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	ownerID := "owner-" + uuid.New().String()

	job, err := s.Jobs().Create(ctx, &model.Job{OwnerID: ownerID, JobType: model.JobTypeCSV, SourceRef: "s3://bucket/rows.csv"})
	if err != nil {
		t.Fatalf("Jobs.Create: %v", err)
	}
	if job.QueueState != model.QueueStateQueued {
		t.Fatalf("Jobs.Create: queue_state = %s, want QUEUED", job.QueueState)
	}

	if got, err := s.Jobs().Get(ctx, job.ID); err != nil || got.ID != job.ID {
		t.Fatalf("Jobs.Get: got=%v err=%v", got, err)
	}

	rows := []model.RawInput{
		{Title: "Blue Widget", Brand: "Acme", Category: "hardware"},
		{Title: "Red Widget", Brand: "Acme", Category: "hardware"},
		{Title: "Green Widget", Brand: "Acme", Category: "hardware"},
	}
	n, err := s.Items().BulkInsert(ctx, job.ID, ownerID, model.JobTypeCSV, rows)
	if err != nil || n != len(rows) {
		t.Fatalf("Items.BulkInsert: n=%d err=%v", n, err)
	}
	if err := s.Jobs().SetTotalItems(ctx, job.ID, n); err != nil {
		t.Fatalf("Jobs.SetTotalItems: %v", err)
	}

	if err := s.Jobs().Transition(ctx, job.ID, model.QueueStateRunning); err != nil {
		t.Fatalf("Jobs.Transition QUEUED->RUNNING: %v", err)
	}
	if err := s.Jobs().Transition(ctx, job.ID, model.QueueStateQueued); err != nil {
		t.Fatalf("Jobs.Transition RUNNING->QUEUED: %v", err)
	}
	if err := s.Jobs().Transition(ctx, job.ID, model.QueueStateDone); err == nil {
		t.Fatalf("Jobs.Transition QUEUED->DONE should be rejected")
	}
	if err := s.Jobs().Transition(ctx, job.ID, model.QueueStateRunning); err != nil {
		t.Fatalf("Jobs.Transition QUEUED->RUNNING (2): %v", err)
	}

	if err := s.Jobs().Heartbeat(ctx, job.ID); err != nil {
		t.Fatalf("Jobs.Heartbeat: %v", err)
	}

	claimed, err := s.Items().Claim(ctx, "worker-1", 2, time.Minute, model.ItemFilter{JobID: job.ID})
	if err != nil || len(claimed) != 2 {
		t.Fatalf("Items.Claim: n=%d err=%v", len(claimed), err)
	}
	for _, it := range claimed {
		if !it.Locked() {
			t.Fatalf("Items.Claim: item %s not locked", it.ID)
		}
	}

	stolen, err := s.Items().Claim(ctx, "worker-2", 10, time.Minute, model.ItemFilter{JobID: job.ID})
	if err != nil {
		t.Fatalf("Items.Claim (worker-2): %v", err)
	}
	if len(stolen) != 1 {
		t.Fatalf("Items.Claim (worker-2): n=%d, want 1 (only the unclaimed PENDING item)", len(stolen))
	}

	result, _ := json.Marshal(model.Result{Currency: "USD", Source: "catalog", MatchQuality: model.MatchTrusted})
	if err := s.Items().Checkpoint(ctx, claimed[0].ID, "worker-1", model.ItemDone, result, nil, "", 1); err != nil {
		t.Fatalf("Items.Checkpoint (owner): %v", err)
	}

	if err := s.Items().Checkpoint(ctx, claimed[1].ID, "not-the-owner", model.ItemDone, result, nil, "", 1); err != model.ErrStaleLock {
		t.Fatalf("Items.Checkpoint (stale): err=%v, want ErrStaleLock", err)
	}

	counters, err := s.Jobs().RecomputeCounters(ctx, job.ID)
	if err != nil {
		t.Fatalf("Jobs.RecomputeCounters: %v", err)
	}
	if counters.Done != 1 {
		t.Fatalf("Jobs.RecomputeCounters: done=%d, want 1", counters.Done)
	}

	page, err := s.Items().List(ctx, model.ItemFilter{JobID: job.ID}, nil, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("Items.List (page 1): n=%d err=%v", len(page), err)
	}
	last := page[len(page)-1]
	page2, err := s.Items().List(ctx, model.ItemFilter{JobID: job.ID}, &model.Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID}, 10)
	if err != nil {
		t.Fatalf("Items.List (page 2): %v", err)
	}
	for _, it := range page2 {
		if it.ID == last.ID {
			t.Fatalf("Items.List (page 2): cursor item %s repeated", it.ID)
		}
	}

	reset, err := s.Items().Reset(ctx, model.ItemFilter{JobID: job.ID, Statuses: []model.ItemStatus{model.ItemDone}}, true)
	if err != nil || reset != 1 {
		t.Fatalf("Items.Reset: n=%d err=%v", reset, err)
	}

	if err := s.SearchEvents().Append(ctx, &model.SearchEvent{
		JobItemID: claimed[0].ID, Provider: "catalog", Query: "blue widget",
		StartedAt: time.Now(), FinishedAt: time.Now(), Outcome: model.OutcomeHit, LatencyMs: 42,
	}); err != nil {
		t.Fatalf("SearchEvents.Append: %v", err)
	}
}
