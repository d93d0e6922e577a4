package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/control"
	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/pricing"
	"github.com/priceline/replacement-pricer/server/internal/pricing/policy"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/registry"
	"github.com/priceline/replacement-pricer/server/internal/store"
)

type memJobs struct {
	mu  sync.Mutex
	job *model.Job
}

func (m *memJobs) Create(ctx context.Context, j *model.Job) (*model.Job, error) { return j, nil }
func (m *memJobs) Get(ctx context.Context, jobID string) (*model.Job, error)    { return m.job, nil }
func (m *memJobs) Transition(ctx context.Context, jobID string, to model.QueueState) error {
	m.job.QueueState = to
	return nil
}
func (m *memJobs) Heartbeat(ctx context.Context, jobID string) error { return nil }
func (m *memJobs) SetTotalItems(ctx context.Context, jobID string, total int) error { return nil }
func (m *memJobs) SetLastError(ctx context.Context, jobID string, errMsg string) error { return nil }
func (m *memJobs) RecomputeCounters(ctx context.Context, jobID string) (model.Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c model.Counters
	for _, it := range sharedItems.all {
		if it.JobID != jobID {
			continue
		}
		c.Total++
		switch it.Status {
		case model.ItemPending:
			c.Pending++
		case model.ItemProcessing:
			c.Processing++
		case model.ItemDone:
			c.Done++
		case model.ItemError:
			c.Error++
		case model.ItemNotFound:
			c.NotFound++
		}
	}
	return c, nil
}

// memItems is a minimal in-memory store.Items good enough to exercise
// claim/checkpoint semantics without a database.
type memItems struct {
	mu  sync.Mutex
	all []*model.JobItem
}

var sharedItems = &memItems{}

func (m *memItems) BulkInsert(ctx context.Context, jobID, ownerID string, jobType model.JobType, rows []model.RawInput) (int, error) {
	return 0, nil
}

func (m *memItems) Claim(ctx context.Context, workerID string, limit int, lockTTL time.Duration, filter model.ItemFilter) ([]*model.JobItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*model.JobItem
	for _, it := range m.all {
		if len(claimed) >= limit {
			break
		}
		if filter.JobID != "" && it.JobID != filter.JobID {
			continue
		}
		if it.Status != model.ItemPending {
			continue
		}
		wid := workerID
		now := time.Now()
		it.Status = model.ItemProcessing
		it.LockedBy = &wid
		it.LockedAt = &now
		claimed = append(claimed, it)
	}
	return claimed, nil
}

func (m *memItems) Checkpoint(ctx context.Context, itemID, workerID string, newStatus model.ItemStatus, result, normalized json.RawMessage, errMsg string, attemptsDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.all {
		if it.ID != itemID {
			continue
		}
		if it.LockedBy == nil || *it.LockedBy != workerID {
			return model.ErrStaleLock
		}
		it.Status = newStatus
		it.LockedBy = nil
		it.LockedAt = nil
		if result != nil {
			it.Result = result
		}
		if normalized != nil {
			it.Normalized = normalized
		}
		it.Attempts += attemptsDelta
		return nil
	}
	return model.ErrNotFound
}

func (m *memItems) Reset(ctx context.Context, filter model.ItemFilter, resetAttempts bool) (int, error) {
	return 0, nil
}
func (m *memItems) List(ctx context.Context, filter model.ItemFilter, after *model.Cursor, limit int) ([]*model.JobItem, error) {
	return nil, nil
}
func (m *memItems) Get(ctx context.Context, itemID string) (*model.JobItem, error) {
	return nil, model.ErrNotFound
}

type memSearchEvents struct{}

func (memSearchEvents) Append(ctx context.Context, e *model.SearchEvent) error { return nil }

type memStore struct {
	jobs *memJobs
}

func (s memStore) Jobs() store.Jobs               { return s.jobs }
func (s memStore) Items() store.Items             { return sharedItems }
func (s memStore) SearchEvents() store.SearchEvents { return memSearchEvents{} }

type noopAudit struct{}

func (noopAudit) Emit(model.AuditEvent) {}

type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }
func (fakeProvider) Search(ctx context.Context, query string, maxResults int, deadline time.Time) (ports.SearchResult, error) {
	return ports.SearchResult{Candidates: []ports.Candidate{
		{Title: query, Price: 9.99, Currency: "USD", Source: "amazon", SourceHost: "amazon.com", URL: "https://amazon.com/dp/B000000002"},
	}}, nil
}

func TestWorker_RunClaimsProcessesAndCheckpoints(t *testing.T) {
	sharedItems.all = []*model.JobItem{
		{ID: "item-1", JobID: "job-1", Status: model.ItemPending, Input: json.RawMessage(`{"title":"Blue Widget","brand":"Acme"}`)},
		{ID: "item-2", JobID: "job-1", Status: model.ItemPending, Input: json.RawMessage(`{"title":"Red Widget","brand":"Acme"}`)},
	}
	job := &model.Job{ID: "job-1", QueueState: model.QueueStateRunning}
	jobs := &memJobs{job: job}
	s := memStore{jobs: jobs}
	reg := registry.New(s, noopAudit{})

	pol := policy.New(policy.Bounds{})
	ctrl := control.New(control.Bounds{MaxAttemptsError: 5, MaxAttemptsNotFound: 2, MinConcurrency: 1, MaxConcurrency: 4})
	resolver := pricing.New([]ports.SearchProvider{fakeProvider{}}, nil, memSearchEvents{}, pol, ctrl,
		pricing.TimeoutTiers{Fast: 200 * time.Millisecond, Medium: time.Second, Slow: 3 * time.Second}, zerolog.Nop())

	// A fresh worker has no latency sample yet, so it claims ClaimMin items.
	w := New("worker-1", s, reg, resolver, Bounds{
		TargetSliceMs: 1000, ClaimMin: 2, ClaimMax: 10, SafetyFactor: 0.7,
		LockFloorMs: 500, LockCapMs: 10000,
		HeartbeatIntervalMs: 500, Concurrency: 4,
	}, zerolog.Nop())

	result, err := w.Run(context.Background(), "job-1", 2000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Claimed != 2 {
		t.Fatalf("Claimed = %d, want 2", result.Claimed)
	}
	if result.Completed != 2 {
		t.Fatalf("Completed = %d, want 2", result.Completed)
	}
	for _, it := range sharedItems.all {
		if it.Status != model.ItemDone {
			t.Fatalf("item %s status = %s, want DONE", it.ID, it.Status)
		}
		if it.Locked() {
			t.Fatalf("item %s still locked after checkpoint", it.ID)
		}
	}
}

func TestWorker_Run_NoEligibleItemsReturnsEmptyWithoutError(t *testing.T) {
	sharedItems.all = nil
	job := &model.Job{ID: "job-empty", QueueState: model.QueueStateRunning}
	jobs := &memJobs{job: job}
	s := memStore{jobs: jobs}
	reg := registry.New(s, noopAudit{})
	pol := policy.New(policy.Bounds{})
	ctrl := control.New(control.Bounds{MaxAttemptsError: 5, MaxAttemptsNotFound: 2, MinConcurrency: 1, MaxConcurrency: 4})
	resolver := pricing.New(nil, nil, memSearchEvents{}, pol, ctrl, pricing.TimeoutTiers{Fast: time.Second}, zerolog.Nop())

	w := New("worker-1", s, reg, resolver, Bounds{ClaimMin: 1, ClaimMax: 10, Concurrency: 2}, zerolog.Nop())
	result, err := w.Run(context.Background(), "job-empty", 1000)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Claimed != 0 {
		t.Fatalf("Claimed = %d, want 0", result.Claimed)
	}
}
