package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priceline/replacement-pricer/server/internal/ingest"
	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/principal"
	"github.com/priceline/replacement-pricer/server/internal/registry"
	"github.com/priceline/replacement-pricer/server/internal/store"
)

type fakeJobs struct {
	jobs map[string]*model.Job
	seq  int
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[string]*model.Job{}} }

func (f *fakeJobs) Create(ctx context.Context, j *model.Job) (*model.Job, error) {
	f.seq++
	id := "job-" + string(rune('0'+f.seq))
	cp := *j
	cp.ID = id
	cp.QueueState = model.QueueStateQueued
	f.jobs[id] = &cp
	return &cp, nil
}
func (f *fakeJobs) Get(ctx context.Context, jobID string) (*model.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return j, nil
}
func (f *fakeJobs) Transition(ctx context.Context, jobID string, to model.QueueState) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return model.ErrNotFound
	}
	if !model.CanTransition(j.QueueState, to) {
		return model.ErrValidation
	}
	j.QueueState = to
	return nil
}
func (f *fakeJobs) Heartbeat(ctx context.Context, jobID string) error { return nil }
func (f *fakeJobs) SetTotalItems(ctx context.Context, jobID string, total int) error {
	if j, ok := f.jobs[jobID]; ok {
		j.TotalItems = total
	}
	return nil
}
func (f *fakeJobs) SetLastError(ctx context.Context, jobID string, errMsg string) error { return nil }
func (f *fakeJobs) RecomputeCounters(ctx context.Context, jobID string) (model.Counters, error) {
	return model.Counters{}, nil
}

type fakeItems struct{}

func (f *fakeItems) BulkInsert(ctx context.Context, jobID, ownerID string, jobType model.JobType, rows []model.RawInput) (int, error) {
	return len(rows), nil
}
func (f *fakeItems) Claim(ctx context.Context, workerID string, limit int, lockTTL time.Duration, filter model.ItemFilter) ([]*model.JobItem, error) {
	return nil, nil
}
func (f *fakeItems) Checkpoint(ctx context.Context, itemID, workerID string, newStatus model.ItemStatus, result, normalized json.RawMessage, errMsg string, attemptsDelta int) error {
	return nil
}
func (f *fakeItems) Reset(ctx context.Context, filter model.ItemFilter, resetAttempts bool) (int, error) {
	return 0, nil
}
func (f *fakeItems) List(ctx context.Context, filter model.ItemFilter, after *model.Cursor, limit int) ([]*model.JobItem, error) {
	return nil, nil
}
func (f *fakeItems) Get(ctx context.Context, itemID string) (*model.JobItem, error) {
	return nil, model.ErrNotFound
}

type fakeSearchEvents struct{}

func (f *fakeSearchEvents) Append(ctx context.Context, e *model.SearchEvent) error { return nil }

type fakeStore struct {
	jobs  *fakeJobs
	items *fakeItems
}

func (s *fakeStore) Jobs() store.Jobs                 { return s.jobs }
func (s *fakeStore) Items() store.Items               { return s.items }
func (s *fakeStore) SearchEvents() store.SearchEvents { return &fakeSearchEvents{} }

type noopAudit struct{}

func (noopAudit) Emit(event model.AuditEvent) {}

type staticResolver struct{ p principal.Principal }

func (r staticResolver) Resolve(ctx context.Context, apiKey string) (principal.Principal, error) {
	if apiKey != "valid-key" {
		return principal.Principal{}, principal.ErrInvalidAuth
	}
	return r.p, nil
}

func newTestHandler(owner string, admin bool) (*Handler, *fakeJobs) {
	fj := newFakeJobs()
	st := &fakeStore{jobs: fj, items: &fakeItems{}}
	reg := registry.New(st, noopAudit{})
	ig := ingest.New(st, noopAudit{}, ingest.Bounds{MinRows: 1, MaxRows: 100, MaxBatchByte: 1 << 20, P50TargetMs: 10, P95TargetMs: 100, EWMAAlpha: 0.3}, zerolog.Nop())
	resolver := staticResolver{p: principal.Principal{OwnerID: owner, Admin: admin}}
	kickoff := func(ctx context.Context, jobID string, sliceMs int) (SliceResult, error) {
		return SliceResult{Claimed: 1, Completed: 1}, nil
	}
	parsers := func(jobType model.JobType) (ports.FileParser, bool) { return nil, false }
	return NewHandler(ig, reg, parsers, resolver, kickoff, zerolog.Nop()), fj
}

func withAuth(r *http.Request) *http.Request {
	r.Header.Set("Authorization", "Bearer valid-key")
	return r
}

func TestCreateJob_SingleItem(t *testing.T) {
	h, fj := newTestHandler("owner-1", false)

	body := `{"job_type":"SINGLE","item":{"title":"Widget"}}`
	req := withAuth(httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(body)))
	w := httptest.NewRecorder()

	h.CreateJob(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, fj.jobs, 1)
}

func TestCreateJob_MissingSourceRefForCSV(t *testing.T) {
	h, _ := newTestHandler("owner-1", false)

	body := `{"job_type":"CSV"}`
	req := withAuth(httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(body)))
	w := httptest.NewRecorder()

	h.CreateJob(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateJob_RequiresAuth(t *testing.T) {
	h, _ := newTestHandler("owner-1", false)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()

	h.CreateJob(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetJob_OwnerMismatchReturnsNotFound(t *testing.T) {
	h, fj := newTestHandler("owner-2", false)
	fj.jobs["job-1"] = &model.Job{ID: "job-1", OwnerID: "owner-1", QueueState: model.QueueStateQueued}

	req := withAuth(httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	h.GetJob(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code, "cross-owner access must 404, not 403")
}

func TestGetJob_AdminCanAccessAnyOwner(t *testing.T) {
	h, fj := newTestHandler("admin-owner", true)
	fj.jobs["job-1"] = &model.Job{ID: "job-1", OwnerID: "owner-1", QueueState: model.QueueStateQueued}

	req := withAuth(httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	h.GetJob(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTransition_IllegalEdgeIsBadRequest(t *testing.T) {
	h, fj := newTestHandler("owner-1", false)
	fj.jobs["job-1"] = &model.Job{ID: "job-1", OwnerID: "owner-1", QueueState: model.QueueStateDone}

	req := withAuth(httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/transition", bytes.NewBufferString(`{"to":"RUNNING"}`)))
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	h.Transition(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransition_LegalEdgeSucceeds(t *testing.T) {
	h, fj := newTestHandler("owner-1", false)
	fj.jobs["job-1"] = &model.Job{ID: "job-1", OwnerID: "owner-1", QueueState: model.QueueStateQueued}

	req := withAuth(httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/transition", bytes.NewBufferString(`{"to":"RUNNING"}`)))
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	h.Transition(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.QueueStateRunning, fj.jobs["job-1"].QueueState)
}

func TestKickoff_QueuedJobAutoTransitionsThenRuns(t *testing.T) {
	h, fj := newTestHandler("owner-1", false)
	fj.jobs["job-1"] = &model.Job{ID: "job-1", OwnerID: "owner-1", QueueState: model.QueueStateQueued}

	req := withAuth(httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/kickoff", bytes.NewBufferString(`{}`)))
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	h.Kickoff(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.QueueStateRunning, fj.jobs["job-1"].QueueState)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["claimed"])
}

func TestKickoff_DoneJobIsRejected(t *testing.T) {
	h, fj := newTestHandler("owner-1", false)
	fj.jobs["job-1"] = &model.Job{ID: "job-1", OwnerID: "owner-1", QueueState: model.QueueStateDone}

	req := withAuth(httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/kickoff", bytes.NewBufferString(`{}`)))
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	h.Kickoff(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
