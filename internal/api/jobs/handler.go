// Package jobs implements the HTTP surface for job lifecycle operations:
// create, get, pause/resume/cancel transitions (spec §6).
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/api/respond"
	"github.com/priceline/replacement-pricer/server/internal/api/validate"
	"github.com/priceline/replacement-pricer/server/internal/ingest"
	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/principal"
	"github.com/priceline/replacement-pricer/server/internal/registry"
)

// FileParserLookup resolves a job_type to the ports.FileParser that can
// stream its source_ref into rows (CSV today; an IMAGE job type streams a
// manifest of image refs through the same interface).
type FileParserLookup func(jobType model.JobType) (ports.FileParser, bool)

// SliceResult mirrors worker.SliceResult without importing the worker
// package, keeping the HTTP layer decoupled from the dispatcher's internals.
type SliceResult struct {
	Claimed   int
	Completed int
	Failed    int
	ElapsedMs int64
}

// KickoffFunc runs one bounded worker slice against a job (spec §6: kickoff).
type KickoffFunc func(ctx context.Context, jobID string, sliceMs int) (SliceResult, error)

type Handler struct {
	ingester  *ingest.Ingester
	registry  *registry.Registry
	parsers   FileParserLookup
	resolvers principal.Resolver
	kickoff   KickoffFunc
	log       zerolog.Logger
}

func NewHandler(ig *ingest.Ingester, reg *registry.Registry, parsers FileParserLookup, resolver principal.Resolver, kickoff KickoffFunc, log zerolog.Logger) *Handler {
	return &Handler{ingester: ig, registry: reg, parsers: parsers, resolvers: resolver, kickoff: kickoff, log: log}
}

func (h *Handler) authenticate(r *http.Request) (principal.Principal, error) {
	apiKey, err := principal.ExtractAPIKey(r)
	if err != nil {
		return principal.Principal{}, err
	}
	return h.resolvers.Resolve(r.Context(), apiKey)
}

type createJobRequest struct {
	JobType   string          `json:"job_type"`
	SourceRef string          `json:"source_ref,omitempty"`
	Item      json.RawMessage `json:"item,omitempty"`
}

// CreateJob handles POST /api/jobs. For CSV/IMAGE job types, source_ref
// names a file the registered ports.FileParser streams; for SINGLE, item
// is the inline row.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}

	jobType, err := validate.JobType(req.JobType)
	if err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.SourceRef(jobType, req.SourceRef); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	var rows ports.RowIterator
	if jobType == model.JobTypeSingle {
		var raw model.RawInput
		if err := json.Unmarshal(req.Item, &raw); err != nil {
			respond.WriteBadRequest(w, "item is required and must be a valid row for job_type SINGLE")
			return
		}
		rows = &singleRowIterator{row: raw}
	} else {
		parser, ok := h.parsers(jobType)
		if !ok {
			respond.WriteBadRequest(w, "no parser registered for job_type "+string(jobType))
			return
		}
		iter, err := parser.StreamRows(r.Context(), req.SourceRef)
		if err != nil {
			respond.WriteBadRequest(w, "failed to open source_ref: "+err.Error())
			return
		}
		rows = iter
	}
	defer rows.Close()

	result, err := h.ingester.Ingest(r.Context(), p.OwnerID, jobType, req.SourceRef, rows)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"job_id": result.JobID, "total_items": result.TotalItems,
	})
}

// GetJob handles GET /api/jobs/{jobId}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	jobID := mux.Vars(r)["jobId"]

	job, err := h.registry.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	if !p.Admin && job.OwnerID != p.OwnerID {
		respond.WriteNotFound(w, "job not found")
		return
	}
	respond.WriteJSON(w, http.StatusOK, job)
}

type transitionRequest struct {
	To string `json:"to"`
}

// Transition handles POST /api/jobs/{jobId}/transition, used for
// pause/resume/cancel (spec §4.3).
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	jobID := mux.Vars(r)["jobId"]

	job, err := h.registry.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	if !p.Admin && job.OwnerID != p.OwnerID {
		respond.WriteNotFound(w, "job not found")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	to := model.QueueState(req.To)
	if err := validate.JobTransition(job.QueueState, to); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.registry.Transition(r.Context(), jobID, to); err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"job_id": jobID, "queue_state": to})
}

type kickoffRequest struct {
	SliceMs int `json:"slice_ms"`
}

// Kickoff handles POST /api/jobs/{jobId}/kickoff. It runs one bounded
// worker slice synchronously and returns the slice outcome (spec §6).
// Double-submitting the same tick is safe: a second concurrent call either
// finds nothing left to claim or claims disjoint items (spec §8).
func (h *Handler) Kickoff(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	jobID := mux.Vars(r)["jobId"]

	job, err := h.registry.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			respond.WriteNotFound(w, "job not found")
			return
		}
		respond.WriteInternalError(w, err.Error())
		return
	}
	if !p.Admin && job.OwnerID != p.OwnerID {
		respond.WriteNotFound(w, "job not found")
		return
	}
	if job.QueueState != model.QueueStateRunning && job.QueueState != model.QueueStateQueued {
		respond.WriteBadRequest(w, "job is not in a kickoff-eligible state: "+string(job.QueueState))
		return
	}

	var req kickoffRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	sliceMs := req.SliceMs
	if sliceMs <= 0 {
		sliceMs = 5000
	}

	if job.QueueState == model.QueueStateQueued {
		if err := h.registry.Transition(r.Context(), jobID, model.QueueStateRunning); err != nil {
			respond.WriteInternalError(w, err.Error())
			return
		}
	}

	result, err := h.kickoff(r.Context(), jobID, sliceMs)
	if err != nil {
		respond.WriteInternalError(w, err.Error())
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"claimed": result.Claimed, "completed": result.Completed,
		"failed": result.Failed, "elapsed_ms": result.ElapsedMs,
	})
}

// singleRowIterator adapts a single in-memory RawInput to ports.RowIterator
// for SINGLE-item job submissions.
type singleRowIterator struct {
	row  model.RawInput
	done bool
}

func (s *singleRowIterator) Next(ctx context.Context) (model.RawInput, error) {
	if s.done {
		return model.RawInput{}, io.EOF
	}
	s.done = true
	return s.row, nil
}
func (s *singleRowIterator) Close() error { return nil }
