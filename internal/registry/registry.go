// Package registry implements the job registry (C3): the authoritative
// lifecycle surface for a Job, layered thinly over store.Jobs the way the
// teacher keeps its service layer thin over store.Store.
package registry

import (
	"context"

	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/store"
)

// Registry is the authoritative state holder for Jobs.
type Registry struct {
	store store.Store
	audit ports.AuditSink
}

func New(s store.Store, audit ports.AuditSink) *Registry {
	return &Registry{store: s, audit: audit}
}

// Transition moves a Job to a new queue_state, enforcing the edges in
// model.CanTransition via store.Jobs.Transition, and emits an audit event
// on success (spec §4.3).
func (r *Registry) Transition(ctx context.Context, jobID string, to model.QueueState) error {
	if err := r.store.Jobs().Transition(ctx, jobID, to); err != nil {
		return err
	}
	r.audit.Emit(model.AuditEvent{Kind: model.AuditJobStateChanged, JobID: jobID,
		Payload: map[string]interface{}{"to": string(to)}})
	return nil
}

// Heartbeat records worker liveness on a Job (spec §4.3, §4.4 step 6).
func (r *Registry) Heartbeat(ctx context.Context, jobID string) error {
	return r.store.Jobs().Heartbeat(ctx, jobID)
}

// RecomputeCounters refreshes and returns the authoritative item-status
// histogram for a Job. When the histogram is stable (no PROCESSING items)
// and fully accounted for, the Job is transitioned to DONE (spec §3, §4.3).
func (r *Registry) RecomputeCounters(ctx context.Context, jobID string) (model.Counters, error) {
	counters, err := r.store.Jobs().RecomputeCounters(ctx, jobID)
	if err != nil {
		return model.Counters{}, err
	}

	job, err := r.store.Jobs().Get(ctx, jobID)
	if err != nil {
		return counters, err
	}

	done := counters.Stable() && counters.Total > 0 &&
		counters.Processed()+counters.Failed()+counters.Pending == counters.Total &&
		counters.Pending == 0
	// Empty job: total_items == 0 transitions directly to DONE on first
	// kickoff (spec §8 boundary behavior).
	empty := counters.Total == 0

	if (done || empty) && job.QueueState == model.QueueStateRunning {
		if err := r.Transition(ctx, jobID, model.QueueStateDone); err != nil {
			return counters, err
		}
	}
	return counters, nil
}

// Get fetches a Job by id.
func (r *Registry) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return r.store.Jobs().Get(ctx, jobID)
}
