// Package validate holds request-shape validation for the pricing API
// surface, the way the teacher validates memory/vault requests inline in
// its handlers — split out here because the pricing domain's request
// shapes are richer (job creation, scoped reprocess, pagination).
package validate

import (
	"fmt"
	"strconv"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

const (
	MaxPageSize     = 500
	DefaultPageSize = 50
)

// JobType checks a submitted job type string against the known set.
func JobType(s string) (model.JobType, error) {
	switch model.JobType(s) {
	case model.JobTypeCSV, model.JobTypeImage, model.JobTypeSingle:
		return model.JobType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown job_type %q", model.ErrValidation, s)
	}
}

// SourceRef requires a non-empty source reference for CSV/IMAGE jobs.
func SourceRef(jobType model.JobType, sourceRef string) error {
	if jobType == model.JobTypeSingle {
		return nil
	}
	if sourceRef == "" {
		return fmt.Errorf("%w: source_ref is required for job_type %q", model.ErrValidation, jobType)
	}
	return nil
}

// PageSize parses and clamps a requested page size query parameter.
func PageSize(raw string) (int, error) {
	if raw == "" {
		return DefaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: page_size must be an integer", model.ErrValidation)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: page_size must be positive", model.ErrValidation)
	}
	if n > MaxPageSize {
		n = MaxPageSize
	}
	return n, nil
}

// ItemStatuses parses a comma-joined status filter query parameter.
func ItemStatuses(raw string, splitter func(string) []string) ([]model.ItemStatus, error) {
	if raw == "" {
		return nil, nil
	}
	parts := splitter(raw)
	statuses := make([]model.ItemStatus, 0, len(parts))
	for _, p := range parts {
		switch model.ItemStatus(p) {
		case model.ItemPending, model.ItemProcessing, model.ItemDone, model.ItemError, model.ItemNotFound, model.ItemSkipped:
			statuses = append(statuses, model.ItemStatus(p))
		default:
			return nil, fmt.Errorf("%w: unknown status %q", model.ErrValidation, p)
		}
	}
	return statuses, nil
}

// JobTransition checks a requested target state is a legal edge from the
// job's current state (spec §4.3); returns model.ErrValidation otherwise.
func JobTransition(from, to model.QueueState) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition job from %s to %s", model.ErrValidation, from, to)
	}
	return nil
}
