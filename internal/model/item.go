package model

import (
	"encoding/json"
	"time"
)

// ItemStatus is the lifecycle state of a JobItem.
type ItemStatus string

const (
	ItemPending    ItemStatus = "PENDING"
	ItemProcessing ItemStatus = "PROCESSING"
	ItemDone       ItemStatus = "DONE"
	ItemError      ItemStatus = "ERROR"
	ItemNotFound   ItemStatus = "NOT_FOUND"
	// ItemSkipped is defined by the schema but, per spec §9 open questions,
	// is never assigned by any observed code path in this implementation.
	ItemSkipped ItemStatus = "SKIPPED"
)

// JobItem is the atomic unit of pricing work.
type JobItem struct {
	ID         string
	JobID      string
	OwnerID    string
	JobType    JobType
	Status     ItemStatus
	Attempts   int
	LastError  string
	LockedBy   *string
	LockedAt   *time.Time
	Input      json.RawMessage
	Normalized json.RawMessage
	Result     json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Locked reports the invariant (status == PROCESSING) <=> (locked_by != nil && locked_at != nil).
func (i JobItem) Locked() bool {
	return i.LockedBy != nil && *i.LockedBy != "" && i.LockedAt != nil
}

// Cursor is the opaque keyset pagination position (updated_at, id), ordered
// ascending. Never constructed from an offset.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// ItemFilter narrows claim/list/reset operations.
type ItemFilter struct {
	JobID    string
	OwnerID  string
	JobType  JobType
	Statuses []ItemStatus
	// IDs restricts the match to exactly these item ids, e.g. the explicit
	// item_ids reprocess scope (spec §4.7). Empty means "no id restriction".
	IDs []string
	// MaxAttempts, when > 0, restricts the match to items with attempts <
	// MaxAttempts — the reprocess attempt-cap predicate (spec §4.7).
	MaxAttempts int
	// Any lets callers pass owner=any (admin principals only); when true,
	// OwnerID is ignored.
	Any bool
}

// RawInput is the immutable submitted row or image-descriptor metadata.
type RawInput struct {
	Title       string                 `json:"title"`
	Brand       string                 `json:"brand,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Description string                 `json:"description,omitempty"`
	ImageRef    string                 `json:"imageRef,omitempty"`
	Extras      map[string]interface{} `json:"extras,omitempty"`
}

// NormalizedItem is the canonicalized descriptor produced by C5's Normalize
// state (spec §4.5 step 1).
type NormalizedItem struct {
	Title           string                 `json:"title"`
	Brand           string                 `json:"brand,omitempty"`
	Model           string                 `json:"model,omitempty"`
	Category        string                 `json:"category,omitempty"`
	Attributes      []string               `json:"attributes,omitempty"`
	Keywords        []string               `json:"keywords,omitempty"`
	Condition       string                 `json:"condition,omitempty"`
	EstimatedPrice  *float64               `json:"estimatedPrice,omitempty"`
	QueryStrategy   string                 `json:"queryStrategy,omitempty"`
	Extras          map[string]interface{} `json:"extras,omitempty"`
}

// MatchQuality is the label assigned to a resolved item (spec §4.5 step 6).
type MatchQuality string

const (
	MatchVerified MatchQuality = "verified"
	MatchTrusted  MatchQuality = "trusted"
	MatchEstimate MatchQuality = "estimated"
	MatchNone     MatchQuality = "none"
)

// Result is the canonical record written to result_json (spec §6), exported verbatim.
type Result struct {
	Price        *float64     `json:"price"`
	Currency     string       `json:"currency"`
	Source       string       `json:"source"`
	URL          *string      `json:"url"`
	Category     string       `json:"category,omitempty"`
	Subcategory  string       `json:"subcategory,omitempty"`
	MatchQuality MatchQuality `json:"match_quality"`
	IsEstimated  bool         `json:"is_estimated"`
}
