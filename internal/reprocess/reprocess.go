// Package reprocess implements C7: scoped reprocessing and the
// keyset-paginated read/export surface over job items.
package reprocess

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/ports"
	"github.com/priceline/replacement-pricer/server/internal/store"
)

// Scope names the three reprocess selection modes (spec §4.7).
type Scope string

const (
	ScopeFailedAndNotFound Scope = "failed_and_not_found"
	ScopeItemIDs           Scope = "item_ids"
	ScopeStatusFilter      Scope = "status_filter"
)

// Request describes one reprocess call.
type Request struct {
	JobID         string
	Scope         Scope
	ItemIDs       []string
	Statuses      []model.ItemStatus
	ResetAttempts bool
	ActorID       string
}

// Service implements reprocessing and paginated/export reads.
type Service struct {
	store               store.Store
	audit               ports.AuditSink
	maxAttemptsError    int
	maxAttemptsNotFound int
}

// New builds a Service. maxAttemptsError/maxAttemptsNotFound are the same
// per-error-class attempt caps C6 enforces in-slice (spec §4.6); the
// failed_and_not_found scope reuses them so items that already exhausted
// their retries aren't bulk-requeued forever (spec §4.7).
func New(s store.Store, audit ports.AuditSink, maxAttemptsError, maxAttemptsNotFound int) *Service {
	return &Service{store: s, audit: audit, maxAttemptsError: maxAttemptsError, maxAttemptsNotFound: maxAttemptsNotFound}
}

// Reprocess transitions matching items back to PENDING with cleared locks.
// It never touches PROCESSING items (spec §4.7 invariant) — store.Items.Reset
// enforces that exclusion directly in its WHERE clause.
func (s *Service) Reprocess(ctx context.Context, req Request) (int, error) {
	switch req.Scope {
	case ScopeFailedAndNotFound:
		// ERROR and NOT_FOUND carry different attempt caps, so each status
		// needs its own capped Reset call rather than one shared filter.
		nError, err := s.store.Items().Reset(ctx, model.ItemFilter{
			JobID: req.JobID, Any: true, Statuses: []model.ItemStatus{model.ItemError}, MaxAttempts: s.maxAttemptsError,
		}, req.ResetAttempts)
		if err != nil {
			return 0, err
		}
		nNotFound, err := s.store.Items().Reset(ctx, model.ItemFilter{
			JobID: req.JobID, Any: true, Statuses: []model.ItemStatus{model.ItemNotFound}, MaxAttempts: s.maxAttemptsNotFound,
		}, req.ResetAttempts)
		if err != nil {
			return nError, err
		}
		n := nError + nNotFound
		s.emitReprocessAudit(req, n)
		return n, nil
	case ScopeStatusFilter:
		n, err := s.store.Items().Reset(ctx, model.ItemFilter{JobID: req.JobID, Any: true, Statuses: req.Statuses}, req.ResetAttempts)
		if err != nil {
			return 0, err
		}
		s.emitReprocessAudit(req, n)
		return n, nil
	case ScopeItemIDs:
		// IDs is a filter predicate in its own right (AND'd with job_id), so
		// the named items are targeted exactly — no other item sharing their
		// status gets swept up, and Reset's own WHERE still excludes
		// PROCESSING items regardless of whether they were named.
		n, err := s.store.Items().Reset(ctx, model.ItemFilter{JobID: req.JobID, Any: true, IDs: req.ItemIDs}, req.ResetAttempts)
		if err != nil {
			return 0, err
		}
		s.emitReprocessAudit(req, n)
		return n, nil
	default:
		return 0, fmt.Errorf("reprocess: %w: unknown scope %q", model.ErrValidation, req.Scope)
	}
}

func (s *Service) emitReprocessAudit(req Request, n int) {
	s.audit.Emit(model.AuditEvent{
		Kind: model.AuditReprocessRequested, JobID: req.JobID, ActorID: req.ActorID, Ts: time.Now(),
		Payload: map[string]interface{}{"scope": string(req.Scope), "count": n, "reset_attempts": req.ResetAttempts},
	})
}

// ItemSummary is the small server-side projection returned by listings —
// input_json/result_json are never projected in full (spec §4.7).
type ItemSummary struct {
	ID        string          `json:"id"`
	Status    model.ItemStatus `json:"status"`
	Title     string          `json:"title,omitempty"`
	Brand     string          `json:"brand,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Page is one keyset page of item summaries plus the opaque cursor for the next page.
type Page struct {
	Items      []ItemSummary
	NextCursor string
}

// ListItems serves one keyset page ordered (updated_at, id) ascending
// (spec §4.1, §4.7). A malformed cursor string is treated as "start from
// the beginning" rather than failing the request.
func (s *Service) ListItems(ctx context.Context, filter model.ItemFilter, cursorStr string, pageSize int) (Page, error) {
	after, _ := DecodeCursor(cursorStr)
	items, err := s.store.Items().List(ctx, filter, after, pageSize)
	if err != nil {
		return Page{}, err
	}

	summaries := make([]ItemSummary, 0, len(items))
	for _, it := range items {
		summaries = append(summaries, summarize(it))
	}

	page := Page{Items: summaries}
	if len(items) == pageSize && pageSize > 0 {
		last := items[len(items)-1]
		page.NextCursor = EncodeCursor(model.Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID})
	}
	return page, nil
}

func summarize(it *model.JobItem) ItemSummary {
	summary := ItemSummary{ID: it.ID, Status: it.Status, UpdatedAt: it.UpdatedAt}
	var normalized model.NormalizedItem
	if len(it.Normalized) > 0 && json.Unmarshal(it.Normalized, &normalized) == nil {
		summary.Title = normalized.Title
		summary.Brand = normalized.Brand
	}
	if summary.Title == "" && len(it.Input) > 0 {
		var raw model.RawInput
		if json.Unmarshal(it.Input, &raw) == nil {
			summary.Title = raw.Title
			summary.Brand = raw.Brand
		}
	}
	return summary
}

// ExportFormat selects the export encoding (spec §6).
type ExportFormat string

const (
	FormatTabular   ExportFormat = "tabular"
	FormatDelimited ExportFormat = "delimited"
)

// Export streams result_json for a job's items as w, a pure function of
// stored data — it never recomputes prices. includeErrors controls whether
// ERROR-status items appear in the export (spec §9 open question, decided
// in DESIGN.md: included by default).
func (s *Service) Export(ctx context.Context, jobID string, format ExportFormat, includeErrors bool, w io.Writer) error {
	statuses := []model.ItemStatus{model.ItemDone, model.ItemNotFound}
	if includeErrors {
		statuses = append(statuses, model.ItemError)
	}

	cw := csv.NewWriter(w)
	if format == FormatDelimited {
		cw.Comma = '\t'
	}
	defer cw.Flush()

	if err := cw.Write([]string{"item_id", "status", "price", "currency", "source", "url", "match_quality", "is_estimated"}); err != nil {
		return err
	}

	var after *model.Cursor
	const pageSize = 500
	for {
		items, err := s.store.Items().List(ctx, model.ItemFilter{JobID: jobID, Any: true, Statuses: statuses}, after, pageSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if err := writeExportRow(cw, it); err != nil {
				return err
			}
		}
		last := items[len(items)-1]
		after = &model.Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID}
		if len(items) < pageSize {
			break
		}
	}
	return nil
}

func writeExportRow(cw *csv.Writer, it *model.JobItem) error {
	var res model.Result
	if len(it.Result) > 0 {
		_ = json.Unmarshal(it.Result, &res)
	}
	price := ""
	if res.Price != nil {
		price = fmt.Sprintf("%.2f", *res.Price)
	}
	url := ""
	if res.URL != nil {
		url = *res.URL
	}
	return cw.Write([]string{
		it.ID, string(it.Status), price, res.Currency, res.Source, url,
		string(res.MatchQuality), fmt.Sprintf("%t", res.IsEstimated),
	})
}
