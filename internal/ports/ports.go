// Package ports declares the narrow, swappable contracts the core pipeline
// depends on for everything outside its own process: external search,
// image description, file parsing, and audit delivery. The core never
// imports a concrete adapter package directly.
package ports

import (
	"context"
	"time"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

// SearchErrorKind classifies a SearchProvider failure so C6 can apply the
// right retry policy without parsing error strings.
type SearchErrorKind string

const (
	SearchErrTimeout     SearchErrorKind = "timeout"
	SearchErrRateLimited SearchErrorKind = "rate_limited"
	SearchErrUpstream5xx SearchErrorKind = "upstream_5xx"
	SearchErrUpstream4xx SearchErrorKind = "upstream_4xx"
	SearchErrParse       SearchErrorKind = "parse_error"
)

// SearchError wraps a classified SearchProvider failure.
type SearchError struct {
	Kind SearchErrorKind
	Err  error
}

func (e *SearchError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *SearchError) Unwrap() error { return e.Err }

// Candidate is one priced result returned by a SearchProvider.
type Candidate struct {
	Title      string
	Price      float64
	Currency   string
	SourceHost string
	Source     string
	URL        string
	Raw        []byte
}

// SearchResult is the outcome of one SearchProvider.Search call.
type SearchResult struct {
	Candidates   []Candidate
	RawLatencyMs int64
}

// SearchProvider is the pluggable external search/scrape port consumed by
// the price-resolution state machine.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int, deadline time.Time) (SearchResult, error)
}

// DescriptorExtractor turns an image into a normalized descriptor, used for
// IMAGE job items in place of the raw-row normalize path.
type DescriptorExtractor interface {
	Describe(ctx context.Context, imageBytes []byte, deadline time.Time) (model.NormalizedItem, error)
}

// RowIterator is a lazy, finite, forward-only sequence of submitted rows.
// It is not restartable from the middle; a consumer that needs resumption
// must persist rows as it goes (which is exactly what the ingester does).
type RowIterator interface {
	// Next returns the next row, or io.EOF when exhausted.
	Next(ctx context.Context) (model.RawInput, error)
	Close() error
}

// FileParser turns a source reference (an uploaded spreadsheet, an object
// store key) into a RowIterator.
type FileParser interface {
	StreamRows(ctx context.Context, sourceRef string) (RowIterator, error)
}

// AuditSink is a fire-and-forget, best-effort delivery port for audit
// events. A failing sink MUST NOT fail the caller's primary transaction.
type AuditSink interface {
	Emit(event model.AuditEvent)
}
