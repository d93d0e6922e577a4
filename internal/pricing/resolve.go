// Package pricing implements the price-resolution state machine (C5): the
// per-item Normalize -> Query -> Provider fan-out -> Filter&Score -> Select
// -> Label pipeline described in spec §4.5.
package pricing

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/priceline/replacement-pricer/server/internal/control"
	"github.com/priceline/replacement-pricer/server/internal/model"
	"github.com/priceline/replacement-pricer/server/internal/pricing/policy"
	"github.com/priceline/replacement-pricer/server/internal/ports"
)

// TimeoutTiers carries the provider call timeout ladder from spec §6.
type TimeoutTiers struct {
	Fast   time.Duration
	Medium time.Duration
	Slow   time.Duration
}

// Resolver drives one item through the price-resolution state machine.
type Resolver struct {
	providers  []ports.SearchProvider
	extractor  ports.DescriptorExtractor
	events     SearchEventSink
	policy     *policy.Policy
	controller *control.Controller
	timeouts   TimeoutTiers
	gate       *providerGate
	log        zerolog.Logger
}

// SearchEventSink records one SearchEvent per external call (spec §4.5 step 7, §4.8).
type SearchEventSink interface {
	Append(ctx context.Context, e *model.SearchEvent) error
}

func New(providers []ports.SearchProvider, extractor ports.DescriptorExtractor, events SearchEventSink,
	pol *policy.Policy, controller *control.Controller, timeouts TimeoutTiers, log zerolog.Logger) *Resolver {
	return &Resolver{
		providers: providers, extractor: extractor, events: events, policy: pol,
		controller: controller, timeouts: timeouts, gate: newProviderGate(), log: log,
	}
}

// DispatchConcurrency caps ceiling (the worker's configured slice
// concurrency) to the tightest per-provider concurrency C6 currently
// allows, so a slice never dispatches more in-flight items than the
// throttled providers can actually take (spec §4.4 step 4, §4.6).
func (r *Resolver) DispatchConcurrency(ceiling int) int {
	if ceiling <= 0 {
		ceiling = 1
	}
	if len(r.providers) == 0 {
		return ceiling
	}
	limit := ceiling
	for _, p := range r.providers {
		if c := r.controller.Concurrency(p.Name()); c < limit {
			limit = c
		}
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

// providerGate bounds the number of calls in flight to a single provider to
// the concurrency level C6 currently allows for it (spec §4.6's per-provider
// concurrency K), independent of how many items the worker has dispatched.
type providerGate struct {
	mu       sync.Mutex
	inFlight map[string]int
}

func newProviderGate() *providerGate { return &providerGate{inFlight: map[string]int{}} }

func (g *providerGate) acquire(ctx context.Context, name string, limit int) bool {
	if limit <= 0 {
		limit = 1
	}
	for {
		g.mu.Lock()
		if g.inFlight[name] < limit {
			g.inFlight[name]++
			g.mu.Unlock()
			return true
		}
		g.mu.Unlock()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (g *providerGate) release(name string) {
	g.mu.Lock()
	g.inFlight[name]--
	g.mu.Unlock()
}

// Outcome is the terminal result of resolving one item.
type Outcome struct {
	Status     model.ItemStatus
	Result     *model.Result
	Normalized *model.NormalizedItem
	ErrorKind  string
}

// Resolve runs the full state machine for one item. avgItemMs selects the
// per-call timeout tier (spec §4.5 step 3). priorAttempts is the item's
// attempts counter carried in from earlier slices/reprocess cycles, so C6's
// attempt caps (spec §4.6, §7) bound an item's retries across its whole
// lifetime, not just this one call.
func (r *Resolver) Resolve(ctx context.Context, itemID string, raw model.RawInput, imageBytes []byte, avgItemMs float64, priorAttempts int) Outcome {
	normalized, err := r.normalize(ctx, raw, imageBytes)
	if err != nil {
		return Outcome{Status: model.ItemError, ErrorKind: "input"}
	}
	normalized.QueryStrategy = "direct"

	timeout := r.timeoutFor(avgItemMs)
	queries := BuildQueries(normalized)
	broadened := false
	noMatchAttempts := priorAttempts

	for {
		if len(queries) == 0 {
			return r.fallback(normalized)
		}

		best, found, class := r.tryQueries(ctx, itemID, normalized, queries, timeout, priorAttempts)
		if found {
			return r.label(normalized, best)
		}
		if class == control.ClassTransient || class == control.ClassRateLimit {
			return Outcome{Status: model.ItemError, Normalized: &normalized, ErrorKind: "transient_exhausted"}
		}

		// Every query/provider pair came back a clean miss: spec §4.6's
		// NOT_FOUND retry escalates to a broadened query once, bounded by
		// max_attempts_not_found across this item's whole lifetime.
		if broadened {
			return r.fallback(normalized)
		}
		noMatchAttempts++
		decision := r.controller.Decide(control.ClassNoMatch, noMatchAttempts)
		if !decision.Retry {
			return r.fallback(normalized)
		}
		broadened = true
		normalized.QueryStrategy = "broadened"
		queries = broadenedQueries(normalized)
	}
}

// tryQueries attempts every query/provider pair once each (with its own
// internal retry-on-transient-failure loop). It returns the first scored
// match, or reports ClassTransient when every pair exhausted its retry
// budget on transient or rate-limited failures rather than ever getting a
// usable response, and ClassNoMatch otherwise (spec §4.5 step 6).
func (r *Resolver) tryQueries(ctx context.Context, itemID string, normalized model.NormalizedItem, queries []string, timeout time.Duration, priorAttempts int) (scoredCandidate, bool, control.ErrorClass) {
	totalCalls := 0
	exhaustedFailures := 0

	for _, query := range queries {
		for _, provider := range r.providers {
			totalCalls++
			best, found, exhausted := r.callProviderWithRetry(ctx, itemID, provider, query, timeout, normalized, priorAttempts)
			if found {
				return best, true, ""
			}
			if exhausted {
				exhaustedFailures++
			}
		}
	}
	if totalCalls > 0 && exhaustedFailures == totalCalls {
		return scoredCandidate{}, false, control.ClassTransient
	}
	return scoredCandidate{}, false, control.ClassNoMatch
}

// callProviderWithRetry calls one provider for one query, retrying the same
// call on transient/rate-limited failures per C6's policy (spec §4.6: 429
// retries after the controller's per-provider delay, transient failures
// retry with exponential backoff), both bounded by max_attempts_error.
func (r *Resolver) callProviderWithRetry(ctx context.Context, itemID string, provider ports.SearchProvider, query string, timeout time.Duration, normalized model.NormalizedItem, priorAttempts int) (scoredCandidate, bool, bool) {
	attempts := priorAttempts
	for {
		if !r.gate.acquire(ctx, provider.Name(), r.controller.Concurrency(provider.Name())) {
			return scoredCandidate{}, false, true
		}
		deadline := time.Now().Add(timeout)
		started := time.Now()
		result, callErr := provider.Search(ctx, query, 10, deadline)
		finished := time.Now()
		r.gate.release(provider.Name())

		outcome, errKind := classifyCallOutcome(result, callErr)
		r.recordEvent(ctx, itemID, provider.Name(), query, started, finished, outcome, errKind, len(result.Candidates), "")

		if callErr != nil {
			throttled := outcome == model.OutcomeTimeout || errKind == string(ports.SearchErrRateLimited) || errKind == string(ports.SearchErrUpstream5xx)
			r.controller.Observe(provider.Name(), throttled)

			class := control.Classify(ports.SearchErrorKind(errKind), callErr)
			attempts++
			decision := r.controller.Decide(class, attempts)
			if !decision.Retry {
				return scoredCandidate{}, false, class == control.ClassTransient || class == control.ClassRateLimit
			}
			delay := decision.BackoffDuration
			if class == control.ClassRateLimit {
				delay = r.controller.Delay(provider.Name())
			}
			if !sleepOrDone(ctx, delay) {
				return scoredCandidate{}, false, true
			}
			continue
		}
		r.controller.Observe(provider.Name(), false)

		scored := scoreCandidates(normalized, result.Candidates, r.policy)
		best, ok := selectBest(scored)
		if !ok {
			return scoredCandidate{}, false, false
		}
		return best, true, false
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Resolver) normalize(ctx context.Context, raw model.RawInput, imageBytes []byte) (model.NormalizedItem, error) {
	if len(imageBytes) > 0 && r.extractor != nil {
		n, err := r.extractor.Describe(ctx, imageBytes, time.Now().Add(r.timeouts.Slow))
		if err != nil {
			return model.NormalizedItem{}, err
		}
		n.Brand = normalizeBrand(n.Brand)
		return n, nil
	}

	if strings.TrimSpace(raw.Title) == "" {
		return model.NormalizedItem{}, errEmptyTitle
	}

	return model.NormalizedItem{
		Title:    raw.Title,
		Brand:    normalizeBrand(raw.Brand),
		Model:    raw.Model,
		Category: raw.Category,
		Keywords: tokenize(raw.Title),
		Extras:   raw.Extras,
	}, nil
}

var errEmptyTitle = &inputError{"title is required"}

type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func (r *Resolver) timeoutFor(avgItemMs float64) time.Duration {
	switch {
	case avgItemMs <= 0 || avgItemMs < 500:
		return r.timeouts.Fast
	case avgItemMs < 2000:
		return r.timeouts.Medium
	default:
		return r.timeouts.Slow
	}
}

// fallback applies the category-baseline path: no direct URL, a plausible
// price only when the category is known (spec §4.5 step 6).
func (r *Resolver) fallback(n model.NormalizedItem) Outcome {
	if n.Category == "" {
		return Outcome{Status: model.ItemNotFound, Normalized: &n}
	}
	price, ok := r.policy.CategoryBaseline(n.Category)
	if !ok {
		return Outcome{Status: model.ItemNotFound, Normalized: &n}
	}
	result := &model.Result{
		Price: &price, Currency: "USD", Source: "category_baseline", URL: nil,
		Category: n.Category, MatchQuality: model.MatchEstimate, IsEstimated: true,
	}
	return Outcome{Status: model.ItemDone, Result: result, Normalized: &n}
}

// label assigns the terminal status and match-quality label for the winning
// candidate (spec §4.5 step 6).
func (r *Resolver) label(n model.NormalizedItem, best scoredCandidate) Outcome {
	quality := model.MatchEstimate
	switch {
	case best.IsDirect && best.IsTrusted:
		quality = model.MatchVerified
	case best.IsTrusted:
		quality = model.MatchTrusted
	}

	price := best.Price
	url := best.URL
	result := &model.Result{
		Price: &price, Currency: normalizeCurrency(best.Currency), Source: best.Source, URL: &url,
		Category: n.Category, MatchQuality: quality, IsEstimated: quality == model.MatchEstimate,
	}
	return Outcome{Status: model.ItemDone, Result: result, Normalized: &n}
}

func normalizeCurrency(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

func classifyCallOutcome(result ports.SearchResult, err error) (model.SearchOutcome, string) {
	if err == nil {
		if len(result.Candidates) == 0 {
			return model.OutcomeMiss, ""
		}
		return model.OutcomeHit, ""
	}
	var se *ports.SearchError
	if as, ok := err.(*ports.SearchError); ok {
		se = as
	}
	if se == nil {
		return model.OutcomeError, "unknown"
	}
	if se.Kind == ports.SearchErrTimeout {
		return model.OutcomeTimeout, string(se.Kind)
	}
	return model.OutcomeError, string(se.Kind)
}

func (r *Resolver) recordEvent(ctx context.Context, itemID, provider, query string, started, finished time.Time,
	outcome model.SearchOutcome, errKind string, resultCount int, chosenURL string) {
	ev := &model.SearchEvent{
		JobItemID: itemID, Provider: provider, Query: query,
		StartedAt: started, FinishedAt: finished, Outcome: outcome,
		LatencyMs: finished.Sub(started).Milliseconds(), ErrorKind: errKind,
		ResultCount: resultCount, ChosenURL: chosenURL,
	}
	if err := r.events.Append(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("item_id", itemID).Msg("search event append failed, dropping")
	}
}

// MarshalResult renders a Result to its canonical JSON shape for result_json.
func MarshalResult(res *model.Result) (json.RawMessage, error) {
	return json.Marshal(res)
}

// MarshalNormalized renders a NormalizedItem for normalized_json.
func MarshalNormalized(n *model.NormalizedItem) (json.RawMessage, error) {
	return json.Marshal(n)
}
