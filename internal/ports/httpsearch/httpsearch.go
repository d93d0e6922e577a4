// Package httpsearch implements ports.SearchProvider over a generic JSON
// HTTP search API using resty, the way the teacher's indexer-prototype
// package calls out to Ollama's HTTP API.
package httpsearch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/priceline/replacement-pricer/server/internal/ports"
)

// Provider calls a single external search/scrape HTTP API and adapts its
// response into ports.SearchResult.
type Provider struct {
	name   string
	client *resty.Client
}

// New constructs a Provider bound to baseURL, named name (used in
// SearchEvent.Provider and by the retry controller's per-provider state).
func New(name, baseURL string, timeout time.Duration) *Provider {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Provider{name: name, client: c}
}

func (p *Provider) Name() string { return p.name }

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponseItem struct {
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	SourceHost string  `json:"source_host"`
	Source     string  `json:"source"`
	URL        string  `json:"url"`
}

type searchResponse struct {
	Results []searchResponseItem `json:"results"`
}

// Search issues one query against the configured provider, classifying
// failures into the typed error kinds C6 consumes (spec §4.9).
func (p *Provider) Search(ctx context.Context, query string, maxResults int, deadline time.Time) (ports.SearchResult, error) {
	reqCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var parsed searchResponse
	started := time.Now()
	resp, err := p.client.R().
		SetContext(reqCtx).
		SetBody(searchRequest{Query: query, MaxResults: maxResults}).
		SetResult(&parsed).
		Post("/search")
	elapsed := time.Since(started).Milliseconds()

	if err != nil {
		if reqCtx.Err() != nil {
			return ports.SearchResult{}, &ports.SearchError{Kind: ports.SearchErrTimeout, Err: err}
		}
		return ports.SearchResult{}, &ports.SearchError{Kind: ports.SearchErrUpstream5xx, Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return ports.SearchResult{}, &ports.SearchError{Kind: ports.SearchErrRateLimited, Err: fmt.Errorf("status %d", resp.StatusCode())}
	case resp.StatusCode() >= 500:
		return ports.SearchResult{}, &ports.SearchError{Kind: ports.SearchErrUpstream5xx, Err: fmt.Errorf("status %d", resp.StatusCode())}
	case resp.StatusCode() >= 400:
		return ports.SearchResult{}, &ports.SearchError{Kind: ports.SearchErrUpstream4xx, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	candidates := make([]ports.Candidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		candidates = append(candidates, ports.Candidate{
			Title: r.Title, Price: r.Price, Currency: r.Currency,
			SourceHost: r.SourceHost, Source: r.Source, URL: r.URL, Raw: resp.Body(),
		})
	}
	return ports.SearchResult{Candidates: candidates, RawLatencyMs: elapsed}, nil
}
