// Package policy holds the source-trust predicate, direct-URL detection
// patterns, and the category-baseline fallback table consulted by the
// price-resolution state machine. Untrustedness is modeled as a
// deny-by-membership set, never an allow-list (spec §9 design note).
package policy

import "regexp"

// Policy is the deny-by-membership source-trust predicate plus the
// per-retailer direct-URL patterns.
type Policy struct {
	untrustedHosts   map[string]bool
	untrustedSources map[string]bool
	directURL        map[string]*regexp.Regexp
	catalogURL       map[string]*regexp.Regexp
	categoryBaseline map[string]float64
}

// Bounds carries the §6 policy configuration.
type Bounds struct {
	UntrustedSources []string
	UntrustedHosts   []string
}

// New builds a Policy from configured untrusted sets plus the built-in
// direct-URL/catalog-URL patterns and category-baseline table.
func New(b Bounds) *Policy {
	p := &Policy{
		untrustedHosts:   toSet(b.UntrustedHosts),
		untrustedSources: toSet(b.UntrustedSources),
		directURL:        defaultDirectURLPatterns(),
		catalogURL:       defaultCatalogURLPatterns(),
		categoryBaseline: defaultCategoryBaseline(),
	}
	return p
}

func toSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// IsTrusted reports whether a source/host pair is trusted — true unless
// explicitly present in one of the untrusted sets. Untrustedness is always
// the exceptional case.
func (p *Policy) IsTrusted(source, host string) bool {
	if p.untrustedSources[source] {
		return false
	}
	if p.untrustedHosts[host] {
		return false
	}
	return true
}

// IsDirectURL reports whether url matches the known per-retailer
// product-page pattern for host, and is not a recognized catalog/search
// pattern for that same host.
func (p *Policy) IsDirectURL(host, url string) bool {
	if re, ok := p.catalogURL[host]; ok && re.MatchString(url) {
		return false
	}
	re, ok := p.directURL[host]
	if !ok {
		return false
	}
	return re.MatchString(url)
}

// CategoryBaseline returns a typical price for a category, for use only
// when no provider returned usable data (spec §4.5). ok is false for an
// unknown category; this path never produces a direct URL.
func (p *Policy) CategoryBaseline(category string) (price float64, ok bool) {
	price, ok = p.categoryBaseline[category]
	return
}

// defaultDirectURLPatterns recognizes a product-page path (a segment like
// "/dp/", "/ip/", "/p/", "/pd/" or "/site/" followed by a product id) per
// retailer.
func defaultDirectURLPatterns() map[string]*regexp.Regexp {
	return map[string]*regexp.Regexp{
		"amazon.com":    regexp.MustCompile(`/dp/[A-Z0-9]{10}`),
		"walmart.com":   regexp.MustCompile(`/ip/[\w-]+/\d+`),
		"target.com":    regexp.MustCompile(`/p/[\w-]+/-/A-\d+`),
		"homedepot.com": regexp.MustCompile(`/p/[\w-]+/\d+`),
		"lowes.com":     regexp.MustCompile(`/pd/[\w-]+/\d+`),
		"bestbuy.com":   regexp.MustCompile(`/site/[\w-]+/\d+\.p`),
	}
}

// defaultCatalogURLPatterns recognizes search-result and catalog pages for
// the same retailers, which must be demoted even when a direct-URL pattern
// also loosely matches a substring.
func defaultCatalogURLPatterns() map[string]*regexp.Regexp {
	return map[string]*regexp.Regexp{
		"amazon.com":    regexp.MustCompile(`/s\?`),
		"walmart.com":   regexp.MustCompile(`/search/`),
		"target.com":    regexp.MustCompile(`/s/`),
		"homedepot.com": regexp.MustCompile(`/b/`),
		"lowes.com":     regexp.MustCompile(`/search\?`),
		"bestbuy.com":   regexp.MustCompile(`/site/searchpage\.jsp`),
	}
}

// defaultCategoryBaseline is a static category->typical-price table used
// only as a last-resort estimate.
func defaultCategoryBaseline() map[string]float64 {
	return map[string]float64{
		"hardware":    25.00,
		"electronics": 150.00,
		"furniture":   300.00,
		"appliance":   450.00,
		"jewelry":     200.00,
		"clothing":    40.00,
		"tools":       60.00,
		"kitchenware": 35.00,
	}
}
