package pricing

import (
	"strings"

	"github.com/priceline/replacement-pricer/server/internal/model"
)

// BuildQueries generates an ordered list of search queries from a
// normalized item, most specific first (spec §4.5 step 2).
func BuildQueries(n model.NormalizedItem) []string {
	var queries []string
	add := func(q string) {
		q = strings.ToLower(strings.TrimSpace(q))
		if q == "" {
			return
		}
		for _, existing := range queries {
			if existing == q {
				return
			}
		}
		queries = append(queries, q)
	}

	if n.Brand != "" && n.Title != "" {
		add(n.Brand + " " + n.Title)
	}
	if n.Brand != "" && n.Category != "" {
		add(n.Brand + " " + n.Category)
	}
	if n.Title != "" {
		add(n.Title)
	}
	if len(n.Keywords) > 0 {
		add(strings.Join(n.Keywords, " "))
	}
	return queries
}

// broadenedQueries drops the model/brand specificity for a NOT_FOUND retry
// with an altered query strategy (spec §4.6: "broaden query, drop model,
// try keywords-only").
func broadenedQueries(n model.NormalizedItem) []string {
	broadened := n
	broadened.Model = ""
	broadened.Brand = ""
	queries := BuildQueries(broadened)
	if len(n.Keywords) > 0 {
		queries = append(queries, strings.Join(n.Keywords, " "))
	}
	return queries
}
