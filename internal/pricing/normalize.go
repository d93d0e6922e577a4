package pricing

import "strings"

// brandTypoCorrections is a static substitution map for common brand typos
// observed in submitted rows (spec §4.5 step 1).
var brandTypoCorrections = map[string]string{
	"stanely":   "stanley",
	"delonghi":  "de'longhi",
	"kitchenaid": "kitchenaid",
	"mr coffee": "mr. coffee",
	"samung":    "samsung",
	"sansung":   "samsung",
}

// normalizeBrand lowercases a brand and applies the typo-correction map.
// An empty or whitespace-only brand is treated as absent.
func normalizeBrand(raw string) string {
	b := strings.ToLower(strings.TrimSpace(raw))
	if b == "" {
		return ""
	}
	if corrected, ok := brandTypoCorrections[b]; ok {
		return corrected
	}
	return b
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
