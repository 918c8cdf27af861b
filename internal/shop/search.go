package shop

import "strings"

// SearchTerms splits a free-text query into lowercase terms for the fallback
// product search. Hyphens count as word separators, and a naive plural is
// stripped: words longer than three characters lose a trailing "s", so
// "cables" still matches "Ethernet Cable (2m)".
func SearchTerms(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.ReplaceAll(q, "-", " ")

	var terms []string
	for _, w := range strings.Fields(q) {
		if len(w) > 3 && strings.HasSuffix(w, "s") {
			w = w[:len(w)-1]
		}
		terms = append(terms, w)
	}
	return terms
}
