package recommend

import "strings"

// Extract returns the deduplicated vocabulary terms appearing as
// case-insensitive substrings of text, in vocabulary order (brands first,
// then categories). Both the English and Chinese form of a concept are
// returned when both appear. Pure and deterministic; empty input yields an
// empty result.
func Extract(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var out []string
	seen := make(map[string]struct{})
	add := func(term string) {
		if _, dup := seen[term]; dup {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	for _, vocab := range [][]Term{Brands, Categories} {
		for _, t := range vocab {
			if t.EN != "" && strings.Contains(lower, strings.ToLower(t.EN)) {
				add(t.EN)
			}
			if t.ZH != "" && strings.Contains(text, t.ZH) {
				add(t.ZH)
			}
		}
	}
	return out
}
