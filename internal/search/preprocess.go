package search

import "strings"

// FlattenFields joins structured record fields into one searchable fact line.
// Empty and whitespace-only fields are dropped, interior whitespace is
// collapsed, and fields are separated by single spaces.
//
// Callers use this to turn a catalog row (make, model, category, features,
// descriptions) into Document text without the index knowing about the
// record's shape.
func FlattenFields(fields ...string) string {
	cleaned := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.TrimSpace(normalizeWhitespace(f))
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, " ")
}
