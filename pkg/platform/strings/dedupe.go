// Package strings provides string slice helpers shared by request parsing.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and blanks from values, trimming each
// element and preserving first-seen order. Works for any string-based type,
// so typed enums (document kinds, steps) can be normalised directly.
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "}) // []string{"foo", "bar"}
func DedupeAndTrim[T ~string](values []T) []T {
	return dedupe(values, func(s string) string { return strings.TrimSpace(s) })
}

// DedupeAndTrimLower is like DedupeAndTrim but lowercases each element.
func DedupeAndTrimLower[T ~string](values []T) []T {
	return dedupe(values, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
}

func dedupe[T ~string](values []T, norm func(string) string) []T {
	if len(values) == 0 {
		return values
	}
	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		n := T(norm(string(v)))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}
	return result
}
