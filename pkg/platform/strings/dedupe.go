// Package strings provides list-cleaning helpers for config values and
// request input.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated config value, trimming entries and
// dropping blanks and repeats. Order is preserved.
//
//	SplitList(" https://a.example , https://b.example,,https://a.example")
//	// []string{"https://a.example", "https://b.example"}
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return dedupe(strings.Split(raw, ","), strings.TrimSpace)
}

// DedupeAndTrimLower trims, lowercases, and dedupes values, dropping blanks.
// Used for hostnames and country codes compared case-insensitively.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return dedupe(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func dedupe(values []string, clean func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		c := clean(v)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		result = append(result, c)
	}
	return result
}
