// Package strings holds helpers for list-valued query parameters.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value into trimmed, lowercased items.
// Blank items and repeats are dropped; first occurrence order is kept.
//
//	SplitList(" Active,sold,,ACTIVE ") // []string{"active", "sold"}
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
