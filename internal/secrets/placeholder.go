package secrets

import (
	"fmt"
	"regexp"
)

// placeholderRe matches {SECRET:<uuid>:<description>}.
var placeholderRe = regexp.MustCompile(`\{SECRET:([0-9a-fA-F-]{36}):([A-Za-z0-9_]*)\}`)

// FormatPlaceholder renders the stored form of a secret reference.
func FormatPlaceholder(id, description string) string {
	return fmt.Sprintf("{SECRET:%s:%s}", id, description)
}

// PlaceholderIDs returns the reference ids found in s, in order.
func PlaceholderIDs(s string) []string {
	var ids []string
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// replacePlaceholders calls fn for every placeholder in s and substitutes
// its result. When fn reports false the placeholder is kept.
func replacePlaceholders(s string, fn func(id string) (string, bool)) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		if v, ok := fn(sub[1]); ok {
			return v
		}
		return match
	})
}
