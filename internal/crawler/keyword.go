package crawler

import (
	"regexp"
	"strings"
)

var (
	keywordStrip = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeKeyword trims, lowercases, strips punctuation, and collapses whitespace.
func NormalizeKeyword(raw string) string {
	kw := strings.ToLower(strings.TrimSpace(raw))
	kw = keywordStrip.ReplaceAllString(kw, "")
	kw = whitespaceRe.ReplaceAllString(kw, " ")
	return strings.TrimSpace(kw)
}

// NormalizeKeywords normalizes every entry and drops empties and repeats, keeping first-seen order.
func NormalizeKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		kw := NormalizeKeyword(r)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
