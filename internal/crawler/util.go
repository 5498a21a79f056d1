package crawler

import (
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Slugify lowercases and hyphenates text, truncating to maxLen runes when maxLen > 0.
// It returns fallback if the slug is empty.
func Slugify(text string, maxLen int, fallback string) string {
	s := slug.Make(text)
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		s = string([]rune(s)[:maxLen])
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return fallback
	}
	return s
}

// NameFromURL synthesizes a product name from the last path segment of raw.
func NameFromURL(raw string) string {
	seg := LastPathSegment(raw)
	if seg == "" {
		return ""
	}
	words := strings.Fields(strings.ReplaceAll(seg, "-", " "))
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// FirstLine returns the first non-empty trimmed line of text, truncated to maxRunes.
func FirstLine(text string, maxRunes int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if maxRunes > 0 && utf8.RuneCountInString(line) > maxRunes {
			line = string([]rune(line)[:maxRunes])
		}
		return line
	}
	return ""
}

// CollapseSpace trims text and folds internal whitespace runs to single spaces.
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts text to maxRunes runes.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return string([]rune(text)[:maxRunes])
}

func containsLower(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// MatchesStoplist reports whether text equals or contains any stoplist entry, case-insensitively.
func MatchesStoplist(text string, stoplist []string) bool {
	trimmed := strings.TrimSpace(text)
	for _, s := range stoplist {
		if s == "" {
			continue
		}
		if strings.EqualFold(trimmed, s) || containsLower(trimmed, s) {
			return true
		}
	}
	return false
}
