package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// NormalizeURL standardizes a URL to avoid duplicates.
// It lowercases the scheme and host, removes default ports, and sorts query parameters.
// It also removes fragments.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// AbsoluteURL resolves protocol-relative and root-relative hrefs against base.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(base, "/") + href
	default:
		return href
	}
}

// SearchURL builds the product search URL for keyword.
func SearchURL(base, keyword string) string {
	return fmt.Sprintf("%s/search?st=product&q=%s", strings.TrimRight(base, "/"), url.QueryEscape(keyword))
}

var nonProductPrefixes = map[string]struct{}{
	"search": {}, "cart": {}, "help": {}, "promo": {}, "discover": {},
	"blog": {}, "about": {}, "careers": {}, "mitra": {}, "seller": {},
	"admin": {}, "events": {}, "ta": {}, "login": {}, "register": {},
	"oauth": {}, "category": {}, "kategori": {},
}

// LooksLikeProductURL applies the product path-shape heuristic for the site host.
func LooksLikeProductURL(raw, siteHost string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if siteHost != "" && !strings.Contains(strings.ToLower(u.Hostname()), strings.ToLower(siteHost)) {
		return false
	}
	path := strings.ToLower(u.Path)
	if strings.Contains(path, "/p/") {
		return true
	}
	segments := pathSegments(path)
	if len(segments) < 2 {
		return false
	}
	if _, bad := nonProductPrefixes[segments[0]]; bad {
		return false
	}
	if segments[1] == "category" || segments[1] == "kategori" {
		return false
	}
	return !strings.Contains(path, "search")
}

// LastPathSegment returns the final non-empty path segment of raw.
func LastPathSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := pathSegments(u.Path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

// HostOf returns the lowercased hostname of raw, or "".
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

var imageURLPattern = regexp.MustCompile(`(?i)^https?://(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})(?::\d+)?(?:/?|[/?]\S+)$`)

// ValidImageURL checks scheme and host shape before a media download is attempted.
func ValidImageURL(raw string) bool {
	return raw != "" && imageURLPattern.MatchString(raw)
}

func pathSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
