package extract

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ysmood/gson"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

var assignmentPattern = regexp.MustCompile(`window\.(__APOLLO_STATE__|__cache|__NUXT__)\s*=\s*(\{.*?\});?\s*(?:\n|$)`)

// Payloads parses every embedded page-state blob in html: the Next.js data
// script, JSON-LD scripts and window.__APOLLO_STATE__-style assignments.
// Blobs that fail to parse are skipped.
func Payloads(html string) []gson.JSON {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []gson.JSON
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		if j, ok := parseJSON(raw); ok {
			out = append(out, j)
		}
	}
	doc.Find(`script#__NEXT_DATA__`).Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("type"); ok {
			return
		}
		for _, m := range assignmentPattern.FindAllStringSubmatch(s.Text(), -1) {
			add(m[2])
		}
	})
	return out
}

// parseJSON accepts only objects and arrays; gson leaves invalid input as nil.
func parseJSON(raw string) (gson.JSON, bool) {
	j := gson.NewFrom(raw)
	switch j.Val().(type) {
	case map[string]any, []any:
		return j, true
	default:
		return gson.JSON{}, false
	}
}

// Walk visits every scalar in root depth-first, object keys in sorted order.
// path holds the object keys leading to the value; array indexes are omitted.
// visit must not retain path.
func Walk(root gson.JSON, visit func(path []string, value gson.JSON)) {
	walk(nil, root, visit)
}

func walk(path []string, node gson.JSON, visit func([]string, gson.JSON)) {
	switch v := node.Val().(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(append(path, k), gson.New(v[k]), visit)
		}
	case []any:
		for _, item := range v {
			walk(path, gson.New(item), visit)
		}
	default:
		visit(path, node)
	}
}

var (
	priceKeyHints = []string{"price", "amount", "harga"}
	storeKeyHints = []string{"shop", "store", "seller", "merchant"}
)

// keyHints matches hints against the value's key and its parent key.
func keyHints(path []string, hints []string) bool {
	if len(path) > 2 {
		path = path[len(path)-2:]
	}
	lower := strings.ToLower(strings.Join(path, "."))
	for _, h := range hints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// PriceHint returns the first numeric payload field whose key (or parent key) hints at a
// price and whose value lies in [100, 1e10).
func PriceHint(payloads []gson.JSON) *float64 {
	for _, p := range payloads {
		var found *float64
		Walk(p, func(path []string, v gson.JSON) {
			if found != nil || !keyHints(path, priceKeyHints) {
				return
			}
			n, ok := v.Val().(float64)
			if !ok || math.IsNaN(n) || n < 100 || n >= 1e10 {
				return
			}
			found = &n
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// StoreHint returns the first string payload field whose key hints at a
// shop or seller, between 2 and 80 runes, not matching stoplist.
func StoreHint(payloads []gson.JSON, stoplist []string) string {
	for _, p := range payloads {
		found := ""
		Walk(p, func(path []string, v gson.JSON) {
			if found != "" || !keyHints(path, storeKeyHints) {
				return
			}
			s, ok := v.Val().(string)
			if !ok {
				return
			}
			s = crawler.CollapseSpace(s)
			n := utf8.RuneCountInString(s)
			if n < 2 || n > 80 || strings.HasPrefix(s, "http") || crawler.MatchesStoplist(s, stoplist) {
				return
			}
			found = s
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// ImageHints collects string payload values that look like image URLs, in walk order, without duplicates.
func ImageHints(payloads []gson.JSON, base string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range payloads {
		Walk(p, func(_ []string, v gson.JSON) {
			s, ok := v.Val().(string)
			if !ok {
				return
			}
			s = strings.TrimSpace(s)
			if !LooksLikeImageURL(s) {
				return
			}
			abs := crawler.AbsoluteURL(base, s)
			if abs == "" || seen[abs] {
				return
			}
			seen[abs] = true
			out = append(out, abs)
		})
	}
	return out
}
