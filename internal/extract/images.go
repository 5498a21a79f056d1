package extract

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var (
	cacheSizePattern  = regexp.MustCompile(`/cache/(\d+)(-square)?/`)
	dimensionPattern  = regexp.MustCompile(`/(100|150|200)x(100|150|200)/`)
	resizeQueryParams = []string{"w", "width", "h", "height", "size", "resize"}
	imageExtensions   = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".avif"}
	imageCDNMarkers   = []string{"images.tokopedia.net", "/img/cache/", "/img/"}
)

// UpscaleImageURL rewrites known CDN resize hints in raw to request target pixels.
// URLs without such hints are returned unchanged.
func UpscaleImageURL(raw string, target int) string {
	if raw == "" || target <= 0 {
		return raw
	}
	size := strconv.Itoa(target)
	out := cacheSizePattern.ReplaceAllString(raw, "/cache/"+size+"/")

	u, err := url.Parse(out)
	if err != nil || u.RawQuery == "" {
		return out
	}
	q := u.Query()
	changed := false
	for _, key := range resizeQueryParams {
		if q.Has(key) {
			q.Set(key, size)
			changed = true
		}
	}
	if !changed {
		return out
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// PickLargestSrcset returns the URL of the largest candidate in a srcset
// attribute. Width descriptors win over density descriptors; an entry with
// no descriptor counts as 1x. Ties keep the first entry.
func PickLargestSrcset(srcset string) string {
	bestURL := ""
	bestW, bestX := -1.0, -1.0
	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		u := fields[0]
		desc := "1x"
		if len(fields) > 1 {
			desc = strings.ToLower(fields[1])
		}
		switch {
		case strings.HasSuffix(desc, "w"):
			w, err := strconv.ParseFloat(strings.TrimSuffix(desc, "w"), 64)
			if err == nil && w > bestW {
				bestURL, bestW = u, w
			}
		case strings.HasSuffix(desc, "x") && bestW < 0:
			x, err := strconv.ParseFloat(strings.TrimSuffix(desc, "x"), 64)
			if err == nil && x > bestX {
				bestURL, bestX = u, x
			}
		}
	}
	return bestURL
}

// IsThumbnailURL reports whether raw matches a known thumbnail layout.
func IsThumbnailURL(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "_thumb") || dimensionPattern.MatchString(lower) {
		return true
	}
	if m := cacheSizePattern.FindStringSubmatch(lower); m != nil && m[2] != "" {
		n, err := strconv.Atoi(m[1])
		return err == nil && n <= 300
	}
	return false
}

// FilterThumbnails drops thumbnail URLs unless that would leave nothing.
func FilterThumbnails(urls []string) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if !IsThumbnailURL(u) {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		return urls
	}
	return kept
}

// LooksLikeImageURL reports whether s is an absolute or protocol-relative URL
// with an image extension or a known image CDN path.
func LooksLikeImageURL(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "//") {
		return false
	}
	if strings.ContainsAny(lower, " \n\t") {
		return false
	}
	p := lower
	if u, err := url.Parse(lower); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	for _, m := range imageCDNMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// DedupeStrings drops empty and repeated values, keeping first-seen order.
func DedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
