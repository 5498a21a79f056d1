package roddriver

import (
	"net/http"
	"sort"

	"github.com/go-rod/rod/lib/proto"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

func toBrowserCookies(in []*proto.NetworkCookie) []browser.Cookie {
	out := make([]browser.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		expires := float64(c.Expires)
		if c.Session {
			expires = -1
		}
		out = append(out, browser.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

func toCookieParams(in []browser.Cookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(in))
	for _, c := range in {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if !c.Session() {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		out = append(out, param)
	}
	return out
}

// headerPairs flattens h into the key, value, key, value form rod expects.
func headerPairs(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var dict []string
	for _, k := range keys {
		for _, v := range h[k] {
			dict = append(dict, k, v)
		}
	}
	return dict
}
