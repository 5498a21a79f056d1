package chromedpdriver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

// responseMeta captures the main document response of a navigation.
type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}

// lifecycleWatcher records page lifecycle events per loader so a navigation
// can wait for a milestone that may have fired before Navigate returned.
type lifecycleWatcher struct {
	mu     sync.Mutex
	seen   map[cdp.LoaderID]map[string]bool
	notify chan struct{}
}

func newLifecycleWatcher() *lifecycleWatcher {
	return &lifecycleWatcher{
		seen:   map[cdp.LoaderID]map[string]bool{},
		notify: make(chan struct{}, 1),
	}
}

func (w *lifecycleWatcher) capture(ev *page.EventLifecycleEvent) {
	w.mu.Lock()
	names, ok := w.seen[ev.LoaderID]
	if !ok {
		names = map[string]bool{}
		w.seen[ev.LoaderID] = names
	}
	names[ev.Name] = true
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *lifecycleWatcher) reached(loader cdp.LoaderID, names []string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range names {
		if w.seen[loader][n] {
			return true
		}
	}
	return false
}

// wait blocks until any of names fires for loader.
func (w *lifecycleWatcher) wait(ctx context.Context, loader cdp.LoaderID, names []string) error {
	for {
		if w.reached(loader, names) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.notify:
		}
	}
}

// lifecycleNames maps a wait strategy to the CDP lifecycle events that satisfy it.
func lifecycleNames(wait browser.WaitStrategy) []string {
	switch wait {
	case browser.WaitDOMContentLoaded:
		return []string{"DOMContentLoaded", "load"}
	case browser.WaitNetworkIdle:
		return []string{"networkIdle"}
	default:
		return nil
	}
}

func toBrowserCookies(in []*network.Cookie) []browser.Cookie {
	out := make([]browser.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		expires := c.Expires
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

func toCookieParams(in []browser.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(in))
	for _, c := range in {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if !c.Session() {
			sec := int64(c.Expires)
			nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
			expires := cdp.TimeSinceEpoch(time.Unix(sec, nsec))
			param.Expires = &expires
		}
		out = append(out, param)
	}
	return out
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
