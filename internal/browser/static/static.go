// Package static implements the browser capability over fixture HTML with goquery.
// It never touches the network, which makes it the driver of choice for tests
// and for replaying saved pages.
package static

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// ClickFunc reacts to a click, typically by swapping the page HTML.
type ClickFunc func(p *Page, target *goquery.Selection) error

// KeyFunc reacts to a key press.
type KeyFunc func(p *Page, key string) error

// Site is a fixed set of URL to HTML fixtures plus interaction hooks.
type Site struct {
	mu      sync.Mutex
	pages   map[string]string
	navErrs map[string][]error
	visits  []string

	// OnClick is invoked for every click on a matched element.
	OnClick ClickFunc
	// OnPress is invoked for every key press.
	OnPress KeyFunc
	// Isolate controls whether OpenIsolated hands out new pages.
	Isolate bool
}

// NewSite returns a Site serving pages keyed by URL.
func NewSite(pages map[string]string) *Site {
	cp := make(map[string]string, len(pages))
	for k, v := range pages {
		cp[k] = v
	}
	return &Site{pages: cp, navErrs: map[string][]error{}, Isolate: true}
}

// SetPage adds or replaces a fixture.
func (s *Site) SetPage(url, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = html
}

// FailNavigation queues errors returned by the next navigations to url, one per call.
func (s *Site) FailNavigation(url string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navErrs[url] = append(s.navErrs[url], errs...)
}

// Visits lists every URL navigated to, in order.
func (s *Site) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

func (s *Site) fetch(url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, url)
	if queued := s.navErrs[url]; len(queued) > 0 {
		s.navErrs[url] = queued[1:]
		if queued[0] != nil {
			return "", queued[0]
		}
	}
	html, ok := s.pages[url]
	if !ok {
		return "", fmt.Errorf("no fixture for %s: %w", url, crawler.ErrNotFound)
	}
	return html, nil
}

// Page is a goquery-backed tab.
type Page struct {
	site     *Site
	isolated bool

	mu       sync.Mutex
	url      string
	doc      *goquery.Document
	scrolled float64
	keys     []string
	waits    []browser.WaitStrategy
	closed   bool
}

// NewPage returns the main page for site.
func NewPage(site *Site) *Page {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	return &Page{site: site, doc: doc, url: "about:blank"}
}

// SetHTML replaces the current document.
func (p *Page) SetHTML(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
	return nil
}

// Document exposes the current DOM for hooks that mutate it in place.
func (p *Page) Document() *goquery.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// Navigate loads the fixture for url.
func (p *Page) Navigate(ctx context.Context, url string, wait browser.WaitStrategy, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	html, err := p.site.fetch(url)
	if err != nil {
		return fmt.Errorf("navigate %s (%s): %w", url, wait, err)
	}
	if err := p.SetHTML(html); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.waits = append(p.waits, wait)
	p.mu.Unlock()
	return nil
}

// Waits lists the wait strategy of every successful navigation.
func (p *Page) Waits() []browser.WaitStrategy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.WaitStrategy(nil), p.waits...)
}

// WaitFor succeeds immediately when selector matches.
func (p *Page) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Document().Find(selector).Length() == 0 {
		return fmt.Errorf("wait for %s: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

// Locate returns a locator rooted at selector.
func (p *Page) Locate(selector string) browser.Locator {
	return &Locator{page: p, chain: browser.Root(selector)}
}

// Scroll records the wheel delta.
func (p *Page) Scroll(ctx context.Context, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scrolled += dy
	p.mu.Unlock()
	return nil
}

// Scrolled reports the accumulated wheel delta.
func (p *Page) Scrolled() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolled
}

// Press records key and forwards it to the site's OnPress hook.
func (p *Page) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.keys = append(p.keys, key)
	p.mu.Unlock()
	if p.site.OnPress != nil {
		return p.site.OnPress(p, key)
	}
	return nil
}

// Keys lists pressed keys.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// Content renders the current document.
func (p *Page) Content(context.Context) (string, error) {
	html, err := p.Document().Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return html, nil
}

// URL returns the last navigated URL.
func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// Title returns the document title.
func (p *Page) Title(context.Context) (string, error) {
	return strings.TrimSpace(p.Document().Find("title").First().Text()), nil
}

// OpenIsolated returns a new page on the same site, or p when isolation is off.
func (p *Page) OpenIsolated(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.site.Isolate {
		return p, nil
	}
	iso := NewPage(p.site)
	iso.isolated = true
	return iso, nil
}

// Close marks isolated pages closed. The main page stays open.
func (p *Page) Close(context.Context) error {
	if !p.isolated {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("page already closed")
	}
	p.closed = true
	return nil
}

// Closed reports whether Close ran on an isolated page.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Locator resolves a chain against the page's current document.
type Locator struct {
	page  *Page
	chain browser.Chain
}

func (l *Locator) resolve() *goquery.Selection {
	sel := l.page.Document().Selection
	for _, step := range l.chain {
		if step.Selector != "" {
			sel = sel.Find(step.Selector)
		}
		if step.Index >= 0 {
			sel = sel.Eq(step.Index)
		}
	}
	return sel
}

// Locate descends into selector.
func (l *Locator) Locate(selector string) browser.Locator {
	return &Locator{page: l.page, chain: l.chain.Then(selector)}
}

// Nth narrows to the i-th match.
func (l *Locator) Nth(i int) browser.Locator {
	return &Locator{page: l.page, chain: l.chain.At(i)}
}

// Count returns the number of matches.
func (l *Locator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.resolve().Length(), nil
}

// Text returns the text of the first match.
func (l *Locator) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sel := l.resolve()
	if sel.Length() == 0 {
		return "", fmt.Errorf("%s: %w", l.chain, crawler.ErrNotFound)
	}
	return sel.First().Text(), nil
}

// Attr returns an attribute of the first match.
func (l *Locator) Attr(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	sel := l.resolve()
	if sel.Length() == 0 {
		return "", false, fmt.Errorf("%s: %w", l.chain, crawler.ErrNotFound)
	}
	v, ok := sel.First().Attr(name)
	return v, ok, nil
}

// Visible reports whether the first match exists and is not hidden by markup.
func (l *Locator) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sel := l.resolve()
	if sel.Length() == 0 {
		return false, nil
	}
	hidden := false
	sel.First().Parents().AddBack().Each(func(_ int, s *goquery.Selection) {
		if hiddenByMarkup(s) {
			hidden = true
		}
	})
	return !hidden, nil
}

func hiddenByMarkup(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	if v, _ := s.Attr("aria-hidden"); v == "true" {
		return true
	}
	style, _ := s.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// Click forwards the first match to the site's OnClick hook.
func (l *Locator) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel := l.resolve()
	if sel.Length() == 0 {
		return fmt.Errorf("click %s: %w", l.chain, crawler.ErrNotFound)
	}
	if l.page.site.OnClick == nil {
		return nil
	}
	return l.page.site.OnClick(l.page, sel.First())
}

var (
	_ browser.Page    = (*Page)(nil)
	_ browser.Locator = (*Locator)(nil)
)
