package roddriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

// Page is a rod tab.
type Page struct {
	session *Session
	page    *rod.Page
	// browser is the (possibly incognito) browser the page belongs to.
	browser *rod.Browser
	// owned is an incognito context created for this page alone.
	owned interface{ Close() error }
	main  bool
}

// bound returns the page tied to ctx and limited by timeout, or by ActionTimeout when zero.
func (p *Page) bound(ctx context.Context, timeout time.Duration) (*rod.Page, context.CancelFunc) {
	if timeout <= 0 {
		timeout = p.session.cfg.ActionTimeout
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	return p.page.Context(c), cancel
}

// Navigate loads url and waits for the lifecycle milestone wait maps to.
func (p *Page) Navigate(ctx context.Context, url string, wait browser.WaitStrategy, timeout time.Duration) error {
	start := time.Now()
	page, cancel := p.bound(ctx, timeout)
	defer cancel()

	var waitFn func()
	if name, ok := lifecycleEvent(wait); ok {
		waitFn = page.WaitNavigation(name)
	}
	if err := page.Navigate(url); err != nil {
		var navErr *rod.NavigationError
		if errors.As(err, &navErr) {
			return fmt.Errorf("navigate %s: page load error %s", url, navErr.Reason)
		}
		return fmt.Errorf("navigate %s (%s): %w", url, wait, err)
	}
	if waitFn != nil {
		waitFn()
	}
	// The wait returns silently when the bound context ends.
	if err := page.GetContext().Err(); err != nil {
		return fmt.Errorf("navigate %s (%s): %w", url, wait, err)
	}

	p.session.logger.Debug("navigation finished",
		zap.String("url", url),
		zap.String("wait", wait.String()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// lifecycleEvent maps a wait strategy to the rod lifecycle event satisfying it.
func lifecycleEvent(wait browser.WaitStrategy) (proto.PageLifecycleEventName, bool) {
	switch wait {
	case browser.WaitDOMContentLoaded:
		return proto.PageLifecycleEventNameDOMContentLoaded, true
	case browser.WaitNetworkIdle:
		return proto.PageLifecycleEventNameNetworkIdle, true
	default:
		return "", false
	}
}

// WaitFor blocks until selector matches.
func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	page, cancel := p.bound(ctx, timeout)
	defer cancel()
	if _, err := page.Element(selector); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("wait for %s: %w", selector, ctxErr)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("wait for %s: %w", selector, context.DeadlineExceeded)
		}
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// Locate returns a script-backed locator rooted at selector.
func (p *Page) Locate(selector string) browser.Locator {
	return browser.NewScriptLocator(p, selector)
}

// EvalString evaluates expression, which must produce a string.
func (p *Page) EvalString(ctx context.Context, expression string) (string, error) {
	page, cancel := p.bound(ctx, 0)
	defer cancel()
	res, err := page.Eval("() => " + expression)
	if err != nil {
		return "", err
	}
	if res.Value.Nil() {
		return "", nil
	}
	return res.Value.Str(), nil
}

// Scroll moves the wheel by dy pixels in a few steps.
func (p *Page) Scroll(ctx context.Context, dy float64) error {
	page, cancel := p.bound(ctx, 0)
	defer cancel()
	if err := page.Mouse.Scroll(0, dy, 4); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

var namedKeys = map[string]input.Key{
	"Escape":     input.Escape,
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"ArrowRight": input.ArrowRight,
	"ArrowLeft":  input.ArrowLeft,
}

// Press sends a DOM-named key such as "Escape".
func (p *Page) Press(ctx context.Context, key string) error {
	k, ok := namedKeys[key]
	if !ok {
		return fmt.Errorf("press %s: unsupported key", key)
	}
	page, cancel := p.bound(ctx, 0)
	defer cancel()
	if err := page.Keyboard.Press(k); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

// Content returns the serialized DOM.
func (p *Page) Content(ctx context.Context) (string, error) {
	page, cancel := p.bound(ctx, 0)
	defer cancel()
	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	page, cancel := p.bound(ctx, 0)
	defer cancel()
	info, err := page.Info()
	if err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return info.URL, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	page, cancel := p.bound(ctx, 0)
	defer cancel()
	info, err := page.Info()
	if err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return info.Title, nil
}

// OpenIsolated opens a new page for a single visit. With IsolateCookies the
// page lives in an incognito context seeded with this page's cookies and the
// context is disposed when the page closes.
func (p *Page) OpenIsolated(context.Context) (browser.Page, error) {
	if !p.session.cfg.IsolateCookies {
		page, err := p.session.newPage(p.browser)
		if err != nil {
			return nil, fmt.Errorf("open isolated tab: %w", err)
		}
		return &Page{session: p.session, page: page, browser: p.browser}, nil
	}

	cookies, err := p.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("snapshot cookies: %w", err)
	}
	incognito, err := p.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	if params := toCookieParams(toBrowserCookies(cookies)); len(params) > 0 {
		if err := incognito.SetCookies(params); err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("seed cookies: %w", err)
		}
	}
	page, err := p.session.newPage(incognito)
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("open isolated tab: %w", err)
	}
	return &Page{session: p.session, page: page, browser: incognito, owned: incognito}, nil
}

// Close closes an isolated page and disposes the incognito context it owns.
// Closing the main page is a no-op; the session owns it.
func (p *Page) Close(context.Context) error {
	if p.main {
		return nil
	}
	var errs []error
	if p.page != nil {
		if err := p.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tab: %w", err))
		}
	}
	if p.owned != nil {
		if err := p.owned.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dispose incognito context: %w", err))
		}
		p.owned = nil
	}
	return errors.Join(errs...)
}

var (
	_ browser.Page      = (*Page)(nil)
	_ browser.Evaluator = (*Page)(nil)
)
