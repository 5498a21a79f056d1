package chromedpdriver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

// Page is a chromedp tab.
type Page struct {
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	main    bool
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the lifecycle milestone wait maps to.
func (p *Page) Navigate(ctx context.Context, url string, wait browser.WaitStrategy, timeout time.Duration) error {
	meta := newResponseMeta()
	life := newLifecycleWatcher()
	start := time.Now()

	err := p.run(ctx, timeout, chromedp.ActionFunc(func(c context.Context) error {
		chromedp.ListenTarget(c, func(ev any) {
			switch e := ev.(type) {
			case *network.EventResponseReceived:
				meta.capture(e)
			case *page.EventLifecycleEvent:
				life.capture(e)
			}
		})
		_, loaderID, errorText, _, err := page.Navigate(url).Do(c)
		switch {
		case err != nil:
			return err
		case errorText != "":
			return fmt.Errorf("page load error %s", errorText)
		}
		names := lifecycleNames(wait)
		if len(names) == 0 || loaderID == cdp.LoaderID("") {
			return nil
		}
		return life.wait(c, loaderID, names)
	}))
	if err != nil {
		return fmt.Errorf("navigate %s (%s): %w", url, wait, err)
	}

	status, _, finalURL := meta.snapshot()
	p.session.logger.Debug("navigation finished",
		zap.String("url", url),
		zap.String("final_url", finalURL),
		zap.Int("status", status),
		zap.String("wait", wait.String()),
		zap.Duration("duration", time.Since(start)),
	)
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("navigate %s: server responded %d", url, status)
	}
	return nil
}

// WaitFor blocks until selector matches.
func (p *Page) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
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
	var out string
	if err := p.run(ctx, p.session.cfg.ActionTimeout, chromedp.Evaluate(expression, &out)); err != nil {
		return "", err
	}
	return out, nil
}

// Scroll sends a mouse wheel event at the viewport centre.
func (p *Page) Scroll(ctx context.Context, dy float64) error {
	x := float64(p.session.cfg.WindowWidth) / 2
	y := float64(p.session.cfg.WindowHeight) / 2
	wheel := input.DispatchMouseEvent(input.MouseWheel, x, y).WithDeltaX(0).WithDeltaY(dy)
	if err := p.run(ctx, p.session.cfg.ActionTimeout, wheel); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

var namedKeys = map[string]string{
	"Escape":     kb.Escape,
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"ArrowRight": kb.ArrowRight,
	"ArrowLeft":  kb.ArrowLeft,
}

// Press sends key, accepting DOM key names such as "Escape".
func (p *Page) Press(ctx context.Context, key string) error {
	keys := key
	if mapped, ok := namedKeys[key]; ok {
		keys = mapped
	}
	if err := p.run(ctx, p.session.cfg.ActionTimeout, chromedp.KeyEvent(keys)); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

// Content returns the serialized DOM.
func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.session.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, p.session.cfg.ActionTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, p.session.cfg.ActionTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// OpenIsolated opens a new tab for a single visit. With IsolateCookies the
// tab gets its own browser context seeded with this tab's cookies.
func (p *Page) OpenIsolated(ctx context.Context) (browser.Page, error) {
	var (
		opts    []chromedp.ContextOption
		cookies []*network.Cookie
	)
	if p.session.cfg.IsolateCookies {
		err := p.run(ctx, p.session.cfg.ActionTimeout, chromedp.ActionFunc(func(c context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(c)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("snapshot cookies: %w", err)
		}
		opts = append(opts, chromedp.WithNewBrowserContext())
	}

	tabCtx, cancel := chromedp.NewContext(p.ctx, opts...)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	iso := &Page{session: p.session, ctx: tabCtx, cancel: cancel}
	actions := []chromedp.Action{p.session.setupAction()}
	if params := toCookieParams(toBrowserCookies(cookies)); len(params) > 0 {
		actions = append(actions, network.SetCookies(params))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("open isolated tab: %w", err)
	}
	return iso, nil
}

// Close closes an isolated tab, disposing its browser context if it has one.
// Closing the main tab is a no-op; the session owns it.
func (p *Page) Close(context.Context) error {
	if p.main {
		return nil
	}
	p.cancel()
	return nil
}

var (
	_ browser.Page      = (*Page)(nil)
	_ browser.Evaluator = (*Page)(nil)
)
