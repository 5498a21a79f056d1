// Package browser defines the page capability the extraction pipeline drives.
//
// Drivers live in subpackages: chromedp (default), rod (with stealth) and
// static (goquery over fixture HTML, used by tests).
package browser

import (
	"context"
	"time"
)

// WaitStrategy selects the lifecycle point Navigate waits for.
type WaitStrategy int

// Wait strategies, from strictest to most permissive.
const (
	WaitDOMContentLoaded WaitStrategy = iota
	WaitNetworkIdle
	// WaitCommit returns once the navigation response is committed and accepts a degraded page.
	WaitCommit
)

func (w WaitStrategy) String() string {
	switch w {
	case WaitDOMContentLoaded:
		return "domcontentloaded"
	case WaitNetworkIdle:
		return "networkidle"
	case WaitCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// Scope is anything selectors can be resolved against: a page or an element.
type Scope interface {
	Locate(selector string) Locator
}

// Locator lazily addresses zero or more elements. Nothing is resolved until a
// method taking a context is called, so locators stay valid across DOM updates.
type Locator interface {
	Scope
	// Count returns the number of matched elements.
	Count(ctx context.Context) (int, error)
	// Nth narrows the match to the i-th element (0-based).
	Nth(i int) Locator
	// Text returns the rendered text of the first match, or crawler.ErrNotFound.
	Text(ctx context.Context) (string, error)
	// Attr returns an attribute of the first match. ok is false when the attribute is absent.
	Attr(ctx context.Context, name string) (value string, ok bool, err error)
	// Visible reports whether the first match exists and is rendered.
	Visible(ctx context.Context) (bool, error)
	// Click clicks the first match, or returns crawler.ErrNotFound.
	Click(ctx context.Context) error
}

// Page is a single browser tab.
type Page interface {
	Scope
	Navigate(ctx context.Context, url string, wait WaitStrategy, timeout time.Duration) error
	// WaitFor blocks until selector matches or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Scroll dispatches a mouse wheel event of dy pixels.
	Scroll(ctx context.Context, dy float64) error
	// Press sends a key press such as "Escape".
	Press(ctx context.Context, key string) error
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// OpenIsolated opens a fresh tab in its own cookie jar seeded from this page's
	// cookies. Drivers that cannot isolate return the receiver itself.
	OpenIsolated(ctx context.Context) (Page, error)
	// Close closes the tab. Closing the session's main page is a no-op.
	Close(ctx context.Context) error
}

// Session owns the browser process and its main page.
type Session interface {
	// Open starts the browser on first use and returns the main page.
	Open(ctx context.Context) (Page, error)
	// Reset tears the browser down, keeping cookies, so the next Open starts fresh.
	Reset(ctx context.Context) error
	// State snapshots the cookie jar.
	State(ctx context.Context) (StorageState, error)
	// Restore loads a previously saved cookie jar into the running browser.
	Restore(ctx context.Context, state StorageState) error
	Close() error
}
