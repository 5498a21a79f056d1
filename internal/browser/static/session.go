package static

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

// Session hands out a single main page over a Site and keeps an in-memory cookie jar.
type Session struct {
	site *Site

	mu     sync.Mutex
	main   *Page
	state  browser.StorageState
	resets int
	closed bool
}

// NewSession returns a session over site.
func NewSession(site *Site) *Session {
	return &Session{site: site}
}

// Open returns the main page, creating it on first use.
func (s *Session) Open(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	if s.main == nil {
		s.main = NewPage(s.site)
	}
	return s.main, nil
}

// Reset drops the main page. Cookies survive.
func (s *Session) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.main = nil
	s.resets++
	return nil
}

// Resets counts Reset calls.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// State returns a copy of the cookie jar.
func (s *Session) State(context.Context) (browser.StorageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return browser.StorageState{Cookies: append([]browser.Cookie(nil), s.state.Cookies...)}, nil
}

// Restore replaces the cookie jar.
func (s *Session) Restore(_ context.Context, state browser.StorageState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = browser.StorageState{Cookies: append([]browser.Cookie(nil), state.Cookies...)}
	return nil
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.main = nil
	return nil
}

var _ browser.Session = (*Session)(nil)
