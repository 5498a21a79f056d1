// Package roddriver implements the browser capability on top of go-rod with the stealth patch.
package roddriver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

// Config controls browser launch and per-page emulation.
type Config struct {
	Headless    bool
	NoSandbox   bool
	Bin         string
	UserAgent   string
	UserDataDir string
	// ControlURL attaches to an already running browser instead of launching one.
	ControlURL     string
	WindowWidth    int
	WindowHeight   int
	IsolateCookies bool
	Locale         string
	Timezone       string
	ActionTimeout  time.Duration
	ExtraHeaders   http.Header
}

func (c Config) withDefaults() Config {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.Locale == "" {
		c.Locale = "id-ID"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Jakarta"
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 10 * time.Second
	}
	return c
}

// Session owns one browser process and its main page.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	main     *Page
	pending  *browser.StorageState
}

// NewSession builds a Session. The browser starts on the first Open.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg.withDefaults(), logger: logger}
}

func (s *Session) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(s.cfg.Headless).
		NoSandbox(s.cfg.NoSandbox).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		Set(flags.Flag("lang"), s.cfg.Locale).
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", s.cfg.WindowWidth, s.cfg.WindowHeight)).
		Delete(flags.Flag("enable-automation"))
	if s.cfg.Bin != "" {
		l = l.Bin(s.cfg.Bin)
	}
	if s.cfg.UserDataDir != "" {
		l = l.UserDataDir(s.cfg.UserDataDir)
	}
	return l
}

// Open launches (or attaches to) the browser on first use and returns the main page.
func (s *Session) Open(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.main != nil {
		return s.main, nil
	}

	controlURL := s.cfg.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = s.newLauncher().Context(ctx)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	p, err := s.newPage(b)
	if err != nil {
		_ = b.Close()
		if l != nil {
			l.Kill()
		}
		return nil, err
	}
	restored := 0
	if s.pending != nil && len(s.pending.Cookies) > 0 {
		if err := b.SetCookies(toCookieParams(s.pending.Cookies)); err != nil {
			s.logger.Warn("restoring cookies failed", zap.Error(err))
		} else {
			restored = len(s.pending.Cookies)
		}
	}
	s.logger.Info("browser started",
		zap.Bool("headless", s.cfg.Headless),
		zap.Bool("attached", s.cfg.ControlURL != ""),
		zap.String("user_data_dir", s.cfg.UserDataDir),
		zap.Int("restored_cookies", restored),
	)
	s.pending = nil
	s.launcher = l
	s.browser = b
	s.main = &Page{session: s, page: p, browser: b, main: true}
	return s.main, nil
}

// newPage opens a stealth page in b and applies emulation.
func (s *Session) newPage(b *rod.Browser) (*rod.Page, error) {
	p, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	if err := s.setup(p); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (s *Session) setup(p *rod.Page) error {
	if err := (proto.PageSetLifecycleEventsEnabled{Enabled: true}).Call(p); err != nil {
		return fmt.Errorf("enable lifecycle events: %w", err)
	}
	if s.cfg.UserAgent != "" {
		err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      s.cfg.UserAgent,
			AcceptLanguage: s.cfg.Locale + ",id;q=0.9,en-US;q=0.8,en;q=0.7",
		})
		if err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: s.cfg.Timezone}).Call(p); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: s.cfg.Locale}).Call(p); err != nil {
		return fmt.Errorf("set locale: %w", err)
	}
	if dict := headerPairs(s.cfg.ExtraHeaders); len(dict) > 0 {
		if _, err := p.SetExtraHeaders(dict); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}
	return nil
}

// State snapshots every cookie in the default browser context.
func (s *Session) State(context.Context) (browser.StorageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() (browser.StorageState, error) {
	if s.browser == nil {
		if s.pending != nil {
			return *s.pending, nil
		}
		return browser.StorageState{}, nil
	}
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return browser.StorageState{}, fmt.Errorf("read cookies: %w", err)
	}
	return browser.StorageState{Cookies: toBrowserCookies(cookies)}, nil
}

// Restore loads cookies now, or on the next Open when the browser is not running.
func (s *Session) Restore(_ context.Context, state browser.StorageState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		cp := browser.StorageState{Cookies: append([]browser.Cookie(nil), state.Cookies...)}
		s.pending = &cp
		return nil
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	if err := s.browser.SetCookies(toCookieParams(state.Cookies)); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

// Reset closes the browser, carrying its cookies over to the next Open.
func (s *Session) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	state, err := s.stateLocked()
	if err != nil {
		s.logger.Warn("cookie snapshot before reset failed", zap.Error(err))
	} else {
		s.pending = &state
	}
	return s.teardownLocked()
}

// Close shuts the browser down. An attached browser is disconnected, not closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardownLocked()
}

func (s *Session) teardownLocked() error {
	if s.browser == nil {
		return nil
	}
	var errs []error
	if s.launcher != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
			s.launcher.Kill()
		}
	} else if err := s.main.page.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	s.browser = nil
	s.launcher = nil
	s.main = nil
	return errors.Join(errs...)
}

var _ browser.Session = (*Session)(nil)
