// Package chromedpdriver implements the browser capability on top of chromedp.
package chromedpdriver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

// Config controls browser launch and per-tab emulation.
type Config struct {
	Headless    bool
	UserAgent   string
	UserDataDir string
	// WindowWidth and WindowHeight size the viewport; zero means 1920x1080.
	WindowWidth  int
	WindowHeight int
	// IsolateCookies makes OpenIsolated use a fresh browser context.
	IsolateCookies bool
	Locale         string
	Timezone       string
	// ActionTimeout bounds script evaluations and other short actions.
	ActionTimeout time.Duration
	ExtraHeaders  http.Header
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

// Session owns one Chrome process and its main tab.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	main        *Page
	pending     *browser.StorageState
}

// NewSession builds a Session. The browser starts on the first Open.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg.withDefaults(), logger: logger}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("lang", s.cfg.Locale),
		chromedp.WindowSize(s.cfg.WindowWidth, s.cfg.WindowHeight),
	)
	if s.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	if s.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.cfg.UserDataDir))
	}
	return opts
}

// Open launches Chrome on first use and returns the main tab.
func (s *Session) Open(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.main != nil {
		return s.main, nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(s.logger.Sugar().Debugf))
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	main := &Page{session: s, ctx: tabCtx, cancel: tabCancel, main: true}
	actions := []chromedp.Action{s.setupAction()}
	if s.pending != nil && len(s.pending.Cookies) > 0 {
		actions = append(actions, network.SetCookies(toCookieParams(s.pending.Cookies)))
	}
	// The first Run must use the bare tab context: it owns the browser process.
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		tabCancel()
		allocCancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("launch browser: %w", ctxErr)
		}
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	s.logger.Info("browser started",
		zap.Bool("headless", s.cfg.Headless),
		zap.String("user_data_dir", s.cfg.UserDataDir),
		zap.Int("restored_cookies", s.pendingCount()),
	)
	s.pending = nil
	s.allocCancel = allocCancel
	s.main = main
	return main, nil
}

func (s *Session) pendingCount() int {
	if s.pending == nil {
		return 0
	}
	return len(s.pending.Cookies)
}

// setupAction prepares a freshly created tab: lifecycle events, emulation and the stealth patch.
func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if s.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(s.cfg.UserAgent).WithAcceptLanguage(s.cfg.Locale + ",id;q=0.9,en-US;q=0.8,en;q=0.7")
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := emulation.SetTimezoneOverride(s.cfg.Timezone).Do(ctx); err != nil {
			return fmt.Errorf("set timezone: %w", err)
		}
		if err := emulation.SetLocaleOverride().WithLocale(s.cfg.Locale).Do(ctx); err != nil {
			return fmt.Errorf("set locale: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		if len(s.cfg.ExtraHeaders) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(s.cfg.ExtraHeaders)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// State snapshots every cookie in the default browser context.
func (s *Session) State(ctx context.Context) (browser.StorageState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(ctx)
}

func (s *Session) stateLocked(ctx context.Context) (browser.StorageState, error) {
	if s.main == nil {
		if s.pending != nil {
			return *s.pending, nil
		}
		return browser.StorageState{}, nil
	}
	var cookies []*network.Cookie
	err := s.main.run(ctx, s.cfg.ActionTimeout, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return browser.StorageState{}, fmt.Errorf("read cookies: %w", err)
	}
	return browser.StorageState{Cookies: toBrowserCookies(cookies)}, nil
}

// Restore loads cookies now, or on the next Open when the browser is not running.
func (s *Session) Restore(ctx context.Context, state browser.StorageState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.main == nil {
		cp := browser.StorageState{Cookies: append([]browser.Cookie(nil), state.Cookies...)}
		s.pending = &cp
		return nil
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	if err := s.main.run(ctx, s.cfg.ActionTimeout, network.SetCookies(toCookieParams(state.Cookies))); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	return nil
}

// Reset closes the browser, carrying its cookies over to the next Open.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.main == nil {
		return nil
	}
	state, err := s.stateLocked(ctx)
	if err != nil {
		s.logger.Warn("cookie snapshot before reset failed", zap.Error(err))
	} else {
		s.pending = &state
	}
	return s.teardownLocked()
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardownLocked()
}

func (s *Session) teardownLocked() error {
	if s.main == nil {
		return nil
	}
	var errs []error
	shutdownCtx, cancel := context.WithTimeout(s.main.ctx, 5*time.Second)
	if err := chromedp.Cancel(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	cancel()
	s.main.cancel()
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.main = nil
	s.allocCancel = nil
	return errors.Join(errs...)
}

var _ browser.Session = (*Session)(nil)
