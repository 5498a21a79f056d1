package roddriver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

func TestCookieConversion(t *testing.T) {
	t.Parallel()

	in := []*proto.NetworkCookie{
		{Name: "_SID_Tokopedia_", Value: "abc", Domain: ".tokopedia.com", Path: "/", Expires: 1767225600, HTTPOnly: true, Secure: true, SameSite: proto.NetworkCookieSameSiteLax},
		{Name: "tmp", Value: "1", Domain: "www.tokopedia.com", Path: "/", Expires: -1, Session: true},
		nil,
	}
	cookies := toBrowserCookies(in)
	require.Len(t, cookies, 2)
	assert.Equal(t, float64(1767225600), cookies[0].Expires)
	assert.Equal(t, "Lax", cookies[0].SameSite)
	assert.True(t, cookies[1].Session())

	params := toCookieParams(cookies)
	require.Len(t, params, 2)
	assert.Equal(t, proto.TimeSinceEpoch(1767225600), params[0].Expires)
	assert.Zero(t, params[1].Expires)
	assert.True(t, params[0].Secure)
	assert.Equal(t, proto.NetworkCookieSameSiteLax, params[0].SameSite)
}

func TestHeaderPairsAreSorted(t *testing.T) {
	t.Parallel()

	dict := headerPairs(http.Header{"X-B": {"2", "3"}, "Referer": {"https://www.tokopedia.com"}})
	assert.Equal(t, []string{"Referer", "https://www.tokopedia.com", "X-B", "2", "X-B", "3"}, dict)
	assert.Empty(t, headerPairs(nil))
}

func TestLifecycleEvent(t *testing.T) {
	t.Parallel()

	name, ok := lifecycleEvent(browser.WaitDOMContentLoaded)
	assert.True(t, ok)
	assert.Equal(t, proto.PageLifecycleEventNameDOMContentLoaded, name)
	name, ok = lifecycleEvent(browser.WaitNetworkIdle)
	assert.True(t, ok)
	assert.Equal(t, proto.PageLifecycleEventNameNetworkIdle, name)
	_, ok = lifecycleEvent(browser.WaitCommit)
	assert.False(t, ok)
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	s := NewSession(Config{}, nil)
	assert.Equal(t, 1920, s.cfg.WindowWidth)
	assert.Equal(t, 1080, s.cfg.WindowHeight)
	assert.Equal(t, "id-ID", s.cfg.Locale)
	assert.Equal(t, 10*time.Second, s.cfg.ActionTimeout)
}

func TestLauncherFlags(t *testing.T) {
	t.Parallel()

	l := NewSession(Config{Headless: true, UserDataDir: "/tmp/prodrefs-profile"}, nil).newLauncher()
	assert.Equal(t, "AutomationControlled", l.Get("disable-blink-features"))
	assert.Equal(t, "/tmp/prodrefs-profile", l.Get("user-data-dir"))
	assert.Equal(t, "1920,1080", l.Get("window-size"))
	assert.False(t, l.Has("enable-automation"))
}

func TestSessionWithoutBrowser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewSession(Config{}, nil)
	want := browser.StorageState{Cookies: []browser.Cookie{{Name: "a", Value: "1", Expires: -1}}}
	require.NoError(t, s.Restore(ctx, want))
	got, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Close())
}

type closeCounter struct {
	calls int
	err   error
}

func (c *closeCounter) Close() error {
	c.calls++
	return c.err
}

func TestIsolatedPageDisposesItsContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	owned := &closeCounter{}
	iso := &Page{session: NewSession(Config{}, nil), owned: owned}
	require.NoError(t, iso.Close(ctx))
	require.NoError(t, iso.Close(ctx))
	assert.Equal(t, 1, owned.calls)

	failing := &closeCounter{err: assert.AnError}
	err := (&Page{session: NewSession(Config{}, nil), owned: failing}).Close(ctx)
	require.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "dispose incognito context")

	mainOwned := &closeCounter{}
	require.NoError(t, (&Page{main: true, owned: mainOwned}).Close(ctx))
	assert.Zero(t, mainOwned.calls, "the session owns the main page")
}

func TestOpenIsolatedUsesSeparatePage(t *testing.T) {
	if testing.Short() {
		t.Skip("launches a browser")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome or Chromium installed")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprintf(w, "<html><head><title>%s</title></head><body>ok</body></html>", r.URL.Path)
	}))
	defer srv.Close()

	for _, isolate := range []bool{false, true} {
		s := NewSession(Config{Headless: true, NoSandbox: true, Bin: bin, IsolateCookies: isolate}, nil)
		ctx := context.Background()
		page, err := s.Open(ctx)
		if err != nil {
			t.Skipf("browser unavailable: %v", err)
		}
		require.NoError(t, page.Navigate(ctx, srv.URL+"/search", browser.WaitDOMContentLoaded, 10*time.Second))
		contextsBefore := browserContexts(t, s)

		iso, err := page.OpenIsolated(ctx)
		require.NoError(t, err)
		assert.NotSame(t, page, iso, "isolate_cookies=%v", isolate)
		require.NoError(t, iso.Navigate(ctx, srv.URL+"/product", browser.WaitDOMContentLoaded, 10*time.Second))

		loc, err := page.URL(ctx)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/search", loc, "the search page stays put")

		require.NoError(t, iso.Close(ctx))
		assert.Equal(t, contextsBefore, browserContexts(t, s), "no browser context leaks")
		require.NoError(t, s.Close())
	}
}

func browserContexts(t *testing.T, s *Session) int {
	t.Helper()
	res, err := proto.TargetGetBrowserContexts{}.Call(s.browser)
	require.NoError(t, err)
	return len(res.BrowserContextIDs)
}
