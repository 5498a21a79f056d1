package static

import (
	"context"
	"errors"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
)

const listing = `<html><head><title> Hasil </title></head><body>
<div class="card"><a href="/a/one">One</a><span title="x">Rp10.000</span></div>
<div class="card"><a href="/b/two">Two</a><img src="//img/2.jpg"></div>
<div class="card" style="display: none"><a href="/c/three">Three</a></div>
</body></html>`

func TestLocatorChains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	site := NewSite(map[string]string{"https://shop.test/s": listing})
	page := NewPage(site)
	require.NoError(t, page.Navigate(ctx, "https://shop.test/s", browser.WaitDOMContentLoaded, 0))

	cards := page.Locate("div.card")
	n, err := cards.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	text, err := cards.Nth(1).Locate("a[href]").Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Two", text)

	src, ok, err := cards.Nth(1).Locate("img").Attr(ctx, "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "//img/2.jpg", src)

	_, ok, err = cards.Nth(0).Locate("a").Attr(ctx, "data-missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = cards.Nth(0).Locate("img").Text(ctx)
	require.ErrorIs(t, err, crawler.ErrNotFound)

	visible, err := cards.Nth(2).Locate("a").Visible(ctx)
	require.NoError(t, err)
	assert.False(t, visible)
	visible, err = cards.Nth(0).Visible(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hasil", title)
}

func TestNavigateFailuresAndMissingFixtures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	site := NewSite(map[string]string{"https://shop.test/": "<html></html>"})
	boom := errors.New("net::ERR_TIMED_OUT")
	site.FailNavigation("https://shop.test/", boom)
	page := NewPage(site)

	require.ErrorIs(t, page.Navigate(ctx, "https://shop.test/", browser.WaitDOMContentLoaded, 0), boom)
	require.NoError(t, page.Navigate(ctx, "https://shop.test/", browser.WaitNetworkIdle, 0))
	require.ErrorIs(t, page.Navigate(ctx, "https://shop.test/missing", browser.WaitCommit, 0), crawler.ErrNotFound)

	assert.Equal(t, []string{"https://shop.test/", "https://shop.test/", "https://shop.test/missing"}, site.Visits())
	assert.Equal(t, []browser.WaitStrategy{browser.WaitNetworkIdle}, page.Waits())
}

func TestClickHookSwapsDocument(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	site := NewSite(map[string]string{"u": `<button id="open">open</button>`})
	site.OnClick = func(p *Page, target *goquery.Selection) error {
		if target.Is("#open") {
			return p.SetHTML(`<div role="dialog"><img src="big.jpg"></div>`)
		}
		return nil
	}
	page := NewPage(site)
	require.NoError(t, page.Navigate(ctx, "u", browser.WaitDOMContentLoaded, 0))
	require.NoError(t, page.Locate("#open").Click(ctx))
	require.NoError(t, page.WaitFor(ctx, `[role="dialog"] img`, 0))
	require.ErrorIs(t, page.Locate("#open").Click(ctx), crawler.ErrNotFound)
}

func TestIsolatedPagesClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	site := NewSite(nil)
	main := NewPage(site)
	iso, err := main.OpenIsolated(ctx)
	require.NoError(t, err)
	require.NotSame(t, main, iso)
	require.NoError(t, iso.Close(ctx))
	assert.True(t, iso.(*Page).Closed())
	require.NoError(t, main.Close(ctx))
	assert.False(t, main.Closed())

	site.Isolate = false
	same, err := main.OpenIsolated(ctx)
	require.NoError(t, err)
	assert.Same(t, main, same)
}

func TestSessionStateRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewSession(NewSite(nil))
	p1, err := s.Open(ctx)
	require.NoError(t, err)
	p2, err := s.Open(ctx)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	want := browser.StorageState{Cookies: []browser.Cookie{{Name: "_SID", Value: "x", Domain: ".tokopedia.com", Path: "/", Expires: -1}}}
	require.NoError(t, s.Restore(ctx, want))
	got, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.Cookies[0].Session())

	require.NoError(t, s.Reset(ctx))
	p3, err := s.Open(ctx)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, 1, s.Resets())

	require.NoError(t, s.Close())
	_, err = s.Open(ctx)
	require.Error(t, err)
}
