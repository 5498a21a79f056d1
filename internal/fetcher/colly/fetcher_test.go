package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second, MaxBytes: 10})
	req := crawler.FetchRequest{URL: "https://example.com"}

	collector := f.buildCollector(context.Background(), req, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	if collector.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be ignored")
	}
	if collector.MaxBodySize != 11 {
		t.Fatalf("expected body cap one byte over the limit, got %d", collector.MaxBodySize)
	}

	req.MaxBytes = 100
	collector = f.buildCollector(context.Background(), req, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	assert.Equal(t, 101, collector.MaxBodySize)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:      "https://example.com",
		Headers:  http.Header{"Referer": {"https://www.tokopedia.com"}},
		MaxBytes: 8,
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "https://www.tokopedia.com", collyReq.Headers.Get("Referer"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"image/jpeg"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/a.jpg")},
	})
	require.NoError(t, fetchErr)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "image/jpeg", result.Headers.Get("Content-Type"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("way too long"),
		Headers:    &http.Header{},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/b.jpg")},
	})
	require.ErrorIs(t, fetchErr, crawler.ErrTooLarge)

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	require.ErrorIs(t, fetchErr, crawler.ErrPermanent)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	base := errors.New("status text")
	assert.ErrorIs(t, classifyStatus(http.StatusForbidden, base), crawler.ErrPermanent)
	assert.NotErrorIs(t, classifyStatus(http.StatusTooManyRequests, base), crawler.ErrPermanent)
	assert.NotErrorIs(t, classifyStatus(http.StatusBadGateway, base), crawler.ErrPermanent)
	assert.Same(t, base, classifyStatus(0, base))
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Header().Set("X-Seen-Agent", r.UserAgent())
			w.Header().Set("X-Seen-Accept", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg-bytes"))
		case "/big.jpg":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/missing.jpg":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "prodrefs-test", Timeout: 2 * time.Second})
	ctx := context.Background()

	resp, err := f.Fetch(ctx, crawler.FetchRequest{
		URL:      srv.URL + "/ok.jpg",
		Headers:  http.Header{"Accept": {"image/*"}},
		MaxBytes: 32,
	})
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(resp.Body))
	assert.Equal(t, "prodrefs-test", resp.Headers.Get("X-Seen-Agent"))
	assert.Equal(t, "image/*", resp.Headers.Get("X-Seen-Accept"))

	// Retries re-fetch the same URL.
	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/ok.jpg"})
	require.NoError(t, err)

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/big.jpg", MaxBytes: 32})
	require.ErrorIs(t, err, crawler.ErrTooLarge)

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/missing.jpg"})
	require.ErrorIs(t, err, crawler.ErrPermanent)

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/flaky.jpg"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, crawler.ErrPermanent)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, crawler.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchAbortsInFlightRequestOnCancel(t *testing.T) {
	t.Parallel()

	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := New(Config{Timeout: 10 * time.Second}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/slow.jpg"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 3*time.Second)

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("request kept running after cancellation")
	}
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
