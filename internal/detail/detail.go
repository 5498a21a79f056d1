// Package detail visits a product page in an isolated view and extracts its
// canonical fields.
package detail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/extract"
)

const (
	titleWait         = `h1[data-testid="lblPDPDetailProductName"], h1.css-j63za0`
	minDescription    = 11
	maxPriceTextRunes = 40
	maxPriceScan      = 300
)

// Config tunes detail resolution.
type Config struct {
	BaseURL string
	// NavTimeout bounds the product page navigation.
	NavTimeout time.Duration
	// WaitTimeout bounds the title and image viewer waits.
	WaitTimeout time.Duration
	MaxImages   int
	// ImageTarget is the pixel size requested from the image CDN.
	ImageTarget   int
	BrandStoplist []string
}

func (c Config) withDefaults() Config {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 15 * time.Second
	}
	if c.MaxImages <= 0 {
		c.MaxImages = 10
	}
	if c.ImageTarget <= 0 {
		c.ImageTarget = 700
	}
	if len(c.BrandStoplist) == 0 {
		c.BrandStoplist = []string{"tokopedia"}
	}
	return c
}

// Resolver extracts DetailFields from product pages.
type Resolver struct {
	cfg     Config
	policy  crawler.RetryPolicy
	pacer   *crawler.Pacer
	logger  *zap.Logger
	onRetry crawler.RetryObserver
}

// New builds a Resolver.
func New(policy crawler.RetryPolicy, pacer *crawler.Pacer, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = crawler.NewExponentialRetryPolicy()
	}
	return &Resolver{
		cfg:    cfg.withDefaults(),
		policy: policy,
		pacer:  pacer,
		logger: logger,
	}
}

// OnRetry registers a hook called before each retry of a product page.
func (r *Resolver) OnRetry(fn crawler.RetryObserver) {
	r.onRetry = fn
}

// Resolve opens productURL and extracts its fields, retrying transient
// failures. Missing fields are left empty; only a page that never loads is an error.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, productURL string) (crawler.DetailFields, error) {
	var fields crawler.DetailFields
	err := crawler.Retry(ctx, r.policy, r.pacer, r.onRetry, func(ctx context.Context) error {
		f, err := r.resolveOnce(ctx, page, productURL)
		if err != nil {
			return err
		}
		fields = f
		return nil
	})
	if err != nil {
		return crawler.DetailFields{}, fmt.Errorf("resolve %s: %w", productURL, err)
	}
	return fields, nil
}

func (r *Resolver) resolveOnce(ctx context.Context, page browser.Page, productURL string) (crawler.DetailFields, error) {
	logger := r.logger.With(zap.String("url", productURL))
	logger.Info("opening product page")

	view, err := page.OpenIsolated(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.DetailFields{}, ctxErr
		}
		logger.Debug("isolated view unavailable, reusing page", zap.Error(err))
		view = page
	}
	if view != page {
		defer func() {
			// Close must run even when ctx is already done.
			if err := view.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Debug("closing product view failed", zap.Error(err))
			}
		}()
	}

	if err := r.pacer.WaitNavigation(ctx); err != nil {
		return crawler.DetailFields{}, err
	}
	if err := view.Navigate(ctx, productURL, browser.WaitDOMContentLoaded, r.cfg.NavTimeout); err != nil {
		return crawler.DetailFields{}, fmt.Errorf("open product page: %w", err)
	}
	r.pacer.Delay(ctx)
	r.waitForTitle(ctx, view, logger)

	ex := &extraction{r: r, view: view, logger: logger}
	fields, err := ex.run(ctx)
	if err != nil {
		return crawler.DetailFields{}, err
	}
	logger.Info("detail extracted",
		zap.String("name", crawler.Truncate(fields.ProductName, 50)),
		zap.Bool("price", fields.Price != nil),
		zap.Int("images", len(fields.ImageURLs)),
	)
	return fields, nil
}

func (r *Resolver) waitForTitle(ctx context.Context, view browser.Page, logger *zap.Logger) {
	if err := view.WaitFor(ctx, titleWait, r.cfg.WaitTimeout); err == nil {
		return
	}
	if err := view.WaitFor(ctx, "h1", r.cfg.WaitTimeout); err != nil {
		logger.Warn("product title did not render, page layout may have changed", zap.Error(err))
	}
}

// extraction holds per-visit state; the embedded payload is parsed at most once.
type extraction struct {
	r        *Resolver
	view     browser.Page
	logger   *zap.Logger
	payloads []gson.JSON
	parsed   bool
}

func (e *extraction) pagePayloads(ctx context.Context) []gson.JSON {
	if e.parsed {
		return e.payloads
	}
	e.parsed = true
	html, err := e.view.Content(ctx)
	if err != nil {
		e.logger.Debug("reading page state failed", zap.Error(err))
		return nil
	}
	e.payloads = extract.Payloads(html)
	return e.payloads
}

func (e *extraction) run(ctx context.Context) (crawler.DetailFields, error) {
	var fields crawler.DetailFields
	var err error

	if fields.ProductName, err = e.text(ctx, "title", titleStrategies()); err != nil {
		return fields, err
	}
	if err = e.price(ctx, &fields); err != nil {
		return fields, err
	}
	if fields.StoreName, err = e.text(ctx, "store", e.storeStrategies()); err != nil {
		return fields, err
	}
	if fields.Description, err = e.text(ctx, "description", descriptionStrategies()); err != nil {
		return fields, err
	}
	if fields.ImageURLs, err = e.images(ctx); err != nil {
		return fields, err
	}
	return fields, nil
}

// text runs a string chain and turns a complete miss into "".
func (e *extraction) text(ctx context.Context, field string, strategies []extract.Strategy[string]) (string, error) {
	v, via, err := extract.First(ctx, e.view, strategies...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.logger.Debug("field missing", zap.String("field", field), zap.Error(err))
		return "", nil
	}
	e.logger.Debug("field extracted", zap.String("field", field), zap.String("strategy", via))
	return v, nil
}

func (e *extraction) price(ctx context.Context, fields *crawler.DetailFields) error {
	text, err := e.text(ctx, "price", priceStrategies())
	if err != nil {
		return err
	}
	if text != "" {
		fields.Price = crawler.ParsePrice(text)
		fields.Currency = crawler.ParseCurrency(text)
		return nil
	}
	if hint := extract.PriceHint(e.pagePayloads(ctx)); hint != nil {
		e.logger.Debug("price taken from page state")
		fields.Price = hint
		fields.Currency = crawler.DefaultCurrency
	}
	return nil
}

func (e *extraction) images(ctx context.Context) ([]string, error) {
	urls, via, err := extract.First(ctx, e.view,
		extract.Strategy[[]string]{Name: "viewer", Extract: e.viewerImages},
		extract.Strategy[[]string]{Name: "page-state", Extract: func(ctx context.Context, _ browser.Scope) ([]string, error) {
			return nonEmpty(extract.ImageHints(e.pagePayloads(ctx), e.r.cfg.BaseURL))
		}},
		extract.Strategy[[]string]{Name: "gallery", Extract: e.galleryImages},
	)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			e.logger.Debug("no product images found")
			return nil, nil
		}
		return nil, err
	}
	urls = extract.FilterThumbnails(extract.DedupeStrings(urls))
	if len(urls) > e.r.cfg.MaxImages {
		urls = urls[:e.r.cfg.MaxImages]
	}
	e.logger.Debug("images extracted", zap.String("strategy", via), zap.Int("count", len(urls)))
	return urls, nil
}

func nonEmpty(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, crawler.ErrNotFound
	}
	return urls, nil
}
