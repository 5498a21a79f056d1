// Package discover turns a keyword into candidate product references by
// reading the site's search results page.
package discover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// CardSelectors are tried in order; the first with any match is used for the whole page.
var CardSelectors = []string{
	`div[style*="display: contents"]`,
	`div[style="display: contents"]`,
	`[data-testid="master-product-card"]`,
	`[data-testid="divProductWrapper"]`,
	`[data-testid="lstCL2ProductList"]`,
	`div[data-testid*="product"]`,
	`a[href*="/p/"]`,
	`a[href*="tokopedia.com"][href*="/p/"]`,
	`div[class*="product-card"]`,
	`div[class*="ProductCard"]`,
	`article[data-testid]`,
	`div[class*="css-"][data-testid]`,
	`a[href*="tokopedia.com"][href*="product"]`,
}

// listingWaits signal that the results grid rendered.
var listingWaits = []string{
	`[data-testid="master-product-card"]`,
	`a[href*="tokopedia.com"]`,
}

var navigationWaits = []browser.WaitStrategy{
	browser.WaitDOMContentLoaded,
	browser.WaitNetworkIdle,
	browser.WaitCommit,
}

// Config tunes discovery.
type Config struct {
	BaseURL string
	// NavTimeout bounds each navigation attempt.
	NavTimeout time.Duration
	// WaitTimeout bounds each listing wait.
	WaitTimeout    time.Duration
	CardMultiplier int
	ScrollCycles   int
	ScrollDelta    float64
	SkipBlockCheck bool
}

func (c Config) withDefaults() Config {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 15 * time.Second
	}
	if c.CardMultiplier <= 0 {
		c.CardMultiplier = 5
	}
	if c.ScrollCycles < 0 {
		c.ScrollCycles = 0
	}
	if c.ScrollDelta == 0 {
		c.ScrollDelta = 1000
	}
	return c
}

// Outcome is the result of one discovery call.
type Outcome struct {
	Kind       crawler.Kind
	Candidates []crawler.Candidate
	// CardSelector is the committed card selector, empty when no card matched.
	CardSelector string
	Verdict      crawler.BlockVerdict
	SearchURL    string
}

// Discoverer reads search result pages.
type Discoverer struct {
	cfg      Config
	siteHost string
	policy   crawler.RetryPolicy
	pacer    *crawler.Pacer
	detector *crawler.BlockDetector
	logger   *zap.Logger
	onRetry  crawler.RetryObserver
}

// New builds a Discoverer.
func New(
	policy crawler.RetryPolicy,
	pacer *crawler.Pacer,
	detector *crawler.BlockDetector,
	cfg Config,
	logger *zap.Logger,
) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = crawler.NewBlockDetector(nil, nil)
	}
	if policy == nil {
		policy = crawler.NewExponentialRetryPolicy()
	}
	cfg = cfg.withDefaults()
	return &Discoverer{
		cfg:      cfg,
		siteHost: strings.TrimPrefix(crawler.HostOf(cfg.BaseURL), "www."),
		policy:   policy,
		pacer:    pacer,
		detector: detector,
		logger:   logger,
	}
}

// OnRetry registers a hook called before each navigation retry.
func (d *Discoverer) OnRetry(fn crawler.RetryObserver) {
	d.onRetry = fn
}

// Discover opens the search page for keyword and returns at most maxCandidates
// unique candidates. An empty result is KindNotFound and a confident
// verification wall is KindBlocked; neither is an error.
func (d *Discoverer) Discover(ctx context.Context, page browser.Page, keyword string, maxCandidates int) (Outcome, error) {
	searchURL := crawler.SearchURL(d.cfg.BaseURL, keyword)
	out := Outcome{Kind: crawler.KindNotFound, SearchURL: searchURL}
	if maxCandidates <= 0 {
		return out, nil
	}
	logger := d.logger.With(zap.String("keyword", keyword))
	logger.Info("opening search page", zap.String("url", searchURL))

	if err := d.navigate(ctx, page, searchURL, logger); err != nil {
		return out, fmt.Errorf("open search page: %w", err)
	}
	d.checkLocation(ctx, page, logger)

	if !d.cfg.SkipBlockCheck {
		verdict, err := d.inspect(ctx, page)
		if err != nil {
			return out, err
		}
		out.Verdict = verdict
		switch verdict {
		case crawler.VerdictBlocked:
			logger.Error("search page looks like a verification wall")
			out.Kind = crawler.KindBlocked
			return out, nil
		case crawler.VerdictSuspicious:
			logger.Warn("blocking markers present but products rendered, continuing")
		}
	}
	d.pacer.Delay(ctx)

	if err := d.waitForListing(ctx, page, logger); err != nil {
		return out, err
	}
	d.scroll(ctx, page, logger)

	selector, cards, count, err := commitCards(ctx, page)
	if err != nil {
		return out, err
	}
	if count == 0 {
		logger.Warn("no product cards matched any selector")
		return out, nil
	}
	out.CardSelector = selector
	logger.Info("product cards found", zap.String("selector", selector), zap.Int("cards", count))

	limit := min(count, maxCandidates*d.cfg.CardMultiplier)
	var found []crawler.Candidate
	seen := map[string]struct{}{}
	for i := 0; i < limit && len(seen) < maxCandidates; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		cand, ok, err := d.readCard(ctx, cards.Nth(i))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			logger.Warn("card parse failed", zap.Int("card", i+1), zap.Error(err))
			continue
		}
		if !ok {
			logger.Debug("card skipped", zap.Int("card", i+1))
			continue
		}
		found = append(found, cand)
		seen[cand.ProductURL] = struct{}{}
		logger.Debug("card extracted",
			zap.Int("card", i+1),
			zap.String("name", crawler.Truncate(cand.ProductName, 60)),
			zap.String("url", cand.ProductURL),
		)
	}

	found = crawler.DedupeCandidates(found)
	if len(found) > maxCandidates {
		found = found[:maxCandidates]
	}
	out.Candidates = found
	if len(found) > 0 {
		out.Kind = crawler.KindSuccess
	}
	logger.Info("discovery finished", zap.Int("cards", count), zap.Int("candidates", len(found)))
	return out, nil
}

// navigate loads url with progressively weaker waits, retrying the whole ladder on failure.
func (d *Discoverer) navigate(ctx context.Context, page browser.Page, url string, logger *zap.Logger) error {
	return crawler.Retry(ctx, d.policy, d.pacer, d.onRetry, func(ctx context.Context) error {
		if err := d.pacer.WaitNavigation(ctx); err != nil {
			return err
		}
		var errs []error
		for _, wait := range navigationWaits {
			err := page.Navigate(ctx, url, wait, d.cfg.NavTimeout)
			if err == nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("navigation wait failed", zap.String("wait", wait.String()), zap.Error(err))
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}

func (d *Discoverer) checkLocation(ctx context.Context, page browser.Page, logger *zap.Logger) {
	current, err := page.URL(ctx)
	if err != nil {
		logger.Debug("reading location failed", zap.Error(err))
		return
	}
	if d.siteHost != "" && !strings.Contains(strings.ToLower(current), d.siteHost) {
		logger.Warn("unexpected redirect", zap.String("url", current))
	}
	if title, err := page.Title(ctx); err == nil {
		logger.Debug("search page loaded", zap.String("url", current), zap.String("title", title))
	}
}

func (d *Discoverer) inspect(ctx context.Context, page browser.Page) (crawler.BlockVerdict, error) {
	html, err := page.Content(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.VerdictClear, ctxErr
		}
		d.logger.Warn("reading page for block check failed", zap.Error(err))
		return crawler.VerdictClear, nil
	}
	return d.detector.Inspect(html), nil
}

func (d *Discoverer) waitForListing(ctx context.Context, page browser.Page, logger *zap.Logger) error {
	for _, sel := range listingWaits {
		if err := page.WaitFor(ctx, sel, d.cfg.WaitTimeout); err == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := page.WaitFor(ctx, "body", 5*time.Second); err != nil {
		return fmt.Errorf("search page never rendered: %w", err)
	}
	logger.Warn("listing selectors missing, continuing on bare body")
	return nil
}

func (d *Discoverer) scroll(ctx context.Context, page browser.Page, logger *zap.Logger) {
	for i := 0; i < d.cfg.ScrollCycles; i++ {
		if err := page.Scroll(ctx, d.cfg.ScrollDelta); err != nil {
			logger.Debug("scroll failed", zap.Int("cycle", i+1), zap.Error(err))
		}
		d.pacer.Between(ctx, 500*time.Millisecond, time.Second)
	}
	d.pacer.Between(ctx, time.Second, 1500*time.Millisecond)
}

func commitCards(ctx context.Context, page browser.Page) (string, browser.Locator, int, error) {
	for _, sel := range CardSelectors {
		loc := page.Locate(sel)
		n, err := loc.Count(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", nil, 0, ctxErr
			}
			continue
		}
		if n > 0 {
			return sel, loc, n, nil
		}
	}
	return "", nil, 0, nil
}
