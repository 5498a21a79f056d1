package discover

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/extract"
)

const (
	maxCardLinks    = 25
	maxNameLinks    = 5
	minNameRunes    = 4
	maxFallbackName = 100
)

var (
	nameSelectors = []string{
		`[data-testid="spnSRPProdName"]`,
		`[data-testid="lblProductName"]`,
		`a[href]`,
		`span[title]`,
	}
	priceSelectors = []string{
		`[data-testid="spnSRPProdPrice"]`,
		`[data-testid="lblProductPrice"]`,
	}
	storeSelectors = []string{
		`[data-testid="spnSRPShopName"]`,
		`[data-testid="lblShopName"]`,
		`a[href*="/shop/"]`,
		`[class*="shop"]`,
		`[class*="store"]`,
	}
	nonProductNames = map[string]struct{}{"kategori": {}, "category": {}}
)

func mentionsRupiah(text string) bool {
	return strings.Contains(strings.ToLower(text), "rp")
}

// readCard extracts one candidate. ok is false for cards that are not products.
func (d *Discoverer) readCard(ctx context.Context, card browser.Locator) (crawler.Candidate, bool, error) {
	productURL, err := d.productURL(ctx, card)
	if err != nil {
		return crawler.Candidate{}, false, err
	}
	if productURL == "" {
		return crawler.Candidate{}, false, nil
	}

	name, err := d.name(ctx, card, productURL)
	if err != nil {
		return crawler.Candidate{}, false, err
	}

	priceStrategies := make([]extract.Strategy[string], 0, len(priceSelectors)+1)
	for _, sel := range priceSelectors {
		priceStrategies = append(priceStrategies, extract.TextMatching(sel, 1, mentionsRupiah))
	}
	priceStrategies = append(priceStrategies, extract.TextMatching("span", 0, mentionsRupiah))
	priceText, err := optional(extract.First(ctx, card, priceStrategies...))
	if err != nil {
		return crawler.Candidate{}, false, err
	}
	if _, skip := nonProductNames[strings.ToLower(name)]; skip && priceText == "" {
		return crawler.Candidate{}, false, nil
	}
	if name == "" {
		name = crawler.NameFromURL(productURL)
	}

	storeStrategies := make([]extract.Strategy[string], 0, len(storeSelectors))
	for _, sel := range storeSelectors {
		storeStrategies = append(storeStrategies, extract.TextOf(sel, 1))
	}
	store, err := optional(extract.First(ctx, card, storeStrategies...))
	if err != nil {
		return crawler.Candidate{}, false, err
	}

	image, err := optional(extract.First(ctx, card, extract.AttrOf("img", "src"), extract.AttrOf("img", "data-src")))
	if err != nil {
		return crawler.Candidate{}, false, err
	}

	cand := crawler.Candidate{
		ProductName: name,
		Currency:    crawler.DefaultCurrency,
		ImageURL:    crawler.AbsoluteURL(d.cfg.BaseURL, image),
		StoreName:   store,
		ProductURL:  productURL,
	}
	if priceText != "" {
		cand.Price = crawler.ParsePrice(priceText)
		cand.Currency = crawler.ParseCurrency(priceText)
	}
	return cand, true, nil
}

// productURL returns the first link in the card (or the card itself) that passes the product path heuristic.
func (d *Discoverer) productURL(ctx context.Context, card browser.Locator) (string, error) {
	if href, ok, err := card.Attr(ctx, "href"); err == nil && ok {
		if u := crawler.AbsoluteURL(d.cfg.BaseURL, href); crawler.LooksLikeProductURL(u, d.siteHost) {
			return u, nil
		}
	} else if err != nil && !errors.Is(err, crawler.ErrNotFound) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}
	var found string
	err := extract.Each(ctx, card.Locate("a[href]"), maxCardLinks, func(link browser.Locator) (bool, error) {
		href, ok, err := link.Attr(ctx, "href")
		if err != nil || !ok {
			return false, nil
		}
		if u := crawler.AbsoluteURL(d.cfg.BaseURL, href); crawler.LooksLikeProductURL(u, d.siteHost) {
			found = u
			return true, nil
		}
		return false, nil
	})
	return found, err
}

// name runs the card name chain: labelled selectors, the same selectors
// again accepting short names, the product link text, then the card's first
// text line. It returns "" when all of them miss.
func (d *Discoverer) name(ctx context.Context, card browser.Locator, productURL string) (string, error) {
	strategies := make([]extract.Strategy[string], 0, 2*len(nameSelectors)+2)
	for _, sel := range nameSelectors {
		strategies = append(strategies, extract.TextOf(sel, minNameRunes))
	}
	// A short label only wins when no selector yields a full-length name.
	for _, sel := range nameSelectors {
		strategies = append(strategies, extract.TextOf(sel, 1))
	}
	strategies = append(strategies,
		extract.Strategy[string]{Name: "product-link", Extract: func(ctx context.Context, scope browser.Scope) (string, error) {
			return d.productLinkText(ctx, scope, productURL)
		}},
		extract.Strategy[string]{Name: "first-line", Extract: firstLine},
	)
	return optional(extract.First(ctx, card, strategies...))
}

func (d *Discoverer) productLinkText(ctx context.Context, scope browser.Scope, productURL string) (string, error) {
	var name string
	err := extract.Each(ctx, scope.Locate("a[href]"), maxNameLinks, func(link browser.Locator) (bool, error) {
		href, ok, err := link.Attr(ctx, "href")
		if err != nil || !ok {
			return false, nil
		}
		u := crawler.AbsoluteURL(d.cfg.BaseURL, href)
		if u != productURL && !crawler.LooksLikeProductURL(u, d.siteHost) {
			return false, nil
		}
		text, err := link.Text(ctx)
		if err != nil {
			return false, nil
		}
		if text = crawler.CollapseSpace(text); utf8.RuneCountInString(text) >= minNameRunes {
			name = text
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", crawler.ErrNotFound
	}
	return name, nil
}

// firstLine reads the card's first text line, rejecting lines too long to be a name.
func firstLine(ctx context.Context, scope browser.Scope) (string, error) {
	text, err := scope.Locate("").Text(ctx)
	if err != nil {
		return "", err
	}
	line := crawler.FirstLine(text, 0)
	if line == "" || utf8.RuneCountInString(line) > maxFallbackName {
		return "", crawler.ErrNotFound
	}
	return line, nil
}

// optional turns a strategy miss into an empty value, keeping only context errors.
func optional(v string, _ string, err error) (string, error) {
	if err == nil {
		return v, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	return "", nil
}
