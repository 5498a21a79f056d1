package detail

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/extract"
)

var (
	titleSelectors = []string{
		`h1[data-testid="lblPDPDetailProductName"]`,
		`h1.css-j63za0`,
		`h1`,
	}
	priceSelectors = []string{
		`[data-testid="lblPDPDetailProductPrice"]`,
		`[data-testid="lblProductPrice"]`,
	}
	storeSelectors = []string{
		`[data-testid="llbPDPFooterShopName"]`,
		`[data-testid="lblPDPDetailShopName"]`,
	}
	descriptionSelectors = []string{
		`div[role="tabpanel"]`,
		`[data-testid="lblPDPDescriptionProduk"]`,
		`[data-testid="lblPDPDescription"]`,
		`div[data-testid*="description"]`,
		`div[class*="description"]`,
	}
)

func titleStrategies() []extract.Strategy[string] {
	out := make([]extract.Strategy[string], 0, len(titleSelectors))
	for _, sel := range titleSelectors {
		out = append(out, extract.TextOf(sel, 1))
	}
	return out
}

// priceLabel accepts short texts carrying a rupiah marker that parse as a number.
func priceLabel(text string) bool {
	return crawler.HasCurrencyMarker(text) &&
		utf8.RuneCountInString(text) <= maxPriceTextRunes &&
		crawler.ParsePrice(text) != nil
}

func priceStrategies() []extract.Strategy[string] {
	out := make([]extract.Strategy[string], 0, len(priceSelectors)+1)
	for _, sel := range priceSelectors {
		out = append(out, extract.TextMatching(sel, 1, priceLabel))
	}
	return append(out, extract.TextMatching("div, span", maxPriceScan, priceLabel))
}

func (e *extraction) storeStrategies() []extract.Strategy[string] {
	stoplist := e.r.cfg.BrandStoplist
	out := make([]extract.Strategy[string], 0, len(storeSelectors)+1)
	for _, sel := range storeSelectors {
		out = append(out, withoutBrand(extract.TextOf(sel, 2), stoplist))
	}
	return append(out, extract.Strategy[string]{
		Name: "page-state",
		Extract: func(ctx context.Context, _ browser.Scope) (string, error) {
			if s := extract.StoreHint(e.pagePayloads(ctx), stoplist); s != "" {
				return s, nil
			}
			return "", crawler.ErrNotFound
		},
	})
}

// withoutBrand rejects values naming the site itself.
func withoutBrand(s extract.Strategy[string], stoplist []string) extract.Strategy[string] {
	return extract.Strategy[string]{
		Name: s.Name,
		Extract: func(ctx context.Context, scope browser.Scope) (string, error) {
			v, err := s.Extract(ctx, scope)
			if err != nil {
				return "", err
			}
			if crawler.MatchesStoplist(v, stoplist) {
				return "", crawler.ErrNotFound
			}
			return v, nil
		},
	}
}

func descriptionStrategies() []extract.Strategy[string] {
	out := make([]extract.Strategy[string], 0, len(descriptionSelectors))
	for _, sel := range descriptionSelectors {
		out = append(out, trimmedText(sel, minDescription))
	}
	return out
}

// trimmedText keeps line breaks, unlike extract.TextOf.
func trimmedText(selector string, minRunes int) extract.Strategy[string] {
	return extract.Strategy[string]{
		Name: "block:" + selector,
		Extract: func(ctx context.Context, scope browser.Scope) (string, error) {
			raw, err := scope.Locate(selector).Nth(0).Text(ctx)
			if err != nil {
				return "", err
			}
			text := strings.TrimSpace(raw)
			if utf8.RuneCountInString(text) < minRunes {
				return "", crawler.ErrNotFound
			}
			return text, nil
		},
	}
}
