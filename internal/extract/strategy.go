// Package extract runs ordered, named extraction strategies against a rendered page.
//
// Every field the pipeline reads from the DOM is expressed as a slice of
// Strategy values evaluated by First: the first strategy that yields a
// value wins, failures fall through to the next one.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// Strategy is one named way to pull a value out of a scope.
// Extract returns crawler.ErrNotFound (possibly wrapped) when it has nothing to offer.
type Strategy[T any] struct {
	Name    string
	Extract func(ctx context.Context, scope browser.Scope) (T, error)
}

// First evaluates strategies in order and returns the first value together
// with the winning strategy's name. Strategy errors other than context
// cancellation are treated as misses.
func First[T any](ctx context.Context, scope browser.Scope, strategies ...Strategy[T]) (T, string, error) {
	var zero T
	var misses []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, err := s.Extract(ctx, scope)
		if err == nil {
			return v, s.Name, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, "", ctxErr
			}
		}
		misses = append(misses, fmt.Errorf("%s: %w", s.Name, err))
	}
	if len(misses) == 0 {
		return zero, "", crawler.ErrNotFound
	}
	return zero, "", fmt.Errorf("%w: %w", crawler.ErrNotFound, errors.Join(misses...))
}

// TextOf reads the collapsed text of the first selector match, accepting it
// only when it has at least minRunes runes.
func TextOf(selector string, minRunes int) Strategy[string] {
	return Strategy[string]{
		Name: "text:" + selector,
		Extract: func(ctx context.Context, scope browser.Scope) (string, error) {
			raw, err := scope.Locate(selector).Nth(0).Text(ctx)
			if err != nil {
				return "", err
			}
			text := crawler.CollapseSpace(raw)
			if text == "" || utf8.RuneCountInString(text) < minRunes {
				return "", crawler.ErrNotFound
			}
			return text, nil
		},
	}
}

// AttrOf reads a non-empty attribute of the first selector match.
// An empty selector reads the scope element itself.
func AttrOf(selector, attr string) Strategy[string] {
	return Strategy[string]{
		Name: "attr:" + selector + "@" + attr,
		Extract: func(ctx context.Context, scope browser.Scope) (string, error) {
			v, ok, err := scope.Locate(selector).Nth(0).Attr(ctx, attr)
			if err != nil {
				return "", err
			}
			v = strings.TrimSpace(v)
			if !ok || v == "" {
				return "", crawler.ErrNotFound
			}
			return v, nil
		},
	}
}

// TextMatching scans up to limit matches of selector and returns the first
// collapsed text accepted by keep.
func TextMatching(selector string, limit int, keep func(string) bool) Strategy[string] {
	return Strategy[string]{
		Name: "scan:" + selector,
		Extract: func(ctx context.Context, scope browser.Scope) (string, error) {
			var found string
			err := Each(ctx, scope.Locate(selector), limit, func(el browser.Locator) (bool, error) {
				raw, err := el.Text(ctx)
				if err != nil {
					return false, nil
				}
				text := crawler.CollapseSpace(raw)
				if text != "" && keep(text) {
					found = text
					return true, nil
				}
				return false, nil
			})
			if err != nil {
				return "", err
			}
			if found == "" {
				return "", crawler.ErrNotFound
			}
			return found, nil
		},
	}
}

// Static wraps a precomputed value as a strategy; an empty value misses.
func Static(name, value string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Extract: func(context.Context, browser.Scope) (string, error) {
			if value == "" {
				return "", crawler.ErrNotFound
			}
			return value, nil
		},
	}
}

// Each visits up to limit matches of loc in document order. A non-positive
// limit visits every match. visit returns true to stop early.
func Each(ctx context.Context, loc browser.Locator, limit int, visit func(browser.Locator) (bool, error)) error {
	n, err := loc.Count(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && n > limit {
		n = limit
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop, err := visit(loc.Nth(i))
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}
