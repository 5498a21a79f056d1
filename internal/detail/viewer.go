package detail

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/extract"
)

const modalImage = `[role="dialog"] img`

var (
	mainImageSelectors = []string{
		`[data-testid="PDPMainImage"]`,
		`[data-testid="PDPImageMain"] img`,
		`div.css-pefdcn img`,
	}
	nextButtonSelectors = []string{
		`[data-testid="btnPDPImageDetailNext"]`,
		`[role="dialog"] button[aria-label*="next"]`,
		`[role="dialog"] button[aria-label*="Next"]`,
	}
	gallerySelectors = []string{
		`div.css-pefdcn img`,
		`img[data-testid*="PDPImage"]`,
		`img[alt][src]`,
		`img[srcset]`,
	}
	lazySrcAttrs = []string{"src", "data-src", "data-lazy-src"}
)

// viewerImages opens the full-size image modal and pages through it with the
// next button until the button disappears or an image repeats.
func (e *extraction) viewerImages(ctx context.Context, _ browser.Scope) ([]string, error) {
	if !e.openViewer(ctx) {
		return nil, crawler.ErrNotFound
	}
	defer func() {
		if err := e.view.Press(ctx, "Escape"); err != nil {
			e.logger.Debug("closing image viewer failed", zap.Error(err))
		}
	}()

	seen := map[string]struct{}{}
	var urls []string
	for len(urls) < e.r.cfg.MaxImages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := extract.UpscaleImageURL(e.imageURL(ctx, e.view.Locate(modalImage).Nth(0)), e.r.cfg.ImageTarget)
		if u == "" {
			break
		}
		if _, dup := seen[u]; dup {
			break
		}
		seen[u] = struct{}{}
		urls = append(urls, u)

		next := e.nextButton(ctx)
		if next == nil {
			break
		}
		if err := next.Click(ctx); err != nil {
			e.logger.Debug("viewer next click failed", zap.Error(err))
			break
		}
		e.r.pacer.Between(ctx, 300*time.Millisecond, 600*time.Millisecond)
	}
	e.logger.Debug("image viewer walked", zap.Int("images", len(urls)))
	return nonEmpty(urls)
}

func (e *extraction) openViewer(ctx context.Context) bool {
	for _, sel := range mainImageSelectors {
		img := e.view.Locate(sel).Nth(0)
		if ok, err := img.Visible(ctx); err != nil || !ok {
			continue
		}
		if err := img.Click(ctx); err != nil {
			e.logger.Debug("main image click failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if err := e.view.WaitFor(ctx, modalImage, e.r.cfg.WaitTimeout); err != nil {
			e.logger.Debug("image viewer did not open", zap.String("selector", sel), zap.Error(err))
			continue
		}
		return true
	}
	return false
}

// nextButton returns the first visible, enabled next control, or nil.
func (e *extraction) nextButton(ctx context.Context) browser.Locator {
	for _, sel := range nextButtonSelectors {
		btn := e.view.Locate(sel).Nth(0)
		if ok, err := btn.Visible(ctx); err != nil || !ok {
			continue
		}
		if _, disabled, _ := btn.Attr(ctx, "disabled"); disabled {
			continue
		}
		if v, _, _ := btn.Attr(ctx, "aria-disabled"); strings.EqualFold(v, "true") {
			continue
		}
		return btn
	}
	return nil
}

// imageURL reads the largest srcset entry of img, else its first non-empty
// source attribute, as an absolute URL.
func (e *extraction) imageURL(ctx context.Context, img browser.Locator) string {
	raw := ""
	if srcset, ok, err := img.Attr(ctx, "srcset"); err == nil && ok {
		raw = extract.PickLargestSrcset(srcset)
	}
	for _, attr := range lazySrcAttrs {
		if raw != "" {
			break
		}
		if v, ok, err := img.Attr(ctx, attr); err == nil && ok {
			raw = strings.TrimSpace(v)
		}
	}
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	return crawler.AbsoluteURL(e.r.cfg.BaseURL, raw)
}

// galleryImages reads the first gallery selector that yields any image.
func (e *extraction) galleryImages(ctx context.Context, scope browser.Scope) ([]string, error) {
	for _, sel := range gallerySelectors {
		var urls []string
		err := extract.Each(ctx, scope.Locate(sel), e.r.cfg.MaxImages*2, func(img browser.Locator) (bool, error) {
			if u := e.imageURL(ctx, img); u != "" {
				urls = append(urls, u)
			}
			return false, nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		if urls = extract.DedupeStrings(urls); len(urls) > 0 {
			return urls, nil
		}
	}
	return nil, crawler.ErrNotFound
}
