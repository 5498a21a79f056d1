// Package media downloads product images into a BlobStore under a
// deterministic per-product layout.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/extract"
)

// Default request headers for image downloads.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptImages     = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// Result statuses reported to the observer.
const (
	StatusSaved  = "saved"
	StatusReused = "reused"
	StatusFailed = "failed"
)

// Config tunes media fetching.
type Config struct {
	// BaseURL is sent as the Referer.
	BaseURL   string
	UserAgent string
	// MaxBytes caps each image body.
	MaxBytes   int64
	TargetSize int
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 << 20
	}
	if c.TargetSize <= 0 {
		c.TargetSize = 700
	}
	return c
}

// Observer is told the outcome of every URL; size is the stored byte count.
type Observer func(status string, size int64)

// Fetcher downloads images with retries and stores them.
type Fetcher struct {
	fetcher crawler.Fetcher
	store   crawler.BlobStore
	hasher  crawler.Hasher
	policy  crawler.RetryPolicy
	pacer   *crawler.Pacer
	cfg     Config
	logger  *zap.Logger
	observe Observer
	onRetry crawler.RetryObserver
}

// New builds a Fetcher.
func New(
	fetcher crawler.Fetcher,
	store crawler.BlobStore,
	hasher crawler.Hasher,
	policy crawler.RetryPolicy,
	pacer *crawler.Pacer,
	cfg Config,
	logger *zap.Logger,
) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = crawler.NewExponentialRetryPolicy()
	}
	return &Fetcher{
		fetcher: fetcher,
		store:   store,
		hasher:  hasher,
		policy:  policy,
		pacer:   pacer,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// OnResult registers a per-URL outcome hook.
func (f *Fetcher) OnResult(fn Observer) {
	f.observe = fn
}

// OnRetry registers a hook called before each download retry.
func (f *Fetcher) OnRetry(fn crawler.RetryObserver) {
	f.onRetry = fn
}

// FetchAll stores every valid image in urls and returns the stored locations
// in input order. Failures are logged and skipped; FetchAll never fails as a whole.
func (f *Fetcher) FetchAll(ctx context.Context, baseFolder, keyword, productName string, urls []string) []string {
	dir := ProductDir(baseFolder, keyword, productName)
	logger := f.logger.With(zap.String("keyword", keyword), zap.String("dir", dir))

	valid := make([]string, 0, len(urls))
	for _, u := range urls {
		if crawler.ValidImageURL(u) {
			valid = append(valid, u)
			continue
		}
		logger.Debug("skipping invalid image url", zap.String("url", u))
	}
	valid = extract.DedupeStrings(valid)

	var saved []string
	for i, raw := range valid {
		if ctx.Err() != nil {
			break
		}
		target := extract.UpscaleImageURL(raw, f.cfg.TargetSize)
		name, err := f.fileName(i+1, productName, target)
		if err != nil {
			logger.Warn("naming image failed", zap.String("url", target), zap.Error(err))
			f.report(StatusFailed, 0)
			continue
		}
		loc, err := f.fetchOne(ctx, path.Join(dir, name), target, logger)
		if err != nil {
			logger.Warn("image download failed", zap.String("url", target), zap.Error(err))
			f.report(StatusFailed, 0)
			continue
		}
		saved = append(saved, loc)
	}
	logger.Info("images stored", zap.Int("requested", len(urls)), zap.Int("stored", len(saved)))
	return saved
}

func (f *Fetcher) fetchOne(ctx context.Context, objectPath, url string, logger *zap.Logger) (string, error) {
	if loc, size, err := f.store.Stat(ctx, objectPath); err == nil && size > 0 {
		logger.Debug("image already stored", zap.String("path", loc))
		f.report(StatusReused, size)
		return loc, nil
	} else if err != nil && !errors.Is(err, crawler.ErrNotFound) {
		logger.Debug("stat failed, downloading again", zap.String("path", objectPath), zap.Error(err))
	}

	var body []byte
	var contentType string
	err := crawler.Retry(ctx, f.policy, f.pacer, f.onRetry, func(ctx context.Context) error {
		resp, err := f.fetcher.Fetch(ctx, crawler.FetchRequest{
			URL:      url,
			Headers:  f.headers(),
			MaxBytes: f.cfg.MaxBytes,
		})
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return crawler.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
		if len(resp.Body) == 0 {
			return crawler.Permanent(errors.New("empty body"))
		}
		body = resp.Body
		contentType = resp.Headers.Get("Content-Type")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	loc, err := f.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store %s: %w", objectPath, err)
	}
	f.report(StatusSaved, int64(len(body)))
	return loc, nil
}

func (f *Fetcher) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", f.cfg.UserAgent)
	h.Set("Accept", acceptImages)
	if f.cfg.BaseURL != "" {
		h.Set("Referer", f.cfg.BaseURL)
	}
	return h
}

func (f *Fetcher) report(status string, size int64) {
	if f.observe != nil {
		f.observe(status, size)
	}
}

// fileName renders NN_<name slug>_<url hash>.jpg.
func (f *Fetcher) fileName(index int, productName, url string) (string, error) {
	digest, err := f.hasher.Hash([]byte(url))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	if len(digest) > 10 {
		digest = digest[:10]
	}
	return fmt.Sprintf("%02d_%s_%s.jpg", index, crawler.Slugify(productName, 60, "product"), digest), nil
}

// ProductDir is the object prefix for one product's images.
func ProductDir(baseFolder, keyword, productName string) string {
	return path.Join(
		crawler.Slugify(baseFolder, 0, "run"),
		crawler.Slugify(keyword, 0, "keyword"),
		crawler.Slugify(productName, 80, "product"),
	)
}
