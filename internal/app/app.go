// Package app builds and owns the long-lived services of one pipeline run:
// the browser session, media storage, row sinks, progress hub and the
// optional health/metrics listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/api"
	"github.com/JakeFAU/prodrefs/internal/browser"
	chromedpdriver "github.com/JakeFAU/prodrefs/internal/browser/chromedp"
	roddriver "github.com/JakeFAU/prodrefs/internal/browser/rod"
	"github.com/JakeFAU/prodrefs/internal/config"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/detail"
	"github.com/JakeFAU/prodrefs/internal/discover"
	"github.com/JakeFAU/prodrefs/internal/export"
	collyfetcher "github.com/JakeFAU/prodrefs/internal/fetcher/colly"
	"github.com/JakeFAU/prodrefs/internal/hash/sha256"
	"github.com/JakeFAU/prodrefs/internal/media"
	"github.com/JakeFAU/prodrefs/internal/metrics"
	"github.com/JakeFAU/prodrefs/internal/pipeline"
	"github.com/JakeFAU/prodrefs/internal/progress"
	"github.com/JakeFAU/prodrefs/internal/progress/sinks"
	"github.com/JakeFAU/prodrefs/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/prodrefs/internal/publisher/pubsub"
	"github.com/JakeFAU/prodrefs/internal/sessionstate"
	"github.com/JakeFAU/prodrefs/internal/storage/gcs"
	"github.com/JakeFAU/prodrefs/internal/storage/local"
	"github.com/JakeFAU/prodrefs/internal/storage/postgres"
	"github.com/JakeFAU/prodrefs/internal/telemetry"
)

// shortDigest is the URL hash length used in media file names.
const shortDigest = 10

const closeTimeout = 10 * time.Second

// Option overrides a dependency New would otherwise build from config.
type Option func(*options)

type options struct {
	session    browser.Session
	store      crawler.BlobStore
	sinks      []crawler.RowSink
	registerer prometheus.Registerer
	clock      crawler.Clock
}

// WithSession uses session instead of launching the configured driver.
func WithSession(session browser.Session) Option {
	return func(o *options) { o.session = session }
}

// WithBlobStore stores media in store instead of the configured backend.
func WithBlobStore(store crawler.BlobStore) Option {
	return func(o *options) { o.store = store }
}

// WithSinks appends extra row sinks after the configured ones.
func WithSinks(extra ...crawler.RowSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, extra...) }
}

// WithRegisterer registers progress collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock stamps rows and export names with clock.
func WithClock(clock crawler.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// App holds the services shared by one invocation of the CLI.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	session  browser.Session
	state    *sessionstate.Store
	pipeline *pipeline.Pipeline
	hub      *progress.Hub
	board    *api.StatusBoard
	sinks    []crawler.RowSink

	tracer       *sdktrace.TracerProvider
	stopServer   context.CancelFunc
	serverDone   chan struct{}
	closers      []func() error
	closed       atomic.Bool
	closeTimeout time.Duration
}

// New builds every service the configuration asks for. It fails fast when a
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{
		cfg:          cfg,
		logger:       logger,
		state:        sessionstate.New(cfg.Session.StateFile, logger.Named("session")),
		closeTimeout: closeTimeout,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.session = o.session
	if a.session == nil {
		a.session = newSession(cfg, logger.Named("browser"))
	}
	a.closers = append(a.closers, a.session.Close)

	pacer := crawler.NewPacer(crawler.PacerConfig{
		MinDelay: cfg.Pacing.MinDelay,
		MaxDelay: cfg.Pacing.MaxDelay,
		MaxRPS:   cfg.Pacing.MaxRPS,
	}, crawler.TimerPauser{})
	pacer.OnDelay(metrics.ObservePacingDelay)
	policy := crawler.NewRetryPolicy(crawler.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	})

	discoverer := discover.New(policy, pacer, crawler.NewBlockDetector(nil, nil), discover.Config{
		BaseURL:        cfg.Site.BaseURL,
		NavTimeout:     cfg.Browser.NavTimeout,
		WaitTimeout:    cfg.Browser.WaitTimeout,
		CardMultiplier: cfg.Scrape.CardMultiplier,
		ScrollCycles:   cfg.Scrape.ScrollCycles,
		SkipBlockCheck: cfg.Scrape.SkipBlockCheck,
	}, logger.Named("discover"))
	discoverer.OnRetry(retryObserver("search", logger))

	resolver := detail.New(policy, pacer, detail.Config{
		BaseURL:       cfg.Site.BaseURL,
		NavTimeout:    cfg.Browser.NavTimeout,
		WaitTimeout:   cfg.Browser.WaitTimeout,
		MaxImages:     cfg.Detail.MaxImages,
		ImageTarget:   cfg.Media.TargetSize,
		BrandStoplist: cfg.Site.BrandStoplist,
	}, logger.Named("detail"))
	resolver.OnRetry(retryObserver("detail", logger))

	deps := pipeline.Deps{
		Session:    a.session,
		Discoverer: discoverer,
		Resolver:   resolver,
		Clock:      o.clock,
	}

	if cfg.Media.Enabled {
		fetcher, err := a.mediaFetcher(ctx, o.store, policy, pacer)
		if err != nil {
			return nil, err
		}
		deps.Media = fetcher
	}

	if a.sinks, err = a.rowSinks(ctx, o.clock); err != nil {
		return nil, err
	}
	a.sinks = append(a.sinks, o.sinks...)
	deps.Sinks = a.sinks

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return nil, err
	}
	a.board = api.NewStatusBoard()
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		a.board,
	)
	deps.Progress = a.hub

	a.pipeline, err = pipeline.New(deps, pipeline.Config{
		SourceSite:    cfg.Site.SourceName,
		MaxCandidates: cfg.Scrape.MaxCandidates,
		TopN:          cfg.Scrape.TopN,
		BaseFolder:    cfg.Media.BaseFolder,
	}, logger.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.ListenAddr != "" {
		a.serve(cfg.Metrics.ListenAddr)
	}
	logger.Info("application services initialized",
		zap.String("driver", cfg.Browser.Driver),
		zap.Bool("media", cfg.Media.Enabled),
		zap.Strings("sinks", a.SinkNames()),
	)
	return a, nil
}

func newSession(cfg config.Config, logger *zap.Logger) browser.Session {
	if cfg.Browser.Driver == "rod" {
		return roddriver.NewSession(roddriver.Config{
			Headless:       cfg.Browser.Headless,
			UserAgent:      cfg.Browser.UserAgent,
			UserDataDir:    cfg.Browser.UserDataDir,
			ControlURL:     cfg.Browser.ControlURL,
			WindowWidth:    cfg.Browser.WindowWidth,
			WindowHeight:   cfg.Browser.WindowHeight,
			IsolateCookies: cfg.Browser.IsolateCookies,
			Locale:         cfg.Browser.Locale,
			Timezone:       cfg.Browser.Timezone,
			ActionTimeout:  cfg.Browser.WaitTimeout,
		}, logger)
	}
	return chromedpdriver.NewSession(chromedpdriver.Config{
		Headless:       cfg.Browser.Headless,
		UserAgent:      cfg.Browser.UserAgent,
		UserDataDir:    cfg.Browser.UserDataDir,
		WindowWidth:    cfg.Browser.WindowWidth,
		WindowHeight:   cfg.Browser.WindowHeight,
		IsolateCookies: cfg.Browser.IsolateCookies,
		Locale:         cfg.Browser.Locale,
		Timezone:       cfg.Browser.Timezone,
		ActionTimeout:  cfg.Browser.WaitTimeout,
	}, logger)
}

func (a *App) mediaFetcher(ctx context.Context, store crawler.BlobStore, policy crawler.RetryPolicy, pacer *crawler.Pacer) (*media.Fetcher, error) {
	cfg := a.cfg
	if store == nil {
		switch cfg.Media.Backend {
		case "gcs":
			gcsStore, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Media.GCSBucket, Prefix: cfg.Media.GCSPrefix}, a.logger)
			if err != nil {
				return nil, fmt.Errorf("open media bucket: %w", err)
			}
			a.closers = append(a.closers, gcsStore.Close)
			store = gcsStore
		default:
			localStore, err := local.New(local.Config{BaseDir: cfg.Media.Root})
			if err != nil {
				return nil, fmt.Errorf("open media dir: %w", err)
			}
			store = localStore
		}
	}
	fetcher := media.New(
		collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   cfg.Media.Timeout,
			MaxBytes:  cfg.Media.MaxBytes,
		}),
		store,
		sha256.NewShort(shortDigest),
		policy,
		pacer,
		media.Config{
			BaseURL:    cfg.Site.BaseURL,
			UserAgent:  cfg.Browser.UserAgent,
			MaxBytes:   cfg.Media.MaxBytes,
			TargetSize: cfg.Media.TargetSize,
		},
		a.logger.Named("media"),
	)
	fetcher.OnResult(metrics.ObserveMedia)
	fetcher.OnRetry(retryObserver("media", a.logger))
	return fetcher, nil
}

func (a *App) rowSinks(ctx context.Context, clock crawler.Clock) ([]crawler.RowSink, error) {
	cfg := a.cfg
	exportCfg := export.Config{Dir: cfg.Output.Dir}
	var out []crawler.RowSink
	for _, format := range cfg.Output.Formats {
		switch format {
		case "xlsx":
			out = append(out, export.NewXLSXSink(exportCfg, clock))
		case "csv":
			out = append(out, export.NewCSVSink(exportCfg, clock))
		case "postgres":
			store, err := postgres.NewRowStore(ctx, postgres.RowStoreConfig{
				DSN:      cfg.DB.DSN,
				Table:    cfg.DB.Table,
				MaxConns: cfg.DB.MaxConns,
			})
			if err != nil {
				return nil, fmt.Errorf("open postgres sink: %w", err)
			}
			a.closers = append(a.closers, func() error { store.Close(); return nil })
			out = append(out, store)
		case "pubsub":
			if a.tracer == nil {
				tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName)
				if err != nil {
					return nil, fmt.Errorf("init tracing: %w", err)
				}
				a.tracer = tp
			}
			pub, err := pubsubpublisher.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, a.logger)
			if err != nil {
				return nil, fmt.Errorf("open pubsub sink: %w", err)
			}
			a.closers = append(a.closers, pub.Close)
			out = append(out, publisher.NewRowSink(pub, cfg.PubSub.TopicName))
		default:
			return nil, fmt.Errorf("unknown output format %q", format)
		}
	}
	return out, nil
}

func (a *App) serve(addr string) {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopServer = cancel
	a.serverDone = make(chan struct{})
	server := api.NewServer(a.board, a.ready, a.logger.Named("api"))
	go func() {
		defer close(a.serverDone)
		a.logger.Info("status server started", zap.String("addr", addr))
		if err := server.ListenAndServe(ctx, addr); err != nil {
			a.logger.Error("status server error", zap.Error(err))
		}
	}()
}

func (a *App) ready(context.Context) error {
	if a.closed.Load() {
		return errors.New("shutting down")
	}
	return nil
}

func retryObserver(op string, logger *zap.Logger) crawler.RetryObserver {
	return func(attempt int, delay time.Duration, err error) {
		metrics.ObserveRetry(op)
		logger.Debug("retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Status returns the live status board.
func (a *App) Status() *api.StatusBoard {
	return a.board
}

// SinkNames lists the active row sinks in export order.
func (a *App) SinkNames() []string {
	names := make([]string, 0, len(a.sinks))
	for _, s := range a.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Run restores the saved session, processes keywords, and saves the session
// again unless the run hit a verification wall.
func (a *App) Run(ctx context.Context, keywords []string) (pipeline.Report, error) {
	if err := a.state.Restore(ctx, a.session); err != nil {
		a.logger.Warn("session state not restored", zap.Error(err))
	}
	report, err := a.pipeline.Run(ctx, keywords)
	if report.Blocked || report.RunID == "" {
		return report, err
	}
	if saveErr := a.state.Capture(context.WithoutCancel(ctx), a.session); saveErr != nil {
		a.logger.Warn("session state not saved", zap.Error(saveErr))
	}
	return report, err
}

// Close flushes progress, stops the status server and releases every
// backend in reverse order of creation. It is safe to call more than once.
func (a *App) Close() {
	if a == nil || a.closed.Swap(true) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.closeTimeout)
	defer cancel()

	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.stopServer != nil {
		a.stopServer()
		select {
		case <-a.serverDone:
		case <-ctx.Done():
			a.logger.Warn("status server did not stop in time")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}
