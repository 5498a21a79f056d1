// Package pipeline runs the keyword loop: discover candidates, resolve each
// detail page, rank, fetch media, build output rows and hand them to sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
	"github.com/JakeFAU/prodrefs/internal/clock/system"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/discover"
	"github.com/JakeFAU/prodrefs/internal/id/uuid"
	"github.com/JakeFAU/prodrefs/internal/metrics"
	"github.com/JakeFAU/prodrefs/internal/progress"
	"github.com/JakeFAU/prodrefs/internal/rank"
)

// Discoverer finds candidates for one keyword.
type Discoverer interface {
	Discover(ctx context.Context, page browser.Page, keyword string, maxCandidates int) (discover.Outcome, error)
}

// Resolver reads one product page.
type Resolver interface {
	Resolve(ctx context.Context, page browser.Page, productURL string) (crawler.DetailFields, error)
}

// MediaFetcher stores a product's images and returns their locations.
type MediaFetcher interface {
	FetchAll(ctx context.Context, baseFolder, keyword, productName string, urls []string) []string
}

// Config tunes the keyword loop.
type Config struct {
	SourceSite    string
	MaxCandidates int
	TopN          int
	// BaseFolder is the first media path segment.
	BaseFolder string
}

func (c Config) withDefaults() Config {
	if c.SourceSite == "" {
		c.SourceSite = "tokopedia"
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 30
	}
	if c.TopN <= 0 {
		c.TopN = 5
	}
	if c.BaseFolder == "" {
		c.BaseFolder = c.SourceSite
	}
	return c
}

// Deps are the collaborators a Pipeline drives. Media, Sinks, Progress,
// Clock and IDs are optional.
type Deps struct {
	Session    browser.Session
	Discoverer Discoverer
	Resolver   Resolver
	Media      MediaFetcher
	Sinks      []crawler.RowSink
	Progress   progress.Emitter
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
}

// Report summarizes a run. Rows are returned even when the run stops early.
type Report struct {
	RunID          string
	Keywords       []string
	Rows           []crawler.OutputRow
	Blocked        bool
	BlockedKeyword string
	// Exports maps sink name to the location it reported.
	Exports      map[string]string
	ExportErrors []error
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Pipeline processes keywords one at a time on a single page.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New builds a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if deps.Session == nil || deps.Discoverer == nil || deps.Resolver == nil {
		return nil, errors.New("pipeline requires a session, discoverer and resolver")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	return &Pipeline{deps: deps, cfg: cfg.withDefaults(), logger: logger}, nil
}

// Run processes keywords in order. It stops at the first blocking page and
// returns the rows collected so far with an error wrapping crawler.ErrBlocked.
// A keyword with no candidates yields zero rows and no error. An empty keyword
// list skips the browser and still exports an empty result.
func (p *Pipeline) Run(ctx context.Context, keywords []string) (Report, error) {
	report := Report{
		Keywords:  crawler.NormalizeKeywords(keywords),
		Exports:   map[string]string{},
		StartedAt: p.deps.Clock.Now(),
	}
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return report, fmt.Errorf("generate run id: %w", err)
	}
	report.RunID = runID
	logger := p.logger.With(zap.String("run_id", runID))
	total := len(report.Keywords)

	var page browser.Page
	if total == 0 {
		logger.Warn("no keywords to process, exporting an empty result")
	} else {
		page, err = p.deps.Session.Open(ctx)
		if err != nil {
			return report, fmt.Errorf("open browser: %w", err)
		}
	}
	logger.Info("run started", zap.Int("keywords", total))
	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Total: total})

	var runErr error
	for i, kw := range report.Keywords {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run interrupted before %q: %w", kw, err)
			break
		}
		evt := progress.Event{RunID: runID, Keyword: kw, Index: i + 1, Total: total}
		evt.Stage = progress.StageKeywordStart
		p.emit(evt)

		started := time.Now()
		rows, err := p.processKeyword(ctx, page, runID, evt)
		evt.Dur = time.Since(started)
		report.Rows = append(report.Rows, rows...)

		if errors.Is(err, crawler.ErrBlocked) {
			logger.Error("blocking page detected, stopping run", zap.String("keyword", kw))
			metrics.ObserveBlocked()
			metrics.ObserveKeyword("blocked")
			report.Blocked = true
			report.BlockedKeyword = kw
			evt.Stage, evt.Note = progress.StageBlocked, "verification wall"
			p.emit(evt)
			runErr = fmt.Errorf("keyword %q: %w", kw, err)
			break
		}

		evt.Stage, evt.Count = progress.StageKeywordDone, len(rows)
		switch {
		case err != nil:
			logger.Error("keyword failed", zap.String("keyword", kw), zap.Error(err))
			metrics.ObserveKeyword("failed")
			evt.Note = err.Error()
		case len(rows) == 0:
			logger.Warn("keyword produced no rows", zap.String("keyword", kw))
			metrics.ObserveKeyword("empty")
		default:
			logger.Info("keyword done", zap.String("keyword", kw), zap.Int("rows", len(rows)))
			metrics.ObserveKeyword("rows")
		}
		p.emit(evt)
	}

	p.export(ctx, &report, logger)
	report.FinishedAt = p.deps.Clock.Now()

	done := progress.Event{
		RunID: runID,
		Stage: progress.StageRunDone,
		Total: total,
		Count: len(report.Rows),
		Dur:   max(report.FinishedAt.Sub(report.StartedAt), 0),
	}
	if runErr != nil {
		done.Note = runErr.Error()
	}
	p.emit(done)
	logger.Info("run finished",
		zap.Int("rows", len(report.Rows)),
		zap.Bool("blocked", report.Blocked),
		zap.Int("export_errors", len(report.ExportErrors)),
	)
	return report, runErr
}

func (p *Pipeline) processKeyword(ctx context.Context, page browser.Page, runID string, evt progress.Event) ([]crawler.OutputRow, error) {
	kw := evt.Keyword
	logger := p.logger.With(zap.String("run_id", runID), zap.String("keyword", kw))

	outcome, err := p.deps.Discoverer.Discover(ctx, page, kw, p.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	switch outcome.Kind {
	case crawler.KindBlocked:
		return nil, fmt.Errorf("search page %s: %w", outcome.SearchURL, crawler.ErrBlocked)
	case crawler.KindNotFound:
		p.emit(withStage(evt, progress.StageCandidates, 0))
		return nil, nil
	}
	metrics.AddCandidates(len(outcome.Candidates))
	p.emit(withStage(evt, progress.StageCandidates, len(outcome.Candidates)))
	logger.Info("candidates collected", zap.Int("candidates", len(outcome.Candidates)))

	detailed := make([]crawler.DetailedRecord, 0, len(outcome.Candidates))
	for i, cand := range outcome.Candidates {
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled, skipping remaining candidates", zap.Int("remaining", len(outcome.Candidates)-i))
			break
		}
		if cand.ProductURL == "" {
			logger.Warn("candidate has no product url", zap.Int("candidate", i+1))
			continue
		}
		fields, err := p.deps.Resolver.Resolve(ctx, page, cand.ProductURL)
		if err != nil {
			metrics.ObserveDetail("failed")
			logger.Warn("detail failed, dropping candidate",
				zap.Int("candidate", i+1),
				zap.String("url", cand.ProductURL),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveDetail("ok")
		rec := crawler.Merge(cand, fields, kw, p.cfg.SourceSite, p.deps.Clock.Now())
		detailed = append(detailed, rec)
		logger.Debug("detail resolved",
			zap.Int("candidate", i+1),
			zap.Int("description_chars", len(rec.Description)),
			zap.Int("images", len(rec.ImageURLs)),
		)
	}
	p.emit(withStage(evt, progress.StageDetail, len(detailed)))
	if len(detailed) == 0 {
		return nil, ctx.Err()
	}

	ranked := rank.Rank(kw, detailed, p.cfg.TopN)
	rows := make([]crawler.OutputRow, 0, len(ranked))
	for _, rec := range ranked {
		rows = append(rows, crawler.BuildOutputRow(rec.DetailedRecord, p.fetchMedia(ctx, kw, rec.DetailedRecord)))
	}
	return rows, nil
}

func (p *Pipeline) fetchMedia(ctx context.Context, keyword string, rec crawler.DetailedRecord) []string {
	if p.deps.Media == nil {
		return nil
	}
	urls := rec.ImageURLs
	if len(urls) == 0 && rec.ImageURL != "" {
		urls = []string{rec.ImageURL}
	}
	if len(urls) == 0 {
		return nil
	}
	return p.deps.Media.FetchAll(ctx, p.cfg.BaseFolder, keyword, rec.ProductName, urls)
}

// export hands rows to every sink. Sinks run even after cancellation so a
// stopped run still leaves its partial results behind.
func (p *Pipeline) export(ctx context.Context, report *Report, logger *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, sink := range p.deps.Sinks {
		loc, err := sink.WriteRows(ctx, report.RunID, report.Rows)
		if err != nil {
			metrics.ObserveExport(sink.Name(), "failed")
			logger.Error("export failed", zap.String("sink", sink.Name()), zap.Error(err))
			report.ExportErrors = append(report.ExportErrors, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.ObserveExport(sink.Name(), "ok")
		report.Exports[sink.Name()] = loc
		logger.Info("rows exported", zap.String("sink", sink.Name()), zap.String("location", loc))
	}
}

func (p *Pipeline) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = p.deps.Clock.Now()
	}
	p.deps.Progress.Emit(evt)
}

func withStage(evt progress.Event, stage progress.Stage, count int) progress.Event {
	evt.Stage = stage
	evt.Count = count
	return evt
}
