package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/config"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/input"
	"github.com/JakeFAU/prodrefs/internal/pipeline"
)

type runOptions struct {
	keywords      []string
	inputPath     string
	topN          int
	maxCandidates int
	driver        string
	formats       []string
	outputDir     string
	noImages      bool
	headed        bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search every keyword and export product rows",
		Long: `Runs the pipeline for keywords given with --keyword and/or read from
--input (.xlsx, .csv or .txt). Keywords are processed one at a time in a
single browser session. A verification wall stops the run; rows collected
before it are still exported.`,
		Example: `  prodrefs run --keyword "kaos polos" --keyword "sepatu lari"
  prodrefs run --input keywords.xlsx --top-n 3 --format xlsx,csv
  prodrefs run --input keywords.txt --headed`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.keywords, "keyword", "k", nil, "keyword to search (repeatable)")
	f.StringVarP(&opts.inputPath, "input", "i", "", "keyword file (.xlsx, .csv or .txt)")
	f.IntVar(&opts.topN, "top-n", 0, "rows kept per keyword (overrides scrape.top_n)")
	f.IntVar(&opts.maxCandidates, "max-candidates", 0, "candidates read per keyword (overrides scrape.max_candidates)")
	f.StringVar(&opts.driver, "driver", "", "browser driver: chromedp or rod")
	f.StringSliceVar(&opts.formats, "format", nil, "output formats: xlsx, csv, postgres, pubsub")
	f.StringVar(&opts.outputDir, "output-dir", "", "directory for exported files")
	f.BoolVar(&opts.noImages, "no-images", false, "skip image downloads")
	f.BoolVar(&opts.headed, "headed", false, "show the browser window, e.g. to solve a verification challenge")
	return cmd
}

func (o runOptions) apply(cfg config.Config) (config.Config, error) {
	if o.topN > 0 {
		cfg.Scrape.TopN = o.topN
	}
	if o.maxCandidates > 0 {
		cfg.Scrape.MaxCandidates = o.maxCandidates
	}
	if o.driver != "" {
		cfg.Browser.Driver = o.driver
	}
	if len(o.formats) > 0 {
		cfg.Output.Formats = o.formats
	}
	if o.outputDir != "" {
		cfg.Output.Dir = o.outputDir
	}
	if o.noImages {
		cfg.Media.Enabled = false
	}
	if o.headed {
		cfg.Browser.Headless = false
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// gatherKeywords merges flag and file keywords, normalized and de-duplicated.
func gatherKeywords(flagKeywords []string, inputPath string) ([]string, error) {
	raw := append([]string(nil), flagKeywords...)
	if inputPath != "" {
		fromFile, err := input.Load(inputPath)
		if err != nil {
			return nil, fmt.Errorf("load keywords: %w", err)
		}
		raw = append(raw, fromFile...)
	}
	keywords := crawler.NormalizeKeywords(raw)
	if len(keywords) == 0 {
		return nil, errors.New("no keywords: pass --keyword or --input")
	}
	return keywords, nil
}

func runPipeline(cmd *cobra.Command, opts runOptions) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	cfg, err := opts.apply(e.cfg)
	if err != nil {
		return err
	}
	keywords, err := gatherKeywords(opts.keywords, opts.inputPath)
	if err != nil {
		return err
	}
	e.logger.Info("keywords loaded", zap.Int("count", len(keywords)))

	runner, err := newRunner(cmd.Context(), cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer runner.Close()

	report, runErr := runner.Run(cmd.Context(), keywords)
	printReport(cmd.OutOrStdout(), report)
	if errors.Is(runErr, crawler.ErrBlocked) {
		printRemediation(cmd.ErrOrStderr(), report, cfg)
	}
	if runErr != nil {
		return runErr
	}
	if len(report.ExportErrors) > 0 {
		return fmt.Errorf("export failed: %w", errors.Join(report.ExportErrors...))
	}
	return nil
}

func printReport(w io.Writer, report pipeline.Report) {
	fmt.Fprintf(w, "run %s: %d rows from %d keywords\n", report.RunID, len(report.Rows), len(report.Keywords))
	names := make([]string, 0, len(report.Exports))
	for name := range report.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, report.Exports[name])
	}
}

func printRemediation(w io.Writer, report pipeline.Report, cfg config.Config) {
	fmt.Fprintf(w, `
Tokopedia showed a verification page while searching %q.
To continue:
  1. Rerun with --headed and solve the challenge in the browser window.
  2. Let that run finish; cookies are then saved to %s and reused.
  3. Optionally set browser.user_data_dir to keep a persistent Chrome profile.
Rows collected before the wall were still exported.
`, report.BlockedKeyword, cfg.Session.StateFile)
}
