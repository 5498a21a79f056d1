package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/config"
	"github.com/JakeFAU/prodrefs/internal/crawler"
	"github.com/JakeFAU/prodrefs/internal/pipeline"
)

type fakeRunner struct {
	cfg      config.Config
	keywords []string
	report   pipeline.Report
	err      error
	closed   bool
}

func (f *fakeRunner) Run(_ context.Context, keywords []string) (pipeline.Report, error) {
	f.keywords = keywords
	f.report.Keywords = keywords
	return f.report, f.err
}

func (f *fakeRunner) Close() { f.closed = true }

// useRunner swaps the application factory for the duration of a test.
func useRunner(t *testing.T, fake *fakeRunner) {
	t.Helper()
	prev := newRunner
	newRunner = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Runner, error) {
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newRunner = prev })
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prodrefs.yaml")
	body := "logging:\n  development: false\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", writeConfig(t)}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunAppliesFlagsAndPrintsExports(t *testing.T) {
	fake := &fakeRunner{report: pipeline.Report{
		RunID: "run-7",
		Rows:  make([]crawler.OutputRow, 3),
		Exports: map[string]string{
			"xlsx": "output/a.xlsx",
			"csv":  "output/a.csv",
		},
	}}
	useRunner(t, fake)

	out, _, err := execute(t, "run",
		"--keyword", "Kaos  Polos", "--keyword", "kaos polos", "-k", "sepatu",
		"--top-n", "2", "--max-candidates", "12", "--driver", "rod",
		"--format", "xlsx,csv", "--no-images", "--headed")
	require.NoError(t, err)

	assert.Equal(t, []string{"kaos polos", "sepatu"}, fake.keywords)
	assert.True(t, fake.closed)
	assert.Equal(t, 2, fake.cfg.Scrape.TopN)
	assert.Equal(t, 12, fake.cfg.Scrape.MaxCandidates)
	assert.Equal(t, "rod", fake.cfg.Browser.Driver)
	assert.Equal(t, []string{"xlsx", "csv"}, fake.cfg.Output.Formats)
	assert.False(t, fake.cfg.Media.Enabled)
	assert.False(t, fake.cfg.Browser.Headless)

	assert.Contains(t, out, "run run-7: 3 rows from 2 keywords")
	assert.Contains(t, out, "output/a.csv")
	assert.Contains(t, out, "output/a.xlsx")
}

func TestRunReadsKeywordFile(t *testing.T) {
	fake := &fakeRunner{}
	useRunner(t, fake)

	path := filepath.Join(t.TempDir(), "keywords.txt")
	require.NoError(t, os.WriteFile(path, []byte("Kemeja Pria\n\nsepatu\n"), 0o600))

	_, _, err := execute(t, "run", "--input", path, "--keyword", "sepatu")
	require.NoError(t, err)
	assert.Equal(t, []string{"sepatu", "kemeja pria"}, fake.keywords)
	assert.True(t, fake.cfg.Browser.Headless)
}

func TestRunRequiresKeywords(t *testing.T) {
	fake := &fakeRunner{}
	useRunner(t, fake)

	_, _, err := execute(t, "run")
	require.ErrorContains(t, err, "no keywords")
	assert.Nil(t, fake.keywords)
}

func TestRunRejectsInvalidFlags(t *testing.T) {
	useRunner(t, &fakeRunner{})

	_, _, err := execute(t, "run", "--keyword", "kaos", "--driver", "firefox")
	require.ErrorContains(t, err, "browser.driver")
}

func TestRunExplainsVerificationWall(t *testing.T) {
	fake := &fakeRunner{
		report: pipeline.Report{RunID: "run-9", Blocked: true, BlockedKeyword: "sepatu"},
		err:    fmt.Errorf("keyword %q: %w", "sepatu", crawler.ErrBlocked),
	}
	useRunner(t, fake)

	out, errOut, err := execute(t, "run", "--keyword", "sepatu")
	require.ErrorIs(t, err, crawler.ErrBlocked)
	assert.True(t, fake.closed)
	assert.Contains(t, out, "run run-9")
	assert.Contains(t, errOut, `"sepatu"`)
	assert.Contains(t, errOut, "--headed")
	assert.Contains(t, errOut, "tokopedia_storage_state.json")
}

func TestRunFailsOnExportErrors(t *testing.T) {
	fake := &fakeRunner{report: pipeline.Report{
		RunID:        "run-3",
		ExportErrors: []error{fmt.Errorf("postgres: %w", assert.AnError)},
	}}
	useRunner(t, fake)

	_, _, err := execute(t, "run", "--keyword", "kaos")
	require.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "export failed")
}

func TestKeywordsCommandPrintsNormalizedList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.csv")
	require.NoError(t, os.WriteFile(path, []byte("Keyword\nKaos Polos\nnan\nsepatu\n"), 0o600))

	out, _, err := execute(t, "keywords", "--input", path, "-k", "SEPATU")
	require.NoError(t, err)
	assert.Equal(t, "1\tsepatu\n2\tkaos polos\n", out)
}
