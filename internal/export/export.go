// Package export writes output rows to spreadsheet files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JakeFAU/prodrefs/internal/clock/system"
	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// DefaultPrefix names exported files.
const DefaultPrefix = "tokopedia_product_refs"

const timestampLayout = "20060102_150405"

// Config controls where export files land.
type Config struct {
	Dir string
	// Prefix is followed by _<YYYYMMDD_HHMMSS> and the extension.
	Prefix string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Dir) == "" {
		c.Dir = "output"
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	return c
}

// FileName returns the export file name for a run finishing at ts.
func FileName(prefix string, ts time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, ts.Format(timestampLayout), ext)
}

type fileTarget struct {
	cfg   Config
	clock crawler.Clock
}

func newFileTarget(cfg Config, clock crawler.Clock) fileTarget {
	if clock == nil {
		clock = system.New()
	}
	return fileTarget{cfg: cfg.withDefaults(), clock: clock}
}

// create writes through a temp file in the target directory and renames it
// into place once write succeeds.
func (t fileTarget) create(ext string, write func(*os.File) error) (string, error) {
	if err := os.MkdirAll(t.cfg.Dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	final := filepath.Join(t.cfg.Dir, FileName(t.cfg.Prefix, t.clock.Now(), ext))
	tmp, err := os.CreateTemp(t.cfg.Dir, ".export-*."+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("rename export file: %w", err)
	}
	return final, nil
}
