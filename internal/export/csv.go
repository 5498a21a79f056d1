package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// CSVSink writes every run to a new CSV file.
type CSVSink struct {
	target fileTarget
}

// NewCSVSink builds a CSV sink. A nil clock uses the system clock.
func NewCSVSink(cfg Config, clock crawler.Clock) *CSVSink {
	return &CSVSink{target: newFileTarget(cfg, clock)}
}

// Name implements crawler.RowSink.
func (*CSVSink) Name() string { return "csv" }

// WriteRows implements crawler.RowSink.
func (s *CSVSink) WriteRows(ctx context.Context, _ string, rows []crawler.OutputRow) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.target.create("csv", func(f *os.File) error {
		return WriteCSV(f, rows)
	})
}

// WriteCSV renders rows with a header line in schema order.
func WriteCSV(w io.Writer, rows []crawler.OutputRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(crawler.OutputSchema); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(row.Values()); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

var _ crawler.RowSink = (*CSVSink)(nil)
