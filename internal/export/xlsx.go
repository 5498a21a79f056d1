package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// SheetName is the worksheet holding exported rows.
const SheetName = "products"

const productURLWidth = 80

// XLSXSink writes every run to a new workbook.
type XLSXSink struct {
	target fileTarget
}

// NewXLSXSink builds a workbook sink. A nil clock uses the system clock.
func NewXLSXSink(cfg Config, clock crawler.Clock) *XLSXSink {
	return &XLSXSink{target: newFileTarget(cfg, clock)}
}

// Name implements crawler.RowSink.
func (*XLSXSink) Name() string { return "xlsx" }

// WriteRows implements crawler.RowSink. An empty run still produces a
// workbook with the header row.
func (s *XLSXSink) WriteRows(ctx context.Context, _ string, rows []crawler.OutputRow) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.target.create("xlsx", func(f *os.File) error {
		return WriteXLSX(f, rows)
	})
}

// WriteXLSX renders rows as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []crawler.OutputRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(crawler.OutputSchema))
	for i, name := range crawler.OutputSchema {
		header[i] = name
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.ColumnNumberToName(len(crawler.OutputSchema))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last+"1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if i := slices.Index(crawler.OutputSchema, "product_url"); i >= 0 {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, productURLWidth); err != nil {
			return fmt.Errorf("widen product_url: %w", err)
		}
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := cells(row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// cells keeps price numeric so spreadsheets can sort and sum it.
func cells(row crawler.OutputRow) []any {
	values := row.Values()
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	if i := slices.Index(crawler.OutputSchema, "price"); i >= 0 {
		if row.Price != nil {
			out[i] = *row.Price
		} else {
			out[i] = nil
		}
	}
	return out
}

var _ crawler.RowSink = (*XLSXSink)(nil)
