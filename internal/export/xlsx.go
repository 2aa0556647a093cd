package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"github.com/yiblet/qrscan/internal/store"
)

// XLSXExporter writes a workbook with a single "Scanned Data" sheet: a header
// row followed by one row per record.
type XLSXExporter struct{}

// NewXLSXExporter creates an xlsx exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) Format() string    { return "xlsx" }
func (e *XLSXExporter) Extension() string { return "xlsx" }

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Export implements Exporter.
func (e *XLSXExporter) Export(ctx context.Context, records []*store.ScanRecord, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return NewError(e.Format(), len(records), err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return NewError(e.Format(), len(records), err)
	}

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return NewError(e.Format(), len(records), err)
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return NewError(e.Format(), len(records), err)
		}
		values := []interface{}{r.Value, r.Time, r.ID}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return NewError(e.Format(), len(records), fmt.Errorf("row %d: %w", i+1, err))
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return NewError(e.Format(), len(records), err)
	}
	return nil
}
