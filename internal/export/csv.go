package export

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/yiblet/qrscan/internal/store"
)

// CSVExporter exports records as comma-separated values.
type CSVExporter struct {
	// IncludeHeader writes the column names first.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
	}
}

func (e *CSVExporter) Format() string      { return "csv" }
func (e *CSVExporter) Extension() string   { return "csv" }
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Export implements Exporter.
func (e *CSVExporter) Export(ctx context.Context, records []*store.ScanRecord, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Columns); err != nil {
			return NewError(e.Format(), len(records), err)
		}
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return NewError(e.Format(), len(records), err)
		}
		if err := writer.Write(recordCells(r)); err != nil {
			return NewError(e.Format(), len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return NewError(e.Format(), len(records), err)
	}
	return nil
}
