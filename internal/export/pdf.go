package export

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/yiblet/qrscan/internal/store"
)

// Column widths on maroto's 12-column grid: code, value, time, id.
var pdfWidths = []int{2, 6, 3, 1}

// PDFExporter renders records as a printable table with the QR code of each
// value next to it.
type PDFExporter struct {
	// Title is printed above the table.
	Title string
}

// NewPDFExporter creates a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{Title: SheetName}
}

func (e *PDFExporter) Format() string      { return "pdf" }
func (e *PDFExporter) Extension() string   { return "pdf" }
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Export implements Exporter.
func (e *PDFExporter) Export(ctx context.Context, records []*store.ScanRecord, w io.Writer) error {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).
		WithTopMargin(15).
		WithRightMargin(10).
		WithPageNumber().
		Build()

	m := maroto.New(cfg)

	headerCell := &props.Cell{BackgroundColor: &props.Color{Red: 200, Green: 200, Blue: 200}, BorderType: border.Bottom}
	evenCell := &props.Cell{BackgroundColor: &props.WhiteColor}
	oddCell := &props.Cell{BackgroundColor: &props.Color{Red: 235, Green: 235, Blue: 235}}

	m.AddRow(12, text.NewCol(12, e.Title, props.Text{
		Size:  16,
		Style: fontstyle.Bold,
		Align: align.Center,
		Top:   2,
	}))

	headers := []string{"code", Columns[0], Columns[1], Columns[2]}
	hs := make([]core.Col, len(headers))
	for i, h := range headers {
		hs[i] = text.NewCol(pdfWidths[i], h, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Center,
			Top:   2,
		}).WithStyle(headerCell)
	}
	m.AddRows(row.New(9).Add(hs...))

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return NewError(e.Format(), len(records), err)
		}

		cell := evenCell
		if i%2 == 1 {
			cell = oddCell
		}

		m.AddRows(row.New(24).Add(
			code.NewQrCol(pdfWidths[0], r.Value, props.Rect{Center: true, Percent: 90}).WithStyle(cell),
			text.NewCol(pdfWidths[1], r.Value, props.Text{Size: 10, Top: 3, Left: 2, Right: 2}).WithStyle(cell),
			text.NewCol(pdfWidths[2], r.Time, props.Text{Size: 10, Top: 3, Align: align.Center}).WithStyle(cell),
			text.NewCol(pdfWidths[3], strconv.FormatUint(uint64(r.ID), 10), props.Text{Size: 10, Top: 3, Align: align.Center}).WithStyle(cell),
		))
	}

	doc, err := m.Generate()
	if err != nil {
		return NewError(e.Format(), len(records), fmt.Errorf("failed to generate pdf: %w", err))
	}
	if _, err := w.Write(doc.GetBytes()); err != nil {
		return NewError(e.Format(), len(records), err)
	}
	return nil
}
