package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/yiblet/qrscan/internal/store"
)

// jsonRecord is the exported shape of a record.
type jsonRecord struct {
	Value string `json:"value"`
	Time  string `json:"time"`
	ID    uint   `json:"id"`
}

// JSONExporter exports records as a JSON array.
type JSONExporter struct {
	// Pretty indents the output.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

func (e *JSONExporter) Format() string      { return "json" }
func (e *JSONExporter) Extension() string   { return "json" }
func (e *JSONExporter) ContentType() string { return "application/json" }

// Export implements Exporter.
func (e *JSONExporter) Export(ctx context.Context, records []*store.ScanRecord, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return NewError(e.Format(), len(records), err)
	}

	out := make([]jsonRecord, len(records))
	for i, r := range records {
		out[i] = jsonRecord{Value: r.Value, Time: r.Time, ID: r.ID}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		return NewError(e.Format(), len(records), err)
	}
	return nil
}
