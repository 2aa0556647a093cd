// Package export serializes scan history into downloadable files. Every
// format writes the columns value, time and id, one row per record, in the
// order the records are given.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yiblet/qrscan/internal/store"
)

// SheetName is the name of the single worksheet in xlsx exports.
const SheetName = "Scanned Data"

// FilePrefix starts every exported file name.
const FilePrefix = "QRCode_Scans_"

// Columns are the exported fields, in order.
var Columns = []string{"value", "time", "id"}

var (
	// ErrNoRecords is returned when there is nothing to export.
	ErrNoRecords = errors.New("no scanned data to export")

	// ErrUnknownFormat is returned by ForFormat for an unsupported name.
	ErrUnknownFormat = errors.New("unknown export format")
)

// Error describes a failed serialization.
type Error struct {
	Format      string
	RecordCount int
	Cause       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export failed [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error.
func NewError(format string, recordCount int, cause error) *Error {
	return &Error{
		Format:      format,
		RecordCount: recordCount,
		Cause:       cause,
	}
}

// Exporter writes records in one file format.
type Exporter interface {
	// Format is the short name used in configuration, such as "xlsx".
	Format() string

	// Extension is the file extension without the dot.
	Extension() string

	// ContentType is the MIME type of the output.
	ContentType() string

	// Export writes records to w.
	Export(ctx context.Context, records []*store.ScanRecord, w io.Writer) error
}

// DefaultFormat is used when no format is configured.
const DefaultFormat = "xlsx"

var registry = map[string]func() Exporter{
	"xlsx": func() Exporter { return NewXLSXExporter() },
	"csv":  func() Exporter { return NewCSVExporter(true) },
	"json": func() Exporter { return NewJSONExporter(true) },
	"pdf":  func() Exporter { return NewPDFExporter() },
}

// ForFormat returns the exporter for name. An empty name selects DefaultFormat.
func ForFormat(name string) (Exporter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultFormat
	}
	newExporter, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
	return newExporter(), nil
}

// Formats lists the supported format names.
func Formats() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filename returns the export file name for a given time, such as
// QRCode_Scans_1700000000000.xlsx.
func Filename(ext string, now time.Time) string {
	return fmt.Sprintf("%s%d.%s", FilePrefix, now.UnixMilli(), ext)
}

// ToFile exports records into dir under Filename and returns the path. The
// output is written to a temporary file first, so a failed export leaves
// nothing behind.
func ToFile(ctx context.Context, e Exporter, records []*store.ScanRecord, dir string, now time.Time) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".qrscan-export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := e.Export(ctx, records, tmp); err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to set export file mode: %w", err)
	}

	path := filepath.Join(dir, Filename(e.Extension(), now))
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to save export file: %w", err)
	}

	return path, nil
}

// recordCells returns the exported cells of r as strings.
func recordCells(r *store.ScanRecord) []string {
	return []string{r.Value, r.Time, fmt.Sprintf("%d", r.ID)}
}
