// Package server is the optional local HTTP surface: it lists the scan
// history, accepts uploaded frames, serves exports as attachments and
// exposes Prometheus metrics.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/export"
	"github.com/yiblet/qrscan/internal/logging"
	"github.com/yiblet/qrscan/internal/qrcode"
	"github.com/yiblet/qrscan/internal/session"
	"github.com/yiblet/qrscan/internal/store"
)

// MaxFrameBytes bounds an uploaded frame.
const MaxFrameBytes = 10 << 20

// Scanner is the part of the session the server drives.
type Scanner interface {
	Handle(ctx context.Context, value string) (*store.ScanRecord, bool, error)
	Records() []*store.ScanRecord
	Status() session.Status
	ID() string
}

// ExportRecorder receives export outcomes, typically *metrics.Collector.
type ExportRecorder interface {
	RecordExport(format string, err error, d time.Duration)
}

// Options configure a Server. Every field is optional.
type Options struct {
	// Decoder reads uploaded frames. Defaults to a whole-image qrcode.Decoder.
	Decoder capture.Decoder

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// Exports records export outcomes.
	Exports ExportRecorder

	Logger *slog.Logger
	Now    func() time.Time
}

// Server routes HTTP requests to a Scanner.
type Server struct {
	scanner Scanner
	opts    Options
	log     *slog.Logger
	router  *mux.Router
}

// New creates a server for scanner.
func New(scanner Scanner, opts Options) *Server {
	if opts.Decoder == nil {
		opts.Decoder = &qrcode.Decoder{TryHarder: true}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		scanner: scanner,
		opts:    opts,
		log:     opts.Logger.With("component", "server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scans", s.handleListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans/last", s.handleLastScan).Methods(http.MethodGet)
	api.HandleFunc("/frames", s.handleFrame).Methods(http.MethodPost)
	api.HandleFunc("/export/{format}", s.handleExport).Methods(http.MethodGet)

	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ScanJSON is the wire form of a record.
type ScanJSON struct {
	ID        uint      `json:"id"`
	Value     string    `json:"value"`
	Time      string    `json:"time"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// ToJSON converts a record to its wire form.
func ToJSON(r *store.ScanRecord) ScanJSON {
	return ScanJSON{
		ID:        r.ID,
		Value:     r.Value,
		Time:      r.Time,
		Timestamp: r.Timestamp,
		SessionID: r.SessionID,
	}
}

type frameResponse struct {
	Value     string    `json:"value"`
	Duplicate bool      `json:"duplicate"`
	Record    *ScanJSON `json:"record,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"capture": s.scanner.Status().String(),
		"records": len(s.scanner.Records()),
	})
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	records := s.scanner.Records()
	out := make([]ScanJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, ToJSON(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLastScan(w http.ResponseWriter, r *http.Request) {
	records := s.scanner.Records()
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "no scans yet")
		return
	}
	writeJSON(w, http.StatusOK, ToJSON(records[len(records)-1]))
}

// handleFrame decodes an uploaded image and feeds its payload to the scanner.
// 201 means a new record, 200 a duplicate, 422 an image without a QR code.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, MaxFrameBytes)
	img, _, err := image.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid image: %v", err))
		return
	}

	value, err := s.opts.Decoder.Decode(img)
	if err != nil || value == "" {
		writeError(w, http.StatusUnprocessableEntity, qrcode.ErrNotFound.Error())
		return
	}

	ctx := logging.WithSessionID(logging.WithSource(r.Context(), "http"), s.scanner.ID())
	rec, added, err := s.scanner.Handle(ctx, value)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to record scan", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record scan")
		return
	}

	if !added {
		writeJSON(w, http.StatusOK, frameResponse{Value: value, Duplicate: true})
		return
	}
	out := ToJSON(rec)
	writeJSON(w, http.StatusCreated, frameResponse{Value: value, Record: &out})
}

// handleExport renders the whole history into the requested format and sends
// it as an attachment. The body is buffered so a failed export returns a
// clean error instead of a truncated file.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exporter, err := export.ForFormat(mux.Vars(r)["format"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records := s.scanner.Records()
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, export.ErrNoRecords.Error())
		return
	}

	start := s.opts.Now()
	var buf bytes.Buffer
	err = exporter.Export(r.Context(), records, &buf)
	if s.opts.Exports != nil {
		s.opts.Exports.RecordExport(exporter.Format(), err, time.Since(start))
	}
	if err != nil {
		s.log.ErrorContext(r.Context(), "export failed", "format", exporter.Format(), "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	name := export.Filename(exporter.Extension(), start)
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
