package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yiblet/qrscan/internal/store"
)

// RecordSource supplies the records to export, in insertion order.
// *session.Session satisfies it.
type RecordSource interface {
	Records() []*store.ScanRecord
}

// Result is reported after each scheduled run that wrote a file or failed.
type Result struct {
	Path     string
	Records  int
	Duration time.Duration
	Err      error
}

// Scheduler exports the history on a cron schedule while a scan or serve
// session runs. A run is skipped when nothing was scanned since the last
// export.
type Scheduler struct {
	spec     string
	exporter Exporter
	dir      string
	source   RecordSource
	now      func() time.Time
	onResult func(Result)
	logger   *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	running bool
	last    exportMark
}

// exportMark identifies the history as of the last export by its newest
// record. IDs alone are not enough: SQLite reuses them after a clear.
type exportMark struct {
	id    uint
	value string
	at    time.Time
}

func markOf(records []*store.ScanRecord) exportMark {
	if len(records) == 0 {
		return exportMark{}
	}
	r := records[len(records)-1]
	return exportMark{id: r.ID, value: r.Value, at: r.Timestamp}
}

func (m exportMark) equal(o exportMark) bool {
	return m.id == o.id && m.value == o.value && m.at.Equal(o.at)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithResultHandler is called after every run that exported or failed.
func WithResultHandler(fn func(Result)) SchedulerOption {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l.With("component", "export.scheduler")
		}
	}
}

// ValidateSchedule checks a standard five-field cron expression or a
// descriptor such as "@hourly".
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return nil
}

// NewScheduler creates a scheduler. The cron expression is validated here.
func NewScheduler(spec string, e Exporter, dir string, source RecordSource, opts ...SchedulerOption) (*Scheduler, error) {
	if err := ValidateSchedule(spec); err != nil {
		return nil, err
	}

	s := &Scheduler{
		spec:     spec,
		exporter: e,
		dir:      dir,
		source:   source,
		now:      time.Now,
		logger:   slog.Default().With("component", "export.scheduler"),
		cron:     cron.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins scheduled exports until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule export: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("export scheduler started", "schedule", s.spec, "format", s.exporter.Format(), "dir", s.dir)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce exports immediately. It returns an empty path when there was
// nothing new to export.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	records := s.source.Records()
	mark := markOf(records)

	s.mu.Lock()
	unchanged := len(records) == 0 || mark.equal(s.last)
	s.mu.Unlock()

	if unchanged {
		s.logger.Debug("scheduled export skipped, no new scans")
		return "", nil
	}

	start := time.Now()
	path, err := ToFile(ctx, s.exporter, records, s.dir, s.now())
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("scheduled export failed", "error", err)
		s.report(Result{Records: len(records), Duration: elapsed, Err: err})
		return "", err
	}

	s.mu.Lock()
	s.last = mark
	s.mu.Unlock()

	s.logger.Info("scheduled export written", "path", path, "records", len(records))
	s.report(Result{Path: path, Records: len(records), Duration: elapsed})
	return path, nil
}

func (s *Scheduler) report(r Result) {
	if s.onResult != nil {
		s.onResult(r)
	}
}

// Stop stops the scheduler and waits for a running export to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()

	if !running {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.Info("export scheduler stopped")
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled export time.
func (s *Scheduler) NextRun() (time.Time, bool) {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
