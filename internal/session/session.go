// Package session owns the scanner's runtime state: capture status, the set of
// values already seen and the ordered list of persisted records. It applies
// the deduplication policy between the capture component and the history
// store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/logging"
	"github.com/yiblet/qrscan/internal/store"
)

// Status is the capture state.
type Status int

const (
	StatusIdle Status = iota
	StatusActive
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	default:
		return "Idle"
	}
}

// EventKind identifies what an Event reports.
type EventKind int

const (
	// RecordAdded carries a newly persisted record.
	RecordAdded EventKind = iota
	// StatusChanged carries the new status.
	StatusChanged
	// CaptureFailed carries the capture error, either from Start or from a
	// source that ended unexpectedly.
	CaptureFailed
	// ScanFailed carries a persistence error; the scan is lost.
	ScanFailed
	// Cleared reports that the history was emptied.
	Cleared
)

// Event is delivered to Options.OnEvent.
type Event struct {
	Kind   EventKind
	Record *store.ScanRecord
	Status Status
	Err    error
}

// Result classifies one handled value for metrics.
type Result string

const (
	ResultNew       Result = "new"
	ResultDuplicate Result = "duplicate"
	ResultFailed    Result = "failed"
)

// Observer receives per-value outcomes.
type Observer interface {
	ScanHandled(result Result)
}

// Starter starts a capture subscription. *capture.Capturer implements it.
type Starter interface {
	Start(ctx context.Context, cfg capture.Config) (*capture.Subscription, error)
}

// Options configures a Session.
type Options struct {
	// Capturer is used by Start. Without one, Start fails with ErrNoDevice.
	Capturer Starter

	// TimeLayout formats ScanRecord.Time. Defaults to store.DefaultTimeLayout.
	TimeLayout string

	// AppendTimeout bounds each store append made by the capture loop.
	// Zero means no bound beyond the store's own.
	AppendTimeout time.Duration

	// OnEvent is called synchronously from the goroutine that caused the
	// event. It must not block and must not call Stop.
	OnEvent func(Event)

	Observer Observer
	Logger   *slog.Logger

	// Now replaces the clock used for capture times.
	Now func() time.Time
}

// Session is the explicit scanner state object. It is safe for concurrent use.
type Session struct {
	id    string
	store store.HistoryStore
	opts  Options
	log   *slog.Logger

	// writes is held shared by Handle from marking a value to listing its
	// record, and exclusively by Clear.
	writes sync.RWMutex

	mu       sync.Mutex
	status   Status
	starting bool
	seen     map[string]struct{}
	records  []*store.ScanRecord
	sub      *capture.Subscription
	loopDone chan struct{}
}

// New loads the persisted history and rebuilds the seen set from it, so
// values scanned in earlier runs stay deduplicated.
func New(ctx context.Context, hs store.HistoryStore, opts Options) (*Session, error) {
	if opts.TimeLayout == "" {
		opts.TimeLayout = store.DefaultTimeLayout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	records, err := hs.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.Value] = struct{}{}
	}

	id := uuid.NewString()
	s := &Session{
		id:      id,
		store:   hs,
		opts:    opts,
		log:     opts.Logger.With("component", "session"),
		seen:    seen,
		records: records,
	}
	s.log.Debug("session loaded", "session_id", id, "records", len(records))
	return s, nil
}

// ID returns the session's UUID, stamped on every record it appends.
func (s *Session) ID() string {
	return s.id
}

// Handle applies the deduplication policy to one decoded value. A value
// already seen returns (nil, false, nil) without touching the store.
// Otherwise the value is persisted and appended to the list, and the new
// record is returned with true.
//
// If the store rejects the append the value is forgotten again and the error
// is returned; the scan is lost.
func (s *Session) Handle(ctx context.Context, value string) (*store.ScanRecord, bool, error) {
	if value == "" {
		return nil, false, nil
	}

	rec, added, err := s.record(ctx, value)
	switch {
	case err != nil:
		s.observe(ResultFailed)
		err = fmt.Errorf("failed to record scan: %w", err)
		s.log.ErrorContext(ctx, "scan lost", "error", err)
		s.emit(Event{Kind: ScanFailed, Err: err})
		return nil, false, err
	case !added:
		s.observe(ResultDuplicate)
		return nil, false, nil
	}

	s.observe(ResultNew)
	s.log.InfoContext(ctx, "scan recorded", "id", rec.ID)
	s.emit(Event{Kind: RecordAdded, Record: rec})
	return rec, true, nil
}

// record marks, persists and lists value while holding off Clear.
func (s *Session) record(ctx context.Context, value string) (*store.ScanRecord, bool, error) {
	s.writes.RLock()
	defer s.writes.RUnlock()

	s.mu.Lock()
	if _, ok := s.seen[value]; ok {
		s.mu.Unlock()
		return nil, false, nil
	}
	// Marking before the append stops a concurrent Handle of the same value
	// from writing twice.
	s.seen[value] = struct{}{}
	s.mu.Unlock()

	now := s.opts.Now()
	rec, err := s.store.Append(ctx, &store.AppendInput{
		Value:     value,
		Time:      now.Format(s.opts.TimeLayout),
		Timestamp: now,
		SessionID: s.id,
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Persisted by another process sharing the database.
		return nil, false, nil
	}
	if err != nil {
		s.mu.Lock()
		delete(s.seen, value)
		s.mu.Unlock()
		return nil, false, err
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return rec, true, nil
}

// Start opens the camera and feeds decoded values to Handle until Stop is
// called or ctx is cancelled. Starting an active session is a no-op. On
// failure the session stays Idle, a CaptureFailed event is emitted and the
// capture error is returned.
func (s *Session) Start(ctx context.Context, cfg capture.Config) error {
	s.mu.Lock()
	if s.status == StatusActive || s.starting {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	var sub *capture.Subscription
	var err error
	if s.opts.Capturer == nil {
		err = fmt.Errorf("no capture source configured: %w", capture.ErrNoDevice)
	} else {
		sub, err = s.opts.Capturer.Start(ctx, cfg)
	}

	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()

		s.log.Warn("capture failed to start", "error", err)
		s.emit(Event{Kind: CaptureFailed, Err: err})
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.starting = false
	s.status = StatusActive
	s.sub = sub
	s.loopDone = done
	s.mu.Unlock()

	s.emit(Event{Kind: StatusChanged, Status: StatusActive})

	loopCtx := logging.WithSource(logging.WithSessionID(ctx, s.id), "camera")
	go s.consume(loopCtx, sub, done)
	return nil
}

func (s *Session) consume(ctx context.Context, sub *capture.Subscription, done chan struct{}) {
	defer close(done)

	// Appends outlive Stop: a value already handed to the store is kept.
	base := context.WithoutCancel(ctx)

	for value := range sub.Values() {
		s.handleBounded(base, value)
	}

	s.mu.Lock()
	ended := s.sub == sub
	if ended {
		s.sub = nil
		s.status = StatusIdle
	}
	s.mu.Unlock()

	if !ended {
		return
	}

	// The source ended without Stop: device unplugged or ctx cancelled.
	s.emit(Event{Kind: StatusChanged, Status: StatusIdle})
	if err := sub.Err(); err != nil {
		s.log.WarnContext(ctx, "capture ended", "error", err)
		s.emit(Event{Kind: CaptureFailed, Err: err})
	}
}

func (s *Session) handleBounded(ctx context.Context, value string) {
	if s.opts.AppendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AppendTimeout)
		defer cancel()
	}
	s.Handle(ctx, value)
}

// Stop releases the camera and waits for pending values to be handled.
// Stopping an idle session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	sub, done := s.sub, s.loopDone
	if sub == nil {
		s.mu.Unlock()
		return nil
	}
	s.sub = nil
	s.status = StatusIdle
	s.mu.Unlock()

	sub.Cancel()
	<-done

	s.emit(Event{Kind: StatusChanged, Status: StatusIdle})
	return nil
}

// Close stops capture. The store is owned by the caller.
func (s *Session) Close() error {
	return s.Stop()
}

// Status returns the capture status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Device returns the device in use while Active.
func (s *Session) Device() (capture.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return capture.Device{}, false
	}
	return s.sub.Device(), true
}

// Records returns a copy of the history in insertion order.
func (s *Session) Records() []*store.ScanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.ScanRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Last returns the most recent record.
func (s *Session) Last() (*store.ScanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil, false
	}
	return s.records[len(s.records)-1], true
}

// Seen reports whether value has been recorded.
func (s *Session) Seen(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[value]
	return ok
}

// Clear empties the store and the in-memory state. It waits for appends
// already in flight, so their values are cleared with the rest.
func (s *Session) Clear(ctx context.Context) error {
	s.writes.Lock()
	if err := s.store.Clear(ctx); err != nil {
		s.writes.Unlock()
		return fmt.Errorf("failed to clear history: %w", err)
	}

	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.records = nil
	s.mu.Unlock()
	s.writes.Unlock()

	s.log.InfoContext(ctx, "history cleared")
	s.emit(Event{Kind: Cleared})
	return nil
}

func (s *Session) emit(ev Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}

func (s *Session) observe(r Result) {
	if s.opts.Observer != nil {
		s.opts.Observer.ScanHandled(r)
	}
}

// IsCaptureError reports whether err is a camera acquisition failure, as
// opposed to a persistence failure.
func IsCaptureError(err error) bool {
	return errors.Is(err, capture.ErrNoDevice) || errors.Is(err, capture.ErrUnavailable)
}
