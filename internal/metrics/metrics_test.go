package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/session"
)

var (
	_ capture.Observer = (*Collector)(nil)
	_ session.Observer = (*Collector)(nil)
)

func TestFrameCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.FrameDecoded(true)
	c.FrameDecoded(false)
	c.FrameDecoded(false)
	c.FrameSkipped()

	tests := map[string]float64{"decoded": 1, "unreadable": 2, "skipped": 1}
	for label, want := range tests {
		if got := testutil.ToFloat64(c.frames.WithLabelValues(label)); got != want {
			t.Errorf("frames{result=%q} = %v, want %v", label, got, want)
		}
	}
}

func TestScanCounters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ScanHandled(session.ResultNew)
	c.ScanHandled(session.ResultNew)
	c.ScanHandled(session.ResultDuplicate)

	if got := testutil.ToFloat64(c.scans.WithLabelValues("new")); got != 2 {
		t.Errorf("scans{new} = %v", got)
	}
	if got := testutil.ToFloat64(c.scans.WithLabelValues("duplicate")); got != 1 {
		t.Errorf("scans{duplicate} = %v", got)
	}
}

func TestHandleEvent(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.SetHistorySize(3)

	c.HandleEvent(session.Event{Kind: session.StatusChanged, Status: session.StatusActive})
	if got := testutil.ToFloat64(c.captureActive); got != 1 {
		t.Errorf("capture_active = %v after start", got)
	}

	c.HandleEvent(session.Event{Kind: session.RecordAdded})
	if got := testutil.ToFloat64(c.records); got != 4 {
		t.Errorf("history_records = %v, want 4", got)
	}

	c.HandleEvent(session.Event{Kind: session.CaptureFailed, Err: errors.New("unplugged")})
	c.HandleEvent(session.Event{Kind: session.StatusChanged, Status: session.StatusIdle})
	if got := testutil.ToFloat64(c.captureActive); got != 0 {
		t.Errorf("capture_active = %v after stop", got)
	}
	if got := testutil.ToFloat64(c.captureFailures); got != 1 {
		t.Errorf("capture_failures_total = %v", got)
	}

	c.HandleEvent(session.Event{Kind: session.Cleared})
	if got := testutil.ToFloat64(c.records); got != 0 {
		t.Errorf("history_records = %v after clear", got)
	}
}

func TestRecordExport(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordExport("xlsx", nil, 20*time.Millisecond)
	c.RecordExport("xlsx", errors.New("disk full"), time.Millisecond)

	if got := testutil.ToFloat64(c.exports.WithLabelValues("xlsx", "success")); got != 1 {
		t.Errorf("exports{success} = %v", got)
	}
	if got := testutil.ToFloat64(c.exports.WithLabelValues("xlsx", "error")); got != 1 {
		t.Errorf("exports{error} = %v", got)
	}
	if n := testutil.CollectAndCount(c.exportDuration); n != 1 {
		t.Errorf("expected one duration series, got %d", n)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector(nil)
	c.ScanHandled(session.ResultNew)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `qrscan_scans_total{result="new"} 1`) {
		t.Errorf("metrics output missing scan counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("default registry should include Go collector metrics")
	}
}
