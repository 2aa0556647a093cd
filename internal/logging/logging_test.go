package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := WithSessionID(context.Background(), "abc-123")
	ctx = WithSource(ctx, "camera")
	logger.With("component", "test").InfoContext(ctx, "scan recorded", "value", "A")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}

	want := map[string]string{
		"msg":        "scan recorded",
		"session_id": "abc-123",
		"source":     "camera",
		"component":  "test",
		"value":      "A",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
}

func TestWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("plain")
	out := buf.String()
	if strings.Contains(out, "session_id") || strings.Contains(out, "source=") {
		t.Errorf("unexpected context attributes: %s", out)
	}
	if !strings.Contains(out, "msg=plain") {
		t.Errorf("expected text output, got %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Config{Level: "warn"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn record should be written")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(&bytes.Buffer{}, Config{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	ctx := WithSource(WithSessionID(context.Background(), "s1"), "http")
	ld := FromContext(ctx)
	if ld.SessionID != "s1" || ld.Source != "http" {
		t.Errorf("unexpected log data: %+v", ld)
	}
	if (FromContext(context.Background()) != LogData{}) {
		t.Error("empty context should carry no log data")
	}
}
