package tui

import (
	"strings"
	"testing"

	"github.com/yiblet/qrscan/internal/store"
)

func records(values ...string) []*store.ScanRecord {
	out := make([]*store.ScanRecord, len(values))
	for i, v := range values {
		out[i] = &store.ScanRecord{ID: uint(i + 1), Value: v, Time: "1/2/2024, 3:04:05 PM"}
	}
	return out
}

func TestHistoryPane_Navigation(t *testing.T) {
	h := NewHistoryPaneModel(30, 20)

	h.Update(NavigateUpMsg{})
	if h.Cursor != 0 {
		t.Errorf("up at top: cursor = %d", h.Cursor)
	}

	h.Update(NavigateDownMsg{MaxIndex: 2})
	h.Update(NavigateDownMsg{MaxIndex: 2})
	h.Update(NavigateDownMsg{MaxIndex: 2})
	if h.Cursor != 2 {
		t.Errorf("down past the end: cursor = %d", h.Cursor)
	}

	h.Update(JumpToIndexMsg{Index: 5, MaxIndex: 2})
	if h.Cursor != 2 {
		t.Errorf("out of range jump should be ignored, cursor = %d", h.Cursor)
	}

	h.Update(GoToTopMsg{})
	if h.Cursor != 0 {
		t.Errorf("top: cursor = %d", h.Cursor)
	}

	h.Update(GoToBottomMsg{MaxIndex: -1})
	if h.Cursor != 0 {
		t.Errorf("bottom of empty list should not move, cursor = %d", h.Cursor)
	}
}

func TestHistoryPane_ScrollFollowsCursor(t *testing.T) {
	h := NewHistoryPaneModel(30, 10) // 4 visible rows
	if rows := h.visibleRows(); rows != 4 {
		t.Fatalf("visibleRows = %d, want 4", rows)
	}

	h.Update(GoToBottomMsg{MaxIndex: 9})
	if h.Offset != 6 {
		t.Errorf("offset = %d, want 6", h.Offset)
	}

	h.Update(JumpToIndexMsg{Index: 2, MaxIndex: 9})
	if h.Offset != 2 {
		t.Errorf("offset = %d, want 2", h.Offset)
	}
}

func TestHistoryPane_Clamp(t *testing.T) {
	h := NewHistoryPaneModel(30, 20)
	h.Update(GoToBottomMsg{MaxIndex: 5})

	h.Clamp(3)
	if h.Cursor != 2 {
		t.Errorf("cursor = %d, want 2", h.Cursor)
	}
	h.Clamp(0)
	if h.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", h.Cursor)
	}
}

func TestHistoryPaneView(t *testing.T) {
	h := NewHistoryPaneModel(30, 20)
	view := HistoryPaneView(h, records("alpha", "multi\nline", strings.Repeat("z", 100)), true)

	if !strings.Contains(view, "History (3)") {
		t.Error("title should show the record count")
	}
	if !strings.Contains(view, "1. alpha") {
		t.Error("rows should be numbered by record id")
	}
	if !strings.Contains(view, "2. multi line") {
		t.Error("newlines should be flattened")
	}
	if strings.Contains(view, strings.Repeat("z", 100)) || !strings.Contains(view, "...") {
		t.Error("long values should be truncated")
	}

	empty := HistoryPaneView(h, nil, false)
	if !strings.Contains(empty, "No scans yet") {
		t.Error("empty list should say so")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, ".."},
		{"abc", 0, ""},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
