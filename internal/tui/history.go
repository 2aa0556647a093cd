package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yiblet/qrscan/internal/store"
)

// HistoryPaneMsg represents messages that the history pane handles
type HistoryPaneMsg interface {
	isHistoryPaneMsg()
}

type NavigateUpMsg struct{}

func (NavigateUpMsg) isHistoryPaneMsg() {}

type NavigateDownMsg struct {
	MaxIndex int // Maximum valid index for bounds checking
}

func (NavigateDownMsg) isHistoryPaneMsg() {}

type GoToTopMsg struct{}

func (GoToTopMsg) isHistoryPaneMsg() {}

type GoToBottomMsg struct {
	MaxIndex int
}

func (GoToBottomMsg) isHistoryPaneMsg() {}

type JumpToIndexMsg struct {
	Index    int
	MaxIndex int
}

func (JumpToIndexMsg) isHistoryPaneMsg() {}

type ResizeHistoryPaneMsg struct {
	Width  int
	Height int
}

func (ResizeHistoryPaneMsg) isHistoryPaneMsg() {}

// paneChrome is the number of window lines a pane's content cannot use: its
// two borders and the status line with the blank line above it.
const paneChrome = 4

// HistoryPaneModel holds the cursor and scroll position of the record list.
type HistoryPaneModel struct {
	Cursor int // Selected record index, in insertion order
	Offset int // First visible row
	Width  int
	Height int
}

// NewHistoryPaneModel creates a history pane with the cursor on the first row.
func NewHistoryPaneModel(width, height int) HistoryPaneModel {
	return HistoryPaneModel{
		Width:  width,
		Height: height,
	}
}

// visibleRows is how many records fit in the pane.
func (h *HistoryPaneModel) visibleRows() int {
	return max(h.Height-paneChrome-2, 1) // title and blank line
}

// Update applies a navigation or resize message.
func (h *HistoryPaneModel) Update(msg HistoryPaneMsg) {
	switch m := msg.(type) {
	case NavigateUpMsg:
		if h.Cursor > 0 {
			h.Cursor--
		}
	case NavigateDownMsg:
		if h.Cursor < m.MaxIndex {
			h.Cursor++
		}
	case GoToTopMsg:
		h.Cursor = 0
	case GoToBottomMsg:
		if m.MaxIndex >= 0 {
			h.Cursor = m.MaxIndex
		}
	case JumpToIndexMsg:
		if m.Index >= 0 && m.Index <= m.MaxIndex {
			h.Cursor = m.Index
		}
	case ResizeHistoryPaneMsg:
		h.Width = m.Width
		h.Height = m.Height
	}
	h.scrollToCursor()
}

// Clamp keeps the cursor inside a list of n records.
func (h *HistoryPaneModel) Clamp(n int) {
	if h.Cursor >= n {
		h.Cursor = max(n-1, 0)
	}
	h.scrollToCursor()
}

func (h *HistoryPaneModel) scrollToCursor() {
	rows := h.visibleRows()
	if h.Cursor < h.Offset {
		h.Offset = h.Cursor
	}
	if h.Cursor >= h.Offset+rows {
		h.Offset = h.Cursor - rows + 1
	}
	if h.Offset < 0 {
		h.Offset = 0
	}
}

// HistoryPaneView renders the record list as a pure function.
func HistoryPaneView(model HistoryPaneModel, records []*store.ScanRecord, focused bool) string {
	borderColor := "62"
	if focused {
		borderColor = "205"
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(borderColor)).
		Padding(0, 1).
		Width(model.Width).
		Height(model.Height - paneChrome).
		Inline(false)

	var content strings.Builder
	title := fmt.Sprintf("History (%d)", len(records))
	content.WriteString(lipgloss.NewStyle().Bold(true).Render(title) + "\n\n")

	if len(records) == 0 {
		content.WriteString(lipgloss.NewStyle().Faint(true).Render("No scans yet"))
		return style.Render(content.String())
	}

	lineWidth := model.Width - 4 // borders and padding
	end := min(model.Offset+model.visibleRows(), len(records))
	for i := model.Offset; i < end; i++ {
		r := records[i]
		line := truncate(fmt.Sprintf("%d. %s", r.ID, oneLine(r.Value)), lineWidth)

		if i == model.Cursor {
			line = lipgloss.NewStyle().
				Background(lipgloss.Color("62")).
				Foreground(lipgloss.Color("230")).
				Width(lineWidth).
				Render(line)
		}

		content.WriteString(line + "\n")
	}

	return style.Render(content.String())
}

// oneLine flattens control characters so a value occupies a single row.
func oneLine(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, s)
}

// truncate shortens s to width cells, marking the cut with "...".
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return strings.Repeat(".", width)
	}

	var b strings.Builder
	w := 0
	for _, r := range s {
		rw := lipgloss.Width(string(r))
		if w+rw > width-3 {
			break
		}
		b.WriteRune(r)
		w += rw
	}
	return b.String() + "..."
}
