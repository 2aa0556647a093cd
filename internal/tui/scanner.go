package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yiblet/qrscan/internal/qrcode"
	"github.com/yiblet/qrscan/internal/session"
	"github.com/yiblet/qrscan/internal/store"
)

// ScannerState is what the scanner pane shows.
type ScannerState struct {
	Status   session.Status
	Starting bool
	Device   string
	Total    int
	Last     *store.ScanRecord
	Selected *store.ScanRecord
	ShowQR   bool
}

var (
	labelStyle  = lipgloss.NewStyle().Faint(true)
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	qrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("15"))
)

// statusBadge renders the capture status.
func statusBadge(st ScannerState) string {
	switch {
	case st.Starting:
		return activeStyle.Render("◌ Starting...")
	case st.Status == session.StatusActive:
		return activeStyle.Render("● Scanning")
	default:
		return idleStyle.Render("○ Idle")
	}
}

// ScannerPaneView renders capture status, the last scan and the selected
// record with its QR code, as a pure function.
func ScannerPaneView(width, height int, st ScannerState, focused bool) string {
	borderColor := "62"
	if focused {
		borderColor = "205"
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(borderColor)).
		Padding(0, 1).
		Width(width).
		Height(height - paneChrome)

	inner := width - 4
	wrap := lipgloss.NewStyle().Width(inner)

	var lines []string
	add := func(s ...string) { lines = append(lines, s...) }

	add(lipgloss.NewStyle().Bold(true).Render("Scanner"), "")
	add(labelStyle.Render("Status:  ") + statusBadge(st))
	device := st.Device
	if device == "" {
		device = "-"
	}
	add(labelStyle.Render("Camera:  ") + truncate(device, inner-9))
	add(labelStyle.Render("Scanned: ") + fmt.Sprintf("%d unique", st.Total))
	add("")

	add(lipgloss.NewStyle().Bold(true).Render("Last scan"))
	if st.Last == nil {
		add(labelStyle.Render("nothing scanned yet"))
	} else {
		add(truncate(oneLine(st.Last.Value), inner))
		add(labelStyle.Render(st.Last.Time))
	}

	if st.Selected != nil {
		add("", lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Record #%d", st.Selected.ID)))
		add(strings.Split(wrap.Render(st.Selected.Value), "\n")...)
		add(labelStyle.Render(st.Selected.Time))
		if st.Selected.SessionID != "" {
			add(labelStyle.Render(truncate("session "+st.Selected.SessionID, inner)))
		}

		if st.ShowQR {
			if code := qrPreview(st.Selected.Value, inner, height-paneChrome-len(lines)-1); code != "" {
				add("", code)
			}
		}
	}

	return style.Render(strings.Join(lines, "\n"))
}

// qrPreview renders value as a text QR code if it fits in width×height cells.
func qrPreview(value string, width, height int) string {
	text, err := qrcode.RenderText(value)
	if err != nil {
		return ""
	}
	rows := strings.Split(text, "\n")
	if len(rows) > height || lipgloss.Width(rows[0]) > width {
		return ""
	}
	return qrStyle.Render(text)
}
