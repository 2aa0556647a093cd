package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ModalMsg represents messages that the modal component handles
type ModalMsg interface {
	isModalMsg()
}

// ModalKind decides how a modal is dismissed and coloured.
type ModalKind int

const (
	// NoticeModal is dismissed by any key.
	NoticeModal ModalKind = iota
	// ConfirmModal waits for y or n.
	ConfirmModal
)

type ShowModalMsg struct {
	Kind    ModalKind
	Title   string
	Content string
	Options string
}

func (ShowModalMsg) isModalMsg() {}

type HideModalMsg struct{}

func (HideModalMsg) isModalMsg() {}

// ModalModel holds the state for modal dialogs
type ModalModel struct {
	Active  bool
	Kind    ModalKind
	Title   string
	Content string
	Options string
	Width   int
	Height  int
}

// NewModalModel creates a new modal model
func NewModalModel() ModalModel {
	return ModalModel{
		Width:  60,
		Height: 10,
	}
}

// Update handles modal messages
func (m *ModalModel) Update(msg ModalMsg) {
	switch msg := msg.(type) {
	case ShowModalMsg:
		m.Active = true
		m.Kind = msg.Kind
		m.Title = msg.Title
		m.Content = msg.Content
		m.Options = msg.Options
	case HideModalMsg:
		*m = ModalModel{Width: m.Width, Height: m.Height}
	}
}

// ModalView draws the modal centred over backgroundView.
func ModalView(model ModalModel, backgroundView string, windowWidth, windowHeight int) string {
	if !model.Active {
		return backgroundView
	}

	parts := []string{lipgloss.NewStyle().Bold(true).Render(model.Title)}
	if model.Content != "" {
		parts = append(parts, model.Content)
	}
	if model.Options != "" {
		parts = append(parts, model.Options)
	}

	border := lipgloss.Color("9")
	if model.Kind == ConfirmModal {
		border = lipgloss.Color("11")
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 2).
		Width(min(model.Width, windowWidth-4)).
		Height(min(model.Height, windowHeight-4)).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(parts, "\n\n"))

	bgLines := strings.Split(backgroundView, "\n")
	modalLines := strings.Split(modal, "\n")

	top := max((windowHeight-len(modalLines))/2, 0)
	left := max((windowWidth-lipgloss.Width(modalLines[0]))/2, 0)

	out := make([]string, len(bgLines))
	for i, bg := range bgLines {
		j := i - top
		if j < 0 || j >= len(modalLines) {
			out[i] = bg
			continue
		}

		line := modalLines[j]
		var b strings.Builder
		if left > 0 {
			b.WriteString(truncateToVisualWidth(bg, left))
		}
		b.WriteString(line)
		if end := left + lipgloss.Width(line); end < lipgloss.Width(bg) {
			b.WriteString(truncateFromVisualWidth(bg, end))
		}
		out[i] = b.String()
	}

	return strings.Join(out, "\n")
}

// ShowClearConfirmation asks before the whole history is deleted.
func ShowClearConfirmation(count int) ShowModalMsg {
	return ShowModalMsg{
		Kind:    ConfirmModal,
		Title:   "Clear History?",
		Content: fmt.Sprintf("This deletes all %d scanned codes.\nCodes scanned again afterwards are recorded as new.", count),
		Options: "[Y] Yes, clear    [N] No, cancel",
	}
}

// ShowCaptureError reports a camera that could not be opened or stopped
// delivering frames.
func ShowCaptureError(err error) ShowModalMsg {
	return ShowModalMsg{
		Kind:    NoticeModal,
		Title:   "Camera Unavailable",
		Content: fmt.Sprintf("%v\n\nScanning has stopped. Check that a camera is connected and not in use.", err),
		Options: "Press any key to continue",
	}
}

// truncateToVisualWidth keeps the first width visible cells of a styled
// string. Escape sequences are copied through.
func truncateToVisualWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}

	var b strings.Builder
	seen := 0
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		}
		if inEscape {
			b.WriteRune(r)
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		if seen >= width {
			break
		}
		b.WriteRune(r)
		seen++
	}
	return b.String()
}

// truncateFromVisualWidth drops the first start visible cells of a styled
// string, keeping the escape sequences that preceded the cut.
func truncateFromVisualWidth(s string, start int) string {
	if start <= 0 {
		return s
	}

	runes := []rune(s)
	var escapes strings.Builder
	seen := 0
	inEscape := false
	for i, r := range runes {
		switch {
		case r == '\x1b':
			inEscape = true
			escapes.WriteRune(r)
		case inEscape:
			escapes.WriteRune(r)
			if r == 'm' {
				inEscape = false
			}
		default:
			if seen >= start {
				return escapes.String() + string(runes[i:])
			}
			seen++
		}
	}
	return ""
}
