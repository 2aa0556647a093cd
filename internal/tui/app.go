// Package tui is the bubbletea scanner view: a history list on the left, the
// capture status and selected record on the right, and a status line.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/clipboard"
	"github.com/yiblet/qrscan/internal/export"
	"github.com/yiblet/qrscan/internal/session"
	"github.com/yiblet/qrscan/internal/store"
)

// PaneType represents which pane is focused
type PaneType int

const (
	HistoryPane PaneType = iota
	ScannerPane
)

// UIMode represents the current modal state of the application
type UIMode int

const (
	NormalMode UIMode = iota
	HelpMode
	ConfirmClearMode
	NoticeMode
)

const flashDuration = 2 * time.Second

// Scanner is the session the view drives. *session.Session implements it.
type Scanner interface {
	Start(ctx context.Context, cfg capture.Config) error
	Stop() error
	Status() session.Status
	Device() (capture.Device, bool)
	Records() []*store.ScanRecord
	Clear(ctx context.Context) error
}

// ExportFunc writes records to a file and returns its path.
type ExportFunc func(ctx context.Context, records []*store.ScanRecord) (string, error)

// Config wires the view to the rest of the application.
type Config struct {
	Capture   capture.Config
	AutoStart bool
	Export    ExportFunc
	Clipboard clipboard.Clipboard
	Events    <-chan session.Event
}

type flashExpiredMsg struct{}

type startResultMsg struct{ Err error }

type stopResultMsg struct{ Err error }

type exportResultMsg struct {
	Path  string
	Count int
	Err   error
}

type clearResultMsg struct{ Err error }

// AppModel orchestrates all sub-models
type AppModel struct {
	Width       int
	Height      int
	LeftWidth   int
	RightWidth  int
	ActivePane  PaneType
	CurrentMode UIMode

	History HistoryPaneModel
	Modal   ModalModel

	// Snapshot of the session, refreshed after every event and action.
	Records  []*store.ScanRecord
	Status   session.Status
	Device   string
	Starting bool
	ShowQR   bool

	FlashMessage string
	FlashExpiry  time.Time

	ctx     context.Context
	scanner Scanner
	cfg     Config
}

// NewAppModel creates the scanner view. ctx bounds capture started from the
// view; cancelling it stops the camera.
func NewAppModel(ctx context.Context, scanner Scanner, cfg Config) AppModel {
	defaultWidth := 120
	defaultHeight := 20
	defaultLeftWidth := 40
	defaultRightWidth := 78

	a := AppModel{
		Width:       defaultWidth,
		Height:      defaultHeight,
		LeftWidth:   defaultLeftWidth,
		RightWidth:  defaultRightWidth,
		ActivePane:  HistoryPane,
		CurrentMode: NormalMode,
		History:     NewHistoryPaneModel(defaultLeftWidth, defaultHeight),
		Modal:       NewModalModel(),
		ShowQR:      true,
		ctx:         ctx,
		scanner:     scanner,
		cfg:         cfg,
	}
	a.refresh()
	a.History.Update(GoToBottomMsg{MaxIndex: len(a.Records) - 1})
	return a
}

// refresh copies the session state into the model.
func (a *AppModel) refresh() {
	a.Records = a.scanner.Records()
	a.Status = a.scanner.Status()
	a.Device = ""
	if dev, ok := a.scanner.Device(); ok {
		a.Device = dev.String()
	}
	a.History.Clamp(len(a.Records))
}

// Init waits for session events and starts the camera when configured to.
func (a *AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(a.cfg.Events)}
	if a.cfg.AutoStart {
		a.Starting = true
		cmds = append(cmds, a.startCmd())
	}
	return tea.Batch(cmds...)
}

// Update handles app-level messages and routes to appropriate sub-models
func (a *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.handleWindowResize(m)
		return a, nil
	case tea.KeyMsg:
		return a.handleKeyPress(m)
	case flashExpiredMsg:
		if !time.Now().Before(a.FlashExpiry) {
			a.FlashMessage = ""
			a.FlashExpiry = time.Time{}
		}
		return a, nil
	case sessionEventMsg:
		cmd := a.handleEvent(m.Event)
		return a, tea.Batch(cmd, waitForEvent(a.cfg.Events))
	case eventsClosedMsg:
		return a, nil
	case startResultMsg:
		a.Starting = false
		a.refresh()
		// With events wired the failure arrives as CaptureFailed.
		if m.Err != nil && a.cfg.Events == nil {
			a.showNotice(ShowCaptureError(m.Err))
		}
		return a, nil
	case stopResultMsg:
		a.refresh()
		if m.Err != nil {
			return a, a.setFlashMessage(fmt.Sprintf("Error stopping camera: %v", m.Err), flashDuration)
		}
		return a, nil
	case exportResultMsg:
		return a, a.handleExportResult(m)
	case clearResultMsg:
		a.refresh()
		if m.Err != nil {
			return a, a.setFlashMessage(fmt.Sprintf("Error clearing history: %v", m.Err), flashDuration)
		}
		a.History.Update(GoToTopMsg{})
		return a, a.setFlashMessage("History cleared", flashDuration)
	}

	return a, nil
}

// handleEvent reacts to one session event.
func (a *AppModel) handleEvent(ev session.Event) tea.Cmd {
	following := a.History.Cursor >= len(a.Records)-1
	a.refresh()

	switch ev.Kind {
	case session.RecordAdded:
		if following {
			a.History.Update(GoToBottomMsg{MaxIndex: len(a.Records) - 1})
		}
		if ev.Record != nil {
			return a.setFlashMessage("Scanned: "+oneLine(ev.Record.Value), flashDuration)
		}
	case session.CaptureFailed:
		a.Starting = false
		a.showNotice(ShowCaptureError(ev.Err))
	case session.ScanFailed:
		return a.setFlashMessage(fmt.Sprintf("Failed to save scan: %v", ev.Err), 3*time.Second)
	}
	return nil
}

func (a *AppModel) showNotice(msg ShowModalMsg) {
	a.Modal.Update(msg)
	a.CurrentMode = NoticeMode
}

func (a *AppModel) handleExportResult(m exportResultMsg) tea.Cmd {
	switch {
	case errors.Is(m.Err, export.ErrNoRecords):
		return a.setFlashMessage("Nothing to export", flashDuration)
	case m.Err != nil:
		return a.setFlashMessage(fmt.Sprintf("Export failed: %v", m.Err), 3*time.Second)
	default:
		return a.setFlashMessage(fmt.Sprintf("Exported %d records to %s", m.Count, m.Path), 3*time.Second)
	}
}

// handleWindowResize processes window resize events
func (a *AppModel) handleWindowResize(msg tea.WindowSizeMsg) {
	a.Width = max(msg.Width, 30)
	a.Height = msg.Height

	minLeftWidth := 20
	minRightWidth := 30
	borderSpacing := 4

	if a.Width < minLeftWidth+minRightWidth+borderSpacing {
		a.LeftWidth = minLeftWidth
		a.RightWidth = max(a.Width-a.LeftWidth-borderSpacing, minRightWidth)
	} else {
		a.LeftWidth = max(min(48, a.Width*2/5), minLeftWidth)
		a.RightWidth = max(a.Width-a.LeftWidth-borderSpacing, minRightWidth)
	}

	a.History.Update(ResizeHistoryPaneMsg{Width: a.LeftWidth, Height: a.Height})
}

// handleKeyPress processes key press events using mode-first architecture
func (a *AppModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return a, tea.Quit
	}

	switch a.CurrentMode {
	case HelpMode:
		return a.handleHelpModeKeys(key)
	case ConfirmClearMode:
		return a.handleConfirmClearKeys(key)
	case NoticeMode:
		a.Modal.Update(HideModalMsg{})
		a.CurrentMode = NormalMode
		return a, nil
	default:
		return a.handleNormalModeKeys(key)
	}
}

func (a *AppModel) handleHelpModeKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "?", "esc", "q":
		a.CurrentMode = NormalMode
	}
	return a, nil
}

func (a *AppModel) handleConfirmClearKeys(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y":
		a.Modal.Update(HideModalMsg{})
		a.CurrentMode = NormalMode
		return a, a.clearCmd()
	case "n", "N", "esc":
		a.Modal.Update(HideModalMsg{})
		a.CurrentMode = NormalMode
	}
	return a, nil
}

// handleNormalModeKeys processes keys when in normal mode
func (a *AppModel) handleNormalModeKeys(key string) (tea.Model, tea.Cmd) {
	maxIndex := len(a.Records) - 1

	switch key {
	case "q", "esc":
		return a, tea.Quit
	case "?":
		a.CurrentMode = HelpMode
	case "tab":
		if a.ActivePane == HistoryPane {
			a.ActivePane = ScannerPane
		} else {
			a.ActivePane = HistoryPane
		}
	case "s", " ":
		return a, a.toggleCapture()
	case "e":
		return a, a.exportCmd()
	case "c":
		return a, a.copySelected()
	case "v":
		a.ShowQR = !a.ShowQR
	case "x":
		if len(a.Records) == 0 {
			return a, a.setFlashMessage("History is empty", flashDuration)
		}
		a.Modal.Update(ShowClearConfirmation(len(a.Records)))
		a.CurrentMode = ConfirmClearMode
	case "up", "k":
		a.History.Update(NavigateUpMsg{})
	case "down", "j":
		a.History.Update(NavigateDownMsg{MaxIndex: maxIndex})
	case "g", "home":
		a.History.Update(GoToTopMsg{})
	case "G", "end":
		a.History.Update(GoToBottomMsg{MaxIndex: maxIndex})
	}
	return a, nil
}

// toggleCapture starts an idle session or stops an active one.
func (a *AppModel) toggleCapture() tea.Cmd {
	if a.Starting {
		return nil
	}
	if a.scanner.Status() == session.StatusActive {
		return a.stopCmd()
	}
	a.Starting = true
	return a.startCmd()
}

func (a *AppModel) startCmd() tea.Cmd {
	ctx, scanner, cfg := a.ctx, a.scanner, a.cfg.Capture
	return func() tea.Msg {
		return startResultMsg{Err: scanner.Start(ctx, cfg)}
	}
}

func (a *AppModel) stopCmd() tea.Cmd {
	scanner := a.scanner
	return func() tea.Msg {
		return stopResultMsg{Err: scanner.Stop()}
	}
}

func (a *AppModel) exportCmd() tea.Cmd {
	if a.cfg.Export == nil {
		return a.setFlashMessage("Export is not configured", flashDuration)
	}
	ctx, fn, records := a.ctx, a.cfg.Export, a.scanner.Records()
	return func() tea.Msg {
		path, err := fn(ctx, records)
		return exportResultMsg{Path: path, Count: len(records), Err: err}
	}
}

func (a *AppModel) clearCmd() tea.Cmd {
	ctx, scanner := a.ctx, a.scanner
	return func() tea.Msg {
		return clearResultMsg{Err: scanner.Clear(ctx)}
	}
}

// copySelected copies the selected record's value to the clipboard.
func (a *AppModel) copySelected() tea.Cmd {
	rec := a.selected()
	if rec == nil {
		return a.setFlashMessage("No record selected", flashDuration)
	}

	msg, err := clipboard.Copy(a.cfg.Clipboard, rec.Value)
	if err != nil {
		return a.setFlashMessage(fmt.Sprintf("Error copying: %v", err), flashDuration)
	}
	return a.setFlashMessage(msg, flashDuration)
}

func (a *AppModel) selected() *store.ScanRecord {
	if a.History.Cursor < 0 || a.History.Cursor >= len(a.Records) {
		return nil
	}
	return a.Records[a.History.Cursor]
}

// setFlashMessage sets a flash message that will disappear after the specified duration
func (a *AppModel) setFlashMessage(message string, duration time.Duration) tea.Cmd {
	a.FlashMessage = message
	a.FlashExpiry = time.Now().Add(duration)
	return tea.Tick(duration, func(t time.Time) tea.Msg {
		return flashExpiredMsg{}
	})
}

// AppView renders the complete application using pure functions
func AppView(model AppModel) string {
	if model.Width == 0 {
		return "Initializing..."
	}

	if model.CurrentMode == HelpMode {
		return renderHelpView(model) + "\n\n" + renderStatusLine(model)
	}

	view := renderNormalView(model)
	if model.Modal.Active {
		return ModalView(model.Modal, view, model.Width, model.Height)
	}
	return view
}

func renderNormalView(model AppModel) string {
	var last *store.ScanRecord
	if n := len(model.Records); n > 0 {
		last = model.Records[n-1]
	}

	left := HistoryPaneView(model.History, model.Records, model.ActivePane == HistoryPane)
	right := ScannerPaneView(model.RightWidth, model.Height, ScannerState{
		Status:   model.Status,
		Starting: model.Starting,
		Device:   model.Device,
		Total:    len(model.Records),
		Last:     last,
		Selected: model.selected(),
		ShowQR:   model.ShowQR,
	}, model.ActivePane == ScannerPane)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	return panes + "\n\n" + renderStatusLine(model)
}

// View method for tea.Model compatibility
func (a *AppModel) View() string {
	return AppView(*a)
}

// renderStatusLine renders the bottom status line (pure function)
func renderStatusLine(model AppModel) string {
	style := lipgloss.NewStyle().Width(model.Width)

	if model.FlashMessage != "" && time.Now().Before(model.FlashExpiry) {
		return style.Foreground(lipgloss.Color("10")).Render(truncate(model.FlashMessage, model.Width))
	}

	var hint string
	switch model.CurrentMode {
	case HelpMode:
		hint = "Help - press ? to return, q to quit"
	case ConfirmClearMode:
		hint = "Clear history? y/n"
	case NoticeMode:
		hint = "Press any key to continue"
	default:
		action := "s start"
		if model.Status == session.StatusActive {
			action = "s stop"
		}
		hint = strings.Join([]string{action, "e export", "c copy", "x clear", "? help", "q quit"}, " | ")
	}
	return style.Render(hint)
}

func renderHelpView(model AppModel) string {
	helpContent := `qrscan - QR Code Scanner

SCANNING:
  s, Space    Start or stop the camera
  v           Show or hide the QR preview of the selected record

HISTORY:
  j, ↓        Next record
  k, ↑        Previous record
  g, G        First / last record
  c           Copy the selected value to the clipboard
  e           Export the history to a spreadsheet
  x           Clear the history (asks first)

Each distinct code is recorded once, even across restarts.

GLOBAL COMMANDS:
  Tab         Switch pane focus
  ?           Toggle this help screen
  q, Esc      Quit
  Ctrl+c      Force quit`

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1).
		Width(max(model.Width-4, 10)).
		Height(max(model.Height-4, 5)).
		Render(helpContent)
}
