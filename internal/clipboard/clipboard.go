// Package clipboard defines how scanned values reach the user's clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrUnsupported is returned when no clipboard is available on this system.
var ErrUnsupported = errors.New("clipboard not supported on this system")

// Clipboard holds text.
type Clipboard interface {
	// WriteText replaces the clipboard content.
	WriteText(text string) error

	// ReadText returns the current clipboard content.
	ReadText() (string, error)

	// IsSupported reports whether the clipboard can be used at all.
	IsSupported() bool
}

// Copy writes text to cb and returns a short confirmation for the UI.
func Copy(cb Clipboard, text string) (string, error) {
	if cb == nil || !cb.IsSupported() {
		return "", ErrUnsupported
	}
	if err := cb.WriteText(text); err != nil {
		return "", fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return fmt.Sprintf("Copied %d characters to clipboard", utf8.RuneCountInString(text)), nil
}
