// Package sysboard implements the system clipboard. It uses
// golang.design/x/clipboard when the platform clipboard can be initialized
// and falls back to pbcopy/pbpaste, wl-copy/wl-paste, xclip or xsel.
package sysboard

import (
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"golang.design/x/clipboard"
)

// command is one external clipboard tool.
type command struct {
	name  string
	write []string
	read  []string
}

// SystemClipboard implements clipboard.Clipboard.
type SystemClipboard struct {
	initOnce sync.Once
	initErr  error

	goos     string
	lookPath func(string) (string, error)
	native   func() error
}

// New creates a new SystemClipboard instance
func New() *SystemClipboard {
	return &SystemClipboard{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		native:   clipboard.Init,
	}
}

func (s *SystemClipboard) nativeReady() bool {
	s.initOnce.Do(func() {
		s.initErr = s.native()
	})
	return s.initErr == nil
}

// commandsFor lists the external tools tried on goos, in order.
func commandsFor(goos string) []command {
	switch goos {
	case "darwin":
		return []command{{name: "pbcopy"}}
	case "linux", "freebsd", "openbsd", "netbsd":
		return []command{
			{name: "wl-copy"},
			{name: "xclip", write: []string{"-selection", "clipboard"}, read: []string{"-selection", "clipboard", "-o"}},
			{name: "xsel", write: []string{"--clipboard", "--input"}, read: []string{"--clipboard", "--output"}},
		}
	default:
		return nil
	}
}

// readerFor maps a write tool to its paste counterpart when it has one.
func readerFor(c command) (string, []string) {
	switch c.name {
	case "pbcopy":
		return "pbpaste", nil
	case "wl-copy":
		return "wl-paste", []string{"--no-newline"}
	default:
		return c.name, c.read
	}
}

func (s *SystemClipboard) available() []command {
	var out []command
	for _, c := range commandsFor(s.goos) {
		if _, err := s.lookPath(c.name); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// IsSupported returns true if clipboard operations are supported on this system
func (s *SystemClipboard) IsSupported() bool {
	return s.nativeReady() || len(s.available()) > 0
}

// WriteText implements Clipboard.WriteText for SystemClipboard
func (s *SystemClipboard) WriteText(text string) error {
	if s.nativeReady() {
		clipboard.Write(clipboard.FmtText, []byte(text))
		return nil
	}

	cmds := s.available()
	if len(cmds) == 0 {
		return fmt.Errorf("clipboard operations not supported on %s", s.goos)
	}

	var names []string
	for _, c := range cmds {
		cmd := exec.Command(c.name, c.write...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err == nil {
			return nil
		}
		names = append(names, c.name)
	}
	return fmt.Errorf("failed to write clipboard (tried %s)", strings.Join(names, ", "))
}

// ReadText implements Clipboard.ReadText for SystemClipboard
func (s *SystemClipboard) ReadText() (string, error) {
	if s.nativeReady() {
		return string(clipboard.Read(clipboard.FmtText)), nil
	}

	cmds := s.available()
	if len(cmds) == 0 {
		return "", fmt.Errorf("clipboard operations not supported on %s", s.goos)
	}

	var names []string
	for _, c := range cmds {
		name, args := readerFor(c)
		var out bytes.Buffer
		cmd := exec.Command(name, args...)
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			return out.String(), nil
		}
		names = append(names, name)
	}
	return "", fmt.Errorf("failed to read clipboard (tried %s)", strings.Join(names, ", "))
}
