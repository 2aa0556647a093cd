package sysboard

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/yiblet/qrscan/internal/clipboard"
)

var _ clipboard.Clipboard = (*SystemClipboard)(nil)

func newFake(goos string, installed ...string) *SystemClipboard {
	have := map[string]bool{}
	for _, n := range installed {
		have[n] = true
	}
	return &SystemClipboard{
		goos: goos,
		lookPath: func(name string) (string, error) {
			if have[name] {
				return "/usr/bin/" + name, nil
			}
			return "", exec.ErrNotFound
		},
		native: func() error { return errors.New("no display") },
	}
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		name      string
		goos      string
		installed []string
		want      bool
	}{
		{"linux with xclip", "linux", []string{"xclip"}, true},
		{"linux with wayland", "linux", []string{"wl-copy"}, true},
		{"linux with nothing", "linux", nil, false},
		{"darwin", "darwin", []string{"pbcopy"}, true},
		{"windows without native", "windows", []string{"xclip"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newFake(tt.goos, tt.installed...).IsSupported(); got != tt.want {
				t.Errorf("IsSupported() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAvailableOrder(t *testing.T) {
	s := newFake("linux", "xsel", "xclip", "wl-copy")

	var names []string
	for _, c := range s.available() {
		names = append(names, c.name)
	}
	want := []string{"wl-copy", "xclip", "xsel"}
	if len(names) != len(want) {
		t.Fatalf("available() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("available()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestReaderFor(t *testing.T) {
	tests := map[string]string{
		"pbcopy":  "pbpaste",
		"wl-copy": "wl-paste",
		"xclip":   "xclip",
		"xsel":    "xsel",
	}
	for _, c := range append(commandsFor("darwin"), commandsFor("linux")...) {
		name, _ := readerFor(c)
		if name != tests[c.name] {
			t.Errorf("readerFor(%s) = %s, want %s", c.name, name, tests[c.name])
		}
	}
}

func TestWriteWithoutTools(t *testing.T) {
	s := newFake("linux")
	if err := s.WriteText("x"); err == nil {
		t.Error("expected error with no clipboard tool installed")
	}
	if _, err := s.ReadText(); err == nil {
		t.Error("expected error with no clipboard tool installed")
	}
}

func TestNativeInitRunsOnce(t *testing.T) {
	calls := 0
	s := newFake("linux")
	s.native = func() error {
		calls++
		return errors.New("no display")
	}

	s.IsSupported()
	s.IsSupported()
	s.WriteText("x")

	if calls != 1 {
		t.Errorf("native init ran %d times, want 1", calls)
	}
}
