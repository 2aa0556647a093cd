package ffcam

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/yiblet/qrscan/internal/capture"
)

func TestListV4L2(t *testing.T) {
	root := t.TempDir()

	write := func(node, file, content string) {
		t.Helper()
		dir := filepath.Join(root, node)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write("video10", "name", "USB Back Camera\n")
	write("video10", "index", "0\n")
	write("video2", "name", "Integrated Webcam\n")
	write("video2", "index", "0\n")
	write("video3", "name", "Integrated Webcam\n")
	write("video3", "index", "1\n")

	devices, err := ListV4L2(root)
	if err != nil {
		t.Fatalf("ListV4L2 failed: %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("expected 2 capture nodes, got %d: %v", len(devices), devices)
	}
	if devices[0].ID != "/dev/video2" || devices[0].Label != "Integrated Webcam" {
		t.Errorf("unexpected first device: %+v", devices[0])
	}
	if devices[1].ID != "/dev/video10" || devices[1].Label != "USB Back Camera" {
		t.Errorf("unexpected second device: %+v", devices[1])
	}
}

func TestListV4L2Empty(t *testing.T) {
	devices, err := ListV4L2(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("ListV4L2 failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected no devices, got %v", devices)
	}
}

func TestParseAVFoundationDevices(t *testing.T) {
	out := `[AVFoundation indev @ 0x7f9] AVFoundation video devices:
[AVFoundation indev @ 0x7f9] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f9] [1] iPhone Back Camera
[AVFoundation indev @ 0x7f9] [2] Capture screen 0
[AVFoundation indev @ 0x7f9] AVFoundation audio devices:
[AVFoundation indev @ 0x7f9] [0] MacBook Pro Microphone
: Input/output error
`
	devices := ParseAVFoundationDevices(strings.NewReader(out))
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d: %v", len(devices), devices)
	}
	if devices[0].ID != "0" || devices[0].Label != "FaceTime HD Camera" {
		t.Errorf("unexpected device 0: %+v", devices[0])
	}
	if devices[1].ID != "1" || devices[1].Label != "iPhone Back Camera" {
		t.Errorf("unexpected device 1: %+v", devices[1])
	}
}

func TestArgs(t *testing.T) {
	cfg := capture.Config{FPS: 15, Width: 320, Height: 240}

	linux, err := Args("linux", capture.Device{ID: "/dev/video0"}, cfg)
	if err != nil {
		t.Fatalf("Args failed: %v", err)
	}
	joined := strings.Join(linux, " ")
	for _, want := range []string{"-f v4l2", "-framerate 15", "-i /dev/video0", "scale=320:240", "-pix_fmt rgb24"} {
		if !strings.Contains(joined, want) {
			t.Errorf("linux args %q missing %q", joined, want)
		}
	}
	if linux[len(linux)-1] != "-" {
		t.Errorf("expected output to stdout, got %q", linux[len(linux)-1])
	}

	darwin, err := Args("darwin", capture.Device{ID: "1"}, cfg)
	if err != nil {
		t.Fatalf("Args failed: %v", err)
	}
	if !strings.Contains(strings.Join(darwin, " "), "-f avfoundation -framerate 15 -i 1:none") {
		t.Errorf("unexpected darwin args: %v", darwin)
	}

	if _, err := Args("plan9", capture.Device{}, cfg); err == nil {
		t.Error("expected error for unsupported platform")
	}
}

func TestRGB24ToRGBA(t *testing.T) {
	buf := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 10, 20, 30,
	}
	img := RGB24ToRGBA(buf, 2, 2)

	r, g, b, a := img.At(1, 1).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 || a>>8 != 255 {
		t.Errorf("pixel (1,1) = %d,%d,%d,%d", r>>8, g>>8, b>>8, a>>8)
	}
	r, _, _, _ = img.At(0, 0).RGBA()
	if r>>8 != 255 {
		t.Errorf("pixel (0,0) red = %d", r>>8)
	}
}

func TestDevicesUnsupportedPlatform(t *testing.T) {
	d := New(nil)
	d.GOOS = "windows"
	_, err := d.Devices(context.Background())
	if !errors.Is(err, capture.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if d.IsSupported() {
		t.Error("windows should not be supported")
	}
}

func TestOpenWithoutFFmpeg(t *testing.T) {
	d := New(nil)
	d.FFmpeg = filepath.Join(t.TempDir(), "no-such-ffmpeg")
	_, err := d.Open(context.Background(), capture.Device{ID: "/dev/video0"}, capture.Config{})
	if err == nil {
		t.Fatal("expected error when ffmpeg is missing")
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 5}
	tb.Write([]byte("abc"))
	tb.Write([]byte("defg"))
	if got := tb.String(); got != "cdefg" {
		t.Errorf("got %q, want %q", got, "cdefg")
	}
}

func TestCloseStopsReader(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell script standing in for ffmpeg")
	}
	fake := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\nexec cat /dev/zero\n"), 0755); err != nil {
		t.Fatal(err)
	}

	d := New(nil)
	d.FFmpeg = fake
	d.GOOS = "linux"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src, err := d.Open(ctx, capture.Device{ID: "/dev/video0"}, capture.Config{Width: 4, Height: 2})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := <-src.Frames(); !ok {
		t.Fatal("expected a frame before Close")
	}

	closed := make(chan struct{})
	go func() {
		src.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	// The reader has exited, so the frame channel is already closed.
	select {
	case _, ok := <-src.Frames():
		if ok {
			t.Error("received a frame after Close")
		}
	default:
		t.Error("frame channel still open after Close")
	}
	if err := src.Err(); err != nil {
		t.Errorf("Err after Close = %v, want nil", err)
	}
}
