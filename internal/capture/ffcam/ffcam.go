// Package ffcam implements a camera frame source backed by an ffmpeg child
// process. On Linux it reads v4l2 devices, on macOS avfoundation devices.
// Frames are streamed as raw RGB24 on the process's stdout.
package ffcam

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yiblet/qrscan/internal/capture"
)

// DefaultSysfsRoot is where Linux exposes v4l2 devices.
const DefaultSysfsRoot = "/sys/class/video4linux"

// Driver implements capture.Driver by spawning ffmpeg.
type Driver struct {
	// FFmpeg is the ffmpeg binary; resolved on PATH when relative.
	FFmpeg string

	// GOOS selects the input backend. Defaults to runtime.GOOS.
	GOOS string

	// SysfsRoot overrides DefaultSysfsRoot.
	SysfsRoot string

	logger *slog.Logger
}

// New creates a driver for the current platform.
func New(logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		FFmpeg:    "ffmpeg",
		GOOS:      runtime.GOOS,
		SysfsRoot: DefaultSysfsRoot,
		logger:    logger.With("component", "ffcam"),
	}
}

// IsSupported reports whether ffmpeg is installed and the platform has a
// known capture backend.
func (d *Driver) IsSupported() bool {
	switch d.GOOS {
	case "linux", "darwin":
		_, err := exec.LookPath(d.FFmpeg)
		return err == nil
	default:
		return false
	}
}

// Devices implements capture.Driver.
func (d *Driver) Devices(ctx context.Context) ([]capture.Device, error) {
	switch d.GOOS {
	case "linux":
		return ListV4L2(d.SysfsRoot)
	case "darwin":
		return d.listAVFoundation(ctx)
	default:
		return nil, fmt.Errorf("camera capture not supported on %s: %w", d.GOOS, capture.ErrUnavailable)
	}
}

// ListV4L2 enumerates capture nodes under a sysfs video4linux directory.
// Metadata nodes (index != 0) are skipped.
func ListV4L2(root string) ([]capture.Device, error) {
	matches, err := filepath.Glob(filepath.Join(root, "video*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list video devices: %w", err)
	}

	type numbered struct {
		n   int
		dev capture.Device
	}
	var found []numbered

	for _, dir := range matches {
		base := filepath.Base(dir)
		n, err := strconv.Atoi(strings.TrimPrefix(base, "video"))
		if err != nil {
			continue
		}

		if idx, err := os.ReadFile(filepath.Join(dir, "index")); err == nil {
			if strings.TrimSpace(string(idx)) != "0" {
				continue
			}
		}

		label := base
		if name, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
			label = strings.TrimSpace(string(name))
		}

		found = append(found, numbered{n: n, dev: capture.Device{
			ID:    "/dev/" + base,
			Label: label,
		}})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	devices := make([]capture.Device, len(found))
	for i, f := range found {
		devices[i] = f.dev
	}
	return devices, nil
}

func (d *Driver) listAVFoundation(ctx context.Context) ([]capture.Device, error) {
	path, err := exec.LookPath(d.FFmpeg)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", capture.ErrUnavailable)
	}

	// ffmpeg prints the listing on stderr and exits non-zero; only the
	// listing matters.
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
	cmd.Stderr = &stderr
	_ = cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return ParseAVFoundationDevices(&stderr), nil
}

var avDeviceLine = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)

// ParseAVFoundationDevices extracts video devices from the output of
// `ffmpeg -f avfoundation -list_devices true -i ""`.
func ParseAVFoundationDevices(r io.Reader) []capture.Device {
	var devices []capture.Device
	inVideo := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "AVFoundation video devices"):
			inVideo = true
			continue
		case strings.Contains(line, "AVFoundation audio devices"):
			inVideo = false
			continue
		}
		if !inVideo {
			continue
		}

		m := avDeviceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(m[2])
		// Screen capture inputs are not cameras.
		if strings.HasPrefix(label, "Capture screen") {
			continue
		}
		devices = append(devices, capture.Device{ID: m[1], Label: label})
	}
	return devices
}

// Args builds the ffmpeg command line for dev.
func Args(goos string, dev capture.Device, cfg capture.Config) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}

	switch goos {
	case "linux":
		args = append(args, "-f", "v4l2", "-framerate", strconv.Itoa(cfg.FPS), "-i", dev.ID)
	case "darwin":
		args = append(args, "-f", "avfoundation", "-framerate", strconv.Itoa(cfg.FPS), "-i", dev.ID+":none")
	default:
		return nil, fmt.Errorf("camera capture not supported on %s", goos)
	}

	args = append(args,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", cfg.Width, cfg.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	return args, nil
}

// Open implements capture.Driver. It returns once the first frame has been
// read, so a device that never produces output is reported within ctx.
func (d *Driver) Open(ctx context.Context, dev capture.Device, cfg capture.Config) (capture.Source, error) {
	cfg = cfg.WithDefaults()

	path, err := exec.LookPath(d.FFmpeg)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args, err := Args(d.GOOS, dev, cfg)
	if err != nil {
		return nil, err
	}

	// Not CommandContext: ctx bounds the opening only.
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	d.logger.Debug("ffmpeg started", "device", dev.String(), "args", strings.Join(args, " "))

	s := &source{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		frames: make(chan image.Image),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	first := make(chan error, 1)
	go s.read(cfg.Width, cfg.Height, first)

	select {
	case err := <-first:
		if err != nil {
			s.Close()
			return nil, err
		}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	return s, nil
}

type source struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	frames chan image.Image
	stop   chan struct{}
	done   chan struct{} // closed when read returns
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *source) read(w, h int, first chan<- error) {
	defer close(s.done)
	defer close(s.frames)

	started := false
	for {
		buf := make([]byte, w*h*3)
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			select {
			case <-s.stop:
			default:
				s.setErr(s.readError(err))
			}
			if !started {
				first <- s.Err()
			}
			return
		}

		img := RGB24ToRGBA(buf, w, h)
		if !started {
			started = true
			first <- nil
		}

		select {
		case s.frames <- img:
		case <-s.stop:
			return
		}
	}
}

func (s *source) readError(err error) error {
	msg := strings.TrimSpace(s.stderr.String())
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if msg == "" {
			return errors.New("ffmpeg stopped producing frames")
		}
		return fmt.Errorf("ffmpeg stopped producing frames: %s", msg)
	}
	if msg == "" {
		return fmt.Errorf("failed to read frame: %w", err)
	}
	return fmt.Errorf("failed to read frame: %w: %s", err, msg)
}

func (s *source) Frames() <-chan image.Image {
	return s.frames
}

func (s *source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *source) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Close interrupts ffmpeg, then kills it if it has not exited shortly after.
// The reader is drained before the process is reaped, since Wait closes
// the stdout pipe.
func (s *source) Close() error {
	s.once.Do(func() {
		close(s.stop)

		if runtime.GOOS != "windows" {
			s.cmd.Process.Signal(os.Interrupt)
		}

		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			s.cmd.Process.Kill()
			<-s.done
		}
		s.cmd.Wait()
	})
	return nil
}

// RGB24ToRGBA converts a packed RGB24 buffer into an RGBA image.
func RGB24ToRGBA(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i+2 < len(buf) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
