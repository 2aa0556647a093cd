// Package dirwatch implements a frame source fed by image files that appear
// in a directory, such as a phone-sync folder or a document scanner's output.
package dirwatch

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/yiblet/qrscan/internal/capture"
)

// DefaultSettle is how long a file must be quiet before it is read.
const DefaultSettle = 100 * time.Millisecond

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

// Driver implements capture.Driver for one directory.
type Driver struct {
	Dir string

	// Settle debounces writes to the same file.
	Settle time.Duration

	// SkipExisting ignores images already present when the source opens.
	SkipExisting bool

	logger *slog.Logger
}

// New creates a driver watching dir.
func New(dir string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		Dir:    dir,
		Settle: DefaultSettle,
		logger: logger.With("component", "dirwatch"),
	}
}

// Devices returns the directory as the only device.
func (d *Driver) Devices(ctx context.Context) ([]capture.Device, error) {
	info, err := os.Stat(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch directory %q: %w", d.Dir, capture.ErrNoDevice)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory: %w", d.Dir, capture.ErrNoDevice)
	}
	return []capture.Device{{ID: d.Dir, Label: "Directory " + filepath.Base(d.Dir), Facing: capture.FacingEnvironment}}, nil
}

// Open implements capture.Driver. Images already in the directory are emitted
// first, in name order, unless SkipExisting is set.
func (d *Driver) Open(ctx context.Context, dev capture.Device, cfg capture.Config) (capture.Source, error) {
	cfg = cfg.WithDefaults()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dev.ID); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %q: %w", dev.ID, err)
	}

	var existing []string
	if !d.SkipExisting {
		existing, err = listImages(dev.ID)
		if err != nil {
			watcher.Close()
			return nil, err
		}
	}

	settle := d.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	// Pace slightly slower than the capture frame rate so no file is throttled away.
	interval := time.Second / time.Duration(cfg.FPS)
	interval += interval / 10

	s := &source{
		watcher:  watcher,
		logger:   d.logger,
		settle:   settle,
		interval: interval,
		frames:   make(chan image.Image),
		ready:    make(chan string, 64),
		stop:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}

	go s.watch()
	go s.emit(existing)

	d.logger.Info("watching directory", "dir", dev.ID, "existing", len(existing))
	return s, nil
}

type source struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	settle   time.Duration
	interval time.Duration

	frames chan image.Image
	ready  chan string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	timers map[string]*time.Timer
	err    error
}

// watch turns fsnotify events into settled paths on s.ready.
func (s *source) watch() {
	for {
		select {
		case <-s.stop:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isImage(event.Name) {
				continue
			}
			s.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
			s.schedule(event.Name)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("directory watcher error", "error", err)
		}
	}
}

// schedule debounces path and queues it once it has been quiet for settle.
func (s *source) schedule(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[path]; ok {
		t.Stop()
	}
	s.timers[path] = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()

		select {
		case s.ready <- path:
		case <-s.stop:
		}
	})
}

func (s *source) emit(existing []string) {
	defer close(s.frames)
	defer close(s.done)

	var last time.Time
	send := func(path string) bool {
		img, err := loadImage(path)
		if err != nil {
			s.logger.Warn("skipping unreadable image", "path", path, "error", err)
			return true
		}

		if wait := s.interval - time.Since(last); !last.IsZero() && wait > 0 {
			select {
			case <-time.After(wait):
			case <-s.stop:
				return false
			}
		}

		select {
		case s.frames <- img:
			last = time.Now()
			return true
		case <-s.stop:
			return false
		}
	}

	for _, path := range existing {
		if !send(path) {
			return
		}
	}

	for {
		select {
		case path := <-s.ready:
			if !send(path) {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *source) Frames() <-chan image.Image {
	return s.frames
}

func (s *source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)

		s.mu.Lock()
		for _, t := range s.timers {
			t.Stop()
		}
		s.mu.Unlock()

		if cerr := s.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
		<-s.done
	})
	return err
}

func isImage(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
