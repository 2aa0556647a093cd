// Package mocksource provides a scripted frame source for testing.
package mocksource

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/qrcode"
)

// TextFrame is a tiny frame that carries its decoded payload directly,
// so tests can drive capture without rendering real QR images.
type TextFrame struct {
	*image.Gray
	Text string
}

// Frame returns a TextFrame for text. An empty text is an unreadable frame.
func Frame(text string) image.Image {
	return &TextFrame{Gray: image.NewGray(image.Rect(0, 0, 1, 1)), Text: text}
}

// Frames returns one TextFrame per text.
func Frames(texts ...string) []image.Image {
	frames := make([]image.Image, len(texts))
	for i, t := range texts {
		frames[i] = Frame(t)
	}
	return frames
}

// Decoder reads TextFrame payloads and fails on anything else.
type Decoder struct{}

// NewDecoder matches the capture.WithDecoder factory signature.
func NewDecoder(int) capture.Decoder {
	return Decoder{}
}

// Decode implements capture.Decoder.
func (Decoder) Decode(img image.Image) (string, error) {
	if f, ok := img.(*TextFrame); ok && f.Text != "" {
		return f.Text, nil
	}
	return "", qrcode.ErrNotFound
}

// Driver implements capture.Driver with scripted devices and frames.
type Driver struct {
	// DeviceList is returned by Devices. Nil means one default device.
	DeviceList []capture.Device

	// Script is emitted by every opened source, in order.
	Script []image.Image

	// Interval is slept before each frame.
	Interval time.Duration

	// EndAfterScript closes the source once Script is exhausted.
	// Otherwise the source idles like a camera pointed at nothing.
	EndAfterScript bool

	// SourceErr is reported by the source when it ends after the script.
	SourceErr error

	// ListErr and OpenErr make Devices and Open fail.
	ListErr error
	OpenErr error

	// OpenDelay is slept in Open, honouring the context.
	OpenDelay time.Duration

	mu     sync.Mutex
	opened int
	closed int
}

// New creates a driver that emits frames on one default device.
func New(frames ...image.Image) *Driver {
	return &Driver{Script: frames}
}

// DefaultDevice is used when DeviceList is nil.
var DefaultDevice = capture.Device{ID: "mock0", Label: "Mock Camera", Facing: capture.FacingEnvironment}

// Devices implements capture.Driver.
func (d *Driver) Devices(ctx context.Context) ([]capture.Device, error) {
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	if d.DeviceList == nil {
		return []capture.Device{DefaultDevice}, nil
	}
	return d.DeviceList, nil
}

// Open implements capture.Driver.
func (d *Driver) Open(ctx context.Context, dev capture.Device, cfg capture.Config) (capture.Source, error) {
	if d.OpenDelay > 0 {
		select {
		case <-time.After(d.OpenDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	d.mu.Lock()
	d.opened++
	d.mu.Unlock()

	s := &source{
		driver: d,
		frames: make(chan image.Image),
		stop:   make(chan struct{}),
	}
	go s.emit(append([]image.Image(nil), d.Script...))
	return s, nil
}

// Opened returns how many sources were opened.
func (d *Driver) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Closed returns how many sources were closed.
func (d *Driver) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type source struct {
	driver *Driver
	frames chan image.Image
	stop   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *source) emit(script []image.Image) {
	for _, frame := range script {
		if s.driver.Interval > 0 {
			select {
			case <-time.After(s.driver.Interval):
			case <-s.stop:
				close(s.frames)
				return
			}
		}
		select {
		case s.frames <- frame:
		case <-s.stop:
			close(s.frames)
			return
		}
	}

	if s.driver.EndAfterScript {
		s.mu.Lock()
		s.err = s.driver.SourceErr
		s.mu.Unlock()
		close(s.frames)
		return
	}

	<-s.stop
	close(s.frames)
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
	s.once.Do(func() {
		close(s.stop)
		s.driver.mu.Lock()
		s.driver.closed++
		s.driver.mu.Unlock()
	})
	return nil
}
