// Package capture acquires frames from a camera-like source, decodes QR codes
// from them at a bounded frame rate and emits the decoded values on a
// cancellable subscription.
package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/yiblet/qrscan/internal/qrcode"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultFPS          = 30
	DefaultBox          = 300
	DefaultWidth        = 640
	DefaultHeight       = 480
	DefaultStartTimeout = 10 * time.Second
)

// Config controls one capture session.
type Config struct {
	// FPS caps how many frames per second are decoded.
	FPS int

	// Box is the side of the centred square decoded in each frame.
	// Zero decodes the whole frame.
	Box int

	// Policy picks the device when DeviceID is empty.
	Policy Policy

	// DeviceID selects an exact device and overrides Policy.
	DeviceID string

	// Width and Height request a frame size from the driver.
	Width  int
	Height int

	// StartTimeout bounds device enumeration and opening.
	StartTimeout time.Duration
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		FPS:          DefaultFPS,
		Box:          DefaultBox,
		Policy:       PolicyEnvironment,
		Width:        DefaultWidth,
		Height:       DefaultHeight,
		StartTimeout: DefaultStartTimeout,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.Box < 0 {
		c.Box = 0
	}
	if c.Policy == "" {
		c.Policy = def.Policy
	}
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = def.StartTimeout
	}
	return c
}

// Source is an open frame stream.
type Source interface {
	// Frames delivers frames until the source ends or is closed.
	// The channel is closed when the source stops.
	Frames() <-chan image.Image

	// Err reports why the source stopped, if it failed.
	Err() error

	// Close stops the stream and releases the device. Safe to call twice.
	Close() error
}

// Driver enumerates and opens devices. The context passed to Open bounds the
// opening only; the returned Source lives until it is closed.
type Driver interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, dev Device, cfg Config) (Source, error)
}

// Decoder extracts a QR payload from a frame.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// Observer receives per-frame outcomes. Implementations must be cheap and
// safe for concurrent use.
type Observer interface {
	FrameSkipped()
	FrameDecoded(ok bool)
}

type nopObserver struct{}

func (nopObserver) FrameSkipped()     {}
func (nopObserver) FrameDecoded(bool) {}

// Capturer starts capture sessions on a driver.
type Capturer struct {
	driver     Driver
	newDecoder func(box int) Decoder
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithDecoder replaces the QR decoder factory.
func WithDecoder(fn func(box int) Decoder) Option {
	return func(c *Capturer) {
		c.newDecoder = fn
	}
}

// WithObserver reports per-frame outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Capturer) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces the clock used for frame-rate limiting.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) {
		c.now = now
	}
}

// New creates a Capturer for driver. Frames are decoded with qrcode.Decoder
// unless WithDecoder is given.
func New(driver Driver, opts ...Option) *Capturer {
	c := &Capturer{
		driver: driver,
		newDecoder: func(box int) Decoder {
			return qrcode.NewDecoder(box)
		},
		observer: nopObserver{},
		logger:   slog.Default().With("component", "capture"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Devices lists the driver's devices.
func (c *Capturer) Devices(ctx context.Context) ([]Device, error) {
	return c.driver.Devices(ctx)
}

// Start selects and opens a device and begins decoding. Cancelling ctx ends
// the subscription like Cancel does.
//
// Errors: ErrNoDevice when nothing can be selected; a *StartError (matching
// ErrUnavailable) when the device cannot be opened within cfg.StartTimeout.
func (c *Capturer) Start(ctx context.Context, cfg Config) (*Subscription, error) {
	cfg = cfg.WithDefaults()

	openCtx, cancelOpen := context.WithTimeout(ctx, cfg.StartTimeout)
	defer cancelOpen()

	devices, err := c.driver.Devices(openCtx)
	if err != nil {
		if errors.Is(err, ErrNoDevice) {
			return nil, err
		}
		return nil, &StartError{Cause: err}
	}

	dev, err := SelectDevice(devices, cfg.Policy, cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	src, err := c.driver.Open(openCtx, dev, cfg)
	if err != nil {
		return nil, &StartError{Device: dev, Cause: err}
	}
	if err := openCtx.Err(); err != nil {
		src.Close()
		return nil, &StartError{Device: dev, Cause: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		device: dev,
		values: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	c.logger.Info("capture started", "device", dev.String(), "fps", cfg.FPS, "box", cfg.Box)
	go c.run(runCtx, sub, src, cfg)

	return sub, nil
}

// run is the decode loop. It owns src and closes it on exit.
func (c *Capturer) run(ctx context.Context, sub *Subscription, src Source, cfg Config) {
	defer close(sub.done)
	defer close(sub.values)
	defer src.Close()

	dec := c.newDecoder(cfg.Box)
	interval := time.Second / time.Duration(cfg.FPS)
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("capture stopped", "device", sub.device.String())
			return

		case frame, ok := <-src.Frames():
			if !ok {
				if err := src.Err(); err != nil {
					sub.setErr(err)
					c.logger.Warn("capture source ended", "device", sub.device.String(), "error", err)
				}
				return
			}

			now := c.now()
			if !last.IsZero() && now.Sub(last) < interval {
				c.observer.FrameSkipped()
				continue
			}
			last = now

			// Unreadable frames are expected between codes and are not errors.
			text, err := dec.Decode(frame)
			if err != nil || text == "" {
				c.observer.FrameDecoded(false)
				continue
			}
			c.observer.FrameDecoded(true)

			select {
			case sub.values <- text:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Subscription is one running capture session.
type Subscription struct {
	device Device
	values chan string
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Values emits decoded payloads. Closed when the subscription ends.
func (s *Subscription) Values() <-chan string {
	return s.values
}

// Done is closed once the decode loop has exited and the source is released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Device returns the device in use.
func (s *Subscription) Device() Device {
	return s.device
}

// Err returns the source failure that ended the subscription, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops emission, releases the device and waits for the loop to
// exit. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
