package capture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/capture/mocksource"
)

type countingObserver struct {
	mu       sync.Mutex
	skipped  int
	decoded  int
	failures int
}

func (o *countingObserver) FrameSkipped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func (o *countingObserver) FrameDecoded(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.decoded++
	} else {
		o.failures++
	}
}

func collect(t *testing.T, sub *capture.Subscription) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-sub.Values():
			if !ok {
				return got
			}
			got = append(got, v)
		case <-timeout:
			t.Fatal("timed out waiting for subscription to end")
		}
	}
}

func fastConfig() capture.Config {
	cfg := capture.DefaultConfig()
	cfg.FPS = 1000
	return cfg
}

func TestStartEmitsDecodedValues(t *testing.T) {
	driver := mocksource.New(mocksource.Frames("A", "", "B", "A")...)
	driver.EndAfterScript = true
	obs := &countingObserver{}

	c := capture.New(driver,
		capture.WithDecoder(mocksource.NewDecoder),
		capture.WithObserver(obs),
		// Advance the clock a full second per frame so nothing is throttled.
		capture.WithClock(steppingClock(time.Second)),
	)

	sub, err := c.Start(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := collect(t, sub)
	want := []string{"A", "B", "A"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: got %q, want %q", i, got[i], want[i])
		}
	}

	<-sub.Done()
	if sub.Err() != nil {
		t.Errorf("expected clean end, got %v", sub.Err())
	}
	if obs.decoded != 3 || obs.failures != 1 {
		t.Errorf("observer: decoded=%d failures=%d, want 3 and 1", obs.decoded, obs.failures)
	}
	if driver.Closed() != 1 {
		t.Errorf("expected source to be closed once, got %d", driver.Closed())
	}
}

func TestStartThrottlesFrames(t *testing.T) {
	driver := mocksource.New(mocksource.Frames("A", "B", "C", "D")...)
	driver.EndAfterScript = true
	obs := &countingObserver{}

	// 10ms per frame against a 30fps budget (33ms): every frame after a
	// decoded one is skipped until the interval has passed.
	c := capture.New(driver,
		capture.WithDecoder(mocksource.NewDecoder),
		capture.WithObserver(obs),
		capture.WithClock(steppingClock(10*time.Millisecond)),
	)

	cfg := capture.DefaultConfig()
	cfg.FPS = 30
	sub, err := c.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := collect(t, sub)
	// Frames at t=10,20,30,40ms: A decoded, B and C skipped, D at +30ms skipped too.
	if len(got) != 1 || got[0] != "A" {
		t.Errorf("got %v, want [A]", got)
	}
	if obs.skipped != 3 {
		t.Errorf("expected 3 skipped frames, got %d", obs.skipped)
	}
}

func TestCancelReleasesSource(t *testing.T) {
	driver := mocksource.New()
	c := capture.New(driver, capture.WithDecoder(mocksource.NewDecoder))

	sub, err := c.Start(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if driver.Opened() != 1 {
		t.Fatalf("expected one open source, got %d", driver.Opened())
	}

	sub.Cancel()
	sub.Cancel()

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done should be closed after Cancel returns")
	}
	if driver.Closed() != 1 {
		t.Errorf("expected source closed once, got %d", driver.Closed())
	}
	if _, ok := <-sub.Values(); ok {
		t.Error("Values should be closed after Cancel")
	}
}

func TestParentContextCancelsSubscription(t *testing.T) {
	driver := mocksource.New()
	c := capture.New(driver, capture.WithDecoder(mocksource.NewDecoder))

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.Start(ctx, fastConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end after parent cancel")
	}
}

func TestSourceFailureIsReported(t *testing.T) {
	boom := errors.New("device unplugged")
	driver := mocksource.New(mocksource.Frames("A")...)
	driver.EndAfterScript = true
	driver.SourceErr = boom

	c := capture.New(driver, capture.WithDecoder(mocksource.NewDecoder))
	sub, err := c.Start(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	collect(t, sub)
	if !errors.Is(sub.Err(), boom) {
		t.Errorf("expected %v, got %v", boom, sub.Err())
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name       string
		driver     *mocksource.Driver
		cfg        capture.Config
		wantNoDev  bool
		wantUnavil bool
	}{
		{
			name:      "no devices",
			driver:    &mocksource.Driver{DeviceList: []capture.Device{}},
			wantNoDev: true,
		},
		{
			name:      "unknown device id",
			driver:    mocksource.New(),
			cfg:       capture.Config{DeviceID: "missing"},
			wantNoDev: true,
		},
		{
			name:       "open fails",
			driver:     &mocksource.Driver{OpenErr: errors.New("permission denied")},
			wantUnavil: true,
		},
		{
			name:       "list fails",
			driver:     &mocksource.Driver{ListErr: errors.New("backend missing")},
			wantUnavil: true,
		},
		{
			name:       "open times out",
			driver:     &mocksource.Driver{OpenDelay: time.Second},
			cfg:        capture.Config{StartTimeout: 20 * time.Millisecond},
			wantUnavil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := capture.New(tt.driver, capture.WithDecoder(mocksource.NewDecoder))
			sub, err := c.Start(context.Background(), tt.cfg)
			if err == nil {
				sub.Cancel()
				t.Fatal("expected an error")
			}
			if errors.Is(err, capture.ErrNoDevice) != tt.wantNoDev {
				t.Errorf("ErrNoDevice match = %v, want %v (err: %v)", !tt.wantNoDev, tt.wantNoDev, err)
			}
			if errors.Is(err, capture.ErrUnavailable) != tt.wantUnavil {
				t.Errorf("ErrUnavailable match = %v, want %v (err: %v)", !tt.wantUnavil, tt.wantUnavil, err)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := capture.Config{Box: -5}.WithDefaults()
	if cfg.FPS != capture.DefaultFPS {
		t.Errorf("FPS = %d", cfg.FPS)
	}
	if cfg.Box != 0 {
		t.Errorf("negative box should clamp to 0, got %d", cfg.Box)
	}
	if cfg.Policy != capture.PolicyEnvironment {
		t.Errorf("Policy = %q", cfg.Policy)
	}
	if cfg.StartTimeout != capture.DefaultStartTimeout {
		t.Errorf("StartTimeout = %v", cfg.StartTimeout)
	}
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
