package dirwatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/qrcode"
)

func writeCode(t *testing.T, dir, name, value string) {
	t.Helper()
	tmp := filepath.Join(dir, name+".part")
	f, err := os.Create(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if err := qrcode.WritePNG(f, value, 256); err != nil {
		f.Close()
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func next(t *testing.T, sub *capture.Subscription) string {
	t.Helper()
	select {
	case v, ok := <-sub.Values():
		if !ok {
			t.Fatalf("subscription ended: %v", sub.Err())
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a decoded value")
	}
	return ""
}

func TestDirectorySourceDecodesExistingAndNewImages(t *testing.T) {
	dir := t.TempDir()
	writeCode(t, dir, "a.png", "existing-code")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	driver := New(dir, nil)
	driver.Settle = 20 * time.Millisecond

	c := capture.New(driver)
	sub, err := c.Start(context.Background(), capture.DefaultConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sub.Cancel()

	if got := next(t, sub); got != "existing-code" {
		t.Errorf("got %q, want %q", got, "existing-code")
	}

	writeCode(t, dir, "b.png", "https://example.com/new")
	if got := next(t, sub); got != "https://example.com/new" {
		t.Errorf("got %q, want %q", got, "https://example.com/new")
	}
}

func TestSkipExisting(t *testing.T) {
	dir := t.TempDir()
	writeCode(t, dir, "old.png", "old")

	driver := New(dir, nil)
	driver.Settle = 20 * time.Millisecond
	driver.SkipExisting = true

	c := capture.New(driver)
	sub, err := c.Start(context.Background(), capture.DefaultConfig())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sub.Cancel()

	writeCode(t, dir, "new.png", "new")
	if got := next(t, sub); got != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
}

func TestDevicesMissingDirectory(t *testing.T) {
	driver := New(filepath.Join(t.TempDir(), "nope"), nil)
	if _, err := driver.Devices(context.Background()); !errors.Is(err, capture.ErrNoDevice) {
		t.Errorf("expected ErrNoDevice, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	driver := New(t.TempDir(), nil)
	devs, err := driver.Devices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	src, err := driver.Open(context.Background(), devs[0], capture.Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, ok := <-src.Frames(); ok {
		t.Error("Frames should be closed")
	}
}

func TestIsImage(t *testing.T) {
	tests := map[string]bool{
		"/x/a.png":       true,
		"/x/B.JPG":       true,
		"/x/c.jpeg":      true,
		"/x/d.gif":       true,
		"/x/e.txt":       false,
		"/x/.hidden.png": false,
		"/x/f.png.part":  false,
	}
	for path, want := range tests {
		if got := isImage(path); got != want {
			t.Errorf("isImage(%q) = %v, want %v", path, got, want)
		}
	}
}
