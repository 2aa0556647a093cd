package qrcode

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRenderDecodeRoundTrip(t *testing.T) {
	values := []string{
		"A",
		"https://example.com/item/42?ref=scan",
		"1234567890",
	}

	dec := NewDecoder(0)
	for _, v := range values {
		t.Run(v, func(t *testing.T) {
			img, err := Render(v, 0)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			got, err := dec.Decode(img)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != v {
				t.Errorf("Decode = %q, want %q", got, v)
			}
		})
	}
}

func TestDecodeBlankFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	_, err := NewDecoder(0).Decode(img)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDecodeNilFrame(t *testing.T) {
	if _, err := NewDecoder(0).Decode(nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for nil frame, got %v", err)
	}
}

func TestDecodeWithCenterBox(t *testing.T) {
	code, err := Render("centered", 256)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	// Place the code in the middle of a larger white frame.
	frame := image.NewGray(image.Rect(0, 0, 640, 480))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	offset := image.Pt((640-256)/2, (480-256)/2)
	draw.Draw(frame, image.Rectangle{Min: offset, Max: offset.Add(image.Pt(256, 256))}, code, image.Point{}, draw.Src)

	got, err := NewDecoder(300).Decode(frame)
	if err != nil {
		t.Fatalf("Decode with box failed: %v", err)
	}
	if got != "centered" {
		t.Errorf("Decode = %q, want centered", got)
	}
}

func TestCropCenter(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))

	tests := []struct {
		name string
		box  int
		want image.Rectangle
	}{
		{"zero box keeps frame", 0, image.Rect(0, 0, 640, 480)},
		{"box larger than frame keeps frame", 500, image.Rect(0, 0, 640, 480)},
		{"box is copied to origin", 300, image.Rect(0, 0, 300, 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CropCenter(img, tt.box).Bounds()
			if got != tt.want {
				t.Errorf("bounds = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := Render("", 256); err == nil {
		t.Error("expected error rendering empty value")
	}
	if _, err := Render("too small", 16); err == nil {
		t.Error("expected error for a size smaller than the symbol")
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, "png payload", 200); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 200 {
		t.Errorf("width = %d, want 200", img.Bounds().Dx())
	}

	got, err := NewDecoder(0).Decode(img)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "png payload" {
		t.Errorf("Decode = %q", got)
	}
}

func TestRenderText(t *testing.T) {
	text, err := RenderText("A")
	if err != nil {
		t.Fatalf("RenderText failed: %v", err)
	}

	// "A" fits a version 1 code: 21 modules plus a quiet zone on both sides.
	side := 21 + 2*textQuietZone
	lines := strings.Split(text, "\n")
	if len(lines) != (side+1)/2 {
		t.Errorf("got %d lines, want %d", len(lines), (side+1)/2)
	}
	for i, line := range lines {
		if n := utf8.RuneCountInString(line); n != side {
			t.Errorf("line %d has %d cells, want %d", i, n, side)
		}
	}
	if !strings.ContainsRune(text, '█') {
		t.Error("expected filled cells")
	}
	if strings.TrimSpace(lines[0]) != "" {
		t.Error("first line should be quiet zone")
	}

	if _, err := RenderText(""); err == nil {
		t.Error("expected error for empty value")
	}
}
