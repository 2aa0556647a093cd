package qrcode

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultRenderSize is the side of rendered QR images in pixels, quiet zone included.
const DefaultRenderSize = 256

// Render encodes value as a QR code image of size×size pixels.
// A white quiet zone of one eighth of the size surrounds the symbol so the
// image can be printed or decoded as is.
func Render(value string, size int) (image.Image, error) {
	if value == "" {
		return nil, fmt.Errorf("cannot render empty value")
	}
	if size <= 0 {
		size = DefaultRenderSize
	}

	margin := size / 8
	inner := size - 2*margin

	code, err := qr.Encode(value, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	if inner < code.Bounds().Dx() {
		return nil, fmt.Errorf("size %d too small for a %d-module code", size, code.Bounds().Dx())
	}

	scaled, err := barcode.Scale(code, inner, inner)
	if err != nil {
		return nil, fmt.Errorf("failed to scale QR code: %w", err)
	}

	canvas := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(margin, margin, margin+inner, margin+inner), scaled, scaled.Bounds().Min, draw.Src)

	return canvas, nil
}

// WritePNG renders value and writes it to w as a PNG.
func WritePNG(w io.Writer, value string, size int) error {
	img, err := Render(value, size)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// textQuietZone is the quiet zone of RenderText, in modules.
const textQuietZone = 2

// RenderText draws value as a QR code with Unicode half blocks, two module
// rows per text line. Dark modules are filled cells; callers render it dark
// on light.
func RenderText(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("cannot render empty value")
	}

	code, err := qr.Encode(value, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	n := code.Bounds().Dx()
	dark := func(x, y int) bool {
		x -= textQuietZone
		y -= textQuietZone
		if x < 0 || y < 0 || x >= n || y >= n {
			return false
		}
		r, _, _, _ := code.At(x, y).RGBA()
		return r < 0x8000
	}

	side := n + 2*textQuietZone
	var b strings.Builder
	for y := 0; y < side; y += 2 {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < side; x++ {
			top, bottom := dark(x, y), dark(x, y+1)
			switch {
			case top && bottom:
				b.WriteRune('█')
			case top:
				b.WriteRune('▀')
			case bottom:
				b.WriteRune('▄')
			default:
				b.WriteByte(' ')
			}
		}
	}
	return b.String(), nil
}
