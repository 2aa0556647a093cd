// Package qrcode decodes QR codes from images and renders values as QR images.
// Decoding is done by gozxing; rendering by boombuler/barcode.
package qrcode

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotFound is returned when an image holds no readable QR code.
var ErrNotFound = errors.New("no QR code found")

// Decoder extracts the text payload of a QR code from an image.
// The zero value decodes the whole image.
type Decoder struct {
	// Box is the side, in pixels, of the centred square that is decoded.
	// Zero or a box larger than the image decodes the whole frame.
	Box int

	// TryHarder trades speed for accuracy on noisy frames.
	TryHarder bool
}

// NewDecoder creates a decoder for a centred box of the given size.
func NewDecoder(box int) *Decoder {
	return &Decoder{Box: box}
}

// Decode returns the payload of the QR code in img.
// Returns an error wrapping ErrNotFound when nothing could be read.
func (d *Decoder) Decode(img image.Image) (string, error) {
	if img == nil {
		return "", ErrNotFound
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(CropCenter(img, d.Box))
	if err != nil {
		return "", fmt.Errorf("failed to binarize frame: %w", err)
	}

	var hints map[gozxing.DecodeHintType]interface{}
	if d.TryHarder {
		hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}

	result, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return result.GetText(), nil
}

// CropCenter returns a copy of the centred box×box square of img, anchored
// at the origin. If box is zero or does not fit inside img, img is returned
// unchanged.
func CropCenter(img image.Image, box int) image.Image {
	b := img.Bounds()
	if box <= 0 || box >= b.Dx() || box >= b.Dy() {
		return img
	}

	x0 := b.Min.X + (b.Dx()-box)/2
	y0 := b.Min.Y + (b.Dy()-box)/2
	rect := image.Rect(x0, y0, x0+box, y0+box)

	dst := image.NewRGBA(image.Rect(0, 0, box, box))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}
