package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// PNG magic bytes for file identification
var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Image validation errors
var (
	ErrImageEmpty       = errors.New("sandbox: image data is empty")
	ErrImageNotPNG      = errors.New("sandbox: image data is not a valid PNG")
	ErrImageDecodeFail  = errors.New("sandbox: failed to decode image")
	ErrImageInvalidSize = errors.New("sandbox: invalid image dimensions")
)

// RawImage is the pixel payload returned across the isolation boundary:
// width*height non-premultiplied RGBA pixels, 4 bytes each, no row padding.
type RawImage struct {
	Pix    []byte
	Width  int
	Height int
}

// ImageDataSize calculates the byte size needed for RGBA image data.
// This is a pure helper function.
func ImageDataSize(width, height int) int {
	return width * height * 4
}

// Validate checks the dimensions against the pixel buffer.
func (r RawImage) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: width=%d height=%d", ErrImageInvalidSize, r.Width, r.Height)
	}
	if want := ImageDataSize(r.Width, r.Height); len(r.Pix) != want {
		return fmt.Errorf("%w: expected %d bytes for %dx%d RGBA, got %d",
			ErrImageInvalidSize, want, r.Width, r.Height, len(r.Pix))
	}
	return nil
}

// NRGBA wraps the pixels as an image without copying.
func (r RawImage) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.Pix,
		Stride: 4 * r.Width,
		Rect:   image.Rect(0, 0, r.Width, r.Height),
	}
}

// IsPNG checks if the given data starts with PNG magic bytes.
// This is a pure function with no side effects.
func IsPNG(data []byte) bool {
	if len(data) < len(pngMagic) {
		return false
	}
	return bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// DecodePNG decodes PNG data into a RawImage, converting any color model to
// non-premultiplied RGBA.
func DecodePNG(data []byte) (RawImage, error) {
	if len(data) == 0 {
		return RawImage{}, ErrImageEmpty
	}
	if !IsPNG(data) {
		return RawImage{}, ErrImageNotPNG
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return RawImage{}, fmt.Errorf("%w: %v", ErrImageDecodeFail, err)
	}

	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return RawImage{Pix: nrgba.Pix, Width: b.Dx(), Height: b.Dy()}, nil
}

// EncodePNG encodes the image as PNG.
func (r RawImage) EncodePNG() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.NRGBA()); err != nil {
		return nil, fmt.Errorf("sandbox: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
