package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"preview_engine/preview"
	"preview_engine/sandbox"
)

// Compositing errors
var (
	ErrLayerMismatch = errors.New("render: overlay size differs from content")
	ErrEmptyLayer    = errors.New("render: layer has no pixels")
)

// Composite stacks the background fill (if set), the content layer and the
// overlay layer onto a new buffer of the content's size.
// This is a pure function with no side effects.
func Composite(background preview.Color, content, overlay sandbox.RawImage) (*image.NRGBA, error) {
	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("%w: content: %v", ErrEmptyLayer, err)
	}
	if err := overlay.Validate(); err != nil {
		return nil, fmt.Errorf("%w: overlay: %v", ErrEmptyLayer, err)
	}
	if content.Width != overlay.Width || content.Height != overlay.Height {
		return nil, fmt.Errorf("%w: content %dx%d, overlay %dx%d",
			ErrLayerMismatch, content.Width, content.Height, overlay.Width, overlay.Height)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, content.Width, content.Height))
	if background.Valid {
		r, g, b, a := background.RGBA()
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.NRGBA{R: r, G: g, B: b, A: a}), image.Point{}, draw.Src)
	}
	draw.Draw(dst, dst.Bounds(), content.NRGBA(), image.Point{}, draw.Over)
	draw.Draw(dst, dst.Bounds(), overlay.NRGBA(), image.Point{}, draw.Over)
	return dst, nil
}

// Thumbnail scales img to fit within maxSide pixels on its longer side,
// keeping the aspect ratio. Images that already fit are returned unchanged.
func Thumbnail(img *image.NRGBA, maxSide int) *image.NRGBA {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if maxSide <= 0 || (width <= maxSide && height <= maxSide) {
		return img
	}

	// Calculate scaling factor to fit within the square
	scale := float64(maxSide) / float64(max(width, height))
	newWidth := max(1, int(float64(width)*scale))
	newHeight := max(1, int(float64(height)*scale))

	scaled := image.NewNRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
	return scaled
}
