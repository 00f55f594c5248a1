package previewkit

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/gogpu/gg"
	"golang.org/x/image/draw"
	"golang.org/x/text/language"

	"preview_engine/insets"
	"preview_engine/preview"
)

// Environment is the decoded rendering environment of one invocation.
type Environment struct {
	WidthPx        int
	HeightPx       int
	AutoWidth      bool
	AutoHeight     bool
	Density        float64
	FontScale      float64
	DarkMode       bool
	Locale         language.Tag
	RTL            bool
	InspectionMode bool
	Insets         insets.DeviceConfig
}

// PixelSize converts a dp dimension into device pixels: floor(dp*density).
// A result below one pixel requests auto-sizing and yields the auto-size cap
// in pixels; auto reports that case.
func PixelSize(dp int, density float64) (px int, auto bool) {
	px = int(math.Floor(float64(dp) * density))
	if px < 1 {
		return int(math.Floor(preview.AutoSizeCapDp * density)), true
	}
	return px, false
}

// NewEnvironment decodes the primitive invocation arguments. Every error
// wraps ErrBadInvocation: the caller sent arguments a valid preview.Spec
// cannot produce.
func NewEnvironment(widthDp, heightDp int, density, fontScale float64, darkMode bool, locale string, rtl, inspectionMode bool, insetsWire string) (Environment, error) {
	if !(density > 0) || density > preview.MaxDensity {
		return Environment{}, fmt.Errorf("%w: density %v out of range", ErrBadInvocation, density)
	}
	if !(fontScale > 0) || fontScale > preview.MaxFontScale {
		return Environment{}, fmt.Errorf("%w: font scale %v out of range", ErrBadInvocation, fontScale)
	}
	if widthDp > preview.MaxSizeDp || heightDp > preview.MaxSizeDp {
		return Environment{}, fmt.Errorf("%w: size %dx%ddp exceeds %ddp", ErrBadInvocation, widthDp, heightDp, preview.MaxSizeDp)
	}

	tag, err := preview.ParseLocale(locale)
	if err != nil {
		return Environment{}, fmt.Errorf("%w: %w", ErrBadInvocation, err)
	}

	device := insets.DeviceConfig{}
	if insetsWire != "" {
		device, err = insets.Parse(insetsWire)
		if err != nil {
			return Environment{}, fmt.Errorf("%w: %w", ErrBadInvocation, err)
		}
	}

	w, autoW := PixelSize(widthDp, density)
	h, autoH := PixelSize(heightDp, density)

	return Environment{
		WidthPx:        w,
		HeightPx:       h,
		AutoWidth:      autoW,
		AutoHeight:     autoH,
		Density:        density,
		FontScale:      fontScale,
		DarkMode:       darkMode,
		Locale:         tag,
		RTL:            rtl,
		InspectionMode: inspectionMode,
		Insets:         device,
	}, nil
}

// Surface is the offscreen drawing surface handed to a preview function.
// It embeds the gg drawing context sized to the environment's pixel size.
type Surface struct {
	*gg.Context
	Env Environment

	contentW, contentH int
	contentSet         bool
}

// Dp converts a length in dp into device pixels for this surface.
func (s *Surface) Dp(v float64) float64 {
	return v * s.Env.Density
}

// Sp converts a text length in sp into device pixels, honoring font scale.
func (s *Surface) Sp(v float64) float64 {
	return v * s.Env.Density * s.Env.FontScale
}

// SetContentSize declares the measured content size in pixels. Without it
// the content size of an auto-sized surface is the bounding box of its
// non-transparent pixels measured from the origin.
func (s *Surface) SetContentSize(widthPx, heightPx int) {
	s.contentW, s.contentH = widthPx, heightPx
	s.contentSet = true
}

// OpenResource opens a file from the ambient resource roots.
func (s *Surface) OpenResource(name string) (io.ReadCloser, error) {
	return openResource(name)
}

// contentSize returns the measured content size of img.
func (s *Surface) contentSize(img *image.NRGBA) (int, int) {
	if s.contentSet {
		return s.contentW, s.contentH
	}
	return opaqueExtent(img)
}

// opaqueExtent returns the extent from the origin to the farthest pixel with
// non-zero alpha.
func opaqueExtent(img *image.NRGBA) (int, int) {
	b := img.Bounds()
	maxX, maxY := 0, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[(x-b.Min.X)*4+3] == 0 {
				continue
			}
			if x-b.Min.X+1 > maxX {
				maxX = x - b.Min.X + 1
			}
			if y-b.Min.Y+1 > maxY {
				maxY = y - b.Min.Y + 1
			}
		}
	}
	return maxX, maxY
}

// toNRGBA copies img into a tightly packed NRGBA buffer of size w x h taken
// from the top-left corner.
func toNRGBA(img image.Image, w, h int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}

// clampCrop bounds a measured size by the surface size with a 1px minimum.
func clampCrop(measured, limit int) int {
	return max(1, min(measured, limit))
}
