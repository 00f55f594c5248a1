// Package demo is the built-in preview library served by previewd when it runs
// as a worker, and used by tests across the module.
package demo

import (
	"errors"
	"fmt"
	"image/png"

	"github.com/gogpu/gg"

	"preview_engine/previewkit"
)

// Function IDs exported by the demo library.
const (
	Button = "demo.Button"
	Card   = "demo.Card"
	Swatch = "demo.Swatch"
	Badge  = "demo.Badge"
	Logo   = "demo.Logo"
	Broken = "demo.Broken"
	Fails  = "demo.Fails"
)

// ErrDemoFailure is returned by the Fails preview.
var ErrDemoFailure = errors.New("demo: preview reported a failure")

// LogoResource is the resource name loaded by the Logo preview.
const LogoResource = "logo.png"

// NewLibrary returns a fresh demo library.
func NewLibrary() *previewkit.Library {
	return previewkit.NewLibrary("demo").
		MustRegister(Button, button).
		MustRegister(Card, card).
		MustRegister(Swatch, swatch).
		MustRegister(Badge, badge).
		MustRegister(Logo, logo).
		MustRegister(Broken, broken).
		MustRegister(Fails, fails)
}

func foreground(s *previewkit.Surface) (r, g, b float64) {
	if s.Env.DarkMode {
		return 0.55, 0.70, 1.0
	}
	return 0.10, 0.35, 0.85
}

// button is a pill whose width follows the label length.
func button(s *previewkit.Surface, param any) error {
	label, _ := param.(string)
	if label == "" {
		label = "OK"
	}
	w := s.Dp(24) + s.Sp(9)*float64(len([]rune(label)))
	h := s.Dp(40)

	r, g, b := foreground(s)
	s.SetRGB(r, g, b)
	s.DrawRoundedRectangle(0, 0, w, h, h/2)
	s.SetContentSize(int(w), int(h))
	return s.Fill()
}

// card fills the surface and keeps its header below the status bar.
func card(s *previewkit.Surface, _ any) error {
	w, h := float64(s.Env.WidthPx), float64(s.Env.HeightPx)
	if s.Env.DarkMode {
		s.ClearWithColor(gg.RGB(0.11, 0.11, 0.13))
	} else {
		s.ClearWithColor(gg.RGB(0.98, 0.98, 0.98))
	}

	top := s.Env.Insets.StatusBars.Top.Value()
	r, g, b := foreground(s)
	s.SetRGB(r, g, b)
	s.DrawRectangle(0, top, w, s.Dp(56))
	if err := s.Fill(); err != nil {
		return err
	}

	s.SetRGBA(r, g, b, 0.2)
	s.DrawRoundedRectangle(s.Dp(16), top+s.Dp(72), w-s.Dp(32), h/3, s.Dp(12))
	return s.Fill()
}

// swatch draws a 48dp square in the ARGB color given as an int parameter.
func swatch(s *previewkit.Surface, param any) error {
	argb, ok := param.(int64)
	if !ok {
		return fmt.Errorf("swatch expects an int color parameter, got %T", param)
	}
	size := s.Dp(48)
	s.SetRGBA(
		float64(argb>>16&0xff)/255,
		float64(argb>>8&0xff)/255,
		float64(argb&0xff)/255,
		float64(argb>>24&0xff)/255,
	)
	s.DrawRectangle(0, 0, size, size)
	return s.Fill()
}

// badge is a 24dp dot, mirrored for right-to-left layouts.
func badge(s *previewkit.Surface, _ any) error {
	d := s.Dp(24)
	r, g, b := foreground(s)
	s.SetRGB(r, g, b)
	if s.Env.RTL {
		s.DrawCircle(float64(s.Env.WidthPx)-d/2, d/2, d/2)
	} else {
		s.DrawCircle(d/2, d/2, d/2)
	}
	return s.Fill()
}

// logo draws the PNG resource found in the ambient resource roots.
func logo(s *previewkit.Surface, _ any) error {
	rc, err := s.OpenResource(LogoResource)
	if err != nil {
		return err
	}
	defer rc.Close()

	img, err := png.Decode(rc)
	if err != nil {
		return fmt.Errorf("decode %s: %w", LogoResource, err)
	}
	s.DrawImage(gg.ImageBufFromImage(img), 0, 0)
	b := img.Bounds()
	s.SetContentSize(b.Dx(), b.Dy())
	return nil
}

func broken(*previewkit.Surface, any) error {
	var values []int
	return fmt.Errorf("unreachable: %d", values[3])
}

func fails(*previewkit.Surface, any) error {
	return ErrDemoFailure
}
