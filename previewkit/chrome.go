package previewkit

import (
	"fmt"
	"math"

	"preview_engine/insets"
)

// Chrome is the chrome entry point: it draws the simulated system UI for the
// device config carried by insetsWire (status bar, navigation bar, camera
// cutout, caption bar) on a transparent surface. function is ignored; param
// is the navigation bar contrast flag (bool, default true).
//
// Callers that need an overlay of an exact pixel size pass density 1 and the
// pixel size as widthDp/heightDp.
func Chrome(function string, param any, widthDp, heightDp int, density, fontScale float64, darkMode bool, locale string, rtl, inspectionMode bool, insetsWire string) ([]byte, int, int, string) {
	contrast := true
	if b, ok := param.(bool); ok {
		contrast = b
	} else if param != nil {
		return nil, 0, 0, BadInvocationText(fmt.Errorf("%w: chrome contrast parameter must be bool, got %T", ErrBadInvocation, param))
	}

	env, err := NewEnvironment(widthDp, heightDp, density, fontScale, darkMode, locale, rtl, inspectionMode, insetsWire)
	if err != nil {
		return nil, 0, 0, BadInvocationText(err)
	}
	// The overlay always covers the whole surface.
	env.AutoWidth, env.AutoHeight = false, false

	img, err := paint(env, func(s *Surface) error {
		return (&chromePainter{s: s, contrast: contrast}).paint()
	})
	if err != nil {
		return nil, 0, 0, errorText(err)
	}
	return img.Pix, img.Rect.Dx(), img.Rect.Dy(), ""
}

type rgba struct{ r, g, b, a float64 }

type chromePalette struct {
	scrim   rgba
	caption rgba
	icon    rgba
}

var (
	lightChrome = chromePalette{
		scrim:   rgba{0.96, 0.96, 0.96, 0.85},
		caption: rgba{0.88, 0.88, 0.90, 1},
		icon:    rgba{0.12, 0.12, 0.12, 0.9},
	}
	darkChrome = chromePalette{
		scrim:   rgba{0.07, 0.07, 0.08, 0.85},
		caption: rgba{0.16, 0.16, 0.18, 1},
		icon:    rgba{0.94, 0.94, 0.94, 0.9},
	}
	cutoutColor = rgba{0, 0, 0, 1}
)

// chromePainter draws the overlay regions. The first fill error is kept and
// later drawing is skipped.
type chromePainter struct {
	s        *Surface
	contrast bool
	err      error
}

func (p *chromePainter) fill(c rgba) {
	if p.err != nil {
		p.s.ClearPath()
		return
	}
	p.s.SetRGBA(c.r, c.g, c.b, c.a)
	p.err = p.s.Fill()
}

func (p *chromePainter) palette() chromePalette {
	if p.s.Env.DarkMode {
		return darkChrome
	}
	return lightChrome
}

func (p *chromePainter) paint() error {
	d := p.s.Env.Insets
	p.statusBar(d.StatusBars.Top.Value())
	p.captionBar(d.CaptionBar.Top.Value())
	p.navigationBar(d)
	p.cutout(d.DisplayCutout)
	return p.err
}

func (p *chromePainter) statusBar(height float64) {
	if height <= 0 {
		return
	}
	pal := p.palette()
	w := float64(p.s.Env.WidthPx)

	p.s.DrawRectangle(0, 0, w, height)
	p.fill(pal.scrim)

	u := height * 0.35
	cy := height / 2
	clockX, iconsX := u, w-u*4.2
	if p.s.Env.RTL {
		clockX, iconsX = w-u*3.5, u
	}

	// Clock.
	p.s.DrawRoundedRectangle(clockX, cy-u/2, u*2.5, u, u/4)
	p.fill(pal.icon)
	// Signal and battery.
	p.s.DrawCircle(iconsX+u/2, cy, u/2)
	p.s.DrawRoundedRectangle(iconsX+u*1.4, cy-u/2, u*1.8, u, u/5)
	p.fill(pal.icon)
}

func (p *chromePainter) captionBar(height float64) {
	if height <= 0 {
		return
	}
	pal := p.palette()
	w := float64(p.s.Env.WidthPx)

	p.s.DrawRectangle(0, 0, w, height)
	p.fill(pal.caption)

	r := height * 0.16
	for i := 0; i < 3; i++ {
		offset := height * (0.6 + 0.7*float64(i))
		cx := w - offset
		if p.s.Env.RTL {
			cx = offset
		}
		p.s.DrawCircle(cx, height/2, r)
	}
	p.fill(pal.icon)
}

func (p *chromePainter) navigationBar(d insets.DeviceConfig) {
	nav := d.NavigationBars
	w, h := float64(p.s.Env.WidthPx), float64(p.s.Env.HeightPx)
	gesture := d.SystemGestures.Left.Value() > d.MandatorySystemGestures.Left.Value()
	pal := p.palette()

	switch {
	case nav.Bottom.Value() > 0:
		v := nav.Bottom.Value()
		if p.contrast {
			p.s.DrawRectangle(0, h-v, w, v)
			p.fill(pal.scrim)
		}
		if gesture {
			pw, ph := math.Min(w*0.3, v*4), math.Max(v*0.12, 1)
			p.s.DrawRoundedRectangle((w-pw)/2, h-v/2-ph/2, pw, ph, ph/2)
			p.fill(pal.icon)
			return
		}
		p.threeButtons(w/2, h-v/2, v, true)
	case nav.Left.Value() > 0:
		v := nav.Left.Value()
		if p.contrast {
			p.s.DrawRectangle(0, 0, v, h)
			p.fill(pal.scrim)
		}
		p.threeButtons(v/2, h/2, v, false)
	case nav.Right.Value() > 0:
		v := nav.Right.Value()
		if p.contrast {
			p.s.DrawRectangle(w-v, 0, v, h)
			p.fill(pal.scrim)
		}
		p.threeButtons(w-v/2, h/2, v, false)
	}
}

// threeButtons draws back, home and recents centered on (cx, cy) along the
// bar, which is thickness pixels deep.
func (p *chromePainter) threeButtons(cx, cy, thickness float64, horizontal bool) {
	u := thickness * 0.3
	gap := thickness * 1.6
	pos := func(i float64) (float64, float64) {
		if horizontal {
			return cx + i*gap, cy
		}
		return cx, cy + i*gap
	}

	// Back.
	bx, by := pos(-1)
	p.s.MoveTo(bx-u/2, by)
	p.s.LineTo(bx+u/2, by-u/2)
	p.s.LineTo(bx+u/2, by+u/2)
	p.s.ClosePath()
	// Home.
	hx, hy := pos(0)
	p.s.DrawCircle(hx, hy, u/2)
	// Recents.
	rx, ry := pos(1)
	p.s.DrawRectangle(rx-u/2, ry-u/2, u, u)
	p.fill(p.palette().icon)
}

func (p *chromePainter) cutout(c insets.Configs) {
	w, h := float64(p.s.Env.WidthPx), float64(p.s.Env.HeightPx)
	for _, e := range insets.Edges {
		v := c.Edge(e).Value()
		if v <= 0 {
			continue
		}
		r := v * 0.3
		switch e {
		case insets.Top:
			p.s.DrawCircle(w/2, v/2, r)
		case insets.Bottom:
			p.s.DrawCircle(w/2, h-v/2, r)
		case insets.Left:
			p.s.DrawCircle(v/2, h/2, r)
		case insets.Right:
			p.s.DrawCircle(w-v/2, h/2, r)
		}
		p.fill(cutoutColor)
	}
}
