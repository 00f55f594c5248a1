// Package insets models the simulated system UI regions (status bar,
// navigation bar, camera cutout, caption bar) that surround preview content,
// and their wire form consumed by the preview runtime.
//
// Derive is a pure function of a preview.Spec. Sizes are stored in device
// pixels; the dp constants below are multiplied by Spec.Density.
package insets

import (
	"math"

	"preview_engine/preview"
)

// Sizes of the simulated system UI in density-independent units.
const (
	CutoutDp                = 52
	StatusBarDp             = 22
	GestureNavigationDp     = 32
	ThreeButtonNavigationDp = 48
	CaptionBarDp            = 42
	SystemGestureInsetDp    = 30
)

// Visibility of one inset edge.
type Visibility int

const (
	// Off means the inset is absent.
	Off Visibility = iota
	// Visible means the inset is present and reported.
	Visible
	// Hidden means the logical inset is zero but the ignoring-visibility
	// variant keeps the full size.
	Hidden
)

// String returns a short name for logs.
func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	default:
		return "off"
	}
}

// Config is one inset edge: a size in device pixels and its visibility.
type Config struct {
	Size       float64
	Visibility Visibility
}

// OffConfig is the absent inset.
var OffConfig = Config{}

// VisibleConfig returns a visible inset of the given size.
func VisibleConfig(size float64) Config {
	return Config{Size: size, Visibility: Visible}
}

// HiddenConfig returns a hidden inset of the given size.
func HiddenConfig(size float64) Config {
	return Config{Size: size, Visibility: Hidden}
}

// Value returns the logical size: the size when Visible, 0 otherwise.
func (c Config) Value() float64 {
	if c.Visibility == Visible {
		return c.Size
	}
	return 0
}

// IgnoringVisibility returns the size for Visible and Hidden insets, 0 when
// Off.
func (c Config) IgnoringVisibility() float64 {
	if c.Visibility == Off {
		return 0
	}
	return c.Size
}

// Edge names one side of a region.
type Edge int

const (
	Left Edge = iota
	Top
	Right
	Bottom
)

// Edges lists all edges in wire order.
var Edges = [4]Edge{Left, Top, Right, Bottom}

// Configs holds the four edges of one logical UI region.
type Configs struct {
	Left   Config
	Top    Config
	Right  Config
	Bottom Config
}

// AllOff is the region with every edge absent.
var AllOff = Configs{}

// Edge returns the config of one edge.
func (c Configs) Edge(e Edge) Config {
	switch e {
	case Left:
		return c.Left
	case Top:
		return c.Top
	case Right:
		return c.Right
	default:
		return c.Bottom
	}
}

// WithEdge returns a copy with one edge replaced.
func (c Configs) WithEdge(e Edge, cfg Config) Configs {
	switch e {
	case Left:
		c.Left = cfg
	case Top:
		c.Top = cfg
	case Right:
		c.Right = cfg
	default:
		c.Bottom = cfg
	}
	return c
}

// DeviceConfig holds the inset regions of every simulated system UI element.
// MandatorySystemGestures and TappableElement are always the visible union of
// DisplayCutout, StatusBars, NavigationBars and CaptionBar.
type DeviceConfig struct {
	CaptionBar              Configs
	DisplayCutout           Configs
	IME                     Configs
	MandatorySystemGestures Configs
	NavigationBars          Configs
	StatusBars              Configs
	SystemGestures          Configs
	TappableElement         Configs
	Waterfall               Configs
}

// UnionVisible returns, per edge, the largest size among the configs whose
// edge is Visible. An edge without any Visible contributor, including the
// empty input, is Off with size 0.
func UnionVisible(configs ...Configs) Configs {
	var out Configs
	for _, e := range Edges {
		best := OffConfig
		for _, c := range configs {
			cfg := c.Edge(e)
			if cfg.Visibility != Visible {
				continue
			}
			if best.Visibility != Visible || cfg.Size > best.Size {
				best = VisibleConfig(cfg.Size)
			}
		}
		out = out.WithEdge(e, best)
	}
	return out
}

// Derive computes the device inset configuration for a preview spec.
func Derive(spec preview.Spec) DeviceConfig {
	density := spec.Density
	px := func(dp float64) float64 { return dp * density }

	cutoutDp := cutoutEdgesDp(spec.DisplayCutout)
	var cutout Configs
	for _, e := range Edges {
		if d := cutoutDp[e]; d > 0 {
			cutout = cutout.WithEdge(e, VisibleConfig(px(d)))
		}
	}

	var status Configs
	if spec.StatusBar {
		top := math.Max(StatusBarDp*spec.FontScale, cutoutDp[Top])
		status.Top = VisibleConfig(px(top))
	}

	var nav Configs
	switch spec.NavigationBar {
	case preview.NavigationBarGestureBottom:
		nav.Bottom = VisibleConfig(px(GestureNavigationDp + cutoutDp[Bottom]))
	case preview.NavigationBarThreeButtonBottom:
		nav.Bottom = VisibleConfig(px(ThreeButtonNavigationDp + cutoutDp[Bottom]))
	case preview.NavigationBarThreeButtonLeft:
		nav.Left = VisibleConfig(px(ThreeButtonNavigationDp + cutoutDp[Left]))
	case preview.NavigationBarThreeButtonRight:
		nav.Right = VisibleConfig(px(ThreeButtonNavigationDp + cutoutDp[Right]))
	}

	var caption Configs
	if spec.CaptionBar {
		caption.Top = VisibleConfig(px(CaptionBarDp))
	}

	union := UnionVisible(cutout, status, nav, caption)

	gestures := union
	if spec.NavigationBar.IsGesture() {
		gestures.Left = VisibleConfig(union.Left.Value() + px(SystemGestureInsetDp))
		gestures.Right = VisibleConfig(union.Right.Value() + px(SystemGestureInsetDp))
	}

	return DeviceConfig{
		CaptionBar:              caption,
		DisplayCutout:           cutout,
		IME:                     AllOff,
		MandatorySystemGestures: union,
		NavigationBars:          nav,
		StatusBars:              status,
		SystemGestures:          gestures,
		TappableElement:         union,
		Waterfall:               AllOff,
	}
}

// cutoutEdgesDp returns the cutout size in dp on each edge.
func cutoutEdgesDp(mode preview.DisplayCutoutMode) [4]float64 {
	var out [4]float64
	switch mode {
	case preview.DisplayCutoutCameraTop:
		out[Top] = CutoutDp
	case preview.DisplayCutoutCameraLeft:
		out[Left] = CutoutDp
	case preview.DisplayCutoutCameraRight:
		out[Right] = CutoutDp
	case preview.DisplayCutoutCameraBottom:
		out[Bottom] = CutoutDp
	}
	return out
}
