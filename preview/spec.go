// Package preview defines the immutable value types that identify what to
// render: the preview specification, its optional parameter and the cache key
// built from them.
//
// All types in this package are comparable with == and carry no behavior
// beyond value semantics, validation and a stable hash, so they can be used
// directly as map keys by the render cache.
package preview

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
)

// NavigationBarMode selects the simulated navigation bar.
type NavigationBarMode int

const (
	NavigationBarOff NavigationBarMode = iota
	NavigationBarGestureBottom
	NavigationBarThreeButtonBottom
	NavigationBarThreeButtonLeft
	NavigationBarThreeButtonRight
)

var navigationBarNames = map[NavigationBarMode]string{
	NavigationBarOff:               "off",
	NavigationBarGestureBottom:     "gesture",
	NavigationBarThreeButtonBottom: "three_button_bottom",
	NavigationBarThreeButtonLeft:   "three_button_left",
	NavigationBarThreeButtonRight:  "three_button_right",
}

// String returns the manifest spelling of the mode.
func (m NavigationBarMode) String() string {
	if name, ok := navigationBarNames[m]; ok {
		return name
	}
	return fmt.Sprintf("navigation_bar(%d)", int(m))
}

// ParseNavigationBarMode parses the manifest spelling of a navigation mode.
func ParseNavigationBarMode(s string) (NavigationBarMode, error) {
	for mode, name := range navigationBarNames {
		if name == s {
			return mode, nil
		}
	}
	return NavigationBarOff, fmt.Errorf("%w: navigation bar %q", ErrInvalidSpec, s)
}

// IsGesture reports whether the mode uses gesture navigation.
func (m NavigationBarMode) IsGesture() bool {
	return m == NavigationBarGestureBottom
}

// DisplayCutoutMode selects the simulated camera cutout position.
type DisplayCutoutMode int

const (
	DisplayCutoutOff DisplayCutoutMode = iota
	DisplayCutoutCameraTop
	DisplayCutoutCameraLeft
	DisplayCutoutCameraRight
	DisplayCutoutCameraBottom
)

var displayCutoutNames = map[DisplayCutoutMode]string{
	DisplayCutoutOff:          "off",
	DisplayCutoutCameraTop:    "camera_top",
	DisplayCutoutCameraLeft:   "camera_left",
	DisplayCutoutCameraRight:  "camera_right",
	DisplayCutoutCameraBottom: "camera_bottom",
}

// String returns the manifest spelling of the mode.
func (m DisplayCutoutMode) String() string {
	if name, ok := displayCutoutNames[m]; ok {
		return name
	}
	return fmt.Sprintf("display_cutout(%d)", int(m))
}

// ParseDisplayCutoutMode parses the manifest spelling of a cutout mode.
func ParseDisplayCutoutMode(s string) (DisplayCutoutMode, error) {
	for mode, name := range displayCutoutNames {
		if name == s {
			return mode, nil
		}
	}
	return DisplayCutoutOff, fmt.Errorf("%w: display cutout %q", ErrInvalidSpec, s)
}

// Color is an optional ARGB color. The zero value means "not set".
type Color struct {
	ARGB  uint32
	Valid bool
}

// ColorARGB returns a set color.
func ColorARGB(argb uint32) Color {
	return Color{ARGB: argb, Valid: true}
}

// RGBA returns the 8-bit components of the color.
func (c Color) RGBA() (r, g, b, a uint8) {
	return uint8(c.ARGB >> 16), uint8(c.ARGB >> 8), uint8(c.ARGB), uint8(c.ARGB >> 24)
}

// Default values for Spec fields. Omitting a field anywhere in the module
// must produce exactly these values.
const (
	DefaultWidthDp               = -1
	DefaultHeightDp              = -1
	DefaultFontScale             = 1.0
	DefaultDensity               = 1.0
	DefaultNavigationBarContrast = true
	DefaultInspectionMode        = true

	// AutoSizeCapDp bounds an auto-sized dimension.
	AutoSizeCapDp = 1024
)

// Upper bounds accepted by Validate. With the largest size and density a
// surface is 32768px on a side.
const (
	MaxDensity   = 8.0
	MaxFontScale = 4.0
	MaxSizeDp    = 4096
)

// Spec is the immutable parameter set describing one desired rendering.
// A negative WidthDp or HeightDp requests auto-sizing for that dimension.
type Spec struct {
	Name                  string
	Group                 string
	WidthDp               int
	HeightDp              int
	Locale                string
	RTL                   bool
	FontScale             float64
	Density               float64
	DarkMode              bool
	Background            Color
	StatusBar             bool
	NavigationBar         NavigationBarMode
	NavigationBarContrast bool
	DisplayCutout         DisplayCutoutMode
	CaptionBar            bool
	InspectionMode        bool
}

// DefaultSpec returns a Spec with every field at its declared default.
func DefaultSpec() Spec {
	return Spec{
		WidthDp:               DefaultWidthDp,
		HeightDp:              DefaultHeightDp,
		FontScale:             DefaultFontScale,
		Density:               DefaultDensity,
		NavigationBar:         NavigationBarOff,
		NavigationBarContrast: DefaultNavigationBarContrast,
		DisplayCutout:         DisplayCutoutOff,
		InspectionMode:        DefaultInspectionMode,
	}
}

// SpecOption overrides one field of DefaultSpec.
type SpecOption func(*Spec)

// NewSpec builds a Spec from DefaultSpec and the given options.
//
// Example:
//
//	spec := preview.NewSpec(
//	    preview.WithSize(360, -1),
//	    preview.WithDensity(2),
//	    preview.WithStatusBar(true),
//	)
func NewSpec(opts ...SpecOption) Spec {
	s := DefaultSpec()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Single-field options.
func WithName(name string) SpecOption { return func(s *Spec) { s.Name = name } }
func WithGroup(group string) SpecOption { return func(s *Spec) { s.Group = group } }
func WithLocale(tag string) SpecOption { return func(s *Spec) { s.Locale = tag } }
func WithRTL(rtl bool) SpecOption { return func(s *Spec) { s.RTL = rtl } }
func WithFontScale(scale float64) SpecOption { return func(s *Spec) { s.FontScale = scale } }
func WithDensity(density float64) SpecOption { return func(s *Spec) { s.Density = density } }
func WithDarkMode(dark bool) SpecOption { return func(s *Spec) { s.DarkMode = dark } }
func WithBackground(argb uint32) SpecOption { return func(s *Spec) { s.Background = ColorARGB(argb) } }
func WithStatusBar(on bool) SpecOption { return func(s *Spec) { s.StatusBar = on } }
func WithCaptionBar(on bool) SpecOption { return func(s *Spec) { s.CaptionBar = on } }
func WithInspectionMode(on bool) SpecOption { return func(s *Spec) { s.InspectionMode = on } }
func WithNavigationBarContrast(on bool) SpecOption {
	return func(s *Spec) { s.NavigationBarContrast = on }
}

// WithSize sets both dimensions in density-independent units.
func WithSize(widthDp, heightDp int) SpecOption {
	return func(s *Spec) {
		s.WidthDp = widthDp
		s.HeightDp = heightDp
	}
}

// WithNavigationBar sets the simulated navigation bar mode.
func WithNavigationBar(mode NavigationBarMode) SpecOption {
	return func(s *Spec) { s.NavigationBar = mode }
}

// WithDisplayCutout sets the simulated camera cutout mode.
func WithDisplayCutout(mode DisplayCutoutMode) SpecOption {
	return func(s *Spec) { s.DisplayCutout = mode }
}

// AutoWidth reports whether the width is auto-sized.
func (s Spec) AutoWidth() bool { return s.WidthDp < 0 }

// AutoHeight reports whether the height is auto-sized.
func (s Spec) AutoHeight() bool { return s.HeightDp < 0 }

// Validate checks the fields that would make a render meaningless.
func (s Spec) Validate() error {
	if !inRange(s.Density, MaxDensity) {
		return fmt.Errorf("%w: density must be > 0 and at most %v, got %v", ErrInvalidSpec, MaxDensity, s.Density)
	}
	if !inRange(s.FontScale, MaxFontScale) {
		return fmt.Errorf("%w: font scale must be > 0 and at most %v, got %v", ErrInvalidSpec, MaxFontScale, s.FontScale)
	}
	if s.WidthDp > MaxSizeDp || s.HeightDp > MaxSizeDp {
		return fmt.Errorf("%w: size %dx%ddp exceeds %ddp", ErrInvalidSpec, s.WidthDp, s.HeightDp, MaxSizeDp)
	}
	if _, ok := navigationBarNames[s.NavigationBar]; !ok {
		return fmt.Errorf("%w: unknown navigation bar mode %d", ErrInvalidSpec, int(s.NavigationBar))
	}
	if _, ok := displayCutoutNames[s.DisplayCutout]; !ok {
		return fmt.Errorf("%w: unknown display cutout mode %d", ErrInvalidSpec, int(s.DisplayCutout))
	}
	if s.Locale != "" {
		if _, err := ParseLocale(s.Locale); err != nil {
			return err
		}
	}
	return nil
}

// inRange reports whether v is finite, positive and at most limit. NaN fails
// every comparison.
func inRange(v, limit float64) bool {
	return v > 0 && v <= limit && !math.IsInf(v, 0)
}

// ParseLocale parses a BCP-47 locale tag. The empty string is the root
// locale.
func ParseLocale(tag string) (language.Tag, error) {
	if tag == "" {
		return language.Und, nil
	}
	t, err := language.Parse(tag)
	if err != nil {
		return language.Und, fmt.Errorf("%w: locale %q: %v", ErrInvalidSpec, tag, err)
	}
	return t, nil
}
