package insets

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedWire is returned when a wire string does not follow the inset
// protocol. It indicates a programming-contract violation between the
// pipeline and the preview runtime, not a per-preview failure.
var ErrMalformedWire = errors.New("insets: malformed inset wire string")

// Wire token names in protocol order.
const (
	WireCaptionBar              = "captionBarInsets"
	WireDisplayCutout           = "displayCutoutInsets"
	WireIME                     = "imeInsets"
	WireMandatorySystemGestures = "mandatorySystemGestureInsets"
	WireNavigationBars          = "navigationBarsInsets"
	WireStatusBars              = "statusBarsInsets"
	WireSystemGestures          = "systemGesturesInsets"
	WireTappableElement         = "tappableElementInsets"
	WireWaterfall               = "waterfallInsets"
)

// WireOrder is the fixed token order of the wire form.
var WireOrder = [9]string{
	WireCaptionBar,
	WireDisplayCutout,
	WireIME,
	WireMandatorySystemGestures,
	WireNavigationBars,
	WireStatusBars,
	WireSystemGestures,
	WireTappableElement,
	WireWaterfall,
}

// regions returns pointers to the regions of d in wire order.
func (d *DeviceConfig) regions() [9]*Configs {
	return [9]*Configs{
		&d.CaptionBar,
		&d.DisplayCutout,
		&d.IME,
		&d.MandatorySystemGestures,
		&d.NavigationBars,
		&d.StatusBars,
		&d.SystemGestures,
		&d.TappableElement,
		&d.Waterfall,
	}
}

// Region returns the region for a wire token name.
func (d DeviceConfig) Region(name string) (Configs, bool) {
	regions := d.regions()
	for i, n := range WireOrder {
		if n == name {
			return *regions[i], true
		}
	}
	return AllOff, false
}

// Encode serializes the device config as
// "captionBarInsets(l,t,r,b)|displayCutoutInsets(l,t,r,b)|...".
// Each value is the logical inset rounded to the nearest device pixel; Off
// and Hidden edges are written as 0.
func Encode(d DeviceConfig) string {
	regions := d.regions()
	var sb strings.Builder
	for i, name := range WireOrder {
		if i > 0 {
			sb.WriteByte('|')
		}
		c := regions[i]
		fmt.Fprintf(&sb, "%s(%d,%d,%d,%d)", name,
			wireValue(c.Left), wireValue(c.Top), wireValue(c.Right), wireValue(c.Bottom))
	}
	return sb.String()
}

func wireValue(c Config) int64 {
	return int64(math.Round(c.Value()))
}

// Parse decodes a wire string produced by Encode. Positive values become
// Visible edges, zero values become Off.
func Parse(wire string) (DeviceConfig, error) {
	var d DeviceConfig
	tokens := strings.Split(wire, "|")
	if len(tokens) != len(WireOrder) {
		return d, fmt.Errorf("%w: want %d tokens, got %d", ErrMalformedWire, len(WireOrder), len(tokens))
	}

	regions := d.regions()
	for i, token := range tokens {
		name, values, err := parseToken(token)
		if err != nil {
			return DeviceConfig{}, err
		}
		if name != WireOrder[i] {
			return DeviceConfig{}, fmt.Errorf("%w: token %d is %q, want %q", ErrMalformedWire, i, name, WireOrder[i])
		}
		var c Configs
		for j, e := range Edges {
			if values[j] > 0 {
				c = c.WithEdge(e, VisibleConfig(float64(values[j])))
			}
		}
		*regions[i] = c
	}
	return d, nil
}

// MustParse is Parse for wire strings that are known to be well formed.
func MustParse(wire string) DeviceConfig {
	d, err := Parse(wire)
	if err != nil {
		panic(err)
	}
	return d
}

func parseToken(token string) (string, [4]int64, error) {
	var values [4]int64

	open := strings.IndexByte(token, '(')
	if open <= 0 || !strings.HasSuffix(token, ")") {
		return "", values, fmt.Errorf("%w: token %q", ErrMalformedWire, token)
	}
	name := token[:open]
	parts := strings.Split(token[open+1:len(token)-1], ",")
	if len(parts) != 4 {
		return "", values, fmt.Errorf("%w: token %q has %d values", ErrMalformedWire, token, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return "", values, fmt.Errorf("%w: token %q: %v", ErrMalformedWire, token, err)
		}
		if v < 0 {
			return "", values, fmt.Errorf("%w: token %q has negative value", ErrMalformedWire, token)
		}
		values[i] = v
	}
	return name, values, nil
}
