package insets

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"preview_engine/preview"
)

func TestEncode_Scenario(t *testing.T) {
	spec := preview.NewSpec(
		preview.WithStatusBar(true),
		preview.WithNavigationBar(preview.NavigationBarThreeButtonBottom),
		preview.WithDisplayCutout(preview.DisplayCutoutCameraTop),
	)

	got := Encode(Derive(spec))
	want := "captionBarInsets(0,0,0,0)" +
		"|displayCutoutInsets(0,52,0,0)" +
		"|imeInsets(0,0,0,0)" +
		"|mandatorySystemGestureInsets(0,52,0,48)" +
		"|navigationBarsInsets(0,0,0,48)" +
		"|statusBarsInsets(0,52,0,0)" +
		"|systemGesturesInsets(0,52,0,48)" +
		"|tappableElementInsets(0,52,0,48)" +
		"|waterfallInsets(0,0,0,0)"
	if got != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", got, want)
	}
}

func TestEncode_Snapshot(t *testing.T) {
	spec := preview.NewSpec(
		preview.WithStatusBar(true),
		preview.WithCaptionBar(true),
		preview.WithNavigationBar(preview.NavigationBarGestureBottom),
		preview.WithDisplayCutout(preview.DisplayCutoutCameraLeft),
		preview.WithDensity(2.75),
		preview.WithFontScale(1.3),
	)
	snaps.MatchSnapshot(t, Encode(Derive(spec)))
}

func TestEncode_HiddenAndOffAreZero(t *testing.T) {
	d := DeviceConfig{
		StatusBars: Configs{Top: HiddenConfig(80), Bottom: Config{Size: 12, Visibility: Off}},
	}
	if got := Encode(d); !strings.Contains(got, "statusBarsInsets(0,0,0,0)") {
		t.Errorf("hidden/off edges not encoded as 0: %s", got)
	}
}

func TestWire_RoundTripRounds(t *testing.T) {
	densities := []float64{1, 1.5, 2.625, 3.3}
	for _, density := range densities {
		spec := preview.NewSpec(
			preview.WithStatusBar(true),
			preview.WithCaptionBar(true),
			preview.WithFontScale(1.15),
			preview.WithDensity(density),
			preview.WithNavigationBar(preview.NavigationBarGestureBottom),
			preview.WithDisplayCutout(preview.DisplayCutoutCameraTop),
		)
		original := Derive(spec)

		parsed, err := Parse(Encode(original))
		if err != nil {
			t.Fatalf("density %v: Parse() error = %v", density, err)
		}

		for _, name := range WireOrder {
			want, _ := original.Region(name)
			got, _ := parsed.Region(name)
			for _, e := range Edges {
				if g, w := got.Edge(e).Value(), math.Round(want.Edge(e).Value()); g != w {
					t.Errorf("density %v %s edge %d = %v, want %v", density, name, e, g, w)
				}
			}
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	valid := Encode(DeviceConfig{})

	tests := map[string]string{
		"empty":          "",
		"too few tokens": strings.Join(strings.Split(valid, "|")[:8], "|"),
		"missing paren":  strings.Replace(valid, "imeInsets(0,0,0,0)", "imeInsets0,0,0,0", 1),
		"three values":   strings.Replace(valid, "imeInsets(0,0,0,0)", "imeInsets(0,0,0)", 1),
		"not a number":   strings.Replace(valid, "imeInsets(0,0,0,0)", "imeInsets(0,x,0,0)", 1),
		"negative":       strings.Replace(valid, "imeInsets(0,0,0,0)", "imeInsets(0,-4,0,0)", 1),
		"wrong order":    strings.Replace(valid, "captionBarInsets", "waterfallInsets", 1),
	}

	for name, wire := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(wire); !errors.Is(err, ErrMalformedWire) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformedWire", wire, err)
			}
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on malformed input")
		}
	}()
	MustParse("nope")
}
