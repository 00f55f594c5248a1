package previewkit

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gg"

	"preview_engine/insets"
	"preview_engine/preview"
)

type result struct {
	pix     []byte
	width   int
	height  int
	errText string
}

// renderOne invokes lib's render entry point with default environment values.
func renderOne(lib *Library, fn string, param any, widthDp, heightDp int, density float64, wire string) result {
	pix, w, h, errText := lib.Render(fn, param, widthDp, heightDp, density, 1, false, "", false, true, wire)
	return result{pix, w, h, errText}
}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib := NewLibrary("test")

	lib.MustRegister("test.Corners", func(s *Surface, _ any) error {
		s.SetPixel(0, 0, gg.RGB(1, 0, 0))
		s.SetPixel(299, 179, gg.RGB(1, 0, 0))
		return nil
	})
	lib.MustRegister("test.Declared", func(s *Surface, param any) error {
		h, _ := param.(int64)
		s.SetContentSize(300, int(h))
		return nil
	})
	lib.MustRegister("test.Red", func(s *Surface, _ any) error {
		s.ClearWithColor(gg.RGB(1, 0, 0))
		return nil
	})
	lib.MustRegister("test.Empty", func(*Surface, any) error { return nil })
	lib.MustRegister("test.Panics", func(*Surface, any) error { panic("boom") })
	lib.MustRegister("test.Errors", func(*Surface, any) error { return errors.New("layout failed: width overflow") })
	lib.MustRegister("test.Param", func(s *Surface, param any) error {
		if param != "hello" {
			return errors.New("unexpected param")
		}
		return nil
	})

	return lib
}

func TestPixelSize(t *testing.T) {
	tests := []struct {
		dp       int
		density  float64
		wantPx   int
		wantAuto bool
	}{
		{100, 1, 100, false},
		{100, 1.5, 150, false},
		{101, 2.625, 265, false},
		{-1, 1, 1024, true},
		{-1, 2, 2048, true},
		{0, 3, 3072, true},
		{1, 0.5, 512, true},
	}

	for _, tt := range tests {
		px, auto := PixelSize(tt.dp, tt.density)
		if px != tt.wantPx || auto != tt.wantAuto {
			t.Errorf("PixelSize(%d, %v) = %d, %v; want %d, %v", tt.dp, tt.density, px, auto, tt.wantPx, tt.wantAuto)
		}
	}
}

func TestRender_AutoSizeCropsToMeasuredContent(t *testing.T) {
	lib := newTestLibrary(t)

	// widthDp=-1, heightDp=200 at density 2: surface is 2048x400.
	got := renderOne(lib, "test.Corners", nil, -1, 200, 2, "")
	if got.errText != "" {
		t.Fatalf("unexpected error: %s", got.errText)
	}
	if got.width != 300 || got.height != 180 {
		t.Errorf("size = %dx%d, want 300x180", got.width, got.height)
	}
	if len(got.pix) != 300*180*4 {
		t.Errorf("len(pix) = %d, want %d", len(got.pix), 300*180*4)
	}
}

func TestRender_CropIsBoundedBySurface(t *testing.T) {
	lib := newTestLibrary(t)

	got := renderOne(lib, "test.Declared", int64(500), -1, 200, 2, "")
	if got.errText != "" {
		t.Fatalf("unexpected error: %s", got.errText)
	}
	if got.width != 300 || got.height != 400 {
		t.Errorf("size = %dx%d, want 300x400", got.width, got.height)
	}
}

func TestRender_EmptyAutoContentIsOnePixel(t *testing.T) {
	lib := newTestLibrary(t)

	got := renderOne(lib, "test.Empty", nil, -1, -1, 1, "")
	if got.width != 1 || got.height != 1 {
		t.Errorf("size = %dx%d, want 1x1", got.width, got.height)
	}
}

func TestRender_FixedSizeIsNotCropped(t *testing.T) {
	lib := newTestLibrary(t)

	got := renderOne(lib, "test.Red", nil, 100, 50, 1.5, "")
	if got.errText != "" {
		t.Fatalf("unexpected error: %s", got.errText)
	}
	if got.width != 150 || got.height != 75 {
		t.Fatalf("size = %dx%d, want 150x75", got.width, got.height)
	}
	if got.pix[0] != 255 || got.pix[1] != 0 || got.pix[2] != 0 || got.pix[3] != 255 {
		t.Errorf("first pixel = %v, want opaque red", got.pix[:4])
	}
}

func TestRender_Failures(t *testing.T) {
	lib := newTestLibrary(t)

	tests := []struct {
		name     string
		fn       string
		wire     string
		density  float64
		contains []string
		exact    string
		bad      bool
	}{
		{name: "panic", fn: "test.Panics", contains: []string{"panic: boom", "goroutine"}},
		{name: "returned error", fn: "test.Errors", exact: "layout failed: width overflow"},
		{name: "unknown function", fn: "test.Missing", contains: []string{`"test.Missing" not found`}},
		{name: "malformed insets", fn: "test.Red", wire: "statusBarsInsets(0,1)", contains: []string{insets.ErrMalformedWire.Error()}, bad: true},
		{name: "density out of range", fn: "test.Red", density: 1e6, contains: []string{"density"}, bad: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			density := tt.density
			if density == 0 {
				density = 1
			}
			got := renderOne(lib, tt.fn, nil, 10, 10, density, tt.wire)
			if got.pix != nil {
				t.Error("failed render returned pixels")
			}
			if _, bad := CutBadInvocation(got.errText); bad != tt.bad {
				t.Errorf("bad invocation = %v, want %v (errText %q)", bad, tt.bad, got.errText)
			}
			if tt.exact != "" && got.errText != tt.exact {
				t.Errorf("errText = %q, want %q", got.errText, tt.exact)
			}
			for _, sub := range tt.contains {
				if !strings.Contains(got.errText, sub) {
					t.Errorf("errText %q does not contain %q", got.errText, sub)
				}
			}
		})
	}
}

func TestRender_PassesParamAndInsets(t *testing.T) {
	lib := newTestLibrary(t)
	var seen insets.DeviceConfig
	lib.MustRegister("test.Insets", func(s *Surface, _ any) error {
		seen = s.Env.Insets
		return nil
	})

	if got := renderOne(lib, "test.Param", "hello", 10, 10, 1, ""); got.errText != "" {
		t.Errorf("param not delivered: %s", got.errText)
	}

	spec := preview.NewSpec(preview.WithStatusBar(true), preview.WithDensity(2))
	wire := insets.Encode(insets.Derive(spec))
	if got := renderOne(lib, "test.Insets", nil, 10, 10, 2, wire); got.errText != "" {
		t.Fatalf("unexpected error: %s", got.errText)
	}
	if seen.StatusBars.Top.Value() != 44 {
		t.Errorf("status bar top = %v, want 44", seen.StatusBars.Top.Value())
	}
}

func TestLibrary_Register(t *testing.T) {
	lib := NewLibrary("reg")
	noop := func(*Surface, any) error { return nil }

	if err := lib.Register("b.Second", noop); err != nil {
		t.Fatal(err)
	}
	if err := lib.Register("a.First", noop); err != nil {
		t.Fatal(err)
	}
	if err := lib.Register("a.First", noop); !errors.Is(err, ErrDuplicateFunction) {
		t.Errorf("duplicate register error = %v, want ErrDuplicateFunction", err)
	}
	if err := lib.Register("", noop); err == nil {
		t.Error("empty id should be rejected")
	}

	ids := lib.FunctionIDs()
	if len(ids) != 2 || ids[0] != "a.First" || ids[1] != "b.Second" {
		t.Errorf("FunctionIDs() = %v", ids)
	}
	if _, ok := lib.EntryPoints()[RenderEntryPoint]; !ok {
		t.Error("render entry point missing")
	}
	if _, ok := lib.EntryPoints()[ChromeEntryPoint]; !ok {
		t.Error("chrome entry point missing")
	}
}
