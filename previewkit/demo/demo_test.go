package demo

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"preview_engine/previewkit"
)

func render(lib *previewkit.Library, fn string, param any, widthDp, heightDp int, density float64) (int, int, string) {
	_, w, h, errText := lib.Render(fn, param, widthDp, heightDp, density, 1, false, "", false, true, "")
	return w, h, errText
}

func TestLibrary_Functions(t *testing.T) {
	lib := NewLibrary()
	want := []string{Badge, Broken, Button, Card, Fails, Logo, Swatch}
	got := lib.FunctionIDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("FunctionIDs() = %v, want %v", got, want)
	}
}

func TestButton_WidthFollowsLabel(t *testing.T) {
	lib := NewLibrary()

	w, h, errText := render(lib, Button, "Hello", -1, -1, 2)
	if errText != "" {
		t.Fatalf("unexpected error: %s", errText)
	}
	// 24dp padding + 9sp per rune at density 2.
	if w != 138 || h != 80 {
		t.Errorf("size = %dx%d, want 138x80", w, h)
	}
}

func TestFixedSizePreviews(t *testing.T) {
	lib := NewLibrary()

	tests := []struct {
		fn    string
		param any
	}{
		{Card, nil},
		{Badge, nil},
		{Swatch, int64(0xff336699)},
	}
	for _, tt := range tests {
		w, h, errText := render(lib, tt.fn, tt.param, 120, 90, 1)
		if errText != "" {
			t.Errorf("%s: unexpected error: %s", tt.fn, errText)
			continue
		}
		if w != 120 || h != 90 {
			t.Errorf("%s: size = %dx%d, want 120x90", tt.fn, w, h)
		}
	}
}

func TestFailingPreviews(t *testing.T) {
	lib := NewLibrary()

	if _, _, errText := render(lib, Broken, nil, 10, 10, 1); !strings.Contains(errText, "index out of range") {
		t.Errorf("Broken errText = %q", errText)
	}
	if _, _, errText := render(lib, Fails, nil, 10, 10, 1); errText != ErrDemoFailure.Error() {
		t.Errorf("Fails errText = %q, want %q", errText, ErrDemoFailure.Error())
	}
	if _, _, errText := render(lib, Swatch, "red", 10, 10, 1); !strings.Contains(errText, "int color") {
		t.Errorf("Swatch errText = %q", errText)
	}
}

func TestLogo_ReadsAmbientResource(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 12))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.NRGBA{R: 10, A: 255})

	f, err := os.Create(filepath.Join(dir, LogoResource))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	lib := NewLibrary()

	if _, _, errText := render(lib, Logo, nil, -1, -1, 1); !strings.Contains(errText, "resource not found") {
		t.Errorf("without roots errText = %q", errText)
	}

	scope := previewkit.EnterResources([]string{dir})
	defer scope.Release()

	w, h, errText := render(lib, Logo, nil, -1, -1, 1)
	if errText != "" {
		t.Fatalf("unexpected error: %s", errText)
	}
	if w != 16 || h != 12 {
		t.Errorf("size = %dx%d, want 16x12", w, h)
	}
}
