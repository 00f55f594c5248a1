package sandbox

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestIsPNG_InvalidData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", []byte{0x89, 0x50}},
		{"wrong magic", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"jpeg magic", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if IsPNG(tt.data) {
				t.Errorf("expected IsPNG to return false for %s", tt.name)
			}
		})
	}
}

func TestRawImage_PNGRoundTrip(t *testing.T) {
	src := RawImage{Pix: make([]byte, ImageDataSize(3, 2)), Width: 3, Height: 2}
	for i := range src.Pix {
		src.Pix[i] = byte(i * 9)
	}
	// Fully opaque pixels survive PNG exactly.
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xFF
	}

	data, err := src.EncodePNG()
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	if !IsPNG(data) {
		t.Fatal("encoded data lacks PNG magic")
	}

	got, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG() error = %v", err)
	}
	if got.Width != 3 || got.Height != 2 || !bytes.Equal(got.Pix, src.Pix) {
		t.Errorf("round trip mismatch: %dx%d %v", got.Width, got.Height, got.Pix)
	}
}

func TestDecodePNG_ConvertsColorModel(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.SetGray(1, 1, color.Gray{Y: 200})
	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		t.Fatal(err)
	}

	got, err := DecodePNG(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if err := got.Validate(); err != nil {
		t.Fatal(err)
	}
	c := got.NRGBA().NRGBAAt(1, 1)
	if c != (color.NRGBA{R: 200, G: 200, B: 200, A: 255}) {
		t.Errorf("pixel = %v", c)
	}
}

func TestDecodePNG_Errors(t *testing.T) {
	if _, err := DecodePNG(nil); !errors.Is(err, ErrImageEmpty) {
		t.Errorf("empty: %v", err)
	}
	if _, err := DecodePNG([]byte("not a png at all")); !errors.Is(err, ErrImageNotPNG) {
		t.Errorf("not png: %v", err)
	}
	truncated := append([]byte{}, pngMagic...)
	truncated = append(truncated, 0, 0, 0, 13)
	if _, err := DecodePNG(truncated); !errors.Is(err, ErrImageDecodeFail) {
		t.Errorf("truncated: %v", err)
	}
}

func TestRawImage_Validate(t *testing.T) {
	tests := []struct {
		name string
		img  RawImage
		ok   bool
	}{
		{"valid", RawImage{Pix: make([]byte, 16), Width: 2, Height: 2}, true},
		{"zero width", RawImage{Pix: nil, Width: 0, Height: 2}, false},
		{"negative height", RawImage{Pix: nil, Width: 2, Height: -1}, false},
		{"short buffer", RawImage{Pix: make([]byte, 15), Width: 2, Height: 2}, false},
		{"long buffer", RawImage{Pix: make([]byte, 20), Width: 2, Height: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.img.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, ok %v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrImageInvalidSize) {
				t.Errorf("Validate() error = %v, want ErrImageInvalidSize", err)
			}
		})
	}
}
