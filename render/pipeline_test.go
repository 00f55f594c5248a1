package render

import (
	"context"
	"image/color"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"preview_engine/preview"
	"preview_engine/previewkit"
	"preview_engine/previewkit/demo"
	"preview_engine/sandbox"
)

const (
	fillRed   = "test.FillRed"
	fixedArea = "test.FixedArea"
	empty     = "test.Empty"
)

func testLibrary() *previewkit.Library {
	return demo.NewLibrary().
		MustRegister(fillRed, func(s *previewkit.Surface, _ any) error {
			s.SetRGB(1, 0, 0)
			s.DrawRectangle(0, 0, float64(s.Env.WidthPx), float64(s.Env.HeightPx))
			return s.Fill()
		}).
		MustRegister(fixedArea, func(s *previewkit.Surface, _ any) error {
			s.SetRGB(0, 0, 1)
			s.DrawRectangle(0, 0, 300, 180)
			if err := s.Fill(); err != nil {
				return err
			}
			s.SetContentSize(300, 180)
			return nil
		}).
		MustRegister(empty, func(s *previewkit.Surface, _ any) error {
			return nil
		})
}

type recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *recorder) ObserveRender(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func newTestPipeline(t *testing.T, observers ...Observer) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	resolver := sandbox.NewResolver(sandbox.NewInProcessLoader(sandbox.StaticLibrary(testLibrary())), logger)
	t.Cleanup(func() { resolver.Close() })
	return NewPipeline(resolver, logger, observers...)
}

func TestPipeline_AutoSizeCrop(t *testing.T) {
	p := newTestPipeline(t)
	spec := preview.NewSpec(preview.WithSize(-1, 200), preview.WithDensity(2))

	state := p.Render(context.Background(), sandbox.Generation{Counter: 1}, preview.NewKey(fixedArea, preview.NoParam, spec))
	if !state.IsSuccess() {
		t.Fatalf("state = %v, want Success", state)
	}
	if b := state.Image.Bounds(); b.Dx() != 300 || b.Dy() != 180 {
		t.Errorf("image = %dx%d, want 300x180", b.Dx(), b.Dy())
	}
	if state.Size != (SizeDp{Width: 150, Height: 90}) {
		t.Errorf("size = %+v, want 150x90dp", state.Size)
	}
}

func TestPipeline_ErrorMessageVerbatim(t *testing.T) {
	rec := &recorder{}
	p := newTestPipeline(t, rec)

	state := p.Render(context.Background(), sandbox.Generation{Counter: 1}, preview.NewKey(demo.Fails, preview.NoParam, preview.DefaultSpec()))
	if !state.IsError() || state.Message != demo.ErrDemoFailure.Error() {
		t.Fatalf("state = %v, want Error(%q)", state, demo.ErrDemoFailure.Error())
	}

	state = p.Render(context.Background(), sandbox.Generation{Counter: 1}, preview.NewKey(demo.Broken, preview.NoParam, preview.DefaultSpec()))
	if !state.IsError() || !strings.Contains(state.Message, "index out of range") {
		t.Errorf("panic state = %v", state)
	}

	if len(rec.records) != 2 || rec.records[0].Status != StatusError || rec.records[0].Message != demo.ErrDemoFailure.Error() {
		t.Errorf("records = %+v", rec.records)
	}
}

func TestPipeline_ResolutionAndLookupFailures(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	bad := sandbox.Generation{Counter: 2, OutputDirs: []string{"/no/such/output"}}
	state := p.Render(ctx, bad, preview.NewKey(demo.Button, preview.NoParam, preview.DefaultSpec()))
	if !state.IsError() || !strings.Contains(state.Message, "failed to resolve") {
		t.Errorf("resolution state = %v", state)
	}

	state = p.Render(ctx, sandbox.Generation{Counter: 3}, preview.NewKey("demo.Missing", preview.NoParam, preview.DefaultSpec()))
	if !state.IsError() || !strings.Contains(state.Message, "not found") {
		t.Errorf("lookup state = %v", state)
	}

	state = p.Render(ctx, sandbox.Generation{Counter: 3}, preview.NewKey(demo.Button, preview.NoParam, preview.NewSpec(preview.WithDensity(0))))
	if !state.IsError() || !strings.Contains(state.Message, "density") {
		t.Errorf("invalid spec state = %v", state)
	}
}

func TestPipeline_BackgroundFill(t *testing.T) {
	p := newTestPipeline(t)
	spec := preview.NewSpec(preview.WithSize(10, 10), preview.WithBackground(0xFF00FF00))

	state := p.Render(context.Background(), sandbox.Generation{Counter: 1}, preview.NewKey(empty, preview.NoParam, spec))
	if !state.IsSuccess() {
		t.Fatalf("state = %v", state)
	}
	if got := state.Image.NRGBAAt(5, 5); got != (color.NRGBA{G: 0xFF, A: 0xFF}) {
		t.Errorf("pixel = %v, want opaque green", got)
	}
}

func TestPipeline_ChromeOverlay(t *testing.T) {
	p := newTestPipeline(t)
	red := color.NRGBA{R: 0xFF, A: 0xFF}

	tests := []struct {
		name       string
		opts       []preview.SpecOption
		sampleY     int
		wantCovers bool
	}{
		{"status bar covers top", []preview.SpecOption{preview.WithStatusBar(true)}, 1, true},
		{"nav bar scrim covers bottom", []preview.SpecOption{preview.WithNavigationBar(preview.NavigationBarThreeButtonBottom)}, 198, true},
		{"no contrast leaves bottom edge", []preview.SpecOption{
			preview.WithNavigationBar(preview.NavigationBarThreeButtonBottom),
			preview.WithNavigationBarContrast(false),
		}, 198, false},
		{"center is untouched", []preview.SpecOption{preview.WithStatusBar(true)}, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]preview.SpecOption{preview.WithSize(100, 200)}, tt.opts...)
			state := p.Render(context.Background(), sandbox.Generation{Counter: 1}, preview.NewKey(fillRed, preview.NoParam, preview.NewSpec(opts...)))
			if !state.IsSuccess() {
				t.Fatalf("state = %v", state)
			}
			covered := state.Image.NRGBAAt(1, tt.sampleY) != red
			if covered != tt.wantCovers {
				t.Errorf("pixel (1,%d) = %v, covered %v, want %v", tt.sampleY, state.Image.NRGBAAt(1, tt.sampleY), covered, tt.wantCovers)
			}
		})
	}
}

func TestPipeline_ObserverRecordsSuccess(t *testing.T) {
	rec := &recorder{}
	p := newTestPipeline(t, rec)
	key := preview.NewKey(demo.Button, preview.StringParam("Hello"), preview.NewSpec(preview.WithDensity(2)))

	state := p.Render(context.Background(), sandbox.Generation{Counter: 9}, key)
	if !state.IsSuccess() {
		t.Fatalf("state = %v", state)
	}
	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	r := rec.records[0]
	if r.Key != key || r.Generation != 9 || r.Status != StatusSuccess || r.WidthPx != 138 || r.HeightPx != 80 {
		t.Errorf("record = %+v", r)
	}
}
