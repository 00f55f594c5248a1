package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"preview_engine/previewkit"
)

type fakeUnit struct {
	gen      Generation
	closed   atomic.Bool
	resolves atomic.Int32
	entries  []string
}

func (u *fakeUnit) ResolveEntryPoint(name string) (EntryPoint, error) {
	for _, e := range u.entries {
		if e == name {
			return EntryPoint{Name: name}, nil
		}
	}
	return EntryPoint{}, ErrEntryPointNotFound
}

func (u *fakeUnit) ResolveFunction(_ context.Context, id string) (FunctionHandle, error) {
	u.resolves.Add(1)
	return ParseFunctionID(id)
}

func (u *fakeUnit) Invoke(context.Context, EntryPoint, FunctionHandle, any, int, int, float64, float64, bool, string, bool, bool, string) (RawImage, error) {
	return RawImage{Pix: make([]byte, 4), Width: 1, Height: 1}, nil
}

func (u *fakeUnit) Close() error {
	u.closed.Store(true)
	return nil
}

type fakeLoader struct {
	mu      sync.Mutex
	units   []*fakeUnit
	fail    error
	delay   time.Duration
	entries []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{entries: []string{previewkit.RenderEntryPoint, previewkit.ChromeEntryPoint}}
}

func (l *fakeLoader) Load(_ context.Context, gen Generation) (Unit, error) {
	time.Sleep(l.delay)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	u := &fakeUnit{gen: gen, entries: l.entries}
	l.units = append(l.units, u)
	return u, nil
}

func (l *fakeLoader) unit(i int) *fakeUnit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.units[i]
}

func TestResolver_MemoizesPerGeneration(t *testing.T) {
	loader := newFakeLoader()
	r := NewResolver(loader, zaptest.NewLogger(t))
	defer r.Close()
	ctx := context.Background()

	gen := Generation{Counter: 1}
	for i := 0; i < 3; i++ {
		lease, err := r.Acquire(ctx, gen)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if lease.RenderEntry().Name != previewkit.RenderEntryPoint || lease.ChromeEntry().Name != previewkit.ChromeEntryPoint {
			t.Errorf("entry points = %+v / %+v", lease.RenderEntry(), lease.ChromeEntry())
		}
		lease.Release()
	}

	if r.Loads() != 1 {
		t.Errorf("Loads() = %d, want 1", r.Loads())
	}
	if loader.unit(0).closed.Load() {
		t.Error("current unit must stay open")
	}
}

func TestResolver_NewGenerationSupersedes(t *testing.T) {
	loader := newFakeLoader()
	r := NewResolver(loader, zaptest.NewLogger(t))
	defer r.Close()
	ctx := context.Background()

	held, err := r.Acquire(ctx, Generation{Counter: 1})
	if err != nil {
		t.Fatal(err)
	}

	next, err := r.Acquire(ctx, Generation{Counter: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer next.Release()

	if r.Loads() != 2 {
		t.Errorf("Loads() = %d, want 2", r.Loads())
	}
	if loader.unit(0).closed.Load() {
		t.Error("superseded unit closed while still leased")
	}

	held.Release()
	held.Release()
	if !loader.unit(0).closed.Load() {
		t.Error("superseded unit should close after its last release")
	}
	if loader.unit(1).closed.Load() {
		t.Error("current unit should stay open")
	}
}

func TestResolver_FailureIsMemoized(t *testing.T) {
	loader := newFakeLoader()
	loader.fail = errors.New("classpath broken")
	r := NewResolver(loader, zaptest.NewLogger(t))
	defer r.Close()
	ctx := context.Background()

	gen := Generation{Counter: 7, OutputDirs: []string{"out"}}
	for i := 0; i < 2; i++ {
		_, err := r.Acquire(ctx, gen)
		if !errors.Is(err, ErrResolveFailed) {
			t.Fatalf("Acquire() error = %v, want ErrResolveFailed", err)
		}
	}
	if r.Loads() != 1 {
		t.Errorf("failed resolution retried: Loads() = %d, want 1", r.Loads())
	}

	// A corrected classpath for the same counter resolves again.
	loader.mu.Lock()
	loader.fail = nil
	loader.mu.Unlock()
	lease, err := r.Acquire(ctx, Generation{Counter: 7, OutputDirs: []string{"out", "fixed"}})
	if err != nil {
		t.Fatalf("Acquire() with new classpath error = %v", err)
	}
	lease.Release()
}

func TestResolver_MissingEntryPointFailsResolution(t *testing.T) {
	loader := newFakeLoader()
	loader.entries = []string{previewkit.RenderEntryPoint}
	r := NewResolver(loader, zaptest.NewLogger(t))
	defer r.Close()

	_, err := r.Acquire(context.Background(), Generation{Counter: 1})
	if !errors.Is(err, ErrResolveFailed) || !errors.Is(err, ErrEntryPointNotFound) {
		t.Errorf("Acquire() error = %v, want ErrResolveFailed wrapping ErrEntryPointNotFound", err)
	}
	if !loader.unit(0).closed.Load() {
		t.Error("unit without entry points should be closed")
	}
}

func TestResolver_CancelledContextStillGetsLoadedUnit(t *testing.T) {
	loader := newFakeLoader()
	r := NewResolver(loader, zaptest.NewLogger(t))
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := Generation{Counter: 1}
	// The first call loads; the rest find the resolution ready.
	for i := 0; i < 50; i++ {
		lease, err := r.Acquire(ctx, gen)
		if err != nil {
			t.Fatalf("Acquire #%d with a ready unit = %v", i, err)
		}
		lease.Release()
	}
	if r.Loads() != 1 {
		t.Errorf("Loads() = %d, want 1", r.Loads())
	}
}

func TestResolver_ConcurrentAcquireLoadsOnce(t *testing.T) {
	loader := newFakeLoader()
	loader.delay = 20 * time.Millisecond
	r := NewResolver(loader, zaptest.NewLogger(t))
	defer r.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := r.Acquire(context.Background(), Generation{Counter: 3})
			if err != nil {
				errs <- err
				return
			}
			lease.Release()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Acquire() error = %v", err)
	}
	if r.Loads() != 1 {
		t.Errorf("Loads() = %d, want 1", r.Loads())
	}
}

func TestResolver_ResolveFunctionMemoized(t *testing.T) {
	loader := newFakeLoader()
	r := NewResolver(loader, zaptest.NewLogger(t))
	defer r.Close()
	ctx := context.Background()

	lease, err := r.Acquire(ctx, Generation{Counter: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	for i := 0; i < 3; i++ {
		h, err := lease.ResolveFunction(ctx, "demo.Button")
		if err != nil {
			t.Fatal(err)
		}
		if h.Owner != "demo" || h.Name != "Button" || h.ID != "demo.Button" {
			t.Errorf("handle = %+v", h)
		}
	}
	if n := loader.unit(0).resolves.Load(); n != 1 {
		t.Errorf("unit resolved function %d times, want 1", n)
	}

	if _, err := lease.ResolveFunction(ctx, "nodot"); !errors.Is(err, ErrFunctionNotFound) {
		t.Errorf("malformed id error = %v", err)
	}
}

func TestResolver_Close(t *testing.T) {
	loader := newFakeLoader()
	r := NewResolver(loader, zaptest.NewLogger(t))
	ctx := context.Background()

	lease, err := r.Acquire(ctx, Generation{Counter: 1})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if loader.unit(0).closed.Load() {
		t.Error("leased unit closed before release")
	}
	lease.Release()
	if !loader.unit(0).closed.Load() {
		t.Error("unit should close once released after Close")
	}

	if _, err := r.Acquire(ctx, Generation{Counter: 2}); !errors.Is(err, ErrResolverClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrResolverClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestParseFunctionID(t *testing.T) {
	tests := []struct {
		id      string
		want    FunctionHandle
		wantErr bool
	}{
		{"demo.Button", FunctionHandle{ID: "demo.Button", Owner: "demo", Name: "Button"}, false},
		{"a.b.Card", FunctionHandle{ID: "a.b.Card", Owner: "a.b", Name: "Card"}, false},
		{"Button", FunctionHandle{}, true},
		{".Button", FunctionHandle{}, true},
		{"demo.", FunctionHandle{}, true},
	}
	for _, tt := range tests {
		got, err := ParseFunctionID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFunctionID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFunctionID(%q) = %+v, want %+v", tt.id, got, tt.want)
		}
	}
}
