package previewkit

import (
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/gogpu/gg"
)

// Func is a preview function. It draws onto s and may use the optional
// primitive param (nil, string, int64, float64 or bool).
type Func func(s *Surface, param any) error

// ErrDuplicateFunction is returned when registering a function ID twice.
var ErrDuplicateFunction = errors.New("previewkit: duplicate preview function")

// PanicError is produced when a preview function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Library is a named set of preview functions: one compiled-code snapshot as
// seen from inside the isolation boundary.
type Library struct {
	name string

	mu    sync.RWMutex
	funcs map[string]Func
}

// NewLibrary creates an empty library.
func NewLibrary(name string) *Library {
	return &Library{name: name, funcs: make(map[string]Func)}
}

// Name returns the library name.
func (l *Library) Name() string { return l.name }

// Register adds a preview function under id, conventionally "package.Name".
func (l *Library) Register(id string, fn Func) error {
	if id == "" || fn == nil {
		return fmt.Errorf("previewkit: register %q: empty id or nil function", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.funcs[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFunction, id)
	}
	l.funcs[id] = fn
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (l *Library) MustRegister(id string, fn Func) *Library {
	if err := l.Register(id, fn); err != nil {
		panic(err)
	}
	return l
}

// Lookup returns the function registered under id.
func (l *Library) Lookup(id string) (Func, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn, ok := l.funcs[id]
	return fn, ok
}

// FunctionIDs returns the registered IDs in sorted order.
func (l *Library) FunctionIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.funcs))
	for id := range l.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EntryPoints returns the primitive entry points exported by the library.
func (l *Library) EntryPoints() map[string]EntryFunc {
	return map[string]EntryFunc{
		RenderEntryPoint: l.Render,
		ChromeEntryPoint: Chrome,
	}
}

// Render is the render entry point. It draws the named function on an
// offscreen surface of floor(dp*density) pixels, crops auto-sized dimensions
// to the measured content and returns NRGBA pixels. Faults inside the
// function are returned as errText, never propagated.
func (l *Library) Render(function string, param any, widthDp, heightDp int, density, fontScale float64, darkMode bool, locale string, rtl, inspectionMode bool, insetsWire string) ([]byte, int, int, string) {
	fn, ok := l.Lookup(function)
	if !ok {
		return nil, 0, 0, fmt.Sprintf("preview function %q not found in library %q", function, l.name)
	}

	env, err := NewEnvironment(widthDp, heightDp, density, fontScale, darkMode, locale, rtl, inspectionMode, insetsWire)
	if err != nil {
		return nil, 0, 0, BadInvocationText(err)
	}

	img, err := paint(env, func(s *Surface) error { return fn(s, param) })
	if err != nil {
		return nil, 0, 0, errorText(err)
	}
	return img.Pix, img.Rect.Dx(), img.Rect.Dy(), ""
}

// paint runs draw on a fresh surface and returns the (possibly cropped)
// result.
func paint(env Environment, drawFn func(*Surface) error) (*image.NRGBA, error) {
	dc := gg.NewContext(env.WidthPx, env.HeightPx)
	defer dc.Close()

	s := &Surface{Context: dc, Env: env}
	if err := safeCall(func() error { return drawFn(s) }); err != nil {
		return nil, err
	}

	w, h := env.WidthPx, env.HeightPx
	full := toNRGBA(dc.Image(), w, h)
	if !env.AutoWidth && !env.AutoHeight {
		return full, nil
	}

	mw, mh := s.contentSize(full)
	return toNRGBA(full, clampCrop(mw, w), clampCrop(mh, h)), nil
}

// safeCall runs fn and converts a panic into a *PanicError.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// errorText formats err for the invocation boundary: the message, then a
// blank line and the stack for panics.
func errorText(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe.Error() + "\n\n" + string(pe.Stack)
	}
	return err.Error()
}
