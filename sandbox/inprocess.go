package sandbox

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"preview_engine/previewkit"
)

// LibraryProvider returns the preview library compiled for a generation.
type LibraryProvider func(gen Generation) (*previewkit.Library, error)

// StaticLibrary is a LibraryProvider that serves lib for every generation.
func StaticLibrary(lib *previewkit.Library) LibraryProvider {
	return func(Generation) (*previewkit.Library, error) { return lib, nil }
}

// InProcessLoader loads units that call a previewkit.Library directly.
// Only primitive values cross into the library, as with a worker process.
type InProcessLoader struct {
	provide LibraryProvider
}

// NewInProcessLoader creates a loader backed by provide.
func NewInProcessLoader(provide LibraryProvider) *InProcessLoader {
	return &InProcessLoader{provide: provide}
}

// Load validates the generation's classpath and binds its library.
func (l *InProcessLoader) Load(ctx context.Context, gen Generation) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := gen.Validate(); err != nil {
		return nil, err
	}

	lib, err := l.provide(gen)
	if err != nil {
		return nil, fmt.Errorf("%w: generation %d: %v", ErrResolveFailed, gen.Counter, err)
	}
	if lib == nil {
		return nil, fmt.Errorf("%w: generation %d: no library", ErrResolveFailed, gen.Counter)
	}

	return &inProcessUnit{
		lib:     lib,
		entries: lib.EntryPoints(),
		roots:   gen.ResourceRoots(),
	}, nil
}

type inProcessUnit struct {
	lib     *previewkit.Library
	entries map[string]EntryFunc
	roots   []string

	mu     sync.Mutex
	closed bool
}

func (u *inProcessUnit) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

func (u *inProcessUnit) ResolveEntryPoint(name string) (EntryPoint, error) {
	if _, ok := u.entries[name]; !ok {
		return EntryPoint{}, fmt.Errorf("%w: %s in library %s", ErrEntryPointNotFound, name, u.lib.Name())
	}
	return EntryPoint{Name: name}, nil
}

func (u *inProcessUnit) ResolveFunction(ctx context.Context, id string) (FunctionHandle, error) {
	h, err := ParseFunctionID(id)
	if err != nil {
		return FunctionHandle{}, err
	}
	if _, ok := u.lib.Lookup(id); !ok {
		return FunctionHandle{}, fmt.Errorf("%w: %s in library %s", ErrFunctionNotFound, id, u.lib.Name())
	}
	return h, nil
}

func (u *inProcessUnit) Invoke(ctx context.Context, entry EntryPoint, fn FunctionHandle, param any,
	widthDp, heightDp int, density, fontScale float64, darkMode bool,
	locale string, rtl, inspectionMode bool, insetsWire string,
) (RawImage, error) {
	if u.isClosed() {
		return RawImage{}, ErrUnitClosed
	}
	if err := ctx.Err(); err != nil {
		return RawImage{}, err
	}
	call, ok := u.entries[entry.Name]
	if !ok {
		return RawImage{}, fmt.Errorf("%w: %s", ErrEntryPointNotFound, entry.Name)
	}

	pix, w, h, errText := u.call(call, previewkit.Invocation{
		Function:       fn.ID,
		Param:          param,
		WidthDp:        widthDp,
		HeightDp:       heightDp,
		Density:        density,
		FontScale:      fontScale,
		DarkMode:       darkMode,
		Locale:         locale,
		RTL:            rtl,
		InspectionMode: inspectionMode,
		Insets:         insetsWire,
	})
	if message, bad := previewkit.CutBadInvocation(errText); bad {
		return RawImage{}, fmt.Errorf("%w: %s", ErrProtocol, message)
	}
	if errText != "" {
		return RawImage{}, &InvocationError{Message: errText}
	}

	img := RawImage{Pix: pix, Width: w, Height: h}
	if err := img.Validate(); err != nil {
		return RawImage{}, &InvocationError{Message: "unexpected result shape: " + err.Error()}
	}
	return img, nil
}

// call runs the entry point inside the generation's resource scope. The scope
// is released and any fault is converted to error text on every exit path.
func (u *inProcessUnit) call(entry EntryFunc, inv previewkit.Invocation) (pix []byte, w, h int, errText string) {
	scope := previewkit.EnterResources(u.roots)
	defer scope.Release()

	defer func() {
		if r := recover(); r != nil {
			pix, w, h = nil, 0, 0
			errText = fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
		}
	}()
	return inv.Call(entry)
}

func (u *inProcessUnit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	return nil
}
