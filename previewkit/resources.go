package previewkit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// ErrResourceNotFound is returned by Surface.OpenResource when no resource
// root holds the requested name.
var ErrResourceNotFound = errors.New("previewkit: resource not found")

// resourceRoots is the process-wide ambient state consulted by resource
// loading inside preview functions.
var resourceRoots struct {
	mu    sync.Mutex
	roots []string
}

// ResourceScope restores the previous resource roots when released.
type ResourceScope struct {
	prev     []string
	released bool
}

// EnterResources installs roots as the ambient resource roots and returns a
// guard. Callers must Release the guard on every exit path, typically with
// defer immediately after acquiring it.
//
// Example:
//
//	scope := previewkit.EnterResources(gen.OutputDirs)
//	defer scope.Release()
func EnterResources(roots []string) *ResourceScope {
	resourceRoots.mu.Lock()
	defer resourceRoots.mu.Unlock()

	scope := &ResourceScope{prev: resourceRoots.roots}
	resourceRoots.roots = slices.Clone(roots)
	return scope
}

// Release restores the roots that were active when the scope was entered.
// Release is idempotent.
func (s *ResourceScope) Release() {
	resourceRoots.mu.Lock()
	defer resourceRoots.mu.Unlock()

	if s.released {
		return
	}
	s.released = true
	resourceRoots.roots = s.prev
}

// CurrentResourceRoots returns a copy of the active resource roots.
func CurrentResourceRoots() []string {
	resourceRoots.mu.Lock()
	defer resourceRoots.mu.Unlock()
	return slices.Clone(resourceRoots.roots)
}

// openResource opens name from the first root that contains it. Names must
// be local paths; absolute paths and ".." escapes are rejected.
func openResource(name string) (io.ReadCloser, error) {
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: %q is not a local path", ErrResourceNotFound, name)
	}

	for _, root := range CurrentResourceRoots() {
		f, err := os.Open(filepath.Join(root, name))
		if err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
}
