package sandbox

import (
	"context"
	"fmt"
	"os"
	"strings"

	"preview_engine/previewkit"
)

// ProtocolVersion is the invocation signature version spoken by this adapter.
const ProtocolVersion = previewkit.ProtocolVersion

// EntryFunc is the primitive-only entry point signature.
type EntryFunc = previewkit.EntryFunc

// Generation identifies one compiled-code snapshot supplied by the build
// collaborator. Counter increases on every successful recompilation.
type Generation struct {
	Counter    int64    `json:"counter" yaml:"counter"`
	OutputDirs []string `json:"output_dirs" yaml:"output_dirs"`
	Libraries  []string `json:"libraries" yaml:"libraries"`
}

// Fingerprint identifies the generation and its classpath. Two generations
// with equal fingerprints share one execution context.
func (g Generation) Fingerprint() string {
	return fmt.Sprintf("%d|%s|%s", g.Counter,
		strings.Join(g.OutputDirs, string(os.PathListSeparator)),
		strings.Join(g.Libraries, string(os.PathListSeparator)))
}

// ResourceRoots returns the locations consulted for resources during an
// invocation: output directories first, then libraries.
func (g Generation) ResourceRoots() []string {
	roots := make([]string, 0, len(g.OutputDirs)+len(g.Libraries))
	roots = append(roots, g.OutputDirs...)
	return append(roots, g.Libraries...)
}

// Validate checks that every classpath location exists.
func (g Generation) Validate() error {
	for _, p := range g.ResourceRoots() {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: generation %d: classpath entry %s: %v", ErrResolveFailed, g.Counter, p, err)
		}
	}
	return nil
}

// EntryPoint is a resolved entry point handle.
type EntryPoint struct {
	Name string
}

// FunctionHandle is a resolved preview function: its ID plus the owner
// package and function name.
type FunctionHandle struct {
	ID    string
	Owner string
	Name  string
}

// NoFunction is passed for entry points that take no target function.
var NoFunction = FunctionHandle{}

// ParseFunctionID splits "owner.Name" at the last dot.
func ParseFunctionID(id string) (FunctionHandle, error) {
	i := strings.LastIndexByte(id, '.')
	if i <= 0 || i == len(id)-1 {
		return FunctionHandle{}, fmt.Errorf("%w: %q is not of the form owner.Name", ErrFunctionNotFound, id)
	}
	return FunctionHandle{ID: id, Owner: id[:i], Name: id[i+1:]}, nil
}

// Unit is one isolated execution context. Implementations must not let a
// fault raised inside the boundary escape Invoke.
type Unit interface {
	// ResolveEntryPoint resolves an exported entry point by name.
	ResolveEntryPoint(name string) (EntryPoint, error)
	// ResolveFunction resolves a preview function by ID.
	ResolveFunction(ctx context.Context, id string) (FunctionHandle, error)
	// Invoke calls entry with the positional primitive arguments of protocol
	// version 1. Failures inside the boundary are returned as
	// *InvocationError.
	Invoke(ctx context.Context, entry EntryPoint, fn FunctionHandle, param any,
		widthDp, heightDp int, density, fontScale float64, darkMode bool,
		locale string, rtl, inspectionMode bool, insetsWire string) (RawImage, error)
	// Close releases the unit.
	Close() error
}

// Loader builds execution units for generations.
type Loader interface {
	Load(ctx context.Context, gen Generation) (Unit, error)
}
