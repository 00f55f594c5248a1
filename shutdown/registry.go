package shutdown

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Func is a cleanup handler. The context carries the remaining shutdown
// budget; handlers should return promptly once it ends.
type Func func(ctx context.Context) error

// Handler priorities used by previewd. Lower values run first.
const (
	PriorityServer   = 10 // stop accepting HTTP and websocket traffic
	PrioritySessions = 20 // close sessions and their render workers
	PriorityStorage  = 30 // flush render history and close the database
	PriorityFiles    = 40 // remove temporary files
	PriorityLogger   = 90 // flush logs last
)

type entry struct {
	name     string
	priority int
	fn       Func
}

// Registry holds named cleanup handlers and runs them once, in priority
// order. Handlers with equal priority run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a handler. Registration after Run is ignored.
func (r *Registry) Register(name string, priority int, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, entry{name: name, priority: priority, fn: fn})
}

func (r *Registry) sorted() []entry {
	out := slices.Clone(r.entries)
	slices.SortStableFunc(out, func(a, b entry) int {
		return a.priority - b.priority
	})
	return out
}

// Run calls every handler, even after failures, and returns the failures
// joined. Each error is prefixed with the handler's name. Only the first
// call runs anything.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.sorted()
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

// Names returns the handler names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.sorted()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed reports whether Run has been called.
func (r *Registry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
