// Package sandbox runs preview functions behind an isolation boundary.
//
// resolver.go implements generation-memoized resolution of execution units.
// This is a molecule that composes a Loader with the sentinel errors from
// errors.go.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"preview_engine/previewkit"
)

// resolution is one attempt to build an execution unit for a generation
// fingerprint. Successful and failed attempts are both memoized.
type resolution struct {
	gen   Generation
	fp    string
	ready chan struct{}

	// Set once before ready is closed.
	unit   Unit
	render EntryPoint
	chrome EntryPoint
	err    error

	// Guarded by Resolver.mu.
	loaded     bool
	refs       int
	superseded bool
	closed     bool

	fnMu      sync.Mutex
	functions map[string]functionResult
}

type functionResult struct {
	handle FunctionHandle
	err    error
}

// Resolver hands out execution units for compiled-code generations.
// Resolution is expensive (a worker process start, classpath validation),
// so the unit for the current generation is reused until a generation with
// a different fingerprint is requested. Units of superseded generations are
// closed once their last lease is released.
//
// This molecule composes:
//   - Loader.Load for unit creation
//   - Unit.ResolveEntryPoint for the render and chrome entry points
//   - ErrResolveFailed, ErrResolverClosed (atoms from errors.go)
//
// Public API:
//   - NewResolver(): Create a resolver
//   - Acquire(): Lease the unit for a generation
//   - Close(): Close the current unit and reject new leases
type Resolver struct {
	loader Loader
	logger *zap.Logger

	mu      sync.Mutex
	current *resolution
	closed  bool
	loads   int
}

// NewResolver creates a resolver that builds units with loader.
func NewResolver(loader Loader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{loader: loader, logger: logger}
}

// Lease is a reference to a resolved unit. The unit stays open until the
// lease is released, even if a newer generation supersedes it.
type Lease struct {
	r    *Resolver
	res  *resolution
	once sync.Once
}

// Acquire returns a lease on the unit for gen, loading it if gen's
// fingerprint differs from the current one.
//
// Returns:
//   - *Lease: the caller must Release it
//   - error: ErrResolverClosed, the memoized ErrResolveFailed for gen, or
//     ctx.Err() if ctx ends while another caller is loading
func (r *Resolver) Acquire(ctx context.Context, gen Generation) (*Lease, error) {
	fp := gen.Fingerprint()

	// Step 1: Pick or create the resolution under the lock
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrResolverClosed
	}

	res := r.current
	load := false
	var stale Unit
	var staleRes *resolution
	if res == nil || res.fp != fp {
		staleRes = r.current
		if staleRes != nil {
			staleRes.superseded = true
			stale = r.closableLocked(staleRes)
		}
		res = &resolution{
			gen:       gen,
			fp:        fp,
			ready:     make(chan struct{}),
			functions: make(map[string]functionResult),
		}
		r.current = res
		r.loads++
		load = true
	}
	res.refs++
	r.mu.Unlock()

	// Step 2: Close the superseded unit if nobody holds it
	if stale != nil {
		r.closeUnit(staleRes, stale)
	}

	// Step 3: Load outside the lock; other callers wait on ready
	if load {
		r.load(ctx, res)
	}

	select {
	case <-res.ready:
	default:
		select {
		case <-res.ready:
		case <-ctx.Done():
			r.release(res)
			return nil, ctx.Err()
		}
	}

	if res.err != nil {
		r.release(res)
		return nil, res.err
	}
	return &Lease{r: r, res: res}, nil
}

// load builds the unit for res and resolves its entry points. The load runs
// to completion even if ctx is cancelled so the memoized result is never a
// cancellation.
func (r *Resolver) load(ctx context.Context, res *resolution) {
	start := time.Now()
	unit, err := r.loader.Load(context.WithoutCancel(ctx), res.gen)

	var render, chrome EntryPoint
	if err == nil {
		render, err = unit.ResolveEntryPoint(previewkit.RenderEntryPoint)
		if err == nil {
			chrome, err = unit.ResolveEntryPoint(previewkit.ChromeEntryPoint)
		}
		if err != nil {
			_ = unit.Close()
			unit = nil
		}
	}
	if err != nil && !errors.Is(err, ErrResolveFailed) {
		err = fmt.Errorf("%w: generation %d: %w", ErrResolveFailed, res.gen.Counter, err)
	}

	r.mu.Lock()
	res.unit, res.render, res.chrome, res.err = unit, render, chrome, err
	res.loaded = true
	r.mu.Unlock()
	close(res.ready)

	if err != nil {
		r.logger.Error("Execution context resolution failed",
			zap.Int64("generation", res.gen.Counter),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	r.logger.Info("Execution context resolved",
		zap.Int64("generation", res.gen.Counter),
		zap.Strings("output_dirs", res.gen.OutputDirs),
		zap.Int("libraries", len(res.gen.Libraries)),
		zap.Duration("duration", time.Since(start)))
}

// closableLocked marks res closed and returns its unit if it is superseded,
// loaded and unreferenced. r.mu must be held.
func (r *Resolver) closableLocked(res *resolution) Unit {
	if !res.superseded || res.refs > 0 || !res.loaded || res.closed || res.unit == nil {
		return nil
	}
	res.closed = true
	return res.unit
}

func (r *Resolver) closeUnit(res *resolution, u Unit) {
	if err := u.Close(); err != nil {
		r.logger.Warn("Closing execution unit failed",
			zap.Int64("generation", res.gen.Counter),
			zap.Error(err))
		return
	}
	r.logger.Debug("Execution unit closed", zap.Int64("generation", res.gen.Counter))
}

func (r *Resolver) release(res *resolution) {
	r.mu.Lock()
	res.refs--
	u := r.closableLocked(res)
	r.mu.Unlock()
	if u != nil {
		r.closeUnit(res, u)
	}
}

// Close rejects new leases and closes the current unit once it is no longer
// leased. Close is safe to call multiple times.
func (r *Resolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	res := r.current
	r.current = nil
	var u Unit
	if res != nil {
		res.superseded = true
		u = r.closableLocked(res)
	}
	r.mu.Unlock()

	if u != nil {
		r.closeUnit(res, u)
	}
	return nil
}

// Loads returns how many resolutions have been started.
func (r *Resolver) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

// Generation returns the leased generation.
func (l *Lease) Generation() Generation { return l.res.gen }

// Unit returns the leased execution unit.
func (l *Lease) Unit() Unit { return l.res.unit }

// RenderEntry returns the resolved render entry point.
func (l *Lease) RenderEntry() EntryPoint { return l.res.render }

// ChromeEntry returns the resolved chrome entry point.
func (l *Lease) ChromeEntry() EntryPoint { return l.res.chrome }

// ResolveFunction resolves a preview function in the leased unit. Results,
// including failures, are memoized for the unit's lifetime.
func (l *Lease) ResolveFunction(ctx context.Context, id string) (FunctionHandle, error) {
	res := l.res
	res.fnMu.Lock()
	defer res.fnMu.Unlock()

	if cached, ok := res.functions[id]; ok {
		return cached.handle, cached.err
	}
	h, err := res.unit.ResolveFunction(ctx, id)
	if err != nil && ctx.Err() != nil {
		return FunctionHandle{}, err
	}
	res.functions[id] = functionResult{handle: h, err: err}
	return h, err
}

// Release returns the lease. Passing the same lease twice is a no-op.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() { l.r.release(l.res) })
}
