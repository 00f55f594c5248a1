// Package cache holds rendered previews and schedules renders: reads are
// answered immediately from memory, missing or stale keys are rendered in the
// background one at a time.
package cache

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"preview_engine/logging"
	"preview_engine/preview"
	"preview_engine/render"
	"preview_engine/sandbox"
)

// DefaultCapacity is the number of successful renders kept when Options
// leaves Capacity at zero.
const DefaultCapacity = 64

// ErrClosed is the message of Error states returned after Close.
var ErrClosed = errors.New("cache: scheduler is closed")

// Renderer is the part of render.Pipeline the scheduler drives.
type Renderer interface {
	Prepare(ctx context.Context, gen sandbox.Generation) *render.Prepared
	RenderPrepared(ctx context.Context, prep *render.Prepared, key preview.Key) render.State
}

// Options configures a Scheduler.
type Options struct {
	// Capacity bounds the number of cached Success states.
	Capacity int
	// Generation is the compiled-code generation rendered until SetGeneration.
	Generation sandbox.Generation
	Logger     *zap.Logger
}

// Listener is called with the keys whose visible state changed. Listeners
// run on the goroutine that completed the change and must not block; they
// typically call RequestPreviews again.
type Listener func(keys []preview.Key)

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Cached     int   `json:"cached"`
	Capacity   int   `json:"capacity"`
	Errors     int   `json:"errors"`
	InFlight   int   `json:"in_flight"`
	Renders    int64 `json:"renders"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Generation int64 `json:"generation"`
}

// cached is a Success state tagged with the epoch it was rendered in.
type cached struct {
	state render.State
	epoch uint64
}

// call is one in-flight render shared by every caller of the same key.
type call struct {
	done  chan struct{}
	state render.State
	epoch uint64
}

// Scheduler maps preview keys to render states and serializes renders.
//
// This organism composes:
//   - LRU (Success states only, tagged with their generation epoch)
//   - a last-attempt map for Error states, never cached
//   - a Renderer driven under a single render mutex
//
// Public API:
//   - NewScheduler(): Create a scheduler
//   - RequestPreviews(): Non-blocking read plus background scheduling
//   - Render(): Blocking render with per-key dedupe
//   - SetGeneration(): Mark everything stale
//   - Subscribe(): Change notifications
//   - Close(): Wait for in-flight renders and stop
type Scheduler struct {
	renderer Renderer
	logger   *zap.Logger

	// renderMu serializes renders. It is never held together with mu.
	renderMu sync.Mutex

	mu        sync.Mutex
	gen       sandbox.Generation
	epoch     uint64
	lru       *LRU[preview.Key, cached]
	lastErr   map[preview.Key]render.State
	inflight  map[preview.Key]*call
	listeners map[int]Listener
	nextID    int
	closed    bool
	renders   int64
	hits      int64
	misses    int64

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler rendering through renderer.
func NewScheduler(renderer Renderer, opts Options) *Scheduler {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		renderer:  renderer,
		logger:    logger,
		gen:       opts.Generation,
		lru:       NewLRU[preview.Key, cached](opts.Capacity),
		lastErr:   make(map[preview.Key]render.State),
		inflight:  make(map[preview.Key]*call),
		listeners: make(map[int]Listener),
	}
}

// RequestPreviews returns the current state of every key without waiting
// for any render, and schedules background renders for keys that are
// missing, stale or errored. Keys already rendering are not scheduled again.
//
// The state of a key is, in order of preference:
//   - the Error of the latest attempt, if that attempt failed
//   - the cached Success, fresh or stale
//   - Pending with the requested size
func (s *Scheduler) RequestPreviews(keys []preview.Key) map[preview.Key]render.State {
	out := make(map[preview.Key]render.State, len(keys))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if _, seen := out[key]; seen {
			continue
		}
		state, fresh := s.readLocked(key, true)
		out[key] = state
		if fresh {
			s.hits++
			continue
		}
		s.misses++
		if !s.closed {
			s.startLocked(key)
		}
	}
	return out
}

// Peek returns the current state of key without scheduling anything.
func (s *Scheduler) Peek(key preview.Key) render.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, _ := s.readLocked(key, false)
	return state
}

// Render renders key and waits for the result. A fresh cached Success is
// returned directly; a render already in flight for key in the current
// generation is joined rather than repeated. If ctx ends first, Render returns the key's current state
// and the render continues in the background.
func (s *Scheduler) Render(ctx context.Context, key preview.Key) render.State {
	s.mu.Lock()
	if state, fresh := s.readLocked(key, true); fresh {
		s.hits++
		s.mu.Unlock()
		return state
	}
	if s.closed {
		s.mu.Unlock()
		return render.Error(ErrClosed.Error())
	}
	s.misses++
	c := s.startLocked(key)
	s.mu.Unlock()

	select {
	case <-c.done:
		return c.state
	case <-ctx.Done():
		return s.Peek(key)
	}
}

// SetGeneration switches to a new compiled-code generation. Every cached
// state becomes stale and is re-rendered on its next request; listeners are
// notified with all keys that have a state.
func (s *Scheduler) SetGeneration(gen sandbox.Generation) {
	s.mu.Lock()
	s.gen = gen
	s.epoch++
	keys := s.lru.Keys()
	for key := range s.lastErr {
		if _, ok := s.lru.Peek(key); !ok {
			keys = append(keys, key)
		}
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.logger.Info("Generation changed",
		zap.Int64("generation", gen.Counter),
		zap.Int("stale_keys", len(keys)))
	notify(listeners, keys)
}

// Generation returns the generation new renders use.
func (s *Scheduler) Generation() sandbox.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Retain drops cached and errored states of keys not in keep.
func (s *Scheduler) Retain(keep []preview.Key) {
	set := make(map[preview.Key]struct{}, len(keep))
	for _, k := range keep {
		set[k] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.lru.Keys() {
		if _, ok := set[k]; !ok {
			s.lru.Remove(k)
		}
	}
	for k := range s.lastErr {
		if _, ok := set[k]; !ok {
			delete(s.lastErr, k)
		}
	}
}

// Subscribe registers fn for change notifications. The returned function
// unregisters it.
func (s *Scheduler) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Stats returns counters and sizes.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Cached:     s.lru.Len(),
		Capacity:   s.lru.Capacity(),
		Errors:     len(s.lastErr),
		InFlight:   len(s.inflight),
		Renders:    s.renders,
		Hits:       s.hits,
		Misses:     s.misses,
		Generation: s.gen.Counter,
	}
}

// Close rejects new renders and waits for in-flight ones. Renders queued
// behind the render mutex are dropped without running. Close is safe to call
// multiple times.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// readLocked returns the visible state of key and whether it is a fresh
// Success. touch marks a cached entry as recently used. s.mu must be held.
func (s *Scheduler) readLocked(key preview.Key, touch bool) (render.State, bool) {
	if state, ok := s.lastErr[key]; ok {
		return state, false
	}
	var entry cached
	var ok bool
	if touch {
		entry, ok = s.lru.Get(key)
	} else {
		entry, ok = s.lru.Peek(key)
	}
	if ok {
		return entry.state, entry.epoch == s.epoch
	}
	return render.Pending(key.Spec.WidthDp, key.Spec.HeightDp), false
}

// startLocked returns the in-flight call for key, starting one if needed. A
// call from an older generation is superseded by a new one. s.mu must be
// held.
func (s *Scheduler) startLocked(key preview.Key) *call {
	if c, ok := s.inflight[key]; ok && c.epoch == s.epoch {
		return c
	}
	c := &call{done: make(chan struct{}), epoch: s.epoch}
	s.inflight[key] = c
	s.wg.Add(1)
	go s.run(key, c, s.gen, s.epoch)
	return c
}

// run renders key for one in-flight call. The render uses a detached
// context: waiters may give up, the render itself is never cancelled.
func (s *Scheduler) run(key preview.Key, c *call, gen sandbox.Generation, epoch uint64) {
	defer s.wg.Done()
	ctx := context.Background()

	// Step 1: Resolve the execution context before taking the render lock
	prep := s.renderer.Prepare(ctx, gen)
	defer prep.Release()

	// Step 2: Render under the lock unless the scheduler closed meanwhile
	s.renderMu.Lock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	var state render.State
	if closed {
		state = render.Error(ErrClosed.Error())
	} else {
		state = s.renderer.RenderPrepared(ctx, prep, key)
	}
	s.renderMu.Unlock()

	// Step 3: Publish the result
	s.finish(key, c, state, epoch, !closed)
}

// finish stores the outcome of a render, wakes waiters and notifies
// listeners if the visible state changed. The result of a superseded call
// only reaches its own waiters.
func (s *Scheduler) finish(key preview.Key, c *call, state render.State, epoch uint64, rendered bool) {
	s.mu.Lock()
	current := s.inflight[key] == c
	if current {
		delete(s.inflight, key)
	}
	before, _ := s.readLocked(key, false)

	if rendered {
		s.renders++
	}
	if rendered && current {
		switch {
		case state.IsSuccess():
			delete(s.lastErr, key)
			if evicted, ok := s.lru.Put(key, cached{state: state, epoch: epoch}); ok {
				s.logger.Debug("Evicted cached preview", logging.KeyFields(evicted.FunctionID, evicted.ID())...)
			}
		case state.IsError():
			s.lastErr[key] = state
		}
	}

	after, _ := s.readLocked(key, false)
	var listeners []Listener
	if !before.Same(after) {
		listeners = s.listenersLocked()
	}
	s.mu.Unlock()

	c.state = state
	close(c.done)
	notify(listeners, []preview.Key{key})
}

func (s *Scheduler) listenersLocked() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, keys []preview.Key) {
	if len(keys) == 0 {
		return
	}
	for _, l := range listeners {
		l(keys)
	}
}
