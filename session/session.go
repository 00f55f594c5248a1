// Package session ties a manifest directory to a render scheduler.
//
// A Session is what a preview UI holds while it is open: the declared
// previews, the execution context for the current build generation and the
// cache of rendered states. Opening a session builds the whole chain; closing
// it waits for in-flight renders and releases the execution unit.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"preview_engine/cache"
	"preview_engine/logging"
	"preview_engine/manifest"
	"preview_engine/preview"
	"preview_engine/render"
	"preview_engine/sandbox"
)

var (
	// ErrUnknownKey is returned for key IDs not declared in the manifest.
	ErrUnknownKey = errors.New("session: unknown preview key")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session: session is closed")
)

// Options configures Open.
type Options struct {
	// ID names the session. A zero ID gets a random one.
	ID uuid.UUID
	// ManifestDir is the directory scanned for *.preview.hcl files.
	ManifestDir string
	// Loader builds execution units. Required.
	Loader sandbox.Loader
	// Capacity bounds the number of cached renders (cache.DefaultCapacity
	// when zero).
	Capacity int
	// Generation is used when the manifest has no build block.
	Generation sandbox.Generation
	Logger     *zap.Logger
	// Observers receive a record for every completed render.
	Observers []render.Observer
}

// Preview is one declared preview with its current render state.
type Preview struct {
	Declaration manifest.Declaration
	Key         preview.Key
	State       render.State
}

// ReloadResult summarizes a manifest reload.
type ReloadResult struct {
	Added             int
	Removed           int
	GenerationChanged bool
}

// Session is an open preview workspace.
//
// This organism composes:
//   - manifest.Manifest for the declared keys
//   - sandbox.Resolver + render.Pipeline for rendering
//   - cache.Scheduler for states and background renders
//
// Public API:
//   - Open(): Load the manifest and build the render chain
//   - Request(): Current states, scheduling renders as needed
//   - Render(): Blocking render of one key
//   - Reload(): Re-read the manifest
//   - SetGeneration(): Switch to a new build
//   - Close(): Stop rendering and release resources
type Session struct {
	id       uuid.UUID
	dir      string
	openedAt time.Time
	logger   *zap.Logger

	resolver  *sandbox.Resolver
	scheduler *cache.Scheduler

	mu       sync.RWMutex
	manifest *manifest.Manifest
	byID     map[string]manifest.Declaration
	closed   bool
}

// Open loads opts.ManifestDir and prepares a scheduler for its previews. No
// render starts until the first Request.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Loader == nil {
		return nil, errors.New("session: Options.Loader is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Step 1: Load the declarations
	m, err := manifest.LoadDir(ctx, opts.ManifestDir)
	if err != nil {
		return nil, err
	}

	gen := opts.Generation
	if m.Build != nil {
		gen = *m.Build
	}

	// Step 2: Build the render chain
	id := opts.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	logger = logger.With(zap.String("session", id.String()))
	resolver := sandbox.NewResolver(opts.Loader, logger.Named("sandbox"))
	pipeline := render.NewPipeline(resolver, logger.Named("render"), opts.Observers...)
	scheduler := cache.NewScheduler(pipeline, cache.Options{
		Capacity:   opts.Capacity,
		Generation: gen,
		Logger:     logger.Named("cache"),
	})

	s := &Session{
		id:        id,
		dir:       opts.ManifestDir,
		openedAt:  time.Now(),
		logger:    logger,
		resolver:  resolver,
		scheduler: scheduler,
	}
	s.setManifest(m)

	logger.Info("Session opened",
		zap.String("manifest_dir", opts.ManifestDir),
		zap.Int("previews", len(m.Declarations)),
		zap.Int64("generation", gen.Counter))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Dir returns the manifest directory.
func (s *Session) Dir() string { return s.dir }

// OpenedAt returns the time the session was opened.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Declarations returns the declared previews in manifest order.
func (s *Session) Declarations() []manifest.Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]manifest.Declaration(nil), s.manifest.Declarations...)
}

// Keys returns the cache keys of all declared previews.
func (s *Session) Keys() []preview.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest.Keys()
}

// Lookup returns the declaration for a key ID.
func (s *Session) Lookup(keyID string) (manifest.Declaration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[keyID]
	return d, ok
}

// Request returns the current state of the given previews, or of every
// declared preview when no IDs are given. It never waits for a render.
func (s *Session) Request(keyIDs ...string) ([]Preview, error) {
	decls, err := s.resolve(keyIDs)
	if err != nil {
		return nil, err
	}
	keys := make([]preview.Key, len(decls))
	for i, d := range decls {
		keys[i] = d.Key()
	}

	states := s.scheduler.RequestPreviews(keys)
	out := make([]Preview, len(decls))
	for i, d := range decls {
		out[i] = Preview{Declaration: d, Key: keys[i], State: states[keys[i]]}
	}
	return out, nil
}

// Render renders one preview and waits for the result, or for ctx.
func (s *Session) Render(ctx context.Context, keyID string) (Preview, error) {
	decls, err := s.resolve([]string{keyID})
	if err != nil {
		return Preview{}, err
	}
	d := decls[0]
	key := d.Key()
	return Preview{Declaration: d, Key: key, State: s.scheduler.Render(ctx, key)}, nil
}

// Reload re-reads the manifest directory. States of previews that are no
// longer declared are dropped. A changed build block switches the
// generation.
func (s *Session) Reload(ctx context.Context) (ReloadResult, error) {
	if s.isClosed() {
		return ReloadResult{}, ErrSessionClosed
	}
	start := time.Now()
	m, err := manifest.LoadDir(ctx, s.dir)
	if err != nil {
		return ReloadResult{}, err
	}

	s.mu.Lock()
	old := s.byID
	s.setManifestLocked(m)
	var res ReloadResult
	for id := range s.byID {
		if _, ok := old[id]; !ok {
			res.Added++
		}
	}
	for id := range old {
		if _, ok := s.byID[id]; !ok {
			res.Removed++
		}
	}
	keys := m.Keys()
	s.mu.Unlock()

	s.scheduler.Retain(keys)
	if m.Build != nil && m.Build.Fingerprint() != s.scheduler.Generation().Fingerprint() {
		s.scheduler.SetGeneration(*m.Build)
		res.GenerationChanged = true
	}

	s.logger.Info("Manifest reloaded", append([]zap.Field{
		zap.Int("previews", len(keys)),
		zap.Int("added", res.Added),
		zap.Int("removed", res.Removed),
		zap.Bool("generation_changed", res.GenerationChanged),
	}, logging.TimingFields(start, time.Now())...)...)
	return res, nil
}

// SetGeneration switches to a new compiled-code generation. Every state
// becomes stale and listeners are notified.
func (s *Session) SetGeneration(gen sandbox.Generation) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.scheduler.SetGeneration(gen)
	return nil
}

// Generation returns the current generation.
func (s *Session) Generation() sandbox.Generation {
	return s.scheduler.Generation()
}

// Subscribe registers fn for state change notifications.
func (s *Session) Subscribe(fn cache.Listener) (unsubscribe func()) {
	return s.scheduler.Subscribe(fn)
}

// Stats returns scheduler counters.
func (s *Session) Stats() cache.Stats {
	return s.scheduler.Stats()
}

// Close waits for in-flight renders and releases the execution unit. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := errors.Join(s.scheduler.Close(), s.resolver.Close())
	s.logger.Info("Session closed", zap.Error(err))
	return err
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) setManifest(m *manifest.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setManifestLocked(m)
}

func (s *Session) setManifestLocked(m *manifest.Manifest) {
	s.manifest = m
	s.byID = make(map[string]manifest.Declaration, len(m.Declarations))
	for _, d := range m.Declarations {
		s.byID[d.Key().ID()] = d
	}
}

// resolve maps key IDs to declarations; no IDs means all of them.
func (s *Session) resolve(keyIDs []string) ([]manifest.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(keyIDs) == 0 {
		return append([]manifest.Declaration(nil), s.manifest.Declarations...), nil
	}
	out := make([]manifest.Declaration, 0, len(keyIDs))
	for _, id := range keyIDs {
		d, ok := s.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, id)
		}
		out = append(out, d)
	}
	return out, nil
}
