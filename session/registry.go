package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"preview_engine/cache"
)

// ErrSessionNotFound is returned for unknown or malformed session IDs.
var ErrSessionNotFound = errors.New("session: session not found")

// Info describes an open session.
type Info struct {
	ID          string      `json:"id"`
	ManifestDir string      `json:"manifest_dir"`
	OpenedAt    time.Time   `json:"opened_at"`
	Previews    int         `json:"previews"`
	Stats       cache.Stats `json:"stats"`
}

// Registry holds open sessions by ID.
type Registry struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	onOpen   []func(*Session)
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger, sessions: make(map[uuid.UUID]*Session)}
}

// Open opens a session and registers it.
func (r *Registry) Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	s, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if _, dup := r.sessions[s.ID()]; dup {
		r.mu.Unlock()
		_ = s.Close()
		return nil, fmt.Errorf("session: id %s already open", s.ID())
	}
	r.sessions[s.ID()] = s
	hooks := append(([]func(*Session))(nil), r.onOpen...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
	return s, nil
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List describes the open sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].OpenedAt().Before(sessions[j].OpenedAt())
	})
	out := make([]Info, len(sessions))
	for i, s := range sessions {
		out[i] = Info{
			ID:          s.ID().String(),
			ManifestDir: s.Dir(),
			OpenedAt:    s.OpenedAt(),
			Previews:    len(s.Keys()),
			Stats:       s.Stats(),
		}
	}
	return out
}

// OnOpen registers fn to run for every session opened from now on and
// immediately for the sessions already open.
func (r *Registry) OnOpen(fn func(*Session)) {
	r.mu.Lock()
	r.onOpen = append(r.onOpen, fn)
	r.mu.Unlock()
	r.Each(fn)
}

// Each calls fn for every open session.
func (r *Registry) Each(fn func(*Session)) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		fn(s)
	}
}

// Remove closes and unregisters a session.
func (r *Registry) Remove(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.sessions, s.ID())
	r.mu.Unlock()
	return s.Close()
}

// Close closes every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Info("Closed all sessions", zap.Int("count", len(sessions)))
	return errors.Join(errs...)
}
