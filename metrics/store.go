package metrics

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"preview_engine/render"
)

// DefaultRecentCapacity is the number of samples the ring keeps.
const DefaultRecentCapacity = 200

// degradedErrorRate is the share of failures in the ring above which
// SystemStatus reports HealthDegraded.
const degradedErrorRate = 0.5

// StoreConfig configures a Store.
type StoreConfig struct {
	// RecentCapacity bounds the ring of recent renders
	RecentCapacity int
	// Version is reported by SystemStatus
	Version string
}

// Store is the in-memory Collector.
//
// This molecule composes:
//   - a fixed ring of RenderSample values
//   - per-function running totals
//
// Usage:
//
//	store := metrics.NewStore(metrics.StoreConfig{Version: core.Version}, time.Now())
//	session.Open(ctx, session.Options{Observers: []render.Observer{store.ForSession(id)}})
//	agg := store.RenderMetrics()
type Store struct {
	mu sync.RWMutex

	ring []RenderSample
	head int
	size int

	total      int64
	success    int64
	errors     int64
	byFunction map[string]*functionStats

	startTime time.Time
	version   string
	now       func() time.Time
}

type functionStats struct {
	count         int64
	success       int64
	totalDuration time.Duration
	maxDuration   time.Duration
	lastError     string
}

// NewStore creates a store; startTime anchors the uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.RecentCapacity
	if capacity < 1 {
		capacity = DefaultRecentCapacity
	}
	return &Store{
		ring:       make([]RenderSample, capacity),
		byFunction: make(map[string]*functionStats),
		startTime:  startTime,
		version:    config.Version,
		now:        time.Now,
	}
}

// ObserveRender records a pipeline record without a session tag.
func (s *Store) ObserveRender(r render.Record) {
	s.RecordRender(SampleFromRender("", r))
}

// ForSession returns an observer tagging samples with the session ID.
func (s *Store) ForSession(id uuid.UUID) render.Observer {
	sessionID := id.String()
	return render.ObserverFunc(func(r render.Record) {
		s.RecordRender(SampleFromRender(sessionID, r))
	})
}

// SampleFromRender converts a pipeline record.
func SampleFromRender(sessionID string, r render.Record) RenderSample {
	return RenderSample{
		SessionID:  sessionID,
		KeyID:      r.Key.ID(),
		FunctionID: r.Key.FunctionID,
		Generation: r.Generation,
		Status:     r.Status.String(),
		Message:    r.Message,
		WidthPx:    r.WidthPx,
		HeightPx:   r.HeightPx,
		Duration:   r.Duration,
		FinishedAt: r.StartedAt.Add(r.Duration),
	}
}

// RecordRender adds sample to the ring and the aggregates.
func (s *Store) RecordRender(sample RenderSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring[s.head] = sample
	s.head = (s.head + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}

	s.total++
	stats, ok := s.byFunction[sample.FunctionID]
	if !ok {
		stats = &functionStats{}
		s.byFunction[sample.FunctionID] = stats
	}
	stats.count++
	stats.totalDuration += sample.Duration
	stats.maxDuration = max(stats.maxDuration, sample.Duration)

	switch sample.Status {
	case render.StatusSuccess.String():
		s.success++
		stats.success++
	case render.StatusError.String():
		s.errors++
		stats.lastError = sample.Message
	}
}

// RenderMetrics returns a snapshot of the aggregates.
func (s *Store) RenderMetrics() RenderMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := RenderMetrics{
		TotalRenders: s.total,
		TotalSuccess: s.success,
		TotalErrors:  s.errors,
		ByFunction:   make(map[string]*FunctionMetrics, len(s.byFunction)),
	}
	for id, stats := range s.byFunction {
		m.ByFunction[id] = &FunctionMetrics{
			Count:       stats.count,
			SuccessRate: float64(stats.success) / float64(stats.count) * 100,
			AvgDuration: stats.totalDuration / time.Duration(stats.count),
			MaxDuration: stats.maxDuration,
			LastError:   stats.lastError,
		}
	}
	return m
}

// RecentRenders returns up to limit samples, newest first.
func (s *Store) RecentRenders(limit int) []RenderSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = min(limit, s.size)
	if limit <= 0 {
		return []RenderSample{}
	}
	out := make([]RenderSample, limit)
	for i := range limit {
		idx := (s.head - 1 - i + len(s.ring)) % len(s.ring)
		out[i] = s.ring[idx]
	}
	return out
}

// SystemStatus reports HealthDegraded when most recent renders failed.
func (s *Store) SystemStatus() SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := HealthRunning
	if s.size > 0 {
		failed := 0
		for i := range s.size {
			if s.ring[i].Status == render.StatusError.String() {
				failed++
			}
		}
		if float64(failed)/float64(s.size) > degradedErrorRate {
			health = HealthDegraded
		}
	}
	now := s.now()
	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    now.Sub(s.startTime),
		LastCheck: now,
	}
}

var _ Collector = (*Store)(nil)
