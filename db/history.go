package db

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"preview_engine/render"
)

// History records completed renders through an AsyncWriter so the render
// path never waits on SQLite.
//
// Usage:
//
//	history := db.NewHistory(repo, logger)
//	id := uuid.New()
//	registry.Open(ctx, session.Options{ID: id, Observers: []render.Observer{history.ForSession(id)}})
//	...
//	history.Close(ctx)
type History struct {
	repo   *Repository
	writer *AsyncWriter[RenderRecord]
}

// NewHistory starts the background writer for repo.
func NewHistory(repo *Repository, logger *zap.Logger) *History {
	h := &History{repo: repo}
	h.writer = NewAsyncWriter(func(ctx context.Context, rec RenderRecord) error {
		_, err := repo.InsertRender(ctx, rec)
		return err
	}, DefaultChannelCapacity, logger)
	return h
}

// ForSession returns an observer tagging records with the session ID.
func (h *History) ForSession(id uuid.UUID) render.Observer {
	sessionID := id.String()
	return render.ObserverFunc(func(r render.Record) {
		h.writer.Write(RecordFromRender(sessionID, r))
	})
}

// Stats returns the writer counters.
func (h *History) Stats() WriterStats {
	return h.writer.Stats()
}

// Recent proxies Repository.RecentRenders.
func (h *History) Recent(ctx context.Context, q RenderQuery) ([]RenderRecord, error) {
	return h.repo.RecentRenders(ctx, q)
}

// Close drains queued records.
func (h *History) Close(ctx context.Context) error {
	return h.writer.Close(ctx)
}

// RecordFromRender converts a pipeline record into a history row.
func RecordFromRender(sessionID string, r render.Record) RenderRecord {
	return RenderRecord{
		SessionID:  sessionID,
		KeyID:      r.Key.ID(),
		FunctionID: r.Key.FunctionID,
		Generation: r.Generation,
		Status:     r.Status.String(),
		Message:    r.Message,
		WidthPx:    r.WidthPx,
		HeightPx:   r.HeightPx,
		Duration:   r.Duration,
		StartedAt:  r.StartedAt,
	}
}
