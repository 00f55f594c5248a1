package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"preview_engine/preview"
	"preview_engine/render"
)

func TestHistory_RecordsRenders(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))
	history := NewHistory(repo, zaptest.NewLogger(t))

	session := uuid.New()
	key := preview.Key{FunctionID: "demo.Button", Param: preview.StringParam("Go"), Spec: preview.DefaultSpec()}
	obs := history.ForSession(session)
	obs.ObserveRender(render.Record{
		Key:        key,
		Generation: 3,
		Status:     render.StatusSuccess,
		WidthPx:    200,
		HeightPx:   80,
		StartedAt:  baseTime,
		Duration:   15 * time.Millisecond,
	})
	obs.ObserveRender(render.Record{
		Key:       key,
		Status:    render.StatusError,
		Message:   "preview function panicked",
		StartedAt: baseTime.Add(time.Second),
	})

	if err := history.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if s := history.Stats(); s.Written != 2 {
		t.Fatalf("Stats() = %+v", s)
	}

	rows, err := history.Recent(ctx, RenderQuery{SessionID: session.String()})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Status != "error" || rows[0].Message != "preview function panicked" {
		t.Errorf("newest row = %+v", rows[0])
	}
	if rows[1].KeyID != key.ID() || rows[1].Generation != 3 || rows[1].WidthPx != 200 || rows[1].Duration != 15*time.Millisecond {
		t.Errorf("oldest row = %+v", rows[1])
	}
}
