package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RenderRecord is one row of render_history.
type RenderRecord struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	KeyID      string        `json:"key_id"`
	FunctionID string        `json:"function_id"`
	Generation int64         `json:"generation"`
	Status     string        `json:"status"`
	Message    string        `json:"message,omitempty"`
	WidthPx    int           `json:"width_px"`
	HeightPx   int           `json:"height_px"`
	Duration   time.Duration `json:"duration_ns"`
	StartedAt  time.Time     `json:"started_at"`
}

// RenderQuery filters RecentRenders. Empty fields match everything.
type RenderQuery struct {
	SessionID  string
	FunctionID string
	Status     string
	Limit      int
}

// DefaultQueryLimit caps RecentRenders when RenderQuery.Limit is not set.
const DefaultQueryLimit = 50

// Repository reads and writes render_history.
type Repository struct {
	db *Database
}

// NewRepository creates a repository over an open database.
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// InsertRender stores rec and returns its ID. A record without an ID gets a
// random UUID.
func (r *Repository) InsertRender(ctx context.Context, rec RenderRecord) (string, error) {
	conn, err := r.db.db()
	if err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SessionID == "" || rec.KeyID == "" || rec.FunctionID == "" || rec.Status == "" {
		return "", errors.New("render record needs session, key, function and status")
	}

	const query = `
		INSERT INTO render_history (
			id, session_id, key_id, function_id, generation, status,
			message, width_px, height_px, duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = conn.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.KeyID,
		rec.FunctionID,
		rec.Generation,
		rec.Status,
		nullString(rec.Message),
		rec.WidthPx,
		rec.HeightPx,
		rec.Duration.Milliseconds(),
		rec.StartedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert render history: %w", err)
	}
	return rec.ID, nil
}

// RecentRenders returns matching rows, newest first.
func (r *Repository) RecentRenders(ctx context.Context, q RenderQuery) ([]RenderRecord, error) {
	conn, err := r.db.db()
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	for _, f := range []struct {
		column, value string
	}{
		{"session_id", q.SessionID},
		{"function_id", q.FunctionID},
		{"status", q.Status},
	} {
		if f.value != "" {
			where = append(where, f.column+" = ?")
			args = append(args, f.value)
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, session_id, key_id, function_id, generation, status,
			   COALESCE(message, ''), width_px, height_px, duration_ms, started_at
		FROM render_history`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY started_at DESC, rowid DESC LIMIT ?")
	args = append(args, limit)

	rows, err := conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query render history: %w", err)
	}
	defer rows.Close()

	var records []RenderRecord
	for rows.Next() {
		var rec RenderRecord
		var durationMS, startedMS int64
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.KeyID,
			&rec.FunctionID,
			&rec.Generation,
			&rec.Status,
			&rec.Message,
			&rec.WidthPx,
			&rec.HeightPx,
			&durationMS,
			&startedMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan render history row: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.StartedAt = time.UnixMilli(startedMS).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating render history rows: %w", err)
	}
	return records, nil
}

// CountRenders returns the number of stored rows.
func (r *Repository) CountRenders(ctx context.Context) (int64, error) {
	conn, err := r.db.db()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM render_history").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count render history: %w", err)
	}
	return n, nil
}

// nullString stores empty strings as NULL.
func nullString(s string) any {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
