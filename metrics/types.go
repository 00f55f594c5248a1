package metrics

import "time"

// RenderSample is one completed render as kept in the recent ring.
type RenderSample struct {
	SessionID  string        `json:"session_id,omitempty"`
	KeyID      string        `json:"key_id"`
	FunctionID string        `json:"function_id"`
	Generation int64         `json:"generation"`
	Status     string        `json:"status"`
	Message    string        `json:"message,omitempty"`
	WidthPx    int           `json:"width_px"`
	HeightPx   int           `json:"height_px"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}

// RenderMetrics aggregates every render since start.
type RenderMetrics struct {
	TotalRenders int64                       `json:"total_renders"`
	TotalSuccess int64                       `json:"total_success"`
	TotalErrors  int64                       `json:"total_errors"`
	ByFunction   map[string]*FunctionMetrics `json:"by_function"`
}

// FunctionMetrics aggregates the renders of one preview function.
type FunctionMetrics struct {
	Count int64 `json:"count"`
	// SuccessRate is the percentage of successful renders (0-100)
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	LastError   string        `json:"last_error,omitempty"`
}

// SystemStatus is the health summary served by /health.
type SystemStatus struct {
	Health    string        `json:"health"`
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// Health values for SystemStatus.
const (
	HealthRunning  = "running"
	HealthDegraded = "degraded"
	HealthStopped  = "stopped"
)
