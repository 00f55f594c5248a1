// Package metrics keeps in-memory render statistics for the HTTP API: a
// ring of recent renders and per-function aggregates.
package metrics

import "preview_engine/render"

// Collector is the read and write surface the server depends on.
type Collector interface {
	render.Observer

	// RecordRender adds one sample.
	RecordRender(sample RenderSample)
	// RenderMetrics returns the aggregates.
	RenderMetrics() RenderMetrics
	// RecentRenders returns up to limit samples, newest first.
	RecentRenders(limit int) []RenderSample
	// SystemStatus reports health and uptime.
	SystemStatus() SystemStatus
}
