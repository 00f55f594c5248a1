package logging

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// RenderMetrics describes one completed preview render.
// Implements zapcore.ObjectMarshaler for structured logging.
//
// This is a pure data structure with no dependencies on other logging atoms.
//
// Example:
//
//	metrics := RenderMetrics{
//		FunctionID: "demo.Button",
//		KeyID:      "9f86d081884c7d65",
//		Generation: 3,
//		Status:     "success",
//		WidthPx:    276,
//		HeightPx:   80,
//		Duration:   12 * time.Millisecond,
//	}
//	logger.Info("render complete", zap.Object("render", metrics))
type RenderMetrics struct {
	FunctionID string        `json:"function_id"`
	KeyID      string        `json:"key_id"`
	Generation int64         `json:"generation"`
	Status     string        `json:"status"`
	WidthPx    int           `json:"width_px"`
	HeightPx   int           `json:"height_px"`
	Duration   time.Duration `json:"duration"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler. Duration is encoded in
// milliseconds; pixel sizes are omitted when the render produced no image.
func (m RenderMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("function_id", m.FunctionID)
	enc.AddString("key_id", m.KeyID)
	enc.AddInt64("generation", m.Generation)
	enc.AddString("status", m.Status)
	if m.WidthPx > 0 && m.HeightPx > 0 {
		enc.AddInt("width_px", m.WidthPx)
		enc.AddInt("height_px", m.HeightPx)
	}
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	return nil
}
