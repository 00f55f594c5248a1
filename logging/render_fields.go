package logging

import (
	"time"

	"go.uber.org/zap"
)

// RenderFields creates a structured zap field from render metrics.
// This is a molecule that composes the RenderMetrics atom into a
// ready-to-use zap.Field.
//
// Example:
//
//	logger.Info("render complete", logging.RenderFields(metrics))
func RenderFields(metrics RenderMetrics) zap.Field {
	return zap.Object("render", metrics)
}

// KeyFields returns the fields that identify a preview key in log entries.
//
// Example:
//
//	logger.Debug("render scheduled", logging.KeyFields(key.FunctionID, key.ID())...)
func KeyFields(functionID, keyID string) []zap.Field {
	return []zap.Field{
		zap.String("function_id", functionID),
		zap.String("key_id", keyID),
	}
}

// TimingFields returns start, end and duration fields for an operation.
func TimingFields(startTime, endTime time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", startTime),
		zap.Time("end_time", endTime),
		zap.Duration("duration", endTime.Sub(startTime)),
	}
}
