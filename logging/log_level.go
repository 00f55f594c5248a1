package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevel parses a level name such as the value of PREVIEW_LOG_LEVEL.
// Empty or unknown values return defaultLevel and ok=false.
// This is a pure function with no side effects.
//
// Valid levels (case-insensitive): debug, info, warn, warning, error, dpanic
//
// Example:
//
//	level, _ := ParseLogLevel(os.Getenv("PREVIEW_LOG_LEVEL"), zapcore.InfoLevel)
func ParseLogLevel(value string, defaultLevel zapcore.Level) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "dpanic":
		return zapcore.DPanicLevel, true
	default:
		return defaultLevel, false
	}
}
