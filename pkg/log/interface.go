// Package log is the structured logger of hotelml. Every component obtains a
// Logger tagged with its name and attaches the keys from attributes.go:
//
//	logger := log.GetLoggerWithName("ingestion").With(log.BucketKey, bucket)
//	logger.Info("Downloaded dataset", log.BlobKeyKey, key, log.DurationMsKey, 120)
//
// The default implementation writes zerolog JSON lines with Cloud Logging
// field names ("severity", "message").
package log

import "context"

// Logger takes slog-style alternating key/value fields. When the field list
// has odd length and starts with an error, that error is logged under
// ErrAttrKey with its stack trace.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Logger
	Enabled(ctx context.Context, level Level) bool
}

// Level uses the numeric values of slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// LoggerProvider は GetLogger / GetLoggerWithName の背後にある実装
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
