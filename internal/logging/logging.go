// Package logging wires a structured slog.Logger to a rotating log
// file, the ambient-stack answer for the "logfile" configuration key
// (spec §6). The teacher repository's go.mod already carries
// gopkg.in/natefinch/lumberjack.v2 for exactly this role; this is
// where it gets used.
package logging

import (
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a JSON-handler slog.Logger writing to path with rotation.
// The other packages take the returned *slog.Logger directly and call
// its Info/Warn/Error(msg string, keysAndValues ...any) methods.
func New(path string) *slog.Logger {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler)
}
