package app

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger. format "json" selects the JSON
// handler; anything else is text.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	options := &slog.HandlerOptions{Level: ParseLogLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

// ParseLogLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func ParseLogLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		if strings.EqualFold(strings.TrimSpace(raw), "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return level
}
