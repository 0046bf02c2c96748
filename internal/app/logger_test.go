package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLogLevel(raw); got != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("ready", slog.String("addr", ":8090"))
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"addr":":8090"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "warn", "text").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level, got %q", buf.String())
	}
}
