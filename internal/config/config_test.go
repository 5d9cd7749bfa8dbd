package config

import (
	"log/slog"
	"testing"
)

func TestLogLevelIsValid(t *testing.T) {
	cases := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
		"":            false,
		"trace":       false,
	}
	for level, want := range cases {
		if got := level.IsValid(); got != want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", level, got, want)
		}
	}
}

func TestLogLevelSlog(t *testing.T) {
	cases := map[LogLevel]slog.Level{
		LogLevelDebug: slog.LevelDebug,
		LogLevelInfo:  slog.LevelInfo,
		LogLevelWarn:  slog.LevelWarn,
		LogLevelError: slog.LevelError,
		"unknown":     slog.LevelInfo,
	}
	for level, want := range cases {
		if got := level.Slog(); got != want {
			t.Errorf("LogLevel(%q).Slog() = %v, want %v", level, got, want)
		}
	}
}

func TestMCPTransportIsValid(t *testing.T) {
	if !MCPTransportStdio.IsValid() {
		t.Error("stdio transport should be valid")
	}
	if !MCPTransportHTTP.IsValid() {
		t.Error("http transport should be valid")
	}
	if MCPTransport("sse").IsValid() {
		t.Error("sse transport should not be valid")
	}
}
