package config_test

import (
	"strings"
	"testing"

	"github.com/signalharbor/voiceengine/internal/config"
)

func TestLoadFromReader_ValidMinimalConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  llm:
    name: openai
    model: gpt-4o
  stt:
    name: deepgram
  tts:
    name: elevenlabs
  vad:
    name: silero
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("llm name = %q, want openai", cfg.Providers.LLM.Name)
	}
	if cfg.Session.MaxToolRecursion != 5 {
		t.Errorf("default max_tool_recursion = %d, want 5", cfg.Session.MaxToolRecursion)
	}
	if cfg.Session.Voice.SpeedFactor != 1.0 {
		t.Errorf("default voice.speed_factor = %v, want 1.0", cfg.Session.Voice.SpeedFactor)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
bogus_top_level_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MissingListenAddr(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "listen_addr") {
		t.Fatalf("expected listen_addr error, got %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: "verbose"},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("expected log_level error, got %v", err)
	}
}

func TestValidate_InvalidVoiceSpeedFactor(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":8080"},
		Session: config.SessionConfig{Voice: config.VoiceConfig{SpeedFactor: 3.5}},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "speed_factor") {
		t.Fatalf("expected speed_factor error, got %v", err)
	}
}

func TestValidate_MCPServerRequiresNameAndCommand(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080"},
		MCP: config.MCPConfig{
			Servers: []config.MCPServerConfig{
				{Transport: config.MCPTransportStdio},
			},
		},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Errorf("expected name error, got %v", err)
	}
	if !strings.Contains(err.Error(), "command is required") {
		t.Errorf("expected command error, got %v", err)
	}
}

func TestValidate_DuplicateMCPServerNames(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080"},
		MCP: config.MCPConfig{
			Servers: []config.MCPServerConfig{
				{Name: "dice", Transport: config.MCPTransportStdio, Command: "/usr/bin/dice"},
				{Name: "dice", Transport: config.MCPTransportStdio, Command: "/usr/bin/dice2"},
			},
		},
	}
	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}
