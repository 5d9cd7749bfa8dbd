package config_test

import (
	"testing"

	"github.com/signalharbor/voiceengine/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		Session: config.SessionConfig{
			Voice:        config.VoiceConfig{Provider: "elevenlabs", VoiceID: "v1"},
			SystemPrompt: "be helpful",
		},
	}
	other := *cfg
	d := config.Diff(cfg, &other)
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	newCfg := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}
	d := config.Diff(old, newCfg)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("expected log level change to debug, got %+v", d)
	}
}

func TestDiff_VoiceAndPromptChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Session: config.SessionConfig{
			Voice:        config.VoiceConfig{VoiceID: "v1"},
			SystemPrompt: "a",
		},
	}
	newCfg := &config.Config{
		Session: config.SessionConfig{
			Voice:        config.VoiceConfig{VoiceID: "v2"},
			SystemPrompt: "b",
		},
	}
	d := config.Diff(old, newCfg)
	if !d.SessionVoiceChanged {
		t.Error("expected voice change")
	}
	if !d.SessionPromptChanged {
		t.Error("expected prompt change")
	}
}

func TestDiff_ProvidersChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"},
		},
	}
	newCfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		},
	}
	d := config.Diff(old, newCfg)
	if len(d.ProvidersChanged) != 1 || d.ProvidersChanged[0] != "llm" {
		t.Errorf("expected llm provider change, got %+v", d.ProvidersChanged)
	}
}
