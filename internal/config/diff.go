package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded (without restarting in-flight
// device sessions) are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SessionVoiceChanged  bool
	SessionPromptChanged bool

	ProvidersChanged []string // provider kinds ("llm", "stt", "tts", "vad") whose entry changed
}

// Changed reports whether anything hot-reloadable differs between the two configs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SessionVoiceChanged || d.SessionPromptChanged || len(d.ProvidersChanged) > 0
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restarting active
// sessions — swapping a provider takes effect for the next session or tool
// call, not for audio already mid-flight.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session.Voice != new.Session.Voice {
		d.SessionVoiceChanged = true
	}
	if old.Session.SystemPrompt != new.Session.SystemPrompt {
		d.SessionPromptChanged = true
	}

	if !reflect.DeepEqual(old.Providers.LLM, new.Providers.LLM) {
		d.ProvidersChanged = append(d.ProvidersChanged, "llm")
	}
	if !reflect.DeepEqual(old.Providers.STT, new.Providers.STT) {
		d.ProvidersChanged = append(d.ProvidersChanged, "stt")
	}
	if !reflect.DeepEqual(old.Providers.TTS, new.Providers.TTS) {
		d.ProvidersChanged = append(d.ProvidersChanged, "tts")
	}
	if !reflect.DeepEqual(old.Providers.VAD, new.Providers.VAD) {
		d.ProvidersChanged = append(d.ProvidersChanged, "vad")
	}

	return d
}
