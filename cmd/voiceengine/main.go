// Command voiceengine is the main entry point for the voice engine server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalharbor/voiceengine/internal/app"
	"github.com/signalharbor/voiceengine/internal/config"
	"github.com/signalharbor/voiceengine/internal/resilience"
	"github.com/signalharbor/voiceengine/pkg/provider/llm"
	"github.com/signalharbor/voiceengine/pkg/provider/stt"
	"github.com/signalharbor/voiceengine/pkg/provider/tts"
	"github.com/signalharbor/voiceengine/pkg/provider/vad"
	"github.com/signalharbor/voiceengine/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	agentConsoleURL := flag.String("agent-console", "", "base URL of the admin console serving per-device agent configuration; empty uses a static agent built from session defaults")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voiceengine: config file %q not found — pass --config with the path to a YAML configuration file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voiceengine: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voiceengine starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Agent configuration port ─────────────────────────────────────────
	agentCfg := buildAgentConfigPort(cfg, *agentConsoleURL)

	// ── Startup summary ──────────────────────────────────────────────────
	printStartupSummary(cfg)

	// ── Application wiring ───────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, agentCfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ──────────────────────────────────────────────────────────

// builtinProviders lists the provider names this binary knows how to name
// in logs and config validation. No concrete vendor SDK ships with this
// engine (see internal/config.Registry's doc comment); real factory
// functions are registered by vendor-specific provider packages imported
// here once they exist.
var builtinProviders = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"},
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs", "coqui", "piper"},
	"vad": {"silero", "webrtc"},
}

// registerBuiltinProviders logs the known provider names as a placeholder.
// Real factory functions are wired in once vendor-specific provider
// packages are imported into this binary.
func registerBuiltinProviders(reg *config.Registry) {
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("known provider name", "kind", kind, "name", name)
		}
	}
	_ = reg // wired when real provider factories land
}

// buildProviders instantiates the configured primary provider for each
// stage, wraps it with its configured fallbacks behind a circuit breaker,
// and returns the result keyed by provider name so a session's AgentConfig
// can select it later.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{
		LLM: make(map[string]llm.Provider),
		STT: make(map[string]stt.Provider),
		TTS: make(map[string]tts.Provider),
		VAD: make(map[string]vad.Engine),
	}

	if entry := cfg.Providers.LLM; entry.Name != "" {
		p, err := reg.CreateLLM(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("llm provider not registered — skipping", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		} else {
			fb := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{})
			for _, alt := range entry.Fallbacks {
				altProvider, err := reg.CreateLLM(alt)
				if err != nil {
					slog.Warn("llm fallback not available — skipping", "name", alt.Name, "err", err)
					continue
				}
				fb.AddFallback(alt.Name, altProvider)
			}
			ps.LLM[entry.Name] = fb
			slog.Info("provider created", "kind", "llm", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		p, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("stt provider not registered — skipping", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		} else {
			fb := resilience.NewSTTFallback(p, entry.Name, resilience.FallbackConfig{})
			for _, alt := range entry.Fallbacks {
				altProvider, err := reg.CreateSTT(alt)
				if err != nil {
					slog.Warn("stt fallback not available — skipping", "name", alt.Name, "err", err)
					continue
				}
				fb.AddFallback(alt.Name, altProvider)
			}
			ps.STT[entry.Name] = fb
			slog.Info("provider created", "kind", "stt", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		p, err := reg.CreateTTS(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("tts provider not registered — skipping", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		} else {
			fb := resilience.NewTTSFallback(p, entry.Name, resilience.FallbackConfig{})
			for _, alt := range entry.Fallbacks {
				altProvider, err := reg.CreateTTS(alt)
				if err != nil {
					slog.Warn("tts fallback not available — skipping", "name", alt.Name, "err", err)
					continue
				}
				fb.AddFallback(alt.Name, altProvider)
			}
			ps.TTS[entry.Name] = fb
			slog.Info("provider created", "kind", "tts", "name", entry.Name)
		}
	}

	if entry := cfg.Providers.VAD; entry.Name != "" {
		p, err := reg.CreateVAD(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("vad provider not registered — skipping", "name", entry.Name)
		} else if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", entry.Name, err)
		} else {
			fb := resilience.NewVADFallback(p, entry.Name, resilience.FallbackConfig{})
			for _, alt := range entry.Fallbacks {
				altProvider, err := reg.CreateVAD(alt)
				if err != nil {
					slog.Warn("vad fallback not available — skipping", "name", alt.Name, "err", err)
					continue
				}
				fb.AddFallback(alt.Name, altProvider)
			}
			ps.VAD[entry.Name] = fb
			slog.Info("provider created", "kind", "vad", "name", entry.Name)
		}
	}

	mem, err := reg.CreateMemory(cfg.Memory)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("memory backend not registered — long-term memory disabled", "name", cfg.Memory.Name)
	} else if err != nil {
		return nil, fmt.Errorf("create memory store %q: %w", cfg.Memory.Name, err)
	} else {
		ps.Memory = mem
	}

	return ps, nil
}

// buildAgentConfigPort selects how a connecting device's AgentConfig is
// resolved: from an admin console over HTTP when one is configured, or a
// static configuration built from the session defaults in config.yaml.
func buildAgentConfigPort(cfg *config.Config, consoleURL string) config.AgentConfigPort {
	if consoleURL != "" {
		return config.NewHTTPAgentConfigPort(consoleURL)
	}
	return &config.StaticAgentConfigPort{
		Config: types.AgentConfig{
			Name:             "default",
			SystemPrompt:     cfg.Session.SystemPrompt,
			LLMProvider:      cfg.Providers.LLM.Name,
			STTProvider:      cfg.Providers.STT.Name,
			TTSProvider:      cfg.Providers.TTS.Name,
			VADProvider:      cfg.Providers.VAD.Name,
			VoiceID:          cfg.Session.Voice.VoiceID,
			MemoryMode:       memoryMode(cfg),
			IntentMode:       "function_call",
			MaxToolRecursion: cfg.Session.MaxToolRecursion,
			StreamingEnabled: true,
		},
	}
}

func memoryMode(cfg *config.Config) string {
	if cfg.Memory.Name == "" {
		return "off"
	}
	return "session"
}

// ── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       voiceengine — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Slog()}))
}
