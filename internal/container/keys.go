package container

// Canonical session-scoped registration names shared by every package that
// creates or resolves per-session state, so two packages never drift onto
// different string literals for the same convention.
const (
	// SessionContextKey resolves to a *types.SessionContext.
	SessionContextKey = "session_context"

	// LifecycleManagerKey resolves to a *LifecycleManager.
	LifecycleManagerKey = "lifecycle_manager"

	// ConversationHistoryKey resolves to a *sessionctx.ConversationHistory.
	ConversationHistoryKey = "conversation_history"

	// TTSOrchestratorKey resolves to a *ttsorchestrator.Orchestrator.
	TTSOrchestratorKey = "tts_orchestrator"
)
