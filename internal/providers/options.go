package providers

// Option keys for ChatRequest.Options, the one-map request-shaping layer
// described in spec.md §4.6: every provider quirk (thinking levels,
// DashScope's enable_thinking/thinking_budget passthrough, reasoning_effort
// for o-series models) reads from this same map instead of a bespoke field
// per provider.
const (
	OptMaxTokens   = "max_tokens"
	OptTemperature = "temperature"

	// OptThinkingLevel is the generic level ("off", "low", "medium", "high")
	// a caller sets; each provider's buildRequestBody translates it into its
	// own wire shape (Anthropic's budget_tokens, OpenAI's reasoning_effort).
	OptThinkingLevel   = "thinking_level"
	OptReasoningEffort = "reasoning_effort"

	// DashScope-specific passthrough keys, set by DashScopeProvider from
	// OptThinkingLevel and forwarded verbatim in the request body.
	OptEnableThinking = "enable_thinking"
	OptThinkingBudget = "thinking_budget"
)

// ThinkingCapable is implemented by providers whose wire protocol supports
// extended/reasoning thinking, so callers can gate OptThinkingLevel on
// whether the selected provider can actually use it.
type ThinkingCapable interface {
	SupportsThinking() bool
}
