package providers

// Wire types for OpenAI-compatible chat completions responses (OpenAI, Groq,
// OpenRouter, DeepSeek, VLLM, Gemini's OpenAI-compat endpoint, DashScope).
// Kept separate from the exported ChatResponse/Message shapes in types.go
// since the wire format carries provider quirks (arguments as a JSON
// string, tool_calls needing a type+function wrapper, Gemini's
// thought_signature) that the internal types intentionally don't.

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIMessage struct {
	Content          string           `json:"content"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string          `json:"id"`
	Function openAIFunction  `json:"function"`
}

type openAIFunction struct {
	Name             string `json:"name"`
	Arguments        string `json:"arguments"`
	ThoughtSignature string `json:"thought_signature,omitempty"`
}

type openAIUsage struct {
	PromptTokens            int                             `json:"prompt_tokens"`
	CompletionTokens        int                             `json:"completion_tokens"`
	TotalTokens             int                             `json:"total_tokens"`
	PromptTokensDetails     *openAIPromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *openAICompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

type openAIPromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type openAICompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// Streaming variants: same shape, but Message becomes an incremental Delta
// and tool_calls arrive index-keyed fragments assembled by toolCallAccumulator.

type openAIStreamChunk struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type openAIDelta struct {
	Content          string                `json:"content,omitempty"`
	ReasoningContent string                `json:"reasoning_content,omitempty"`
	ToolCalls        []openAIToolCallDelta `json:"tool_calls,omitempty"`
}

type openAIToolCallDelta struct {
	Index    int                 `json:"index"`
	ID       string              `json:"id,omitempty"`
	Function openAIFunctionDelta `json:"function"`
}

type openAIFunctionDelta struct {
	Name             string `json:"name,omitempty"`
	Arguments        string `json:"arguments,omitempty"`
	ThoughtSignature string `json:"thought_signature,omitempty"`
}

// toolCallAccumulator assembles one tool call's streamed argument fragments
// (and optional Gemini thought_signature) across multiple deltas, keyed by
// the delta's Index in ChatStream.
type toolCallAccumulator struct {
	ToolCall
	rawArgs    string
	thoughtSig string
}
