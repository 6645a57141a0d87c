// Package bus carries progress events from the agent loop, decomposer, and
// cron runner out to whatever is watching a run: a WebSocket client of the
// gateway, a CLI chat session, or a cron log.
package bus

import "sync"

// Event is a tagged progress record broadcast to subscribers. Name is one
// of the Event* constants below; Payload is the kind-specific struct.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// Progress event kinds, per the external progress-event taxonomy.
const (
	EventThinking         = "thinking"
	EventToolCall         = "tool_call"
	EventMessage          = "message"
	EventResponse         = "response"
	EventTokenUpdate      = "token_update"
	EventContextWarning   = "context_warning"
	EventSubtaskProgress  = "subtask_progress"
	EventResearchProgress = "research_progress"
	EventResearchComplete = "research_complete"
	EventResearchError    = "research_error"
	EventCronRunStart     = "cron_run_start"
	EventCronRunDone      = "cron_run_done"
	EventCronRunError     = "cron_run_error"
)

// ToolCallPayload is the tool_call event body. The publisher passes Result
// through TruncateResult before it is sent.
type ToolCallPayload struct {
	Tool   string `json:"tool"`
	Params any    `json:"params"`
	Result string `json:"result"`
}

// ResponsePayload is the final composite event body for one turn.
type ResponsePayload struct {
	Text        string `json:"text"`
	TokenUsage  int    `json:"token_usage"`
	SessionID   string `json:"session_id"`
}

// TokenUpdatePayload reports running token totals for the active session.
type TokenUpdatePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	ContextWindow    int `json:"context_window"`
}

// ContextWarningLevel distinguishes an advisory warning from a forced
// compaction trigger.
type ContextWarningLevel string

const (
	ContextWarningAdvisory ContextWarningLevel = "warning"
	ContextWarningCritical ContextWarningLevel = "critical"
)

// ContextWarningPayload reports an approaching or breached context budget.
type ContextWarningPayload struct {
	Level         ContextWarningLevel `json:"level"`
	UsedTokens    int                 `json:"used_tokens"`
	ContextWindow int                 `json:"context_window"`
	PercentUsed   float64             `json:"percent_used"`
}

// SubtaskPhase distinguishes the stages of a decomposed run.
type SubtaskPhase string

const (
	SubtaskPhasePlan         SubtaskPhase = "plan"
	SubtaskPhaseSubtaskStart SubtaskPhase = "subtask_start"
	SubtaskPhaseSubtaskDone  SubtaskPhase = "subtask_done"
	SubtaskPhaseStreamChunk  SubtaskPhase = "stream_chunk"
)

// SubtaskProgressPayload reports decomposer/subtask-runner lifecycle steps.
type SubtaskProgressPayload struct {
	Phase      SubtaskPhase `json:"phase"`
	SubtaskID  string       `json:"subtask_id,omitempty"`
	Index      int          `json:"index,omitempty"`
	Total      int          `json:"total,omitempty"`
	Chunk      string       `json:"chunk,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

// ResearchProgressPayload reports deep-research mode's subtopic lifecycle.
type ResearchProgressPayload struct {
	Stage    string `json:"stage"` // planning | planned | researching | compiling | compiled
	Subtopic string `json:"subtopic,omitempty"`
	Index    int    `json:"index,omitempty"`
	Total    int    `json:"total,omitempty"`
}

// ResearchCompletePayload reports the final research artifact.
type ResearchCompletePayload struct {
	Query           string   `json:"query"`
	ReportPath      string   `json:"report_path"`
	Subtopics       []string `json:"subtopics"`
	FindingsPaths   []string `json:"findings_paths"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// CronRunPayload reports a scheduled job's lifecycle.
type CronRunPayload struct {
	JobID string `json:"job_id"`
	RunID string `json:"run_id"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

// EventHandler receives broadcast events.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription, decoupling
// producers (agent loop, decomposer, cron runner) from whatever is
// listening.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// Hub is an in-memory EventPublisher: every subscribed handler receives
// every broadcast event, synchronously, on the broadcasting goroutine.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{handlers: make(map[string]EventHandler)}
}

// Subscribe registers handler under id, replacing any existing handler with
// the same id.
func (h *Hub) Subscribe(id string, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[id] = handler
}

// Unsubscribe removes the handler registered under id, if any.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, id)
}

// Broadcast delivers event to every current subscriber. Subscribers added
// or removed mid-broadcast do not affect the current pass: the handler
// list is snapshotted under the read lock before any handler runs.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	snapshot := make([]EventHandler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		snapshot = append(snapshot, handler)
	}
	h.mu.RUnlock()
	for _, handler := range snapshot {
		handler(event)
	}
}

// TruncateResult shortens a tool result string for the tool_call event
// payload, per the progress-event taxonomy: a string over 2000 characters is
// cut to its first 2000 and "... (truncated)" is appended.
func TruncateResult(s string) string {
	const maxLen = 2000
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
