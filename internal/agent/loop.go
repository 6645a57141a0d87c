// Package agent implements the tool-calling conversation loop described in
// spec.md §4.2: one turn-taking loop per running chat, driving a
// provider-agnostic chat-completions endpoint, executing every tool call
// the model emits, streaming partial text out over an event bus, and
// keeping context pressure bounded via proactive/flush-triggered
// compaction.
package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nodewerx/tappi-go/internal/bus"
	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
	"github.com/nodewerx/tappi-go/internal/tools"
)

// hardIterationCeiling is the unconditional backstop per spec.md §4.2's
// iteration cap: no configured value, however misconfigured, can push a
// single Run past this many turns.
const hardIterationCeiling = 500

const defaultMaxIterations = 50

const defaultMaxTokens = 4096

// LoopConfig configures a Loop. Sessions, Tools, and Provider are required;
// everything else has a spec-matching default.
type LoopConfig struct {
	ID       string
	Provider providers.Provider
	Model    string

	Workspace     string
	ContextWindow int // model's context limit in tokens; default 128000
	MaxIterations int // clamped to [1, hardIterationCeiling]; default 50
	MaxTokens     int // response max_tokens; default 4096
	ThinkingLevel string

	Sessions *sessions.Manager
	Tools    *tools.Registry
	Bus      bus.EventPublisher

	// Subagent marks a Loop spun up by the decomposer for one subtask:
	// it is restricted to tools.Registry.SubagentDefs() (no exec, cron,
	// spawn, decompose, session_status — see subagentDenyList) and expects
	// SystemPromptOverride to carry the subtask-specific template from
	// spec.md §4.3 instead of the default one below.
	Subagent             bool
	SystemPromptOverride string
}

// Loop drives one agent's tool-calling conversation. A single Loop may run
// multiple sessions sequentially (each Run call is independent), but is not
// safe for concurrent Run calls against the same session id.
type Loop struct {
	id       string
	provider providers.Provider
	model    string

	workspace     string
	contextWindow int
	maxIterations int
	maxTokens     int
	thinkingLevel string

	sessions *sessions.Manager
	tools    *tools.Registry
	bus      bus.EventPublisher

	subagent             bool
	systemPromptOverride string

	probe          *probeState
	flushRequested atomic.Bool
}

// NewLoop constructs a Loop from cfg, applying spec.md §4.7's defaults for
// anything left zero-valued.
func NewLoop(cfg LoopConfig) *Loop {
	contextWindow := cfg.ContextWindow
	if contextWindow <= 0 {
		contextWindow = 128000
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if maxIterations > hardIterationCeiling {
		maxIterations = hardIterationCeiling
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Loop{
		id:                   cfg.ID,
		provider:             cfg.Provider,
		model:                cfg.Model,
		workspace:            cfg.Workspace,
		contextWindow:        contextWindow,
		maxIterations:        maxIterations,
		maxTokens:            maxTokens,
		thinkingLevel:        cfg.ThinkingLevel,
		sessions:             cfg.Sessions,
		tools:                cfg.Tools,
		bus:                  cfg.Bus,
		subagent:             cfg.Subagent,
		systemPromptOverride: cfg.SystemPromptOverride,
		probe:                newProbeState(),
	}
}

func (l *Loop) ID() string    { return l.id }
func (l *Loop) Model() string { return l.model }

// Probe returns a read-only snapshot of the loop's current state, safe to
// call from any goroutine while Run is in progress.
func (l *Loop) Probe() Probe { return l.probe.Snapshot() }

// RequestFlush asks the currently running (or next) Run to perform a
// graceful flush: dump context, return an abort notice, and stop — instead
// of continuing the turn loop. This is the "abort flag settable from
// another thread" of spec.md §4.2 step 1; general cancellation (process
// shutdown, caller giving up) goes through Run's ctx instead, per spec.md
// §9's redesign note.
func (l *Loop) RequestFlush() { l.flushRequested.Store(true) }

// RunRequest is one turn-loop invocation: a new user message appended to
// SessionID's history (or empty, to resume a loop mid-tool-execution after
// a prior partial run — not used by the current callers, but the loop
// itself is stateless across calls so this degrades safely).
type RunRequest struct {
	SessionID string
	Message   string
}

// RunResult is what a completed (or flushed, or capped) Run returns.
type RunResult struct {
	Content    string
	Iterations int
	Usage      *providers.Usage
	Flushed    bool
}

// browserLifecycle is implemented by *tools.BrowserTool; Loop type-asserts
// against it rather than importing tools.BrowserTool directly, so Run works
// unchanged whether or not a browser tool is registered.
type browserLifecycle interface {
	Open(ctx context.Context) error
	Close(ctx context.Context)
}

// Run drives one full turn-taking conversation for req.SessionID until the
// model produces a final answer, a flush is requested, ctx is canceled, or
// the iteration cap is reached. It implements spec.md §4.2's seven-step
// turn procedure.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	l.probe.setPhase(PhaseStarting)

	l.sessions.GetOrCreate(req.SessionID)
	l.sessions.UpdateMetadata(req.SessionID, l.model, l.provider.Name())
	l.sessions.SetContextWindow(req.SessionID, l.contextWindow)
	defer l.sessions.Save(req.SessionID)

	if req.Message != "" {
		l.sessions.AddMessage(req.SessionID, providers.Message{Role: "user", Content: req.Message})
	}

	if bl, ok := l.browserTool(); ok {
		if err := bl.Open(ctx); err != nil {
			return nil, fmt.Errorf("agent: open browser: %w", err)
		}
		defer bl.Close(ctx)
	}

	iteration := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if iteration >= hardIterationCeiling || iteration >= l.maxIterations {
			l.probe.setPhase(PhaseDone)
			return &RunResult{
				Content:    "Iteration limit reached before the task could be completed.",
				Iterations: iteration,
			}, nil
		}
		iteration++
		l.probe.setIteration(iteration)

		// Step 1: flush check.
		if l.flushRequested.Swap(false) {
			l.probe.setPhase(PhaseFlushed)
			dumpPath, err := compact(l.sessions, req.SessionID, l.workspace, l.model, "flush")
			if err != nil {
				return nil, fmt.Errorf("agent: flush compaction: %w", err)
			}
			l.probe.setMessageCount(len(l.sessions.GetHistory(req.SessionID)))
			return &RunResult{
				Content:    fmt.Sprintf("Run flushed by request. Conversation context was dumped to %s and the window reset.", dumpPath),
				Iterations: iteration,
				Flushed:    true,
			}, nil
		}

		// Step 2: proactive compaction.
		lastPromptTokens, _ := l.sessions.GetLastPromptTokens(req.SessionID)
		if needsCompaction(lastPromptTokens, l.contextWindow) {
			if _, err := compact(l.sessions, req.SessionID, l.workspace, l.model, "proactive"); err != nil {
				return nil, fmt.Errorf("agent: proactive compaction: %w", err)
			}
			l.emitContextWarning(lastPromptTokens, true)
		} else if l.contextWindow > 0 && float64(lastPromptTokens) >= float64(l.contextWindow)*0.5 {
			l.emitContextWarning(lastPromptTokens, false)
		}

		// Step 3: assemble messages, call the LLM with streaming.
		l.probe.setPhase(PhaseCallingLLM)
		messages := l.buildMessages(req.SessionID)
		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    l.toolDefs(),
			Model:    l.model,
			Options:  l.chatOptions(),
		}

		resp, err := l.provider.ChatStream(ctx, chatReq, func(chunk providers.StreamChunk) {
			if chunk.Content != "" {
				l.emit(bus.EventThinking, chunk.Content)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("agent: llm call: %w", err)
		}

		if resp.Usage != nil {
			l.sessions.AccumulateTokens(req.SessionID, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
			l.sessions.SetLastPromptTokens(req.SessionID, resp.Usage.PromptTokens, len(messages)+1)
			l.probe.setUsage(resp.Usage)
			l.emitTokenUpdate(resp.Usage)
		}

		content := SanitizeAssistantContent(resp.Content)

		// Steps 4-5: append the assistant turn, checking for a
		// text-encoded fallback tool call when the model emitted none
		// structurally.
		if len(resp.ToolCalls) == 0 {
			if call := parseFallbackToolCall(content, l.knownToolNames()); call != nil {
				cleaned := stripToolCallFragment(content, call.Fragment)
				l.sessions.AddMessage(req.SessionID, providers.Message{Role: "assistant", Content: cleaned})
				l.runToolCall(ctx, req.SessionID, providers.ToolCall{
					ID:        fmt.Sprintf("fallback_%d", iteration),
					Name:      call.Name,
					Arguments: call.Arguments,
				})
				l.probe.setMessageCount(len(l.sessions.GetHistory(req.SessionID)))
				continue
			}

			// Step 6: no tool calls, no fallback match — final turn.
			l.sessions.AddMessage(req.SessionID, providers.Message{Role: "assistant", Content: content})
			l.probe.setMessageCount(len(l.sessions.GetHistory(req.SessionID)))
			l.probe.setPhase(PhaseDone)
			totalTokens := 0
			if resp.Usage != nil {
				totalTokens = resp.Usage.TotalTokens
			}
			l.emit(bus.EventResponse, bus.ResponsePayload{
				Text:       content,
				TokenUsage: totalTokens,
				SessionID:  req.SessionID,
			})
			return &RunResult{Content: content, Iterations: iteration, Usage: resp.Usage}, nil
		}

		// Step 7: structured tool calls.
		l.sessions.AddMessage(req.SessionID, providers.Message{
			Role:                "assistant",
			Content:             content,
			ToolCalls:           resp.ToolCalls,
			RawAssistantContent: resp.RawAssistantContent,
		})
		l.probe.setMessageCount(len(l.sessions.GetHistory(req.SessionID)))
		l.probe.setPhase(PhaseToolCall)
		for _, tc := range resp.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			l.runToolCall(ctx, req.SessionID, tc)
		}
		l.probe.setMessageCount(len(l.sessions.GetHistory(req.SessionID)))
	}
}

// runToolCall executes one tool call and appends its result to history as
// a tool-role message keyed to the call's id, per spec.md §4.2 step 7.
func (l *Loop) runToolCall(ctx context.Context, sessionID string, tc providers.ToolCall) {
	l.probe.setLastToolCall(tc.Name)
	result := l.tools.Execute(ctx, tc.Name, tc.Arguments)

	l.emit(bus.EventToolCall, bus.ToolCallPayload{
		Tool:   tc.Name,
		Params: tc.Arguments,
		Result: bus.TruncateResult(result.ForLLM),
	})

	l.sessions.AddMessage(sessionID, providers.Message{
		Role:       "tool",
		Content:    result.ForLLM,
		ToolCallID: tc.ID,
	})
}

func (l *Loop) browserTool() (browserLifecycle, bool) {
	if l.tools == nil {
		return nil, false
	}
	t, ok := l.tools.Get("browser")
	if !ok {
		return nil, false
	}
	bl, ok := t.(browserLifecycle)
	return bl, ok
}

func (l *Loop) toolDefs() []providers.ToolDefinition {
	if l.tools == nil {
		return nil
	}
	if l.subagent {
		return l.tools.SubagentDefs()
	}
	return l.tools.ProviderDefs(nil)
}

func (l *Loop) knownToolNames() map[string]bool {
	known := make(map[string]bool)
	if l.tools == nil {
		return known
	}
	for _, name := range l.tools.List() {
		known[name] = true
	}
	return known
}

func (l *Loop) chatOptions() map[string]interface{} {
	opts := map[string]interface{}{
		providers.OptMaxTokens: l.maxTokens,
	}
	if l.thinkingLevel != "" {
		opts[providers.OptThinkingLevel] = l.thinkingLevel
	}
	return opts
}

func (l *Loop) buildMessages(sessionID string) []providers.Message {
	system := l.buildSystemPrompt(sessionID)
	history := l.sessions.GetHistory(sessionID)
	messages := make([]providers.Message, 0, len(history)+1)
	messages = append(messages, providers.Message{Role: "system", Content: system})
	messages = append(messages, history...)
	return messages
}

func (l *Loop) buildSystemPrompt(sessionID string) string {
	if l.subagent && l.systemPromptOverride != "" {
		return l.systemPromptOverride
	}

	lastPromptTokens, _ := l.sessions.GetLastPromptTokens(sessionID)
	pct := 0.0
	if l.contextWindow > 0 {
		pct = float64(lastPromptTokens) / float64(l.contextWindow) * 100
	}

	return fmt.Sprintf(defaultSystemPromptTemplate,
		l.workspace,
		time.Now().Format("2006-01-02"),
		l.contextWindow,
		lastPromptTokens,
		pct,
	)
}

const defaultSystemPromptTemplate = `You are an autonomous browser-automation agent with access to a browser, the local filesystem, and a handful of document tools.

Workspace: %s
Today's date: %s
Model context limit: %d tokens
Last known prompt tokens: %d (%.1f%% of context limit)

Work the task using the available tools. The browser tool is already open and connected; open new tabs only when needed and let the adapter manage cleanup. Prefer the smallest number of precise tool calls that accomplish the task. When you have a final answer and no further tool calls are needed, reply with it directly.`

func (l *Loop) emit(name string, payload interface{}) {
	if l.bus == nil {
		return
	}
	l.bus.Broadcast(bus.Event{Name: name, Payload: payload})
}

func (l *Loop) emitTokenUpdate(u *providers.Usage) {
	l.emit(bus.EventTokenUpdate, bus.TokenUpdatePayload{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		ContextWindow:    l.contextWindow,
	})
}

func (l *Loop) emitContextWarning(usedTokens int, critical bool) {
	level := bus.ContextWarningAdvisory
	if critical {
		level = bus.ContextWarningCritical
	}
	pct := 0.0
	if l.contextWindow > 0 {
		pct = float64(usedTokens) / float64(l.contextWindow) * 100
	}
	l.emit(bus.EventContextWarning, bus.ContextWarningPayload{
		Level:         level,
		UsedTokens:    usedTokens,
		ContextWindow: l.contextWindow,
		PercentUsed:   pct,
	})
}
