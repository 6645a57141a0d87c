package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
	"github.com/nodewerx/tappi-go/internal/tools"
)

// scriptedProvider replays one ChatResponse per call, in order, so a test
// can drive a Loop through a specific sequence of turns.
type scriptedProvider struct {
	responses []*providers.ChatResponse
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return p.ChatStream(ctx, req, nil)
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	if p.calls >= len(p.responses) {
		return nil, fmt.Errorf("scriptedProvider: no more scripted responses (call %d)", p.calls+1)
	}
	resp := p.responses[p.calls]
	p.calls++
	if onChunk != nil && resp.Content != "" {
		onChunk(providers.StreamChunk{Content: resp.Content, Done: true})
	}
	return resp, nil
}

func (p *scriptedProvider) DefaultModel() string { return "scripted-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

// echoTool records every call it receives and returns a fixed result.
type echoTool struct {
	calls []map[string]interface{}
}

func (e *echoTool) Name() string                       { return "echo" }
func (e *echoTool) Description() string                { return "echoes its arguments back" }
func (e *echoTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (e *echoTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	e.calls = append(e.calls, args)
	return tools.NewResult(fmt.Sprintf("echoed %v", args))
}

func newTestLoop(t *testing.T, responses []*providers.ChatResponse, registry *tools.Registry) (*Loop, *sessions.Manager) {
	t.Helper()
	if registry == nil {
		registry = tools.NewRegistry()
	}
	mgr := sessions.NewManager("")
	loop := NewLoop(LoopConfig{
		ID:            "test-loop",
		Provider:      &scriptedProvider{responses: responses},
		Model:         "scripted-model",
		Workspace:     t.TempDir(),
		ContextWindow: 100000,
		MaxIterations: 10,
		Sessions:      mgr,
		Tools:         registry,
	})
	return loop, mgr
}

func TestRunReturnsFinalAnswerWithNoToolCalls(t *testing.T) {
	loop, _ := newTestLoop(t, []*providers.ChatResponse{
		{Content: "The answer is 42.", Usage: &providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}, nil)

	result, err := loop.Run(context.Background(), RunRequest{SessionID: "s1", Message: "what is the answer?"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "The answer is 42." {
		t.Errorf("Content = %q", result.Content)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if loop.Probe().Phase != PhaseDone {
		t.Errorf("Phase = %q, want %q", loop.Probe().Phase, PhaseDone)
	}
}

func TestRunExecutesStructuredToolCallsAndContinues(t *testing.T) {
	registry := tools.NewRegistry()
	echo := &echoTool{}
	registry.Register(echo)

	loop, mgr := newTestLoop(t, []*providers.ChatResponse{
		{
			Content: "Let me check.",
			ToolCalls: []providers.ToolCall{
				{ID: "call_1", Name: "echo", Arguments: map[string]interface{}{"q": "hi"}},
			},
		},
		{Content: "Done, the tool said hello."},
	}, registry)

	result, err := loop.Run(context.Background(), RunRequest{SessionID: "s1", Message: "do the thing"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "Done, the tool said hello." {
		t.Errorf("Content = %q", result.Content)
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", result.Iterations)
	}
	if len(echo.calls) != 1 || echo.calls[0]["q"] != "hi" {
		t.Errorf("echo.calls = %+v, want one call with q=hi", echo.calls)
	}

	history := mgr.GetHistory("s1")
	foundToolMsg := false
	for _, m := range history {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			foundToolMsg = true
			if m.Content != "echoed map[q:hi]" {
				t.Errorf("tool message content = %q", m.Content)
			}
		}
	}
	if !foundToolMsg {
		t.Error("expected a tool-role message keyed to call_1 in history")
	}
}

func TestRunExecutesFallbackToolCallFromTextContent(t *testing.T) {
	registry := tools.NewRegistry()
	echo := &echoTool{}
	registry.Register(echo)

	loop, _ := newTestLoop(t, []*providers.ChatResponse{
		{Content: `I'll check that now. echo{"q": "fallback"}`},
		{Content: "Got it."},
	}, registry)

	result, err := loop.Run(context.Background(), RunRequest{SessionID: "s1", Message: "go"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Content != "Got it." {
		t.Errorf("Content = %q", result.Content)
	}
	if len(echo.calls) != 1 || echo.calls[0]["q"] != "fallback" {
		t.Errorf("echo.calls = %+v, want one call with q=fallback", echo.calls)
	}
}

func TestRunStopsAtHardIterationCeilingRegardlessOfConfig(t *testing.T) {
	registry := tools.NewRegistry()
	echo := &echoTool{}
	registry.Register(echo)

	responses := make([]*providers.ChatResponse, 0, hardIterationCeiling+5)
	for i := 0; i < hardIterationCeiling+5; i++ {
		responses = append(responses, &providers.ChatResponse{
			ToolCalls: []providers.ToolCall{{ID: fmt.Sprintf("c%d", i), Name: "echo", Arguments: map[string]interface{}{}}},
		})
	}

	mgr := sessions.NewManager("")
	loop := NewLoop(LoopConfig{
		Provider:      &scriptedProvider{responses: responses},
		Model:         "scripted-model",
		Workspace:     t.TempDir(),
		ContextWindow: 100000,
		MaxIterations: 1_000_000, // attempt to exceed the hard ceiling via config
		Sessions:      mgr,
		Tools:         registry,
	})

	result, err := loop.Run(context.Background(), RunRequest{SessionID: "s1", Message: "loop forever"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Iterations > hardIterationCeiling {
		t.Errorf("Iterations = %d, exceeded hard ceiling of %d", result.Iterations, hardIterationCeiling)
	}
}

func TestRequestFlushDumpsContextAndReturnsAbortNotice(t *testing.T) {
	registry := tools.NewRegistry()
	loop, mgr := newTestLoop(t, []*providers.ChatResponse{
		{Content: "should never be reached"},
	}, registry)

	loop.RequestFlush()
	result, err := loop.Run(context.Background(), RunRequest{SessionID: "s1", Message: "hello"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Flushed {
		t.Error("expected Flushed = true")
	}
	if loop.Probe().Phase != PhaseFlushed {
		t.Errorf("Phase = %q, want %q", loop.Probe().Phase, PhaseFlushed)
	}

	history := mgr.GetHistory("s1")
	if len(history) != 1 || history[0].Role != "user" {
		t.Fatalf("expected history replaced by a single synthetic user message, got %+v", history)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	loop, _ := newTestLoop(t, []*providers.ChatResponse{
		{Content: "unreachable"},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loop.Run(ctx, RunRequest{SessionID: "s1", Message: "go"})
	if err == nil {
		t.Fatal("expected an error from a pre-canceled context")
	}
}
