package decompose

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
	"github.com/nodewerx/tappi-go/internal/tools"
)

// queuedProvider returns one canned, tool-call-free response per call, so
// every sub-agent Loop it drives finishes in exactly one turn.
type queuedProvider struct {
	contents []string
	calls    int
}

func (p *queuedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return p.ChatStream(ctx, req, nil)
}

func (p *queuedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	i := p.calls
	p.calls++
	if i >= len(p.contents) {
		return &providers.ChatResponse{Content: "done"}, nil
	}
	return &providers.ChatResponse{Content: p.contents[i], Usage: &providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}

func (p *queuedProvider) DefaultModel() string { return "scripted-model" }
func (p *queuedProvider) Name() string         { return "scripted" }

func newTestRunner(t *testing.T, contents []string, subtasks []*Subtask) (*Runner, string) {
	t.Helper()
	workspace := t.TempDir()
	runner, err := NewRunner(RunnerConfig{
		Workspace:         workspace,
		ParentSessionID:   "parent-1",
		OriginalTask:      "do the thing",
		Provider:          &queuedProvider{contents: contents},
		Model:             "scripted-model",
		ContextWindow:     100000,
		MainMaxTokens:     2048,
		SubagentMaxTokens: 1024,
		Sessions:          sessions.NewManager(""),
		Tools:             tools.NewRegistry(),
	}, subtasks)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return runner, workspace
}

func TestRunnerRunCompletesEverySubtaskInOrder(t *testing.T) {
	subtasks := []*Subtask{
		{Task: "search for X", Tool: "browser", Output: "step_1.md", Index: 0, Total: 2, Status: StatusPending},
		{Task: "compile findings", Tool: "compile", Output: "final.md", Index: 1, Total: 2, Status: StatusPending},
	}
	runner, workspace := newTestRunner(t, []string{"found some things about X", "here is the compiled report"}, subtasks)

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Aborted {
		t.Error("expected Aborted = false")
	}
	for _, st := range subtasks {
		if st.Status != StatusDone {
			t.Errorf("subtask %d status = %q, want done", st.Index, st.Status)
		}
	}
	if result.FinalOutput != "# Subtask 2\n\nhere is the compiled report\n" {
		t.Errorf("FinalOutput = %q", result.FinalOutput)
	}

	step1 := filepath.Join(workspace, result.OutputDir, "step_1.md")
	if _, err := os.Stat(step1); err != nil {
		t.Errorf("expected synthesized output file at %s: %v", step1, err)
	}
	if result.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", result.TotalTokens)
	}
}

func TestRunnerRunStopsWhenAbortRequestedBeforeNextSubtask(t *testing.T) {
	subtasks := []*Subtask{
		{Task: "step one", Tool: "browser", Output: "step_1.md", Index: 0, Total: 3, Status: StatusPending},
		{Task: "step two", Tool: "browser", Output: "step_2.md", Index: 1, Total: 3, Status: StatusPending},
		{Task: "compile", Tool: "compile", Output: "final.md", Index: 2, Total: 3, Status: StatusPending},
	}
	runner, _ := newTestRunner(t, []string{"result one"}, subtasks)
	runner.RequestAbort()

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Aborted {
		t.Error("expected Aborted = true")
	}
	if subtasks[0].Status != StatusFailed {
		t.Errorf("subtasks[0].Status = %q, want failed", subtasks[0].Status)
	}
	if subtasks[1].Status != StatusPending || subtasks[2].Status != StatusPending {
		t.Error("expected remaining subtasks to stay pending when aborted before they started")
	}
}

func TestRunnerProbeReachesThroughToActiveSubAgent(t *testing.T) {
	subtasks := []*Subtask{
		{Task: "a single step", Tool: "browser", Output: "step_1.md", Index: 0, Total: 1, Status: StatusPending},
	}
	runner, _ := newTestRunner(t, []string{"single result"}, subtasks)

	snap := runner.Probe()
	if snap.Phase != RunnerPhaseRunningSubtasks {
		t.Errorf("Phase = %q, want %q", snap.Phase, RunnerPhaseRunningSubtasks)
	}

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if runner.Probe().Phase != RunnerPhaseDone {
		t.Errorf("Phase after Run = %q, want %q", runner.Probe().Phase, RunnerPhaseDone)
	}
}

func TestRunnerUsesResearchPromptsWhenResearchQuerySet(t *testing.T) {
	subtasks, err := DecomposeResearch(context.Background(), &scriptedProvider{content: "no usable plan"}, "m", "July 31, 2026", "deep topic", 2)
	if err != nil {
		t.Fatalf("DecomposeResearch() error = %v", err)
	}

	workspace := t.TempDir()
	runner, err := NewRunner(RunnerConfig{
		Workspace:         workspace,
		ParentSessionID:   "parent-research",
		ResearchQuery:     "deep topic",
		Provider:          &queuedProvider{contents: []string{"findings one", "findings two", "compiled report"}},
		Model:             "scripted-model",
		ContextWindow:     100000,
		MainMaxTokens:     2048,
		SubagentMaxTokens: 1024,
		Sessions:          sessions.NewManager(""),
		Tools:             tools.NewRegistry(),
	}, subtasks)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FinalOutput == "" {
		t.Error("expected a non-empty final research report")
	}
}
