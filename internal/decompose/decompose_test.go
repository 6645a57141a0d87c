package decompose

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nodewerx/tappi-go/internal/providers"
)

type scriptedProvider struct {
	content string
	err     error
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &providers.ChatResponse{Content: p.content}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}

func (p *scriptedProvider) DefaultModel() string { return "scripted-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func TestBuildDecomposePromptIncludesTaskAndDate(t *testing.T) {
	prompt := BuildDecomposePrompt("July 31, 2026", "write a report")
	if !strings.Contains(prompt, "July 31, 2026") || !strings.Contains(prompt, "write a report") {
		t.Errorf("prompt missing date or task: %q", prompt)
	}
}

func TestDecomposeTaskSimpleFencedObject(t *testing.T) {
	p := &scriptedProvider{content: "Here's my decision:\n```json\n{\"simple\": true}\n```"}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "what's 2+2?")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if subtasks != nil {
		t.Errorf("subtasks = %+v, want nil for a simple task", subtasks)
	}
}

func TestDecomposeTaskComplexFencedArray(t *testing.T) {
	content := "```json\n" + `[
  {"task": "search for X", "tool": "browser", "output": "step_1.md"},
  {"task": "visit each result", "tool": "browser", "output": "step_2.md"},
  {"task": "compile the findings", "tool": "compile", "output": "final.md"}
]` + "\n```"
	p := &scriptedProvider{content: content}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "research X thoroughly")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if len(subtasks) != 3 {
		t.Fatalf("len(subtasks) = %d, want 3", len(subtasks))
	}
	if subtasks[2].Tool != "compile" {
		t.Errorf("last subtask Tool = %q, want compile", subtasks[2].Tool)
	}
	for i, st := range subtasks {
		if st.Index != i {
			t.Errorf("subtasks[%d].Index = %d, want %d", i, st.Index, i)
		}
		if st.Total != 3 {
			t.Errorf("subtasks[%d].Total = %d, want 3", i, st.Total)
		}
		if st.Status != StatusPending {
			t.Errorf("subtasks[%d].Status = %q, want pending", i, st.Status)
		}
	}
}

func TestDecomposeTaskBareSimpleObject(t *testing.T) {
	p := &scriptedProvider{content: `I think {"simple": true} is right here.`}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "hi")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if subtasks != nil {
		t.Errorf("subtasks = %+v, want nil", subtasks)
	}
}

func TestDecomposeTaskBareArray(t *testing.T) {
	content := `Plan: [{"task": "a", "tool": "browser", "output": "a.md"}, {"task": "b", "tool": "files", "output": "b.md"}]`
	p := &scriptedProvider{content: content}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "do two things")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("len(subtasks) = %d, want 2", len(subtasks))
	}
	if subtasks[1].Tool != "files" {
		t.Errorf("subtasks[1].Tool = %q, want files", subtasks[1].Tool)
	}
}

func TestDecomposeTaskUnparsableFallsBackToSimple(t *testing.T) {
	p := &scriptedProvider{content: "I don't really know how to answer in JSON."}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "confuse the parser")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if subtasks != nil {
		t.Errorf("subtasks = %+v, want nil on unparsable response", subtasks)
	}
}

func TestDecomposeTaskTooFewSubtasksFallsBackToSimple(t *testing.T) {
	content := `[{"task": "only one step", "tool": "browser", "output": "a.md"}]`
	p := &scriptedProvider{content: content}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "single step task")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if subtasks != nil {
		t.Errorf("subtasks = %+v, want nil when below minSubtasks", subtasks)
	}
}

func TestDecomposeTaskTruncatesAtMaxSubtasks(t *testing.T) {
	items := ""
	for i := 0; i < 14; i++ {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"task": "step %d", "tool": "browser", "output": "s%d.md"}`, i, i)
	}
	content := "[" + items + "]"
	p := &scriptedProvider{content: content}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "do fourteen things")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if len(subtasks) != maxSubtasks {
		t.Errorf("len(subtasks) = %d, want %d", len(subtasks), maxSubtasks)
	}
}

func TestDecomposeTaskDefaultsMissingToolAndOutput(t *testing.T) {
	content := `[{"task": "a"}, {"task": "b"}]`
	p := &scriptedProvider{content: content}
	subtasks, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "minimal items")
	if err != nil {
		t.Fatalf("DecomposeTask() error = %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("len(subtasks) = %d, want 2", len(subtasks))
	}
	if subtasks[0].Tool != "browser" {
		t.Errorf("subtasks[0].Tool = %q, want default browser", subtasks[0].Tool)
	}
	if subtasks[0].Output != "step_1.md" {
		t.Errorf("subtasks[0].Output = %q, want step_1.md", subtasks[0].Output)
	}
}

func TestDecomposeTaskPropagatesProviderError(t *testing.T) {
	p := &scriptedProvider{err: fmt.Errorf("boom")}
	_, err := DecomposeTask(context.Background(), p, "m", "July 31, 2026", "whatever")
	if err == nil {
		t.Fatal("expected an error when the provider call fails")
	}
}
