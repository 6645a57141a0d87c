package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
)

func TestNeedsCompaction(t *testing.T) {
	tests := []struct {
		name             string
		lastPromptTokens int
		contextWindow    int
		want             bool
	}{
		{"well under threshold", 1000, 100000, false},
		{"exactly at threshold", 75000, 100000, true},
		{"over threshold", 90000, 100000, true},
		{"zero context window never compacts", 90000, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsCompaction(tt.lastPromptTokens, tt.contextWindow); got != tt.want {
				t.Errorf("needsCompaction(%d, %d) = %v, want %v", tt.lastPromptTokens, tt.contextWindow, got, tt.want)
			}
		})
	}
}

func TestCompactWritesDumpAndResetsHistory(t *testing.T) {
	dir := t.TempDir()
	mgr := sessions.NewManager("")
	mgr.GetOrCreate("s1")
	mgr.AddMessage("s1", providers.Message{Role: "user", Content: "find flights to Tokyo"})
	mgr.AddMessage("s1", providers.Message{Role: "assistant", Content: "Looking now.", ToolCalls: []providers.ToolCall{
		{ID: "1", Name: "browser", Arguments: map[string]interface{}{"action": "navigate"}},
	}})
	mgr.AddMessage("s1", providers.Message{Role: "tool", Content: "page loaded", ToolCallID: "1"})
	mgr.SetLastPromptTokens("s1", 500, 3)

	dumpPath, err := compact(mgr, "s1", dir, "claude-x", "proactive")
	if err != nil {
		t.Fatalf("compact() error = %v", err)
	}

	if _, err := os.Stat(dumpPath); err != nil {
		t.Fatalf("expected dump file at %s: %v", dumpPath, err)
	}
	if filepath.Dir(dumpPath) != filepath.Join(dir, "context_dumps") {
		t.Errorf("dump written to %s, want under %s/context_dumps", dumpPath, dir)
	}

	data, err := os.ReadFile(dumpPath)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	dump := string(data)
	for _, want := range []string{"reason: proactive", "find flights to Tokyo", "page loaded", "browser("} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}

	history := mgr.GetHistory("s1")
	if len(history) != 1 {
		t.Fatalf("expected history replaced with 1 synthetic message, got %d", len(history))
	}
	if history[0].Role != "user" {
		t.Errorf("synthetic message role = %q, want user", history[0].Role)
	}
	if !strings.Contains(history[0].Content, dumpPath) {
		t.Error("expected synthetic message to reference the dump path")
	}

	if got := mgr.GetCompactionCount("s1"); got != 1 {
		t.Errorf("CompactionCount = %d, want 1", got)
	}
	tokens, _ := mgr.GetLastPromptTokens("s1")
	if tokens != 0 {
		t.Errorf("LastPromptTokens after compaction = %d, want 0", tokens)
	}
}

func TestBuildCompactSummaryTruncatesAndLabelsRoles(t *testing.T) {
	history := []providers.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there", ToolCalls: []providers.ToolCall{{Name: "files"}}},
		{Role: "tool", Content: "1234567890"},
	}
	summary := buildCompactSummary(history)
	if !strings.Contains(summary, "user: hello") {
		t.Error("expected user line in summary")
	}
	if !strings.Contains(summary, "assistant called files") {
		t.Error("expected assistant tool-call line in summary")
	}
	if !strings.Contains(summary, "[tool result: 10 chars]") {
		t.Error("expected tool result to be collapsed to a char count")
	}
}

func TestTruncateWithMarker(t *testing.T) {
	short := "hello"
	if got := truncateWithMarker(short, 10); got != short {
		t.Errorf("truncateWithMarker(short) = %q, want unchanged", got)
	}

	long := strings.Repeat("x", 20)
	got := truncateWithMarker(long, 5)
	if !strings.HasPrefix(got, "xxxxx") {
		t.Errorf("truncateWithMarker should keep the first 5 chars, got %q", got)
	}
	if !strings.Contains(got, "truncated, 20 total chars") {
		t.Errorf("expected truncation marker with total char count, got %q", got)
	}
}
