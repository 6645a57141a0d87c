package agent

import "testing"

func TestParseFallbackToolCallFencedJSON(t *testing.T) {
	content := "Sure, let me check that.\n```json\n{\"name\": \"files\", \"arguments\": {\"action\": \"read\", \"path\": \"a.txt\"}}\n```\n"
	call := parseFallbackToolCall(content, map[string]bool{"files": true})
	if call == nil {
		t.Fatal("expected a parsed call, got nil")
	}
	if call.Name != "files" {
		t.Errorf("Name = %q, want files", call.Name)
	}
	if call.Arguments["path"] != "a.txt" {
		t.Errorf("Arguments[path] = %v, want a.txt", call.Arguments["path"])
	}
}

func TestParseFallbackToolCallFencedJSONParametersKey(t *testing.T) {
	content := "```json\n{\"name\": \"shell\", \"parameters\": {\"command\": \"ls\"}}\n```"
	call := parseFallbackToolCall(content, map[string]bool{"shell": true})
	if call == nil {
		t.Fatal("expected a parsed call, got nil")
	}
	if call.Arguments["command"] != "ls" {
		t.Errorf("Arguments[command] = %v, want ls", call.Arguments["command"])
	}
}

func TestParseFallbackToolCallBareBraceForm(t *testing.T) {
	content := `I'll look that up now. files{"action": "read", "path": "notes.md"} and then report back.`
	call := parseFallbackToolCall(content, map[string]bool{"files": true})
	if call == nil {
		t.Fatal("expected a parsed call, got nil")
	}
	if call.Name != "files" {
		t.Errorf("Name = %q, want files", call.Name)
	}
	if call.Arguments["path"] != "notes.md" {
		t.Errorf("Arguments[path] = %v, want notes.md", call.Arguments["path"])
	}
	if call.Fragment == "" {
		t.Error("expected a non-empty Fragment")
	}
}

func TestParseFallbackToolCallBareParenForm(t *testing.T) {
	content := `exec(ls -la /tmp)`
	call := parseFallbackToolCall(content, map[string]bool{"exec": true})
	if call == nil {
		t.Fatal("expected a parsed call, got nil")
	}
	if call.Arguments["input"] != "ls -la /tmp" {
		t.Errorf("Arguments[input] = %v, want \"ls -la /tmp\"", call.Arguments["input"])
	}
}

func TestParseFallbackToolCallIgnoresUnknownToolName(t *testing.T) {
	content := `notatool{"foo": "bar"}`
	call := parseFallbackToolCall(content, map[string]bool{"files": true})
	if call != nil {
		t.Errorf("expected nil for unrecognized tool name, got %+v", call)
	}
}

func TestParseFallbackToolCallSkipsUnknownNameAndFindsNextCandidate(t *testing.T) {
	content := `notatool{"foo": "bar"} then files{"action": "read", "path": "x.txt"}`
	call := parseFallbackToolCall(content, map[string]bool{"files": true})
	if call == nil {
		t.Fatal("expected a parsed call, got nil")
	}
	if call.Name != "files" {
		t.Errorf("Name = %q, want files", call.Name)
	}
}

func TestParseFallbackToolCallNoMatch(t *testing.T) {
	call := parseFallbackToolCall("just a plain final answer, no tool calls here", map[string]bool{"files": true})
	if call != nil {
		t.Errorf("expected nil, got %+v", call)
	}
}

func TestStripToolCallFragment(t *testing.T) {
	content := `Let me check that. files{"action": "read"} Done.`
	fragment := `files{"action": "read"}`
	got := stripToolCallFragment(content, fragment)
	want := "Let me check that.  Done."
	if got != want {
		t.Errorf("stripToolCallFragment = %q, want %q", got, want)
	}
}

func TestStripToolCallFragmentEmptyFragmentIsNoop(t *testing.T) {
	content := "unchanged text"
	if got := stripToolCallFragment(content, ""); got != content {
		t.Errorf("stripToolCallFragment with empty fragment = %q, want unchanged %q", got, content)
	}
}
