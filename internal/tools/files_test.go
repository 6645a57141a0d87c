package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFilesTool(t *testing.T) *FilesTool {
	t.Helper()
	dir := t.TempDir()
	return NewFilesTool(dir)
}

func TestFilesWriteThenRead(t *testing.T) {
	ft := newTestFilesTool(t)
	ctx := context.Background()

	res := ft.Execute(ctx, map[string]interface{}{"action": "write", "path": "notes.md", "content": "hello"})
	if res.IsError {
		t.Fatalf("write failed: %s", res.ForLLM)
	}

	res = ft.Execute(ctx, map[string]interface{}{"action": "read", "path": "notes.md"})
	if res.IsError || res.ForLLM != "hello" {
		t.Errorf("read = %+v", res)
	}
}

func TestFilesResolveRejectsWorkspaceEscape(t *testing.T) {
	ft := newTestFilesTool(t)
	_, err := ft.resolve("../../etc/passwd")
	if err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestFilesResolveRejectsSiblingDirectoryConfusion(t *testing.T) {
	dir := t.TempDir()
	ft := NewFilesTool(filepath.Join(dir, "work"))
	os.MkdirAll(filepath.Join(dir, "work"), 0o755)
	os.MkdirAll(filepath.Join(dir, "work-evil"), 0o755)

	// A path that resolves to a sibling dir sharing the workspace name as a
	// prefix must be rejected — this is exactly the bug in the bare
	// string-prefix check this resolver replaces.
	_, err := ft.resolve("../work-evil/secret.txt")
	if err == nil {
		t.Fatal("expected sibling-directory confusion to be rejected")
	}
}

func TestFilesDeleteRefusesWorkspaceRoot(t *testing.T) {
	ft := newTestFilesTool(t)
	res := ft.Execute(context.Background(), map[string]interface{}{"action": "delete", "path": "."})
	if !res.IsError {
		t.Error("expected deleting workspace root to fail")
	}
}

func TestFilesListShowsFilesAndDirs(t *testing.T) {
	ft := newTestFilesTool(t)
	ctx := context.Background()
	ft.Execute(ctx, map[string]interface{}{"action": "write", "path": "a.txt", "content": "x"})
	ft.Execute(ctx, map[string]interface{}{"action": "mkdir", "path": "sub"})

	res := ft.Execute(ctx, map[string]interface{}{"action": "list", "path": "."})
	if res.IsError {
		t.Fatalf("list failed: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "a.txt") || !strings.Contains(res.ForLLM, "sub/") {
		t.Errorf("list output missing entries: %q", res.ForLLM)
	}
}

func TestFilesGrepFindsMatchAcrossFiles(t *testing.T) {
	ft := newTestFilesTool(t)
	ctx := context.Background()
	ft.Execute(ctx, map[string]interface{}{"action": "write", "path": "a.md", "content": "alpha\nBeta line\ngamma"})
	ft.Execute(ctx, map[string]interface{}{"action": "write", "path": "b.txt", "content": "nothing here"})

	res := ft.Execute(ctx, map[string]interface{}{"action": "grep", "query": "beta", "path": "."})
	if res.IsError {
		t.Fatalf("grep failed: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "a.md:2:Beta line") {
		t.Errorf("grep output = %q", res.ForLLM)
	}
}

func TestFilesReadMissingFileReturnsNotFoundError(t *testing.T) {
	ft := newTestFilesTool(t)
	res := ft.Execute(context.Background(), map[string]interface{}{"action": "read", "path": "missing.txt"})
	if !res.IsError || !strings.Contains(res.ForLLM, "File not found") {
		t.Errorf("expected File not found error, got %+v", res)
	}
}

func TestFilesMoveThenInfo(t *testing.T) {
	ft := newTestFilesTool(t)
	ctx := context.Background()
	ft.Execute(ctx, map[string]interface{}{"action": "write", "path": "src.txt", "content": "data"})

	res := ft.Execute(ctx, map[string]interface{}{"action": "move", "path": "src.txt", "destination": "dst.txt"})
	if res.IsError {
		t.Fatalf("move failed: %s", res.ForLLM)
	}

	res = ft.Execute(ctx, map[string]interface{}{"action": "info", "path": "dst.txt"})
	if res.IsError || !strings.Contains(res.ForLLM, "type: file") {
		t.Errorf("info = %+v", res)
	}
}
