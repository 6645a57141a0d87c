package profiles

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Work ":      "work",
		"my profile": "my-profile",
		"already-ok": "already-ok",
		"  Mixed_1 ": "mixed_1",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateAssignsSequentialPorts(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	p1, err := store.Create("work", 0)
	if err != nil {
		t.Fatalf("create work: %v", err)
	}
	if p1.Port != basePort {
		t.Errorf("first profile port = %d, want %d", p1.Port, basePort)
	}
	if !p1.IsDefault {
		t.Error("first created profile should become default")
	}

	p2, err := store.Create("personal", 0)
	if err != nil {
		t.Fatalf("create personal: %v", err)
	}
	if p2.Port != basePort+1 {
		t.Errorf("second profile port = %d, want %d", p2.Port, basePort+1)
	}
	if p2.IsDefault {
		t.Error("second profile should not be default")
	}
}

func TestCreateDuplicateNameErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.Create("work", 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Create("work", 0); err == nil {
		t.Fatal("expected error creating duplicate profile")
	}
}

func TestGetFallsBackToDefaultThenDefaultName(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.Create("work", 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, isNew, err := store.Get("")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "work" {
		t.Errorf("Get(\"\") resolved to %q, want %q", got.Name, "work")
	}
	if !isNew {
		t.Error("freshly created profile should be reported as new")
	}
}

func TestGetUnknownProfileErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, _, err := store.Get("ghost"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestSetDefaultAndDelete(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.Create("work", 0); err != nil {
		t.Fatalf("create work: %v", err)
	}
	if _, err := store.Create("personal", 0); err != nil {
		t.Fatalf("create personal: %v", err)
	}
	if err := store.SetDefault("personal"); err != nil {
		t.Fatalf("set default: %v", err)
	}
	got, _, err := store.Get("")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "personal" {
		t.Errorf("default resolved to %q, want personal", got.Name)
	}

	if err := store.Delete("personal"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "work" {
		t.Errorf("unexpected profiles after delete: %+v", list)
	}
}

func TestListAdoptsUnknownDirectory(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	adopted := filepath.Join(dir, "profiles", "adopted")
	if err := os.MkdirAll(adopted, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "adopted" {
		t.Errorf("expected adopted profile to be listed, got %+v", list)
	}
}
