package tools

import (
	"strings"
	"testing"
)

func TestParsePagesEmptyMeansAll(t *testing.T) {
	got := parsePages("", 3)
	want := []int{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("parsePages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parsePages = %v, want %v", got, want)
		}
	}
}

func TestParsePagesRangeAndList(t *testing.T) {
	got := parsePages("1,3-4", 5)
	want := []int{0, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("parsePages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parsePages = %v, want %v", got, want)
		}
	}
}

func TestParsePagesIgnoresOutOfRange(t *testing.T) {
	got := parsePages("0,99,2", 3)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("parsePages = %v, want [1]", got)
	}
}

func TestExtractContentTextParsesTjAndTJOperators(t *testing.T) {
	content := []byte(`BT /F1 12 Tf (Hello) Tj [(Wor)(ld)] TJ ET`)
	got := extractContentText(content)
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "Wor") || !strings.Contains(got, "ld") {
		t.Errorf("extractContentText = %q", got)
	}
}

func TestUnescapePDFStringHandlesEscapes(t *testing.T) {
	got := string(unescapePDFString([]byte(`a \(b\) c`)))
	if got != "a (b) c" {
		t.Errorf("unescapePDFString = %q, want %q", got, "a (b) c")
	}
}

func TestPDFResolveRejectsEscape(t *testing.T) {
	pt := NewPDFTool(t.TempDir())
	if _, err := pt.resolve("../../etc/passwd"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
}

func TestPDFCreateThenInfo(t *testing.T) {
	pt := NewPDFTool(t.TempDir())
	out, err := pt.create("report.pdf", "<h1>Title</h1><p>Body text.</p>", "Report")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "report.pdf") {
		t.Errorf("create output = %q", out)
	}

	info, err := pt.info("report.pdf")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(info, "pages: 1") {
		t.Errorf("info = %q", info)
	}
}
