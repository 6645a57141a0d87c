package tools

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const pdfReadCap = 50 * 1024

// PDFTool implements the read/create/info actions of spec.md §4.5 for PDF
// files, grounded on original_source/tappi/agent/tools/pdf.py.
//
// The Python original reads text via PyMuPDF (a full PDF layout engine) and
// renders via WeasyPrint (a full HTML/CSS engine). Neither has an equivalent
// in the retrieved dependency pack, so this implementation is a deliberate,
// documented simplification (see DESIGN.md): reading extracts literal
// strings out of each page's decoded content stream via pdfcpu, and creation
// lays out HTML as plain paragraphs with gofpdf rather than a CSS box model.
type PDFTool struct {
	workspace string
}

func NewPDFTool(workspace string) *PDFTool {
	return &PDFTool{workspace: workspace}
}

func (t *PDFTool) Name() string        { return "pdf" }
func (t *PDFTool) Description() string { return "Read text from PDFs, create PDFs from HTML, inspect PDF metadata." }

func (t *PDFTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":  map[string]interface{}{"type": "string", "enum": []string{"read", "create", "info"}},
			"path":    map[string]interface{}{"type": "string"},
			"pages":   map[string]interface{}{"type": "string"},
			"html":    map[string]interface{}{"type": "string"},
			"title":   map[string]interface{}{"type": "string"},
		},
		"required": []string{"action", "path"},
	}
}

func (t *PDFTool) resolve(rel string) (string, error) {
	ws, err := filepath.Abs(t.workspace)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.Abs(filepath.Join(ws, rel))
	if err != nil {
		return "", err
	}
	if resolved != ws && !strings.HasPrefix(resolved, ws+string(os.PathSeparator)) {
		return "", fmt.Errorf("permission denied: path escapes workspace: %s", rel)
	}
	return resolved, nil
}

func (t *PDFTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	str := func(k string) string { s, _ := args[k].(string); return s }

	var out string
	var err error
	switch action {
	case "read":
		out, err = t.read(str("path"), str("pages"))
	case "create":
		out, err = t.create(str("path"), str("html"), str("title"))
	case "info":
		out, err = t.info(str("path"))
	default:
		err = fmt.Errorf("unknown pdf action: %q", action)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult("File not found: " + err.Error())
		}
		return ErrorResult("Error: " + err.Error())
	}
	return NewResult(out)
}

// parsePages parses a comma-separated, "-"-range page spec (1-indexed) into
// a sorted, deduplicated list of 0-indexed page numbers. An empty spec means
// "every page".
func parsePages(spec string, total int) []int {
	if spec == "" {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	seen := map[int]bool{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, errLo := strconv.Atoi(strings.TrimSpace(bounds[0]))
			hi, errHi := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if errLo != nil || errHi != nil {
				continue
			}
			for p := lo; p <= hi; p++ {
				if p >= 1 && p <= total {
					seen[p-1] = true
				}
			}
			continue
		}
		p, err := strconv.Atoi(part)
		if err == nil && p >= 1 && p <= total {
			seen[p-1] = true
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

var pdfLiteralStringRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
var pdfArrayStringRe = regexp.MustCompile(`\[((?:[^\[\]]|\\.)*)\]\s*TJ`)
var pdfArrayLiteralRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)

// extractContentText pulls literal-string operands of Tj/TJ text-showing
// operators out of a decoded PDF content stream — an approximation of full
// text extraction that works for simple, non-CID-encoded text, which is the
// common case for content produced or consumed by this tool's own `create`
// action.
func extractContentText(content []byte) string {
	var b strings.Builder
	for _, m := range pdfLiteralStringRe.FindAllSubmatch(content, -1) {
		b.Write(unescapePDFString(m[1]))
		b.WriteByte(' ')
	}
	for _, m := range pdfArrayStringRe.FindAllSubmatch(content, -1) {
		for _, lit := range pdfArrayLiteralRe.FindAllSubmatch(m[1], -1) {
			b.Write(unescapePDFString(lit[1]))
		}
		b.WriteByte(' ')
	}
	return b.String()
}

func unescapePDFString(raw []byte) []byte {
	s := string(raw)
	s = strings.ReplaceAll(s, `\(`, "(")
	s = strings.ReplaceAll(s, `\)`, ")")
	s = strings.ReplaceAll(s, `\\`, `\`)
	s = strings.ReplaceAll(s, `\n`, "\n")
	return []byte(s)
}

func (t *PDFTool) read(path, pagesSpec string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	total, err := api.PageCountFile(abs)
	if err != nil {
		return "", err
	}
	selected := parsePages(pagesSpec, total)

	tmpDir, err := os.MkdirTemp("", "tappi-pdf-extract-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	pageArgs := make([]string, len(selected))
	for i, p := range selected {
		pageArgs[i] = strconv.Itoa(p + 1)
	}
	if err := api.ExtractContentFile(abs, tmpDir, pageArgs, nil); err != nil {
		return "", fmt.Errorf("extract pdf content: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	var b strings.Builder
	for _, p := range selected {
		contentFile := filepath.Join(tmpDir, fmt.Sprintf("%s_Content_page_%d.txt", base, p+1))
		data, err := os.ReadFile(contentFile)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(extractContentText(data))
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s\n\n", p+1, text)
	}

	out := b.String()
	if len(out) > pdfReadCap {
		out = out[:pdfReadCap] + fmt.Sprintf("\n\n... [truncated, %d chars total]", len(out))
	}
	if out == "" {
		return "(no extractable text)", nil
	}
	return out, nil
}

var htmlTagRe = regexp.MustCompile(`(?s)<[^>]*>`)
var htmlBlockBreakRe = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|br)\s*>`)

func (t *PDFTool) create(path, htmlBody, title string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}

	withBreaks := htmlBlockBreakRe.ReplaceAllString(htmlBody, "\n")
	plain := html.UnescapeString(htmlTagRe.ReplaceAllString(withBreaks, ""))

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 11)
	for _, line := range strings.Split(plain, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			pdf.Ln(4)
			continue
		}
		pdf.MultiCell(0, 6, line, "", "", false)
	}

	f, err := os.Create(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := pdf.Output(w); err != nil {
		return "", fmt.Errorf("render pdf: %w", err)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return "Created PDF: " + path, nil
}

func (t *PDFTool) info(path string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	pages, err := api.PageCountFile(abs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("path: %s\npages: %d\nsize: %s", path, pages, humanSize(st.Size())), nil
}
