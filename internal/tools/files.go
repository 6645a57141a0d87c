package tools

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"context"
)

const (
	filesReadCap      = 50 * 1024 // 50 KB
	filesGrepSkipSize = 1 << 20   // 1 MB
	filesGrepMaxMatch = 50
	filesGrepLineCap  = 150
)

var defaultGrepGlobs = []string{"*.md", "*.txt", "*.py", "*.json", "*.csv", "*.html", "*.js"}

var grepSkipDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true, ".venv": true, ".env": true,
}

// FilesTool implements the workspace-sandboxed file actions of spec.md §4.5:
// read/write/list/move/copy/delete/mkdir/info/grep. Every action returns a
// single string; no error escapes Execute.
type FilesTool struct {
	workspace string
}

// NewFilesTool binds a FilesTool to workspace, creating it if absent.
func NewFilesTool(workspace string) *FilesTool {
	_ = os.MkdirAll(workspace, 0o755)
	return &FilesTool{workspace: workspace}
}

func (t *FilesTool) Name() string        { return "files" }
func (t *FilesTool) Description() string { return "Read, write, list, move, copy, delete, and grep files in the workspace." }

func (t *FilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"read", "write", "list", "move", "copy", "delete", "mkdir", "info", "grep"},
			},
			"path":        map[string]interface{}{"type": "string"},
			"content":     map[string]interface{}{"type": "string"},
			"destination": map[string]interface{}{"type": "string"},
			"query":       map[string]interface{}{"type": "string"},
			"glob":        map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

// resolve canonicalizes path against the workspace root and rejects any
// resolved path that escapes it. Unlike the Python original's bare
// str.startswith check (vulnerable to sibling-directory confusion, e.g.
// workspace "/home/u/work" matching a resolved "/home/u/work-evil"), this
// requires exact equality or a path-separator-bounded prefix.
func (t *FilesTool) resolve(rel string) (string, error) {
	ws, err := filepath.Abs(t.workspace)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(ws, rel)
	resolved, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if resolved != ws && !strings.HasPrefix(resolved, ws+string(os.PathSeparator)) {
		return "", fmt.Errorf("permission denied: path escapes workspace: %s", rel)
	}
	return resolved, nil
}

func (t *FilesTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	str := func(k string) string { s, _ := args[k].(string); return s }

	var out string
	var err error
	switch action {
	case "read":
		out, err = t.read(str("path"))
	case "write":
		out, err = t.write(str("path"), str("content"))
	case "list":
		out, err = t.list(str("path"))
	case "move":
		out, err = t.moveOrCopy(str("path"), str("destination"), true)
	case "copy":
		out, err = t.moveOrCopy(str("path"), str("destination"), false)
	case "delete":
		out, err = t.delete(str("path"))
	case "mkdir":
		out, err = t.mkdir(str("path"))
	case "info":
		out, err = t.info(str("path"))
	case "grep":
		out, err = t.grep(str("query"), str("path"), str("glob"))
	default:
		err = fmt.Errorf("unknown files action: %q", action)
	}

	if err != nil {
		if os.IsPermission(err) || strings.Contains(err.Error(), "permission denied") {
			return ErrorResult("Permission denied: " + err.Error())
		}
		if os.IsNotExist(err) {
			return ErrorResult("File not found: " + err.Error())
		}
		return ErrorResult("Error: " + err.Error())
	}
	return NewResult(out)
}

func (t *FilesTool) read(path string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	if !isValidUTF8Text(data) {
		return fmt.Sprintf("(binary file, %d bytes)", len(data)), nil
	}
	if len(data) > filesReadCap {
		return string(data[:filesReadCap]) + fmt.Sprintf("\n\n... [truncated, %d bytes total]", len(data)), nil
	}
	return string(data), nil
}

func isValidUTF8Text(data []byte) bool {
	for i := 0; i < len(data); i++ {
		if data[i] == 0 {
			return false
		}
	}
	return true
}

func (t *FilesTool) write(path, content string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Written: %s (%d chars)", path, len(content)), nil
}

func (t *FilesTool) list(path string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "📁 %s/\n", e.Name())
			continue
		}
		info, err := e.Info()
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "📄 %s (%s)\n", e.Name(), humanSize(size))
	}
	if b.Len() == 0 {
		return "(empty directory)", nil
	}
	return b.String(), nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func (t *FilesTool) moveOrCopy(src, dst string, move bool) (string, error) {
	absSrc, err := t.resolve(src)
	if err != nil {
		return "", err
	}
	absDst, err := t.resolve(dst)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(absDst), 0o755); err != nil {
		return "", err
	}
	if move {
		if err := os.Rename(absSrc, absDst); err != nil {
			return "", err
		}
		return fmt.Sprintf("Moved: %s -> %s", src, dst), nil
	}
	if err := copyPath(absSrc, absDst); err != nil {
		return "", err
	}
	return fmt.Sprintf("Copied: %s -> %s", src, dst), nil
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst)
	}
	return copyFile(src, dst)
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		d := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(s, d); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(s, d); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func (t *FilesTool) delete(path string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	ws, _ := filepath.Abs(t.workspace)
	if abs == ws {
		return "", fmt.Errorf("refusing to delete the workspace root")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		if err := os.RemoveAll(abs); err != nil {
			return "", err
		}
	} else if err := os.Remove(abs); err != nil {
		return "", err
	}
	return "Deleted: " + path, nil
}

func (t *FilesTool) mkdir(path string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return "Created directory: " + path, nil
}

func (t *FilesTool) info(path string) (string, error) {
	abs, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	kind := "file"
	if st.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf(
		"path: %s\ntype: %s\nsize: %d bytes\nmodified: %s",
		path, kind, st.Size(), st.ModTime().Format("2006-01-02T15:04:05"),
	), nil
}

func (t *FilesTool) grep(query, path, globList string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("grep requires a query")
	}
	root, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	globs := defaultGrepGlobs
	if globList != "" {
		globs = strings.Split(globList, ",")
		for i := range globs {
			globs[i] = strings.TrimSpace(globs[i])
		}
	}

	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(query))
	if err != nil {
		return "", err
	}

	var matches []string
	seen := map[string]bool{}

	err = filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if info.IsDir() {
			if grepSkipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if seen[p] {
			return nil
		}
		matched := false
		for _, g := range globs {
			if ok, _ := filepath.Match(g, info.Name()); ok {
				matched = true
				break
			}
		}
		if !matched || info.Size() > filesGrepSkipSize {
			return nil
		}
		seen[p] = true

		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		for i, line := range strings.Split(string(data), "\n") {
			if len(matches) >= filesGrepMaxMatch {
				return filepath.SkipAll
			}
			if re.MatchString(line) {
				truncated := line
				if len(truncated) > filesGrepLineCap {
					truncated = truncated[:filesGrepLineCap] + "..."
				}
				matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, i+1, truncated))
			}
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", err
	}
	if len(matches) == 0 {
		return "No matches found.", nil
	}
	return strings.Join(matches, "\n"), nil
}
