package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"
)

const (
	shellDefaultTimeout = 30 * time.Second
	shellMaxTimeout     = 300 * time.Second
	shellOutputCap      = 10_000
)

// defaultDenyPatterns blocks classes of commands that are almost never a
// legitimate agent action and are common injection/exfiltration/persistence
// vectors (OWASP Agentic AI Top 10, MITRE ATT&CK). This is defense-in-depth
// alongside the workspace-scoped cwd below, not a substitute for it.
var defaultDenyPatterns = []*regexp.Regexp{
	// ── Destructive file operations ──
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\brm\s+.*--recursive`),
	regexp.MustCompile(`\brm\s+.*--force`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb

	// ── Data exfiltration ──
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bcurl\b.*(-d\b|-F\b|--data|--upload|--form|-T\b|-X\s*P(UT|OST|ATCH))`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*--post-(data|file)`),
	regexp.MustCompile(`/dev/tcp/`),

	// ── Reverse shells ──
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bopenssl\b.*s_client`),
	regexp.MustCompile(`\bmkfifo\b`),

	// ── Privilege escalation ──
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\bnsenter\b`),
	regexp.MustCompile(`\bunshare\b`),
	regexp.MustCompile(`\b(mount|umount)\b`),

	// ── Environment variable injection ──
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`\bBASH_ENV\s*=`),

	// ── Persistence ──
	regexp.MustCompile(`\bcrontab\b`),
	regexp.MustCompile(`>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`),

	// ── Environment variable dumping ──
	regexp.MustCompile(`^\s*env\s*$`),
	regexp.MustCompile(`^\s*env\s*\|`),
	regexp.MustCompile(`\bprintenv\b`),
}

// ShellTool runs a command with the workspace directory as its cwd, per
// spec.md §4.5, grounded on original_source/tappi/agent/tools/shell.py.
// Unlike the teacher's version (Docker-sandboxed, exec-approval-gated, for a
// multi-tenant gateway), this runs directly on the host: there is one
// workspace and one operator, so the deny-pattern list above is the only
// guard, matching the Python original's own scope ("sandboxed to workspace
// directory" meaning cwd, not a container).
type ShellTool struct {
	workspace    string
	enabled      bool
	denyPatterns []*regexp.Regexp
}

func NewShellTool(workspace string, enabled bool) *ShellTool {
	return &ShellTool{workspace: workspace, enabled: enabled, denyPatterns: defaultDenyPatterns}
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Run a shell command in the workspace directory. Output is capped at 10KB."
}

func (t *ShellTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string", "description": "Shell command to execute"},
			"timeout": map[string]interface{}{"type": "integer", "description": "Timeout in seconds (default: 30)"},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if !t.enabled {
		return ErrorResult("Shell access is disabled. Enable it in settings.")
	}

	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("Error: 'command' required")
	}

	for _, pattern := range t.denyPatterns {
		if pattern.MatchString(command) {
			return ErrorResult(fmt.Sprintf("command denied by safety policy: matches pattern %s", pattern.String()))
		}
	}

	timeout := shellDefaultTimeout
	if n := intArg(args, "timeout"); n > 0 {
		timeout = time.Duration(n) * time.Second
	}
	if timeout > shellMaxTimeout {
		timeout = shellMaxTimeout
	}

	if err := os.MkdirAll(t.workspace, 0o755); err != nil {
		return ErrorResult("Error: " + err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return ErrorResult(fmt.Sprintf("Command timed out after %ds", int(timeout.Seconds())))
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += "(stderr) " + stderr.String()
	}
	if output == "" {
		output = "(no output)"
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			output += fmt.Sprintf("\n(exit code: %d)", exitErr.ExitCode())
		} else {
			return ErrorResult("Error: " + err.Error())
		}
	}

	if len(output) > shellOutputCap {
		output = output[:shellOutputCap] + "\n... (truncated)"
	}

	return SilentResult(output)
}
