package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
)

const (
	compactionThresholdPct = 0.75

	dumpMaxUserAssistantChars = 5000
	dumpMaxToolChars          = 2000

	summaryMaxUserChars      = 500
	summaryMaxAssistantChars = 1000
	summaryMaxTotalChars     = 8000
)

// needsCompaction reports whether the last known prompt-token count has
// crossed the proactive compaction threshold for the given context window.
func needsCompaction(lastPromptTokens, contextWindow int) bool {
	if contextWindow <= 0 {
		return false
	}
	return float64(lastPromptTokens) >= float64(contextWindow)*compactionThresholdPct
}

// compact runs the full spec.md §4.2 compaction procedure: dump the current
// history to a markdown file under <workspace>/context_dumps, replace the
// in-memory history with one synthetic user message summarizing it, and
// reset the session's cumulative token counters. reason is either
// "proactive" or "flush", recorded in the dump header.
func compact(mgr *sessions.Manager, sessionID, workspace, model, reason string) (dumpPath string, err error) {
	history := mgr.GetHistory(sessionID)
	promptTokens, _ := mgr.GetLastPromptTokens(sessionID)

	dumpPath, err = writeContextDump(workspace, sessionID, model, reason, promptTokens, history)
	if err != nil {
		return "", err
	}

	summary := buildCompactSummary(history)

	mgr.TruncateHistory(sessionID, 0)
	mgr.AddMessage(sessionID, providers.Message{
		Role:    "user",
		Content: compactionMessage(dumpPath, summary),
	})
	mgr.IncrementCompaction(sessionID)
	mgr.SetLastPromptTokens(sessionID, 0, 1)

	return dumpPath, nil
}

func compactionMessage(dumpPath, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The conversation window was reset to manage context size. ")
	fmt.Fprintf(&b, "Earlier history was dumped to %s. ", dumpPath)
	b.WriteString("If you need specifics from before the reset, use the files tool's " +
		"grep action against the context_dumps directory rather than reading the dump file wholesale.\n\n")
	b.WriteString("Summary of the conversation so far:\n")
	b.WriteString(summary)
	return b.String()
}

func writeContextDump(workspace, sessionID, model, reason string, promptTokens int, history []providers.Message) (string, error) {
	dumpsDir := filepath.Join(workspace, "context_dumps")
	if err := os.MkdirAll(dumpsDir, 0o755); err != nil {
		return "", fmt.Errorf("compaction: create dumps dir: %w", err)
	}

	ts := time.Now().Unix()
	path := filepath.Join(dumpsDir, fmt.Sprintf("dump_%d.md", ts))

	var b strings.Builder
	fmt.Fprintf(&b, "# Context dump\n\n")
	fmt.Fprintf(&b, "- timestamp: %d\n", ts)
	fmt.Fprintf(&b, "- reason: %s\n", reason)
	fmt.Fprintf(&b, "- session: %s\n", sessionID)
	fmt.Fprintf(&b, "- model: %s\n", model)
	fmt.Fprintf(&b, "- last_prompt_tokens: %d\n", promptTokens)
	fmt.Fprintf(&b, "- messages: %d\n\n", len(history))

	for i, msg := range history {
		fmt.Fprintf(&b, "## [%d] %s\n\n", i, msg.Role)
		limit := dumpMaxUserAssistantChars
		if msg.Role == "tool" || len(msg.ToolCalls) > 0 {
			limit = dumpMaxToolChars
		}
		b.WriteString(truncateWithMarker(msg.Content, limit))
		if len(msg.ToolCalls) > 0 {
			b.WriteString("\n\ntool_calls:\n")
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&b, "- %s(%v) id=%s\n", tc.Name, tc.Arguments, tc.ID)
			}
		}
		b.WriteString("\n\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("compaction: write dump: %w", err)
	}
	return path, nil
}

func buildCompactSummary(history []providers.Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch {
		case msg.Role == "tool":
			fmt.Fprintf(&b, "[tool result: %d chars]\n", len(msg.Content))
		case msg.Role == "user":
			fmt.Fprintf(&b, "user: %s\n", truncateWithMarker(msg.Content, summaryMaxUserChars))
		case msg.Role == "assistant":
			if msg.Content != "" {
				fmt.Fprintf(&b, "assistant: %s\n", truncateWithMarker(msg.Content, summaryMaxAssistantChars))
			}
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&b, "assistant called %s\n", tc.Name)
			}
		}
	}
	return truncateWithMarker(b.String(), summaryMaxTotalChars)
}

func truncateWithMarker(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n... (truncated, %d total chars)", len(s))
}
