// Package decompose turns a user task into an ordered execution plan and
// runs it: a single no-tools LLM call decides whether the task is simple
// enough for the direct Agent Loop, or complex enough to split into
// sequential subtasks, each executed by a fresh sub-agent and its own
// output file. See subtask_runner.go for the execution side and research.go
// for the fixed deep-research specialization.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/nodewerx/tappi-go/internal/providers"
)

// SubtaskStatus tracks one subtask's lifecycle.
type SubtaskStatus string

const (
	StatusPending SubtaskStatus = "pending"
	StatusRunning SubtaskStatus = "running"
	StatusDone    SubtaskStatus = "done"
	StatusFailed  SubtaskStatus = "failed"
)

// Subtask is one step of a decomposition plan: what to do, which tool to
// use, and where to write the result. The planner prompt tells the model to
// end every plan with a Tool == "compile" subtask; parseDecomposition neither
// adds nor checks that step, so the last subtask keeps whatever tool the
// model returned.
type Subtask struct {
	Task   string
	Tool   string
	Output string
	Index  int
	Total  int

	Status   SubtaskStatus
	Result   string // relative path to the written output file
	Duration time.Duration
}

const minSubtasks = 2
const maxSubtasks = 10

const decomposePromptTemplate = `You are a task decomposition planner. Today is %s.

Given a user task, decide:
1. If it is simple (answerable directly, a single tool call, or purely conversational), return a JSON object: {"simple": true}
2. If it is complex (multiple steps, research across sources, building up a document), break it into a sequence of subtasks.

For a complex task, return a JSON array of subtask objects, each with:
- "task": a self-contained description of what this step does (enough context to execute without seeing the original request)
- "tool": the primary tool this step needs ("browser", "files", "shell", "pdf", "spreadsheet")
- "output": a filename to write this step's result to, e.g. "step_1_results.md"

Rules:
- The LAST subtask is always a compilation step with "tool": "compile", which reads every prior output and produces the final answer.
- Prefer 3-7 subtasks; never exceed 10.
- Each subtask must be independently executable.

Example, complex task:
` + "```json" + `
[
  {"task": "Search for the top 5 results on X and note their URLs and summaries", "tool": "browser", "output": "step_1_search.md"},
  {"task": "Visit each URL from step 1 and extract the relevant details", "tool": "browser", "output": "step_2_details.md"},
  {"task": "Compile the findings from step_1_search.md and step_2_details.md into one report", "tool": "compile", "output": "final_report.md"}
]
` + "```" + `

Example, simple task:
` + "```json" + `
{"simple": true}
` + "```" + `

User task: %s`

// BuildDecomposePrompt renders the decomposition planner's prompt for task,
// stamping in today (already formatted, so callers stay in control of date
// formatting and tests stay deterministic).
func BuildDecomposePrompt(today, task string) string {
	return fmt.Sprintf(decomposePromptTemplate, today, task)
}

// DecomposeTask makes a single no-tools LLM call to decide whether task is
// simple (returns nil, nil — caller falls through to the direct Agent Loop)
// or complex (returns the ordered subtask plan as the model listed it; see
// Subtask for how the final compile step is handled).
func DecomposeTask(ctx context.Context, provider providers.Provider, model, today, task string) ([]*Subtask, error) {
	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "user", Content: BuildDecomposePrompt(today, task)},
		},
		Options: map[string]interface{}{providers.OptMaxTokens: 2048},
	})
	if err != nil {
		return nil, fmt.Errorf("decompose: planning call: %w", err)
	}
	return parseDecomposition(resp.Content), nil
}

var fencedJSONPattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*?\}|\[.*?\])\s*` + "```")
var bareSimpleObjectPattern = regexp.MustCompile(`(?s)(\{[^{}]*"simple"[^{}]*\})`)
var bareArrayPattern = regexp.MustCompile(`(?s)(\[.*\])`)

// parseDecomposition extracts either {"simple": true} (→ nil, handled
// directly) or a JSON array of subtask objects from the planner's raw
// response text. Any parse failure also returns nil — per spec.md §4.3,
// an unparseable response is treated as simple rather than erroring the
// caller.
func parseDecomposition(text string) []*Subtask {
	raw := firstMatch(fencedJSONPattern, text)
	if raw == "" {
		raw = firstMatch(bareSimpleObjectPattern, text)
	}
	if raw == "" {
		raw = firstMatch(bareArrayPattern, text)
	}
	if raw == "" {
		return nil
	}

	var simpleEnvelope struct {
		Simple bool `json:"simple"`
	}
	if err := json.Unmarshal([]byte(raw), &simpleEnvelope); err == nil && simpleEnvelope.Simple {
		return nil
	}

	var items []struct {
		Task   string `json:"task"`
		Tool   string `json:"tool"`
		Output string `json:"output"`
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	if len(items) < minSubtasks {
		return nil
	}
	if len(items) > maxSubtasks {
		items = items[:maxSubtasks]
	}

	total := len(items)
	subtasks := make([]*Subtask, 0, total)
	for i, item := range items {
		tool := item.Tool
		if tool == "" {
			tool = "browser"
		}
		output := item.Output
		if output == "" {
			output = fmt.Sprintf("step_%d.md", i+1)
		}
		subtasks = append(subtasks, &Subtask{
			Task:   item.Task,
			Tool:   tool,
			Output: output,
			Index:  i,
			Total:  total,
			Status: StatusPending,
		})
	}
	return subtasks
}

func firstMatch(pattern *regexp.Regexp, text string) string {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
