package decompose

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nodewerx/tappi-go/internal/providers"
)

// DefaultResearchSubtopics is the fixed subtopic count a deep-research run
// uses when the caller doesn't override it, per spec.md §4.3.
const DefaultResearchSubtopics = 5

const researchPlanPromptTemplate = `You are a research planner. Today is %s.

Given a research query, break it into exactly %d focused subtopics that together comprehensively cover the topic. Each subtopic should:
- Be specific enough to research in one focused session
- Cover a distinct angle of the main query
- Be independently researchable

Return a JSON array of %d objects, each with:
- "subtopic": a short title
- "task": detailed research instructions (what to search for, what to find)

Research query: %s`

// DecomposeResearch builds a fixed research plan: numTopics browser subtasks
// (one per subtopic) followed by one compile subtask. The subtopic titles
// and instructions come from a single LLM planning call; if that call fails
// to parse, generic per-aspect subtopics are substituted so the run can
// still proceed.
func DecomposeResearch(ctx context.Context, provider providers.Provider, model, today, query string, numTopics int) ([]*Subtask, error) {
	if numTopics <= 0 {
		numTopics = DefaultResearchSubtopics
	}

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "user", Content: fmt.Sprintf(researchPlanPromptTemplate, today, numTopics, numTopics, query)},
		},
		Options: map[string]interface{}{providers.OptMaxTokens: 2048},
	})
	if err != nil {
		return nil, fmt.Errorf("decompose: research planning call: %w", err)
	}

	subtopics := parseSubtopics(resp.Content)
	if len(subtopics) < numTopics {
		subtopics = make([]researchSubtopic, numTopics)
		for i := range subtopics {
			subtopics[i] = researchSubtopic{
				Subtopic: fmt.Sprintf("Aspect %d", i+1),
				Task:     fmt.Sprintf("Research aspect %d of: %s", i+1, query),
			}
		}
	}

	total := numTopics + 1
	subtasks := make([]*Subtask, 0, total)
	for i := 0; i < numTopics; i++ {
		subtasks = append(subtasks, &Subtask{
			Task:   subtopics[i].Task,
			Tool:   "browser",
			Output: fmt.Sprintf("findings_%d.md", i+1),
			Index:  i,
			Total:  total,
			Status: StatusPending,
		})
	}

	fileList := ""
	for i := 0; i < numTopics; i++ {
		if i > 0 {
			fileList += ", "
		}
		fileList += fmt.Sprintf("findings_%d.md", i+1)
	}
	subtasks = append(subtasks, &Subtask{
		Task:   fmt.Sprintf("Compile all %d research findings (%s) into a final report", numTopics, fileList),
		Tool:   "compile",
		Output: "final_report.md",
		Index:  numTopics,
		Total:  total,
		Status: StatusPending,
	})

	return subtasks, nil
}

type researchSubtopic struct {
	Subtopic string `json:"subtopic"`
	Task     string `json:"task"`
}

func parseSubtopics(text string) []researchSubtopic {
	raw := firstMatch(fencedJSONPattern, text)
	if raw == "" {
		raw = firstMatch(bareArrayPattern, text)
	}
	if raw == "" {
		return nil
	}
	var out []researchSubtopic
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
