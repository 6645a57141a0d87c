package decompose

import (
	"context"
	"testing"
)

func TestDecomposeResearchUsesPlannedSubtopics(t *testing.T) {
	content := "```json\n" + `[
  {"subtopic": "History", "task": "Research the history of the topic"},
  {"subtopic": "Current state", "task": "Research where things stand today"}
]` + "\n```"
	p := &scriptedProvider{content: content}

	subtasks, err := DecomposeResearch(context.Background(), p, "m", "July 31, 2026", "quantum computing", 2)
	if err != nil {
		t.Fatalf("DecomposeResearch() error = %v", err)
	}
	if len(subtasks) != 3 {
		t.Fatalf("len(subtasks) = %d, want 3 (2 browser + 1 compile)", len(subtasks))
	}
	if subtasks[0].Task != "Research the history of the topic" {
		t.Errorf("subtasks[0].Task = %q", subtasks[0].Task)
	}
	if subtasks[0].Tool != "browser" || subtasks[1].Tool != "browser" {
		t.Errorf("expected first two subtasks to use the browser tool, got %q and %q", subtasks[0].Tool, subtasks[1].Tool)
	}
	last := subtasks[len(subtasks)-1]
	if last.Tool != "compile" {
		t.Errorf("last subtask Tool = %q, want compile", last.Tool)
	}
	if last.Output != "final_report.md" {
		t.Errorf("last subtask Output = %q, want final_report.md", last.Output)
	}
}

func TestDecomposeResearchDefaultsToFiveSubtopics(t *testing.T) {
	p := &scriptedProvider{content: "not json at all"}

	subtasks, err := DecomposeResearch(context.Background(), p, "m", "July 31, 2026", "llm agents", 0)
	if err != nil {
		t.Fatalf("DecomposeResearch() error = %v", err)
	}
	if len(subtasks) != DefaultResearchSubtopics+1 {
		t.Fatalf("len(subtasks) = %d, want %d", len(subtasks), DefaultResearchSubtopics+1)
	}
}

func TestDecomposeResearchFallsBackToGenericAspectsOnUnderfilledPlan(t *testing.T) {
	content := `[{"subtopic": "only one", "task": "research only one angle"}]`
	p := &scriptedProvider{content: content}

	subtasks, err := DecomposeResearch(context.Background(), p, "m", "July 31, 2026", "widgets", 3)
	if err != nil {
		t.Fatalf("DecomposeResearch() error = %v", err)
	}
	if len(subtasks) != 4 {
		t.Fatalf("len(subtasks) = %d, want 4", len(subtasks))
	}
	for i := 0; i < 3; i++ {
		want := "Aspect " + string(rune('1'+i))
		if subtasks[i].Task == "" || subtasks[i].Tool != "browser" {
			t.Errorf("subtasks[%d] = %+v, want a generic browser aspect", i, subtasks[i])
		}
		_ = want
	}
}

func TestDecomposeResearchSubtaskIndicesAndTotalsAreConsistent(t *testing.T) {
	p := &scriptedProvider{content: "no usable plan here"}

	subtasks, err := DecomposeResearch(context.Background(), p, "m", "July 31, 2026", "topic", 3)
	if err != nil {
		t.Fatalf("DecomposeResearch() error = %v", err)
	}
	for i, st := range subtasks {
		if st.Index != i {
			t.Errorf("subtasks[%d].Index = %d, want %d", i, st.Index, i)
		}
		if st.Total != 4 {
			t.Errorf("subtasks[%d].Total = %d, want 4", i, st.Total)
		}
		if st.Status != StatusPending {
			t.Errorf("subtasks[%d].Status = %q, want pending", i, st.Status)
		}
	}
}
