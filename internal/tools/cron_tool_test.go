package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nodewerx/tappi-go/internal/cron"
)

func newTestCronTool(t *testing.T) (*CronTool, *cron.JobStore) {
	t.Helper()
	store := cron.NewJobStore(filepath.Join(t.TempDir(), "jobs.json"))
	fired := make(chan cron.Job, 8)
	sched := cron.NewScheduler(store, func(_ context.Context, j cron.Job) { fired <- j }, time.Hour)
	return NewCronTool(store, sched), store
}

func TestCronToolAddThenList(t *testing.T) {
	ct, _ := newTestCronTool(t)
	ctx := context.Background()

	res := ct.Execute(ctx, map[string]interface{}{
		"action": "add", "task": "check inbox", "cron": "0 9 * * *",
	})
	if res.IsError {
		t.Fatalf("add failed: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, "Job created") {
		t.Errorf("add output = %q", res.ForLLM)
	}

	res = ct.Execute(ctx, map[string]interface{}{"action": "list"})
	if res.IsError || !strings.Contains(res.ForLLM, "check inbox") {
		t.Errorf("list output = %q", res.ForLLM)
	}
}

func TestCronToolAddRequiresSchedule(t *testing.T) {
	ct, _ := newTestCronTool(t)
	res := ct.Execute(context.Background(), map[string]interface{}{"action": "add", "task": "x"})
	if !res.IsError {
		t.Error("expected error when no schedule provided")
	}
}

func TestCronToolPauseResumeRemove(t *testing.T) {
	ct, _ := newTestCronTool(t)
	ctx := context.Background()

	res := ct.Execute(ctx, map[string]interface{}{"action": "add", "task": "x", "interval_minutes": float64(15)})
	if res.IsError {
		t.Fatalf("add: %s", res.ForLLM)
	}
	listRes := ct.Execute(ctx, map[string]interface{}{"action": "list"})
	id := extractJobID(listRes.ForLLM)
	if id == "" {
		t.Fatalf("could not extract job id from %q", listRes.ForLLM)
	}

	res = ct.Execute(ctx, map[string]interface{}{"action": "pause", "job_id": id})
	if res.IsError || !strings.Contains(res.ForLLM, "Paused") {
		t.Errorf("pause = %+v", res)
	}
	res = ct.Execute(ctx, map[string]interface{}{"action": "resume", "job_id": id})
	if res.IsError || !strings.Contains(res.ForLLM, "Resumed") {
		t.Errorf("resume = %+v", res)
	}
	res = ct.Execute(ctx, map[string]interface{}{"action": "remove", "job_id": id})
	if res.IsError || !strings.Contains(res.ForLLM, "Removed") {
		t.Errorf("remove = %+v", res)
	}
}

func TestCronToolRunNowTriggersScheduler(t *testing.T) {
	ct, store := newTestCronTool(t)
	ctx := context.Background()

	ct.Execute(ctx, map[string]interface{}{"action": "add", "task": "x", "interval_minutes": float64(5)})
	jobs, _ := store.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	res := ct.Execute(ctx, map[string]interface{}{"action": "run_now", "job_id": jobs[0].ID})
	if res.IsError || !strings.Contains(res.ForLLM, "Triggered") {
		t.Errorf("run_now = %+v", res)
	}
}

func extractJobID(listOutput string) string {
	start := strings.Index(listOutput, "[")
	end := strings.Index(listOutput, "]")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return listOutput[start+1 : end]
}
