package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nodewerx/tappi-go/internal/cron"
)

// CronTool implements the add/list/remove/pause/resume/run_now actions of
// spec.md §4.8, grounded on original_source/tappi/agent/tools/cron.py. It is
// a thin adapter over a *cron.JobStore and *cron.Scheduler — job persistence
// and due-scheduling logic live in internal/cron, not here.
type CronTool struct {
	store     *cron.JobStore
	scheduler *cron.Scheduler
}

func NewCronTool(store *cron.JobStore, scheduler *cron.Scheduler) *CronTool {
	return &CronTool{store: store, scheduler: scheduler}
}

func (t *CronTool) Name() string { return "cron" }
func (t *CronTool) Description() string {
	return "Schedule recurring or one-shot tasks; the agent wakes up at the scheduled time and executes the task description."
}

func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":           map[string]interface{}{"type": "string", "enum": []string{"add", "list", "remove", "pause", "resume", "run_now"}},
			"task":             map[string]interface{}{"type": "string"},
			"name":             map[string]interface{}{"type": "string"},
			"job_id":           map[string]interface{}{"type": "string"},
			"cron":             map[string]interface{}{"type": "string"},
			"interval_minutes": map[string]interface{}{"type": "integer"},
			"run_at":           map[string]interface{}{"type": "string"},
			"timezone":         map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)

	var out string
	var err error
	switch action {
	case "add":
		out, err = t.add(args)
	case "list":
		out, err = t.list()
	case "remove":
		out, err = t.remove(args)
	case "pause":
		out, err = t.setPaused(args, true)
	case "resume":
		out, err = t.setPaused(args, false)
	case "run_now":
		out, err = t.runNow(ctx, args)
	default:
		return ErrorResult(fmt.Sprintf("Unknown action: %s", action))
	}
	if err != nil {
		return ErrorResult("Error: " + err.Error())
	}
	return NewResult(out)
}

func (t *CronTool) add(args map[string]interface{}) (string, error) {
	task, _ := args["task"].(string)
	if task == "" {
		return "", fmt.Errorf("'task' description required")
	}

	cronExpr, _ := args["cron"].(string)
	interval := intArg(args, "interval_minutes")
	runAtStr, _ := args["run_at"].(string)

	if cronExpr == "" && interval == 0 && runAtStr == "" {
		return "", fmt.Errorf("provide 'cron', 'interval_minutes', or 'run_at' for scheduling")
	}

	name, _ := args["name"].(string)
	if name == "" {
		name = task
		if len(name) > 50 {
			name = name[:50]
		}
	}

	job := cron.Job{Name: name, Task: task, Created: time.Now()}
	switch {
	case cronExpr != "":
		job.Type = cron.ScheduleCron
		job.CronExpr = cronExpr
		job.Timezone, _ = args["timezone"].(string)
	case interval > 0:
		job.Type = cron.ScheduleInterval
		job.IntervalMinutes = interval
	default:
		runAt, err := time.Parse(time.RFC3339, runAtStr)
		if err != nil {
			return "", fmt.Errorf("invalid run_at: %w", err)
		}
		job.Type = cron.ScheduleDate
		job.RunAt = runAt
	}

	created, err := t.store.Add(job)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Job created: %s\nName: %s\nSchedule: %s\nTask: %s",
		created.ID, created.Name, created.ScheduleDescription(), created.Task), nil
}

func (t *CronTool) list() (string, error) {
	jobs, err := t.store.List()
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Created.Before(jobs[j].Created) })

	var b strings.Builder
	b.WriteString("Scheduled jobs:\n")
	for _, j := range jobs {
		status := "▶ active"
		if j.Paused {
			status = "⏸ paused"
		}
		fmt.Fprintf(&b, "  [%s] %s — %s (%s)\n", j.ID, j.Name, j.ScheduleDescription(), status)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *CronTool) remove(args map[string]interface{}) (string, error) {
	id, _ := args["job_id"].(string)
	if id == "" {
		return "", fmt.Errorf("'job_id' required")
	}
	j, err := t.store.Remove(id)
	if err != nil {
		return fmt.Sprintf("Job not found: %s", id), nil
	}
	return fmt.Sprintf("Removed job: %s (%s)", id, j.Name), nil
}

func (t *CronTool) setPaused(args map[string]interface{}, paused bool) (string, error) {
	id, _ := args["job_id"].(string)
	if id == "" {
		return "", fmt.Errorf("'job_id' required")
	}
	j, err := t.store.SetPaused(id, paused)
	if err != nil {
		return fmt.Sprintf("Job not found: %s", id), nil
	}
	verb := "Paused"
	if !paused {
		verb = "Resumed"
	}
	return fmt.Sprintf("%s job: %s (%s)", verb, id, j.Name), nil
}

func (t *CronTool) runNow(ctx context.Context, args map[string]interface{}) (string, error) {
	id, _ := args["job_id"].(string)
	if id == "" {
		return "", fmt.Errorf("'job_id' required")
	}
	j, ok, err := t.store.Get(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Job not found: %s", id), nil
	}
	if t.scheduler == nil {
		return "Job found but no scheduler connected.", nil
	}
	t.scheduler.RunNow(ctx, j)
	return fmt.Sprintf("Triggered immediate run: %s (%s)", id, j.Name), nil
}
