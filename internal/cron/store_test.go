package cron

import (
	"path/filepath"
	"testing"
)

func newTestJobStore(t *testing.T) *JobStore {
	t.Helper()
	return NewJobStore(filepath.Join(t.TempDir(), "jobs.json"))
}

func TestJobStoreAddListGetRemove(t *testing.T) {
	s := newTestJobStore(t)

	j, err := s.Add(Job{Name: "daily report", Task: "summarize inbox", Type: ScheduleCron, CronExpr: "0 9 * * *"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if j.ID == "" {
		t.Fatal("expected a generated ID")
	}

	list, err := s.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}

	got, ok, err := s.Get(j.ID)
	if err != nil || !ok || got.Task != "summarize inbox" {
		t.Fatalf("Get() = %+v, %v, %v", got, ok, err)
	}

	if _, err := s.Remove(j.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(j.ID); ok {
		t.Error("expected job to be gone after Remove")
	}
}

func TestJobStorePauseResume(t *testing.T) {
	s := newTestJobStore(t)
	j, _ := s.Add(Job{Name: "x", Task: "y", Type: ScheduleInterval, IntervalMinutes: 10})

	paused, err := s.SetPaused(j.ID, true)
	if err != nil || !paused.Paused {
		t.Fatalf("SetPaused(true) = %+v, %v", paused, err)
	}
	resumed, err := s.SetPaused(j.ID, false)
	if err != nil || resumed.Paused {
		t.Fatalf("SetPaused(false) = %+v, %v", resumed, err)
	}
}

func TestJobStoreRemoveUnknownErrors(t *testing.T) {
	s := newTestJobStore(t)
	if _, err := s.Remove("nope"); err == nil {
		t.Error("expected error removing unknown job")
	}
}
