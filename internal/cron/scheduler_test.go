package cron

import (
	"context"
	"testing"
	"time"
)

func TestIsDueIntervalFiresOnFirstRunAndAfterElapsed(t *testing.T) {
	job := Job{Type: ScheduleInterval, IntervalMinutes: 10}
	now := time.Now()

	due, err := isDue(job, now)
	if err != nil || !due {
		t.Fatalf("expected first run to be due, got due=%v err=%v", due, err)
	}

	job.LastRun = now.Add(-5 * time.Minute)
	due, err = isDue(job, now)
	if err != nil || due {
		t.Fatalf("expected not due after only 5 of 10 minutes, got due=%v err=%v", due, err)
	}

	job.LastRun = now.Add(-11 * time.Minute)
	due, err = isDue(job, now)
	if err != nil || !due {
		t.Fatalf("expected due after 11 of 10 minutes, got due=%v err=%v", due, err)
	}
}

func TestIsDueDateFiresOnceThenNeverAgain(t *testing.T) {
	now := time.Now()
	job := Job{Type: ScheduleDate, RunAt: now.Add(-time.Minute)}

	due, err := isDue(job, now)
	if err != nil || !due {
		t.Fatalf("expected due, got due=%v err=%v", due, err)
	}

	job.Ran = true
	due, err = isDue(job, now)
	if err != nil || due {
		t.Fatalf("expected not due once ran=true, got due=%v err=%v", due, err)
	}
}

func TestIsDueDateNotYetDue(t *testing.T) {
	job := Job{Type: ScheduleDate, RunAt: time.Now().Add(time.Hour)}
	due, err := isDue(job, time.Now())
	if err != nil || due {
		t.Fatalf("expected future date job not due, got due=%v err=%v", due, err)
	}
}

func TestSchedulerRunNowInvokesTriggerAndMarksRan(t *testing.T) {
	store := newTestJobStore(t)
	job, _ := store.Add(Job{Name: "x", Task: "y", Type: ScheduleInterval, IntervalMinutes: 5})

	fired := make(chan Job, 1)
	sched := NewScheduler(store, func(_ context.Context, j Job) {
		fired <- j
	}, time.Hour)

	sched.RunNow(context.Background(), job)

	select {
	case got := <-fired:
		if got.ID != job.ID {
			t.Errorf("trigger got job %q, want %q", got.ID, job.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("trigger was not invoked")
	}

	updated, ok, err := store.Get(job.ID)
	if err != nil || !ok || updated.LastRun.IsZero() {
		t.Errorf("expected LastRun to be set after RunNow, got %+v, %v, %v", updated, ok, err)
	}
}
