package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// TriggerFunc executes a due job's task. The scheduler does not know how to
// run an agent loop itself — it only decides when a job is due and hands
// the task description to whatever the host wires in (spec §4.8: "each job
// triggers an agent loop that executes the task description").
type TriggerFunc func(ctx context.Context, job Job)

// Scheduler ticks once a minute, finds every active job that is due, and
// invokes TriggerFunc for each — concurrently, since jobs are independent of
// each other (unlike decomposition's sequential subtasks).
type Scheduler struct {
	store   *JobStore
	trigger TriggerFunc
	tick    time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewScheduler constructs a Scheduler. tick defaults to one minute, matching
// cron-expression granularity; pass a smaller tick only for tests.
func NewScheduler(store *JobStore, trigger TriggerFunc, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{store: store, trigger: trigger, tick: tick}
}

// Start begins the ticking loop in a goroutine. Calling Start twice is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case now := <-ticker.C:
				s.runDue(ctx, now)
			}
		}
	}()
}

// Stop halts the ticking loop. Safe to call even if Start was never called.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
}

// RunNow immediately fires job, independent of its schedule, and records the
// run — used by the cron tool's run_now action.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	s.fire(ctx, job)
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	jobs, err := s.store.List()
	if err != nil {
		slog.Error("cron: list jobs", "error", err)
		return
	}
	for _, j := range jobs {
		if j.Paused {
			continue
		}
		if due, err := isDue(j, now); err != nil {
			slog.Warn("cron: evaluate schedule", "job", j.ID, "error", err)
		} else if due {
			go s.fire(ctx, j)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	defer func() {
		if _, err := s.store.MarkRan(job.ID, time.Now()); err != nil {
			slog.Warn("cron: mark job ran", "job", job.ID, "error", err)
		}
	}()
	s.trigger(ctx, job)
}

// isDue reports whether job should run at reference time now.
func isDue(job Job, now time.Time) (bool, error) {
	switch job.Type {
	case ScheduleCron:
		return gronx.IsDue(job.CronExpr, now)
	case ScheduleInterval:
		if job.IntervalMinutes <= 0 {
			return false, nil
		}
		if job.LastRun.IsZero() {
			return true, nil
		}
		return now.Sub(job.LastRun) >= time.Duration(job.IntervalMinutes)*time.Minute, nil
	case ScheduleDate:
		if job.Ran {
			return false, nil
		}
		return !now.Before(job.RunAt), nil
	default:
		return false, nil
	}
}
