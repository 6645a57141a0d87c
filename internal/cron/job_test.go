package cron

import (
	"testing"
	"time"
)

func TestScheduleDescriptionVariants(t *testing.T) {
	tests := []struct {
		job  Job
		want string
	}{
		{Job{Type: ScheduleCron, CronExpr: "0 9 * * *"}, "0 9 * * *"},
		{Job{Type: ScheduleInterval, IntervalMinutes: 30}, "every 30m"},
		{Job{Type: ScheduleDate, RunAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}, "at 2026-03-01T09:00:00Z"},
	}
	for _, tt := range tests {
		if got := tt.job.ScheduleDescription(); got != tt.want {
			t.Errorf("ScheduleDescription() = %q, want %q", got, tt.want)
		}
	}
}
