// Package cron schedules recurring and one-shot agent tasks, grounded on
// original_source/tappi/agent/tools/cron.py's job shape and
// original_source/tappi/server's "bpy serve" scheduling loop description.
//
// The Python original stores job definitions in a flat JSON file and defers
// actual scheduling to APScheduler running inside its server process. There
// is no APScheduler equivalent in the dependency pack, so this package owns
// the ticking loop itself: job definitions are still a flat JSON file (spec
// §4.8), but due-check logic for cron/interval/one-shot jobs and the minute
// tick both live here, using github.com/adhocore/gronx for cron-expression
// matching.
package cron

import (
	"strconv"
	"time"
)

// ScheduleType distinguishes how a Job's next run is computed.
type ScheduleType string

const (
	ScheduleCron     ScheduleType = "cron"
	ScheduleInterval ScheduleType = "interval"
	ScheduleDate     ScheduleType = "date"
)

// Job is one scheduled task definition, grounded on cron.py's job dict shape.
type Job struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Task     string       `json:"task"`
	Paused   bool         `json:"paused"`
	Created  time.Time    `json:"created"`
	Type     ScheduleType `json:"schedule_type"`
	CronExpr string       `json:"cron,omitempty"`
	Timezone string       `json:"timezone,omitempty"`

	IntervalMinutes int `json:"interval_minutes,omitempty"`

	RunAt  time.Time `json:"run_at,omitempty"`
	Ran    bool      `json:"ran,omitempty"` // one-shot jobs mark themselves done instead of being removed
	LastRun time.Time `json:"last_run,omitempty"`
}

// ScheduleDescription renders the same human-readable summary cron.py's
// `_add`/`_list` produce.
func (j Job) ScheduleDescription() string {
	switch j.Type {
	case ScheduleCron:
		return j.CronExpr
	case ScheduleInterval:
		return "every " + strconv.Itoa(j.IntervalMinutes) + "m"
	case ScheduleDate:
		return "at " + j.RunAt.Format(time.RFC3339)
	default:
		return "?"
	}
}
