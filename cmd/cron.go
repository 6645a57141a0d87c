package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	tappicron "github.com/nodewerx/tappi-go/internal/cron"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled agent tasks",
	}
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronAddCmd())
	cmd.AddCommand(cronRemoveCmd())
	cmd.AddCommand(cronPauseCmd())
	cmd.AddCommand(cronResumeCmd())
	return cmd
}

func jobStorePath() string {
	return configDir() + "/cron.json"
}

func cronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := tappicron.NewJobStore(jobStorePath())
			jobs, err := store.List()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no scheduled jobs — run `tappi cron add`")
				return nil
			}
			for _, j := range jobs {
				status := "active"
				if j.Paused {
					status = "paused"
				}
				last := "never"
				if !j.LastRun.IsZero() {
					last = j.LastRun.Format(time.RFC3339)
				}
				fmt.Printf("%s  %-20s  %-12s  %-8s  last run: %s\n", j.ID, j.Name, j.ScheduleDescription(), status, last)
			}
			return nil
		},
	}
}

func cronAddCmd() *cobra.Command {
	var name, task, cronExpr, timezone string
	var intervalMinutes int
	var runAt string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a new agent task",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := tappicron.NewJobStore(jobStorePath())

			job := tappicron.Job{
				Name:    name,
				Task:    task,
				Created: time.Now(),
			}
			switch {
			case cronExpr != "":
				job.Type = tappicron.ScheduleCron
				job.CronExpr = cronExpr
				job.Timezone = timezone
			case intervalMinutes > 0:
				job.Type = tappicron.ScheduleInterval
				job.IntervalMinutes = intervalMinutes
			case runAt != "":
				parsed, err := time.Parse(time.RFC3339, runAt)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				job.Type = tappicron.ScheduleDate
				job.RunAt = parsed
			default:
				return fmt.Errorf("one of --cron, --interval, or --at is required")
			}

			created, err := store.Add(job)
			if err != nil {
				return err
			}
			fmt.Printf("scheduled job %s (%s)\n", created.ID, created.ScheduleDescription())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&task, "task", "", "task prompt for the agent to run")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression, e.g. \"0 9 * * *\"")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "timezone for --cron")
	cmd.Flags().IntVar(&intervalMinutes, "interval", 0, "run every N minutes")
	cmd.Flags().StringVar(&runAt, "at", "", "run once at this RFC3339 timestamp")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("task")
	return cmd
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := tappicron.NewJobStore(jobStorePath())
			if _, err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed job %s\n", args[0])
			return nil
		},
	}
}

func cronPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := tappicron.NewJobStore(jobStorePath())
			if _, err := store.SetPaused(args[0], true); err != nil {
				return err
			}
			fmt.Printf("paused job %s\n", args[0])
			return nil
		},
	}
}

func cronResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := tappicron.NewJobStore(jobStorePath())
			if _, err := store.SetPaused(args[0], false); err != nil {
				return err
			}
			fmt.Printf("resumed job %s\n", args[0])
			return nil
		},
	}
}
