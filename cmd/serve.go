package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nodewerx/tappi-go/internal/agent"
	"github.com/nodewerx/tappi-go/internal/config"
	"github.com/nodewerx/tappi-go/internal/cron"
	"github.com/nodewerx/tappi-go/internal/gateway"
	"github.com/nodewerx/tappi-go/internal/store"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent host: cron scheduler + HTTP/WebSocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "address for the HTTP/WebSocket gateway to listen on")
	return cmd
}

func runServe(addr string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	idx, err := store.Open(filepath.Join(configDir(), "index.db"))
	if err != nil {
		return fmt.Errorf("open secondary index: %w", err)
	}
	defer idx.Close()
	if err := idx.Migrate(); err != nil {
		return fmt.Errorf("migrate secondary index: %w", err)
	}

	var h *host
	trigger := func(ctx context.Context, job cron.Job) {
		runCronJob(ctx, h, idx, job)
	}
	h, err = buildHost(cfg, trigger)
	if err != nil {
		return err
	}

	mainLoop := h.newLoop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h.cronSched.Start(ctx)
	defer h.cronSched.Stop()

	srv := gateway.NewServer(addr, mainLoop, h.bus, h.sessions, h.cronStore, h.cronSched)
	fmt.Printf("tappi serve listening on %s (workspace: %s)\n", addr, h.workspace)
	return srv.Start(ctx)
}

// runCronJob fires one scheduled job's task through a fresh Loop (built
// without the Subagent flag) and a new session, keyed so each run gets its
// own conversation history, and records
// the outcome in the secondary index.
func runCronJob(ctx context.Context, h *host, idx *store.Store, job cron.Job) {
	runID := uuid.NewString()[:8]
	started := time.Now()
	_ = idx.RecordCronRun(ctx, store.CronRunRecord{
		ID:        job.ID + "-" + runID,
		JobID:     job.ID,
		StartedAt: started,
		Status:    "running",
	})

	loop := agent.NewLoop(agent.LoopConfig{
		ID:        "cron-" + job.ID,
		Provider:  h.provider,
		Model:     h.cfg.Agent.Model,
		Workspace: h.workspace,
		MaxTokens: h.cfg.Agent.MainMaxTokens,
		Sessions:  h.sessions,
		Tools:     h.tools,
		Bus:       h.bus,
	})

	sessionID := "cron-" + job.ID + "-" + runID
	result, runErr := loop.Run(ctx, agent.RunRequest{SessionID: sessionID, Message: job.Task})

	finished := time.Now()
	status := "success"
	output := ""
	if runErr != nil {
		status = "error"
		output = runErr.Error()
	} else if result != nil {
		output = result.Content
	}
	_ = idx.RecordCronRun(ctx, store.CronRunRecord{
		ID:         job.ID + "-" + runID,
		JobID:      job.ID,
		StartedAt:  started,
		FinishedAt: &finished,
		Status:     status,
		Output:     output,
	})
}
