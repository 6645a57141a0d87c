package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nodewerx/tappi-go/internal/agent"
	"github.com/nodewerx/tappi-go/internal/bus"
	"github.com/nodewerx/tappi-go/internal/config"
	"github.com/nodewerx/tappi-go/internal/cron"
	"github.com/nodewerx/tappi-go/internal/profiles"
	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
	"github.com/nodewerx/tappi-go/internal/tools"
)

// host bundles together everything a CLI command needs to run an agent
// turn: the config it was built from, and every long-lived piece the agent
// loop is wired against.
type host struct {
	cfg       *config.Config
	bus       *bus.Hub
	sessions  *sessions.Manager
	tools     *tools.Registry
	provider  providers.Provider
	profiles  *profiles.Store
	cronStore *cron.JobStore
	cronSched *cron.Scheduler
	workspace string
}

// configDir returns ~/.tappi. It does not create the directory.
func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tappi")
}

// buildHost constructs every long-lived dependency an agent loop needs from
// cfg: the LLM provider, the tool registry (browser/files/shell/pdf/
// spreadsheet/cron), the session manager, and the cron scheduler. trigger,
// when non-nil, is wired as the scheduler's TriggerFunc (only `tappi serve`
// needs firing jobs; `tappi chat` builds a host with trigger == nil and never
// starts the scheduler).
func buildHost(cfg *config.Config, trigger cron.TriggerFunc) (*host, error) {
	workspace := config.ExpandHome(cfg.Agent.Workspace)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", workspace, err)
	}

	provider, err := providers.New(cfg, cfg.Agent.Provider)
	if err != nil {
		return nil, fmt.Errorf("resolve provider %q: %w", cfg.Agent.Provider, err)
	}

	dir := configDir()
	profileStore := profiles.NewStore(dir)
	cronStore := cron.NewJobStore(filepath.Join(dir, "cron.json"))

	eventBus := bus.NewHub()
	sessMgr := sessions.NewManager(filepath.Join(workspace, "sessions"))

	registry := tools.NewRegistry()
	registry.Register(tools.NewBrowserTool(cfg.Agent.BrowserProfile, filepath.Join(workspace, "downloads"), profileStore))
	registry.Register(tools.NewFilesTool(workspace))
	registry.Register(tools.NewShellTool(workspace, cfg.Agent.ShellEnabled))
	registry.Register(tools.NewPDFTool(workspace))
	registry.Register(tools.NewSpreadsheetTool(workspace))

	if trigger == nil {
		trigger = func(ctx context.Context, job cron.Job) {}
	}
	scheduler := cron.NewScheduler(cronStore, trigger, 0)
	registry.Register(tools.NewCronTool(cronStore, scheduler))

	return &host{
		cfg:       cfg,
		bus:       eventBus,
		sessions:  sessMgr,
		tools:     registry,
		provider:  provider,
		profiles:  profileStore,
		cronStore: cronStore,
		cronSched: scheduler,
		workspace: workspace,
	}, nil
}

// newLoop builds the main (non-subagent) Agent Loop against h's wiring.
func (h *host) newLoop() *agent.Loop {
	return agent.NewLoop(agent.LoopConfig{
		ID:            "main",
		Provider:      h.provider,
		Model:         h.cfg.Agent.Model,
		Workspace:     h.workspace,
		ContextWindow: providers.ContextWindowFor(h.cfg.Agent.Model),
		MaxTokens:     h.cfg.Agent.MainMaxTokens,
		Sessions:      h.sessions,
		Tools:         h.tools,
		Bus:           h.bus,
	})
}
