package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nodewerx/tappi-go/internal/config"
	"github.com/nodewerx/tappi-go/internal/profiles"
	"github.com/nodewerx/tappi-go/internal/providers"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("tappi doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (using defaults, no file found)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	workspace := config.ExpandHome(cfg.Agent.Workspace)
	fmt.Printf("  Workspace: %s", workspace)
	if info, err := os.Stat(workspace); err != nil || !info.IsDir() {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	fmt.Printf("  Agent provider: %s, model: %s\n", cfg.Agent.Provider, cfg.Agent.Model)
	fmt.Printf("  Shell tool: %v, decompose: %v\n", cfg.Agent.ShellEnabled, cfg.Agent.DecomposeEnabled)

	fmt.Println()
	fmt.Println("  Providers:")
	for _, status := range providers.CredentialReport(cfg) {
		if status.Configured {
			fmt.Printf("    %-12s configured (%s) %s\n", status.Provider, status.Source, status.Masked)
		} else {
			fmt.Printf("    %-12s not configured\n", status.Provider)
		}
	}

	fmt.Println()
	fmt.Println("  Browser profiles:")
	store := profiles.NewStore(configDir())
	list, err := store.List()
	if err != nil {
		fmt.Printf("    error listing profiles: %s\n", err)
	} else if len(list) == 0 {
		fmt.Println("    (none — run `tappi profile create <name>`)")
	} else {
		for _, p := range list {
			marker := ""
			if p.IsDefault {
				marker = " (default)"
			}
			fmt.Printf("    %-16s port %d%s\n", p.Name, p.Port, marker)
		}
	}

	fmt.Println()
	fmt.Println("  External binaries:")
	for _, bin := range []string{"chromium", "google-chrome", "docker", "git"} {
		if path, err := exec.LookPath(bin); err == nil {
			fmt.Printf("    %-16s %s\n", bin, path)
		} else {
			fmt.Printf("    %-16s not found\n", bin)
		}
	}
}
