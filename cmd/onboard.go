package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nodewerx/tappi-go/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfg := config.Default()

	var provider string
	var apiKey string
	var workspace string
	var browserProfile string
	var shellEnabled bool

	workspace = cfg.Agent.Workspace
	browserProfile = cfg.Agent.BrowserProfile

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM provider").
				Options(
					huh.NewOption("Anthropic", "anthropic"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("OpenRouter", "openrouter"),
					huh.NewOption("DashScope (Qwen)", "dashscope"),
					huh.NewOption("Groq", "groq"),
					huh.NewOption("DeepSeek", "deepseek"),
					huh.NewOption("Mistral", "mistral"),
					huh.NewOption("xAI", "xai"),
					huh.NewOption("Gemini", "gemini"),
				).
				Value(&provider),
			huh.NewInput().
				Title("API key").
				Description("Leave blank to use the provider's default environment variable instead").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Workspace directory").
				Value(&workspace),
			huh.NewInput().
				Title("Default browser profile name").
				Value(&browserProfile),
			huh.NewConfirm().
				Title("Enable the shell tool?").
				Description("The agent can run arbitrary shell commands in the workspace").
				Value(&shellEnabled),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("onboard: %w", err)
	}

	cfg.Agent.Provider = provider
	cfg.Agent.Workspace = workspace
	cfg.Agent.BrowserProfile = browserProfile
	cfg.Agent.ShellEnabled = shellEnabled
	if apiKey != "" {
		if cfg.Agent.Providers == nil {
			cfg.Agent.Providers = map[string]config.ProviderConfig{}
		}
		entry := cfg.Agent.Providers[provider]
		entry.APIKey = apiKey
		cfg.Agent.Providers[provider] = entry
	}

	if err := os.MkdirAll(configDir(), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.MkdirAll(config.ExpandHome(workspace), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	cfgPath := resolveConfigPath()
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Saved configuration to %s\n", cfgPath)
	fmt.Println("Run `tappi doctor` to verify, or `tappi chat` to start talking to the agent.")
	return nil
}
