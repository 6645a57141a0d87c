package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nodewerx/tappi-go/internal/agent"
	"github.com/nodewerx/tappi-go/internal/bus"
	"github.com/nodewerx/tappi-go/internal/config"
	"github.com/nodewerx/tappi-go/internal/decompose"
	"github.com/nodewerx/tappi-go/internal/providers"
)

func chatCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent interactively, or send a single message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			h, err := buildHost(cfg, nil)
			if err != nil {
				return err
			}
			runChat(h, message)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and print the reply, instead of starting a REPL")
	return cmd
}

// runChat drives the interactive chat REPL: read a line from stdin, run one
// agent turn, print the reply. "/new" resets the session; Ctrl+C exits
// gracefully.
func runChat(h *host, message string) {
	loop := h.newLoop()
	sessionID := "cli-" + uuid.NewString()[:8]

	h.bus.Subscribe("cli", func(evt bus.Event) {
		if evt.Name == bus.EventToolCall {
			if p, ok := evt.Payload.(bus.ToolCallPayload); ok {
				fmt.Fprintf(os.Stderr, "  [tool] %s\n", p.Tool)
			}
		}
	})
	defer h.bus.Unsubscribe("cli")

	send := func(msg string) (string, error) {
		result, err := loop.Run(context.Background(), agent.RunRequest{SessionID: sessionID, Message: msg})
		if err != nil {
			return "", err
		}
		return result.Content, nil
	}

	if message != "" {
		resp, err := send(message)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(resp)
		return
	}

	fmt.Fprintf(os.Stderr, "\nTappi Interactive Chat\n")
	fmt.Fprintf(os.Stderr, "Provider: %s | Model: %s\n", h.cfg.Agent.Provider, h.cfg.Agent.Model)
	fmt.Fprintf(os.Stderr, "Session: %s\n", sessionID)
	fmt.Fprintf(os.Stderr, "Type \"exit\" to quit, \"/new\" for a new session\n\n")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return
		default:
		}

		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return
		}
		if input == "/new" {
			sessionID = "cli-" + uuid.NewString()[:8]
			fmt.Fprintf(os.Stderr, "New session: %s\n\n", sessionID)
			continue
		}

		if h.cfg.Agent.DecomposeEnabled {
			runDecomposedTurn(h, loop, sessionID, input)
			continue
		}

		resp, err := send(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}
		fmt.Printf("\n%s\n\n", resp)
	}
}

// runDecomposedTurn decides whether input needs splitting into subtasks
// before running it, per spec.md §4.3: a no-tools LLM call first, and only
// if it comes back complex does a sequential Runner take over.
func runDecomposedTurn(h *host, loop *agent.Loop, sessionID, input string) {
	ctx := context.Background()
	subtasks, err := decompose.DecomposeTask(ctx, h.provider, h.cfg.Agent.Model, time.Now().Format("January 2, 2006"), input)
	if err != nil || len(subtasks) == 0 {
		result, runErr := loop.Run(ctx, agent.RunRequest{SessionID: sessionID, Message: input})
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", runErr)
			return
		}
		fmt.Printf("\n%s\n\n", result.Content)
		return
	}

	runner, err := decompose.NewRunner(decompose.RunnerConfig{
		Workspace:         h.workspace,
		ParentSessionID:   sessionID,
		OriginalTask:      input,
		Provider:          h.provider,
		Model:             h.cfg.Agent.Model,
		ContextWindow:     providers.ContextWindowFor(h.cfg.Agent.Model),
		MainMaxTokens:     h.cfg.Agent.MainMaxTokens,
		SubagentMaxTokens: h.cfg.Agent.SubagentMaxTokens,
		Sessions:          h.sessions,
		Tools:             h.tools,
		Bus:               h.bus,
	}, subtasks)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return
	}

	result, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return
	}
	fmt.Printf("\n%s\n\n", result.FinalOutput)
}
