package cmd

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nodewerx/tappi-go/internal/profiles"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage browser profiles",
	}
	cmd.AddCommand(profileListCmd())
	cmd.AddCommand(profileCreateCmd())
	cmd.AddCommand(profileDeleteCmd())
	cmd.AddCommand(profileDefaultCmd())
	return cmd
}

func profileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List browser profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := profiles.NewStore(configDir())
			list, err := store.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("no profiles yet — run `tappi profile create <name>`")
				return nil
			}

			nameWidth := len("NAME")
			for _, p := range list {
				if w := runewidth.StringWidth(p.Name); w > nameWidth {
					nameWidth = w
				}
			}
			fmt.Printf("%-*s  %-6s  %s\n", nameWidth, "NAME", "PORT", "DEFAULT")
			for _, p := range list {
				pad := nameWidth - runewidth.StringWidth(p.Name)
				def := ""
				if p.IsDefault {
					def = "*"
				}
				fmt.Printf("%s%s  %-6d  %s\n", p.Name, strings.Repeat(" ", pad), p.Port, def)
			}
			return nil
		},
	}
}

func profileCreateCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new browser profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := profiles.NewStore(configDir())
			p, err := store.Create(args[0], port)
			if err != nil {
				return err
			}
			fmt.Printf("created profile %q on port %d\n", p.Name, p.Port)
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "CDP debug port (0 picks the next free port)")
	return cmd
}

func profileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a browser profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := profiles.NewStore(configDir())
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted profile %q\n", args[0])
			return nil
		},
	}
}

func profileDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <name>",
		Short: "Set the default browser profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := profiles.NewStore(configDir())
			if err := store.SetDefault(args[0]); err != nil {
				return err
			}
			fmt.Printf("default profile set to %q\n", args[0])
			return nil
		},
	}
}
