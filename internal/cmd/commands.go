package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/superclaude/engine/internal/command"
)

var commandsCmd = &cobra.Command{
	Use:   "commands [prefix]",
	Short: "List registered commands, optionally filtered by prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}

		registry := command.NewRegistry(cfg.CommandsDir)
		completions := registry.Complete(prefix)
		if len(completions) == 0 {
			fmt.Printf("no commands matching %q under %s\n", prefix, cfg.CommandsDir)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, c := range completions {
			fmt.Fprintf(w, "/sc:%s\t%s\n", c.Name, c.Description)
		}
		return w.Flush()
	},
}
