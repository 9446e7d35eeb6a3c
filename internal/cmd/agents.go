package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/superclaude/engine/internal/agent"
)

var agentsCmd = &cobra.Command{
	Use:   "agents [task text...]",
	Short: "List agents, or rank them against a task description",
	Long: `Without arguments, agents lists every registered agent. With task
text it runs the selector and shows the winning agent, its score and
rationale, plus any close runners-up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry := agent.NewRegistry(cfg.AgentsDir)
		registry.MaxEntries = cfg.AgentCacheSize

		if len(args) == 0 {
			names := registry.Names()
			if len(names) == 0 {
				fmt.Printf("no agents under %s\n", cfg.AgentsDir)
				return nil
			}
			for _, name := range names {
				if a, ok := registry.Get(name); ok {
					fmt.Printf("%-28s %-16s %s\n", a.Name, a.Category, a.Description)
				}
			}
			return nil
		}

		text := strings.Join(args, " ")
		tc := agent.DeriveContext(text, nil, workDir)
		selection, err := agent.NewSelector(registry).Select(tc, nil)
		if err != nil {
			return err
		}

		fmt.Printf("selected: %s (score %.2f)\n", selection.Agent.Name, selection.Score)
		fmt.Printf("rationale: %s\n", selection.Rationale)
		for _, c := range selection.RunnersUp {
			fmt.Printf("runner-up: %s (score %.2f)\n", c.Agent.Name, c.Score)
		}
		return nil
	},
}
