// Package cmd implements the engine's command-line interface.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/superclaude/engine/internal/config"
)

// version is overridden at build time via
// -ldflags "-X github.com/superclaude/engine/internal/cmd.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	workDir    string
)

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "Command orchestration engine",
	Long: `engine executes /ns:name commands against a project: it selects an
agent, routes to a model tier, validates the result through the staged
pipeline, scores it, and records evidence for every run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Provider keys commonly live in a local .env; absence is fine.
		godotenv.Load() //nolint:errcheck
		return nil
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default .superclaude/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log verbosity: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "project directory to operate on")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(agentsCmd)
}

// loadConfig resolves the effective configuration for the current
// invocation. Relative commands/agents directories are anchored at the
// project directory.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workDir, ".superclaude", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if !filepath.IsAbs(cfg.CommandsDir) {
		cfg.CommandsDir = filepath.Join(workDir, cfg.CommandsDir)
	}
	if !filepath.IsAbs(cfg.AgentsDir) {
		cfg.AgentsDir = filepath.Join(workDir, cfg.AgentsDir)
	}
	if cfg.MetricsDir == "." || cfg.MetricsDir == "" {
		cfg.MetricsDir = workDir
	}
	return cfg, nil
}

// runExitCode carries the run outcome's exit status out of cobra, which
// only knows about errors. Subcommands report their own failures and set
// it; a cobra-level error (bad usage, unknown subcommand) maps to 2.
var runExitCode int

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	runExitCode = 0
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 2
	}
	return runExitCode
}
