package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/superclaude/engine/internal/agent"
	"github.com/superclaude/engine/internal/command"
	"github.com/superclaude/engine/internal/executor"
	"github.com/superclaude/engine/internal/fileutil"
	"github.com/superclaude/engine/internal/logger"
	"github.com/superclaude/engine/internal/pipeline"
	"github.com/superclaude/engine/internal/provider"
	"github.com/superclaude/engine/internal/router"
	"github.com/superclaude/engine/internal/telemetry"
)

// Exit codes for the run subcommand.
const (
	exitNeedsIteration = 1
	exitFailed         = 2
	exitInvocation     = 3
)

var runCmd = &cobra.Command{
	Use:   "run /ns:name [flags] [args...]",
	Short: "Execute a command invocation",
	Long: `run parses and executes one command invocation, for example:

  engine run "/sc:implement --loop add retry to the fetcher"

Exit codes: 0 success, 1 needs iteration, 2 run failed or configuration
error, 3 invalid invocation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line := strings.Join(args, " ")
		runExitCode = executeRun(line)
		return nil
	},
}

// executeRun wires the engine together and runs one invocation, returning
// the process exit code.
func executeRun(line string) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}

	adapters := provider.DefaultRegistry(provider.Options{
		Offline: cfg.OfflineMode,
		Timeout: cfg.Timeouts.ProviderCall,
	})
	overrides, err := router.OverridesFromRefs(cfg.Tiers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}
	rt, err := router.New(adapters, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}

	store := telemetry.NewStore(0, telemetry.NewFileSink(filepath.Join(cfg.MetricsDir, "events.jsonl")))
	defer store.Close() //nolint:errcheck

	agents := agent.NewRegistry(cfg.AgentsDir)
	agents.MaxEntries = cfg.AgentCacheSize

	var log logger.Logger = logger.NewConsoleLogger(os.Stderr, cfg.LogLevel)
	if fileLog, err := logger.NewFileLogger(filepath.Join(cfg.MetricsDir, "logs"), cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	} else {
		defer fileLog.Close() //nolint:errcheck
		log = logger.NewMultiLogger(log, fileLog)
	}

	exec := executor.New(cfg, executor.Deps{
		Commands: command.NewRegistry(cfg.CommandsDir),
		Agents:   agents,
		Router:   rt,
		Store:    store,
		Log:      log,
		Hooks:    loadHooks(workDir),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := exec.Execute(ctx, executor.Request{
		CommandLine: line,
		WorkingDir:  workDir,
		Files:       fileutil.ProjectFiles(workDir, 200),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		switch {
		case isParseError(err):
			return exitInvocation
		case executor.IsConfigError(err):
			return exitFailed
		case result.RunID == "":
			return exitFailed
		}
	}

	if result.RunID != "" {
		fmt.Printf("run %s: %s (score %.1f, %s)\n",
			result.RunID, result.Outcome, result.Assessment.FinalScore, result.Assessment.Band)
		fmt.Printf("evidence: %s\n", result.EvidencePath)
		if result.WorktreePreserved {
			fmt.Println("worktree preserved for inspection after merge conflict")
		}
		return result.Outcome.ExitCode()
	}
	return exitFailed
}

func isParseError(err error) bool {
	var parseErr *command.ParseError
	return errors.As(err, &parseErr)
}

// loadHooks reads the optional pipeline hook configuration from
// .superclaude/hooks.yaml under the project directory.
func loadHooks(dir string) pipeline.Hooks {
	var hooks pipeline.Hooks
	data, err := os.ReadFile(filepath.Join(dir, ".superclaude", "hooks.yaml"))
	if err != nil {
		return hooks
	}
	if err := yaml.Unmarshal(data, &hooks); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring malformed hooks.yaml: %v\n", err)
		return pipeline.Hooks{}
	}
	return hooks
}
