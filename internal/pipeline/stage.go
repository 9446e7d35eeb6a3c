// Package pipeline runs the ordered validation stages over a run's
// worktree: syntax, security, style, tests, performance. Stages collect
// findings; a fatal result on a required stage skips the remainder but
// never aborts reporting.
package pipeline

import (
	"context"
	"time"

	"github.com/superclaude/engine/internal/command"
	"github.com/superclaude/engine/internal/models"
)

// Stage timeouts.
const (
	DefaultStageTimeout = 5 * time.Minute
	MaxStageTimeout     = 30 * time.Minute
)

// Hooks point stages at the project's actual tools. Empty hooks make the
// corresponding stage report a skip-style pass with an info finding.
type Hooks struct {
	Syntax   string `yaml:"syntax"`
	Lint     string `yaml:"lint"`
	Tests    string `yaml:"tests"`
	Build    string `yaml:"build"`
	Security string `yaml:"security"`
}

// StageInput is what every stage sees. Stages must treat the directory as
// read-only.
type StageInput struct {
	// RunID identifies the run for logging and evidence.
	RunID string
	// Dir is the worktree (or working directory) under validation.
	Dir string
	// ChangedFiles are paths relative to Dir touched by the run.
	ChangedFiles []string
	// Expectations come from the command definition.
	Expectations command.Expectations
	// Hooks configure the external tools.
	Hooks Hooks
	// Timeout bounds a single stage run.
	Timeout time.Duration
}

func (in StageInput) timeout() time.Duration {
	switch {
	case in.Timeout <= 0:
		return DefaultStageTimeout
	case in.Timeout > MaxStageTimeout:
		return MaxStageTimeout
	default:
		return in.Timeout
	}
}

// Stage is one validation step.
type Stage interface {
	// Name is the canonical stage name used in findings and evidence.
	Name() string
	// Required stages participate in the fatal-skip contract.
	Required() bool
	// FatalOnFailure marks stages whose failure stops later stages.
	FatalOnFailure() bool
	// Run executes the stage. An error return means the stage itself
	// crashed; the runner converts that into a high-severity finding.
	Run(ctx context.Context, in StageInput) (models.StageResult, error)
}

// parallelSafe marks stages that may run concurrently once security has
// completed. Reporting order stays canonical regardless.
var parallelSafe = map[string]bool{
	StageStyle:       true,
	StagePerformance: true,
}

// Canonical stage names.
const (
	StageSyntax      = "syntax"
	StageSecurity    = "security"
	StageStyle       = "style"
	StageTests       = "tests"
	StagePerformance = "performance"
)

// DefaultStages builds the standard ordered pipeline.
func DefaultStages() []Stage {
	return []Stage{
		&syntaxStage{},
		&securityStage{},
		&styleStage{},
		&testsStage{},
		&performanceStage{},
	}
}
