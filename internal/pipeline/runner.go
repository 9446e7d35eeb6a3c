package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/superclaude/engine/internal/logger"
	"github.com/superclaude/engine/internal/models"
)

// EvidenceWriter persists per-stage results. Satisfied by
// telemetry.EvidenceDir.
type EvidenceWriter interface {
	WriteStage(stage string, v any) (string, error)
}

// Result is the full pipeline outcome in canonical stage order.
type Result struct {
	Stages  []models.StageResult `json:"stages"`
	Skipped []string             `json:"skipped,omitempty"`
	// FatalStage names the stage that triggered the skip, if any.
	FatalStage string `json:"fatal_stage,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Findings flattens all stage findings.
func (r Result) Findings() []models.Finding {
	var out []models.Finding
	for _, sr := range r.Stages {
		out = append(out, sr.Findings...)
	}
	return out
}

// Stage returns one stage's result by name.
func (r Result) Stage(name string) (models.StageResult, bool) {
	for _, sr := range r.Stages {
		if sr.Stage == name {
			return sr, true
		}
	}
	return models.StageResult{}, false
}

// Signals derives the deterministic post-execution facts the scorer
// consumes.
func (r Result) Signals(filesChanged, testsChanged int) models.Signals {
	var signals models.Signals
	signals.FilesChanged = filesChanged
	signals.TestsChanged = testsChanged

	if sr, ok := r.Stage(StageSyntax); ok {
		signals.TypecheckPass = sr.Passed && !sr.Skipped
		signals.BuildPass = sr.Passed && !sr.Skipped
	}
	if sr, ok := r.Stage(StageStyle); ok {
		signals.LintClean = sr.Passed && !sr.Skipped
	}
	if sr, ok := r.Stage(StageSecurity); ok {
		signals.Security.Critical = sr.CountSeverity(models.SeverityCritical)
		signals.Security.High = sr.CountSeverity(models.SeverityHigh)
	}
	if sr, ok := r.Stage(StageTests); ok && sr.Tests != nil {
		signals.Tests = *sr.Tests
	}
	return signals
}

// Runner executes the stages against one input.
type Runner struct {
	stages   []Stage
	evidence EvidenceWriter
	log      logger.Logger
}

// NewRunner builds a runner. A nil evidence writer skips persistence; a nil
// logger is replaced with the no-op one.
func NewRunner(stages []Stage, evidence EvidenceWriter, log logger.Logger) *Runner {
	if log == nil {
		log = &logger.NoOpLogger{}
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &Runner{stages: stages, evidence: evidence, log: log}
}

// Run executes all stages in canonical order. A fatal result on a required
// stage skips everything after it; the skipped stages are still reported.
// Stages declared parallel-safe run concurrently once security completes,
// but results keep canonical order.
func (r *Runner) Run(ctx context.Context, in StageInput) Result {
	start := time.Now()
	result := Result{}
	results := make([]models.StageResult, len(r.stages))

	fatalAt := -1
	securityDone := false

	i := 0
	for i < len(r.stages) {
		if fatalAt >= 0 {
			results[i] = skippedResult(r.stages[i].Name())
			result.Skipped = append(result.Skipped, r.stages[i].Name())
			i++
			continue
		}

		// Batch consecutive parallel-safe stages after security.
		if securityDone && parallelSafe[r.stages[i].Name()] {
			j := i
			for j < len(r.stages) && parallelSafe[r.stages[j].Name()] {
				j++
			}
			g, gctx := errgroup.WithContext(ctx)
			for k := i; k < j; k++ {
				k := k
				g.Go(func() error {
					results[k] = r.runOne(gctx, r.stages[k], in)
					return nil
				})
			}
			g.Wait() //nolint:errcheck // stage crashes become findings
			for k := i; k < j; k++ {
				if results[k].FatalEncountered && r.stages[k].Required() {
					fatalAt = k
					result.FatalStage = r.stages[k].Name()
				}
			}
			i = j
			continue
		}

		results[i] = r.runOne(ctx, r.stages[i], in)
		if r.stages[i].Name() == StageSecurity {
			securityDone = true
		}
		if results[i].FatalEncountered && r.stages[i].Required() {
			fatalAt = i
			result.FatalStage = r.stages[i].Name()
		}
		i++
	}

	result.Stages = results
	result.DurationMS = time.Since(start).Milliseconds()
	return result
}

// runOne executes a single stage, converting a crash into a high-severity
// finding and persisting the result as evidence.
func (r *Runner) runOne(ctx context.Context, stage Stage, in StageInput) models.StageResult {
	sr, err := stage.Run(ctx, in)
	if err != nil {
		sr = models.StageResult{
			Stage:  stage.Name(),
			Passed: false,
			Findings: []models.Finding{{
				Stage:    stage.Name(),
				Severity: models.SeverityHigh,
				Message:  "stage crashed: " + err.Error(),
			}},
		}
	}

	if r.evidence != nil {
		if ref, werr := r.evidence.WriteStage(stage.Name(), sr); werr == nil {
			sr.EvidenceRef = ref
		}
	}
	r.log.LogStageFinished(in.RunID, sr)
	return sr
}

func skippedResult(name string) models.StageResult {
	return models.StageResult{Stage: name, Skipped: true}
}
