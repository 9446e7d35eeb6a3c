// Package executor drives one command run end to end: parse, agent
// selection, model routing, primary execution, validation, scoring, and
// evidence finalization. Every state transition is logged and emitted to
// the telemetry store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/superclaude/engine/internal/agent"
	"github.com/superclaude/engine/internal/command"
	"github.com/superclaude/engine/internal/config"
	"github.com/superclaude/engine/internal/logger"
	"github.com/superclaude/engine/internal/models"
	"github.com/superclaude/engine/internal/pipeline"
	"github.com/superclaude/engine/internal/provider"
	"github.com/superclaude/engine/internal/router"
	"github.com/superclaude/engine/internal/scoring"
	"github.com/superclaude/engine/internal/telemetry"
	"github.com/superclaude/engine/internal/worktree"
)

// Executor states, emitted as run.state events in order of traversal.
const (
	StateParse         = "PARSE"
	StateResolve       = "RESOLVE_METADATA"
	StateDeriveContext = "DERIVE_CONTEXT"
	StateSelectAgent   = "SELECT_AGENT"
	StateOpenWorktree  = "OPEN_WORKTREE"
	StatePlan          = "PLAN"
	StateExecute       = "EXECUTE_PRIMARY"
	StateValidate      = "RUN_VALIDATION"
	StateCollect       = "COLLECT_SIGNALS"
	StateScore         = "SCORE"
	StateFinalize      = "FINALIZE"
)

// Engine-reserved flags a command definition may declare. The executor
// interprets them; everything else is passed through to the playbook.
const (
	flagLoop       = "loop"
	flagIterations = "iterations"
	flagConsensus  = "consensus"
	flagAgent      = "agent"
	flagNoMerge    = "no-merge"
)

// Deps are the wired components an executor runs against.
type Deps struct {
	Commands *command.Registry
	Agents   *agent.Registry
	Router   *router.Router
	Store    *telemetry.Store
	Log      logger.Logger
	// Hooks configure the validation pipeline's external tools.
	Hooks pipeline.Hooks
	// Stages overrides the default pipeline, used by tests.
	Stages []pipeline.Stage
}

// Executor runs commands. Safe for sequential reuse; one Execute call per
// run.
type Executor struct {
	cfg      *config.Config
	commands *command.Registry
	agents   *agent.Registry
	selector *agent.Selector
	router   *router.Router
	scorer   *scoring.Scorer
	store    *telemetry.Store
	log      logger.Logger
	hooks    pipeline.Hooks
	stages   []pipeline.Stage
}

// New builds an executor. A nil logger is replaced with the no-op one.
func New(cfg *config.Config, deps Deps) *Executor {
	log := deps.Log
	if log == nil {
		log = &logger.NoOpLogger{}
	}
	return &Executor{
		cfg:      cfg,
		commands: deps.Commands,
		agents:   deps.Agents,
		selector: agent.NewSelector(deps.Agents),
		router:   deps.Router,
		scorer:   scoring.NewScorer(),
		store:    deps.Store,
		log:      log,
		hooks:    deps.Hooks,
		stages:   deps.Stages,
	}
}

// Request describes one command invocation.
type Request struct {
	// CommandLine is the raw "/ns:name --flags args" text.
	CommandLine string
	// WorkingDir is the project directory the command operates on.
	WorkingDir string
	// Files optionally hints which paths the task concerns, improving
	// context derivation.
	Files []string
}

// Result is the terminal record of one run.
type Result struct {
	RunID      string
	Command    *command.Command
	Outcome    models.Outcome
	Assessment models.QualityAssessment
	Loop       models.LoopResult
	Consensus  *router.ConsensusResult
	Diff       worktree.DiffSummary
	// EvidencePath is the run's evidence directory.
	EvidencePath string
	// WorktreePreserved is set when a merge conflict left the worktree in
	// place for manual inspection.
	WorktreePreserved bool
	Duration          time.Duration
}

// Execute runs one command. Invocation faults (*command.ParseError) return
// before any run record exists; every other failure produces a terminal
// run record with outcome failed.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	cmd, meta, err := e.commands.Resolve(req.CommandLine)
	if err != nil {
		return Result{}, err
	}

	runID := uuid.New().String()
	start := time.Now()
	result := Result{RunID: runID, Command: cmd}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Run)
	defer cancel()

	e.store.Emit(runID, telemetry.KindRunStarted, map[string]any{ //nolint:errcheck
		"command":    cmd.FullName(),
		"raw":        cmd.Raw,
		"requires":   meta.RequiresEvidence,
		"complexity": string(meta.Complexity),
	})
	e.log.LogRunStart(runID, cmd.FullName())
	e.setState(runID, StateParse)
	e.setState(runID, StateResolve)

	evidence, err := telemetry.NewEvidenceDir(e.cfg.MetricsDir, runID)
	if err != nil {
		cfgErr := &ConfigError{Field: "metrics_dir", Message: err.Error()}
		return e.finish(runID, start, result, models.OutcomeFailed, cfgErr)
	}
	result.EvidencePath = evidence.Root()
	evidence.WriteJSON(telemetry.EvidenceCommandFile, map[string]any{ //nolint:errcheck
		"invocation": cmd,
		"metadata":   meta,
	})

	e.setState(runID, StateDeriveContext)
	tc := agent.DeriveContext(cmd.Text(), req.Files, req.WorkingDir)

	e.setState(runID, StateSelectAgent)
	selection, err := e.selectAgent(cmd, tc)
	if err != nil {
		return e.finish(runID, start, result, models.OutcomeFailed, err)
	}
	e.store.Emit(runID, telemetry.KindAgentSelected, map[string]any{ //nolint:errcheck
		"agent":     selection.Agent.Name,
		"score":     selection.Score,
		"rationale": selection.Rationale,
		"fallback":  selection.Fallback,
	})
	e.log.LogAgentSelected(runID, selection.Agent.Name, selection.Score, selection.Rationale)

	mgr := worktree.NewManager(req.WorkingDir, filepath.Join(e.cfg.MetricsDir, ".runs"))
	if meta.RequiresEvidence && !mgr.IsGitRepo() {
		return e.finish(runID, start, result, models.OutcomeFailed, &UntrackedRepoError{Dir: req.WorkingDir})
	}

	var wt *worktree.Worktree
	if meta.Expectations.ExpectsFileChanges || meta.RequiresEvidence {
		e.setState(runID, StateOpenWorktree)
		wt, err = mgr.Open(runID, "")
		if err != nil {
			return e.finish(runID, start, result, models.OutcomeFailed, fmt.Errorf("open worktree: %w", err))
		}
	}

	e.setState(runID, StatePlan)
	prompt := e.composePrompt(meta, cmd, selection)
	route, err := e.router.Route(tierFor(meta.Complexity), router.EstimateTokens(prompt))
	if err != nil {
		e.discard(wt)
		cfgErr := &ConfigError{Field: "providers", Message: err.Error()}
		return e.finish(runID, start, result, models.OutcomeFailed, cfgErr)
	}
	e.store.Emit(runID, telemetry.KindModelSelected, map[string]any{ //nolint:errcheck
		"provider": route.Model.Provider,
		"model":    route.Model.ModelID,
		"tier":     route.Tier,
		"degraded": route.Degraded,
	})
	e.log.LogModelSelected(runID, route.Model.Provider, route.Model.ModelID, route.Degraded)

	e.setState(runID, StateExecute)
	exec := &runExecution{
		executor:  e,
		runID:     runID,
		cmd:       cmd,
		meta:      meta,
		selection: selection,
		route:     route,
		prompt:    prompt,
		evidence:  evidence,
		worktree:  wt,
		dir:       req.WorkingDir,
	}

	loop := scoring.NewLoop(e.scorer, e.log)
	loopResult, err := loop.Run(ctx, runID, scoring.ImproverFunc(exec.iterate), scoring.LoopConfig{
		MaxIterations:    e.iterationBudget(cmd),
		Target:           e.cfg.QualityTarget,
		Deadline:         start.Add(e.cfg.Timeouts.Run),
		IterationTimeout: e.cfg.Timeouts.Iteration,
	})
	if err != nil {
		e.discard(wt)
		return e.finish(runID, start, result, models.OutcomeFailed, err)
	}
	result.Loop = loopResult
	result.Consensus = exec.consensus
	result.Diff = exec.diff
	for _, rec := range loopResult.History {
		e.store.Emit(runID, telemetry.KindIterationFinished, map[string]any{ //nolint:errcheck
			"index":       rec.Index,
			"score":       rec.Assessment.FinalScore,
			"band":        string(rec.Assessment.Band),
			"termination": string(rec.TerminationReason),
		})
	}

	e.setState(runID, StateScore)
	if loopResult.Best == nil {
		e.discard(wt)
		return e.finish(runID, start, result, models.OutcomeFailed,
			fmt.Errorf("run terminated (%s) before any iteration completed", loopResult.TerminatedBy))
	}
	best := *loopResult.Best
	result.Assessment = best.Assessment

	e.setState(runID, StateFinalize)
	if meta.RequiresEvidence && !best.Signals.HasArtifacts() && !exec.unavailable {
		e.discard(wt)
		zeroed := best.Assessment
		zeroed.FinalScore = 0
		zeroed.Band = models.BandIterate
		result.Assessment = zeroed
		return e.finish(runID, start, result, models.OutcomeFailed, &EvidenceMissingError{RunID: runID})
	}

	outcome := e.outcome(loopResult, exec.fatalStage)
	if exec.unavailable {
		switch {
		case meta.RequiresEvidence && !best.Signals.HasArtifacts():
			outcome = models.OutcomeNeedsIteration
		case outcome == models.OutcomeOK:
			outcome = models.OutcomeOKWithWarnings
		}
	}

	var runErr error
	if wt != nil {
		runErr = e.closeWorktree(wt, cmd, outcome, &result)
		if runErr != nil {
			outcome = models.OutcomeFailed
		}
	}

	e.writeEvidence(evidence, runID, cmd, start, best, exec)
	return e.finish(runID, start, result, outcome, runErr)
}

// selectAgent honors a forced --agent flag, otherwise runs the selector.
func (e *Executor) selectAgent(cmd *command.Command, tc agent.TaskContext) (agent.Selection, error) {
	if forced, ok := cmd.Flag(flagAgent); ok && forced != "" {
		a, found := e.agents.Get(forced)
		if !found {
			return agent.Selection{}, &ConfigError{Field: flagAgent, Message: fmt.Sprintf("unknown agent %q", forced)}
		}
		return agent.Selection{Agent: a, Score: 1.0, Rationale: "forced by --agent"}, nil
	}
	return e.selector.Select(tc, nil)
}

// iterationBudget derives the loop budget from flags and configuration.
// Without --loop the run is a single pass.
func (e *Executor) iterationBudget(cmd *command.Command) int {
	if !cmd.Bool(flagLoop) {
		return 1
	}
	if v, ok := cmd.Flag(flagIterations); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return models.ClampIterations(n)
		}
	}
	return e.cfg.MaxIterations
}

// tierFor maps command complexity to a routing tier.
func tierFor(c command.Complexity) string {
	switch c {
	case command.ComplexityHigh:
		return router.TierDeepThinking
	case command.ComplexityLow:
		return router.TierFastIteration
	default:
		return router.TierLongContext
	}
}

// composePrompt assembles the primary model prompt from the playbook
// description, the selected agent persona, and the task text.
func (e *Executor) composePrompt(meta *command.Metadata, cmd *command.Command, sel agent.Selection) string {
	var sb strings.Builder
	sb.WriteString(meta.Description)
	sb.WriteString("\n\nActing as: ")
	sb.WriteString(sel.Agent.Name)
	if sel.Agent.Description != "" {
		sb.WriteString(" (" + sel.Agent.Description + ")")
	}
	sb.WriteString("\n\nTask: ")
	sb.WriteString(cmd.Text())
	return sb.String()
}

// outcome maps the loop's terminal state onto the run outcome contract.
func (e *Executor) outcome(loopResult models.LoopResult, fatalStage string) models.Outcome {
	if fatalStage != "" || loopResult.TerminatedBy == models.TerminationError {
		return models.OutcomeFailed
	}
	switch loopResult.Best.Assessment.Band {
	case models.BandProductionReady:
		return models.OutcomeOK
	case models.BandNeedsAttention:
		return models.OutcomeOKWithWarnings
	default:
		return models.OutcomeNeedsIteration
	}
}

// closeWorktree merges on success, discards on failure. A merge conflict
// preserves the worktree for inspection and is reported, never silently
// resolved.
func (e *Executor) closeWorktree(wt *worktree.Worktree, cmd *command.Command, outcome models.Outcome, result *Result) error {
	switch {
	case outcome == models.OutcomeOK || outcome == models.OutcomeOKWithWarnings:
		if cmd.Bool(flagNoMerge) {
			return wt.Discard()
		}
		if err := wt.Merge(cmd.FullName() + " run " + wt.RunID); err != nil {
			var conflict *worktree.ConflictError
			if errors.As(err, &conflict) {
				result.WorktreePreserved = true
			}
			return err
		}
		return nil
	default:
		return e.discard(wt)
	}
}

func (e *Executor) discard(wt *worktree.Worktree) error {
	if wt == nil || wt.Closed() {
		return nil
	}
	return wt.Discard()
}

// writeEvidence persists the run's terminal evidence files.
func (e *Executor) writeEvidence(evidence *telemetry.EvidenceDir, runID string, cmd *command.Command, start time.Time, best models.IterationRecord, exec *runExecution) {
	evidence.WriteJSON(telemetry.EvidenceSignalsFile, best.Signals)       //nolint:errcheck
	evidence.WriteJSON(telemetry.EvidenceAssessmentFile, best.Assessment) //nolint:errcheck
	if exec.consensus != nil {
		evidence.WriteJSON(telemetry.EvidenceConsensusFile, exec.consensus) //nolint:errcheck
	}

	record := models.EvidenceRecord{
		RunID:      runID,
		Command:    cmd.FullName(),
		StartedAt:  start.UTC(),
		FinishedAt: time.Now().UTC(),
		Signals:    best.Signals,
		Assessment: best.Assessment,
	}
	for _, sr := range exec.lastStages {
		if sr.EvidenceRef != "" {
			record.Artifacts = append(record.Artifacts, models.Artifact{Kind: "stage-report", Path: sr.EvidenceRef})
		}
	}
	evidence.WriteJSON("record.json", record) //nolint:errcheck
}

// finish emits the terminal events, flushes the store, and returns.
func (e *Executor) finish(runID string, start time.Time, result Result, outcome models.Outcome, err error) (Result, error) {
	result.Outcome = outcome
	result.Duration = time.Since(start)

	payload := map[string]any{
		"final_score": result.Assessment.FinalScore,
		"band":        string(result.Assessment.Band),
		"capped":      result.Assessment.Capped(),
		"degraded":    result.Assessment.Degraded,
	}
	e.store.Emit(runID, telemetry.KindAssessmentFinal, payload) //nolint:errcheck

	finished := map[string]any{
		"outcome":     string(outcome),
		"duration_ms": result.Duration.Milliseconds(),
		"iterations":  result.Loop.IterationsUsed(),
		"exit_code":   outcome.ExitCode(),
	}
	if err != nil {
		finished["error"] = err.Error()
	}
	e.store.Emit(runID, telemetry.KindRunFinished, finished) //nolint:errcheck
	e.log.LogRunFinished(runID, outcome, result.Assessment.FinalScore, result.Duration)
	e.store.Flush()
	return result, err
}

func (e *Executor) setState(runID, state string) {
	e.store.Emit(runID, telemetry.KindRunState, map[string]any{"state": state}) //nolint:errcheck
	e.log.LogState(runID, state)
}

// runExecution carries per-run mutable state across loop iterations.
type runExecution struct {
	executor  *Executor
	runID     string
	cmd       *command.Command
	meta      *command.Metadata
	selection agent.Selection
	route     router.Route
	prompt    string
	evidence  *telemetry.EvidenceDir
	worktree  *worktree.Worktree
	dir       string

	consensus  *router.ConsensusResult
	diff       worktree.DiffSummary
	fatalStage string
	lastStages []models.StageResult
	// unavailable records that the primary model could not be reached, so
	// the run degrades instead of failing.
	unavailable bool
}

// iterate is one improver pass: primary model call, validation pipeline,
// signal collection, optional consensus review. An unavailable provider
// degrades the iteration; the deterministic stages still run.
func (x *runExecution) iterate(ctx context.Context, feedback *models.FeedbackPacket) (scoring.IterationOutcome, error) {
	e := x.executor

	var output string
	degraded := x.route.Degraded
	adapter, ok := e.router.Adapter(x.route.Model)
	if !ok {
		x.unavailable = true
		degraded = true
	} else {
		resp, err := adapter.Chat(ctx, x.route.Model, x.promptWith(feedback), provider.Params{
			MaxTokens: 4096,
			System:    "You are " + x.selection.Agent.Name + ". Produce the requested change.",
		})
		switch {
		case err == nil:
			output = resp.Text
		case provider.IsUnavailable(err):
			x.unavailable = true
			degraded = true
		default:
			return scoring.IterationOutcome{}, fmt.Errorf("primary execution: %w", err)
		}
	}

	e.setState(x.runID, StateValidate)
	dir := x.dir
	if x.worktree != nil {
		dir = x.worktree.Root
	}

	var changed []string
	if x.worktree != nil {
		if diff, derr := x.worktree.Diff(); derr == nil {
			x.diff = diff
			changed = diff.ChangedPaths()
		}
	}

	runner := pipeline.NewRunner(e.stages, x.evidence, e.log)
	pres := runner.Run(ctx, pipeline.StageInput{
		RunID:        x.runID,
		Dir:          dir,
		ChangedFiles: changed,
		Expectations: x.meta.Expectations,
		Hooks:        e.hooks,
		Timeout:      e.cfg.Timeouts.Stage,
	})
	x.fatalStage = pres.FatalStage
	x.lastStages = pres.Stages
	for _, sr := range pres.Stages {
		e.store.Emit(x.runID, telemetry.KindStageFinished, map[string]any{ //nolint:errcheck
			"stage":   sr.Stage,
			"passed":  sr.Passed,
			"skipped": sr.Skipped,
			"fatal":   sr.FatalEncountered,
		})
	}

	e.setState(x.runID, StateCollect)
	signals := pres.Signals(len(x.diff.Files), countTestFiles(changed))

	review := -1.0
	if x.cmd.Bool(flagConsensus) {
		review = x.reviewByConsensus(ctx, output)
		if review < 0 {
			degraded = true
		}
	}

	return scoring.IterationOutcome{
		AgentID:        x.selection.Agent.Name,
		Signals:        signals,
		Findings:       pres.Findings(),
		Output:         output,
		ExternalReview: review,
		Degraded:       degraded,
	}, nil
}

// promptWith appends the feedback packet to the base prompt. The original
// task text is never replaced.
func (x *runExecution) promptWith(feedback *models.FeedbackPacket) string {
	if feedback == nil {
		return x.prompt
	}
	var sb strings.Builder
	sb.WriteString(x.prompt)
	sb.WriteString(fmt.Sprintf("\n\nPrevious attempt scored %.1f. Address these points:\n", feedback.CurrentScore))
	for _, imp := range feedback.ImprovementsNeeded {
		sb.WriteString(fmt.Sprintf("- %s (%.0f, target %.0f): %s\n", imp.Dimension, imp.Score, imp.Threshold, imp.Hint))
	}
	for _, f := range feedback.NewFindings {
		sb.WriteString("- " + f.String() + "\n")
	}
	return sb.String()
}

// reviewByConsensus grades the primary output by multi-model vote. The
// agreement score scaled to [0,100] becomes the external review dimension;
// an unresolved vote reports -1 (unavailable).
func (x *runExecution) reviewByConsensus(ctx context.Context, output string) float64 {
	e := x.executor
	voters := x.voters()
	if len(voters) < 2 {
		return -1
	}

	result, err := e.router.Consensus(ctx, router.ConsensusQuery{
		Prompt:   "Reply with JSON {\"answer\": \"approve\"} or {\"answer\": \"reject\"} for this change:\n\n" + output,
		Models:   voters,
		Timeout:  e.cfg.Timeouts.ConsensusQuery,
		TieBreak: router.TieBreakPriority,
	})
	if err != nil {
		return -1
	}
	x.consensus = result

	for _, v := range result.Votes {
		e.store.Emit(x.runID, telemetry.KindConsensusVoted, map[string]any{ //nolint:errcheck
			"model":   v.Model.Ref(),
			"verdict": v.Verdict,
		})
	}

	if result.WinningVerdict == "" {
		return -1
	}
	score := result.AgreementScore * 100
	if result.WinningVerdict == "reject" {
		score = (1 - result.AgreementScore) * 100
	}
	return score
}

// voters collects the review electorate: the routed tier's models topped up
// from the fallback tier, deduplicated.
func (x *runExecution) voters() []provider.ModelDescriptor {
	e := x.executor
	seen := make(map[string]bool)
	var out []provider.ModelDescriptor
	for _, tier := range []string{x.route.Tier, router.TierFallback} {
		for _, m := range e.router.Models(tier) {
			if seen[m.Ref()] {
				continue
			}
			seen[m.Ref()] = true
			out = append(out, m)
		}
	}
	return out
}

// countTestFiles counts changed paths that look like test files.
func countTestFiles(paths []string) int {
	n := 0
	for _, p := range paths {
		base := filepath.Base(p)
		if strings.Contains(base, "_test.") || strings.HasPrefix(base, "test_") ||
			strings.Contains(filepath.ToSlash(p), "/tests/") {
			n++
		}
	}
	return n
}
