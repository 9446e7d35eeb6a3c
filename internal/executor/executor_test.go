package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superclaude/engine/internal/agent"
	"github.com/superclaude/engine/internal/command"
	"github.com/superclaude/engine/internal/config"
	"github.com/superclaude/engine/internal/models"
	"github.com/superclaude/engine/internal/pipeline"
	"github.com/superclaude/engine/internal/provider"
	"github.com/superclaude/engine/internal/router"
	"github.com/superclaude/engine/internal/telemetry"
)

const analyzeDef = `---
name: analyze
category: analysis
description: Static analysis of the target
complexity: low
flags:
  - name: consensus
    type: bool
  - name: agent
    type: string
  - name: loop
    type: bool
  - name: iterations
    type: int
---

Playbook body.
`

const implementDef = `---
name: implement
category: engineering
description: Implement the requested change
complexity: medium
requires-evidence: true
flags:
  - name: no-merge
    type: bool
expectations:
  file-changes: true
  tests: true
---

Playbook body.
`

type fakeAdapter struct {
	name   string
	text   string
	onChat func()
}

func (f *fakeAdapter) Name() string    { return f.name }
func (f *fakeAdapter) Available() bool { return true }

func (f *fakeAdapter) Chat(ctx context.Context, d provider.ModelDescriptor, prompt string, p provider.Params) (*provider.ChatResponse, error) {
	if f.onChat != nil {
		f.onChat()
	}
	return &provider.ChatResponse{Text: f.text, StopReason: "stop"}, nil
}

// offlineAdapter mimics a provider with no usable credentials.
type offlineAdapter struct {
	name string
}

func (o *offlineAdapter) Name() string    { return o.name }
func (o *offlineAdapter) Available() bool { return false }

func (o *offlineAdapter) Chat(ctx context.Context, d provider.ModelDescriptor, prompt string, p provider.Params) (*provider.ChatResponse, error) {
	return nil, &provider.ProviderUnavailableError{Provider: o.name, Reason: "no api key"}
}

type stubStage struct {
	name   string
	result models.StageResult
}

func (s *stubStage) Name() string         { return s.name }
func (s *stubStage) Required() bool       { return s.name != "style" && s.name != "performance" }
func (s *stubStage) FatalOnFailure() bool { return s.name == "syntax" || s.name == "security" }

func (s *stubStage) Run(ctx context.Context, in pipeline.StageInput) (models.StageResult, error) {
	r := s.result
	r.Stage = s.name
	return r, nil
}

// passingStages builds a pipeline where everything succeeds and the tests
// stage reports the given counts.
func passingStages(tests models.TestSignals) []pipeline.Stage {
	pass := models.StageResult{Passed: true}
	testsResult := models.StageResult{Passed: tests.Failed == 0, Tests: &tests}
	return []pipeline.Stage{
		&stubStage{name: pipeline.StageSyntax, result: pass},
		&stubStage{name: pipeline.StageSecurity, result: pass},
		&stubStage{name: pipeline.StageStyle, result: pass},
		&stubStage{name: pipeline.StageTests, result: testsResult},
		&stubStage{name: pipeline.StagePerformance, result: pass},
	}
}

type harness struct {
	exec       *Executor
	sink       *telemetry.QueueSink
	metricsDir string
}

func newHarness(t *testing.T, stages []pipeline.Stage, adapterText string, onChat func()) *harness {
	t.Helper()
	registry := provider.Registry{}
	for _, name := range []string{"openai", "anthropic", "google", "xai"} {
		registry[name] = &fakeAdapter{name: name, text: adapterText, onChat: onChat}
	}
	return newHarnessWith(t, stages, registry)
}

func newHarnessWith(t *testing.T, stages []pipeline.Stage, registry provider.Registry) *harness {
	t.Helper()

	cmdDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cmdDir, "analyze.md"), []byte(analyzeDef), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cmdDir, "implement.md"), []byte(implementDef), 0o644))

	agentsDir := t.TempDir()
	general := "---\nname: general-purpose\ncategory: general\ndescription: General-purpose agent\n---\n\nBody.\n"
	require.NoError(t, os.WriteFile(filepath.Join(agentsDir, "general-purpose.md"), []byte(general), 0o644))

	r, err := router.New(registry, nil)
	require.NoError(t, err)

	sink := telemetry.NewQueueSink()
	store := telemetry.NewStore(0, sink)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck

	cfg := config.DefaultConfig()
	cfg.MetricsDir = t.TempDir()

	h := &harness{sink: sink, metricsDir: cfg.MetricsDir}
	h.exec = New(cfg, Deps{
		Commands: command.NewRegistry(cmdDir),
		Agents:   agent.NewRegistry(agentsDir),
		Router:   r,
		Store:    store,
		Stages:   stages,
	})
	return h
}

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestExecuteParseError(t *testing.T) {
	h := newHarness(t, passingStages(models.TestSignals{}), "done", nil)

	t.Run("unknown command produces no run record", func(t *testing.T) {
		_, err := h.exec.Execute(context.Background(), Request{CommandLine: "/sc:nope", WorkingDir: t.TempDir()})
		var parseErr *command.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Empty(t, h.sink.Events())
	})

	t.Run("malformed head is rejected", func(t *testing.T) {
		_, err := h.exec.Execute(context.Background(), Request{CommandLine: "analyze stuff", WorkingDir: t.TempDir()})
		var parseErr *command.ParseError
		require.ErrorAs(t, err, &parseErr)
	})
}

func TestExecuteHappyPath(t *testing.T) {
	h := newHarness(t, passingStages(models.TestSignals{Total: 10, Failed: 0, Coverage: 85}), "done", nil)

	res, err := h.exec.Execute(context.Background(), Request{
		CommandLine: "/sc:analyze improve the parser",
		WorkingDir:  t.TempDir(),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeOK, res.Outcome)
	assert.Equal(t, 0, res.Outcome.ExitCode())
	assert.Equal(t, 100.0, res.Assessment.FinalScore)
	assert.Equal(t, models.BandProductionReady, res.Assessment.Band)
	assert.Equal(t, 1, res.Loop.IterationsUsed())
	assert.Equal(t, models.TerminationQualityMet, res.Loop.TerminatedBy)

	kinds := h.sink.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, telemetry.KindRunStarted, kinds[0])
	assert.Equal(t, telemetry.KindRunFinished, kinds[len(kinds)-1])
	assert.Contains(t, kinds, telemetry.KindAgentSelected)
	assert.Contains(t, kinds, telemetry.KindModelSelected)
	assert.Contains(t, kinds, telemetry.KindIterationFinished)
	assert.Contains(t, kinds, telemetry.KindAssessmentFinal)

	finished := 0
	for _, kind := range kinds {
		if kind == telemetry.KindStageFinished {
			finished++
		}
	}
	assert.Equal(t, 5, finished, "one stage.finished per pipeline stage")

	assert.FileExists(t, filepath.Join(res.EvidencePath, telemetry.EvidenceCommandFile))
	assert.FileExists(t, filepath.Join(res.EvidencePath, telemetry.EvidenceSignalsFile))
	assert.FileExists(t, filepath.Join(res.EvidencePath, telemetry.EvidenceAssessmentFile))
	assert.FileExists(t, filepath.Join(res.EvidencePath, "record.json"))
}

func TestExecuteNeedsIteration(t *testing.T) {
	h := newHarness(t, passingStages(models.TestSignals{Total: 10, Failed: 6}), "done", nil)

	res, err := h.exec.Execute(context.Background(), Request{
		CommandLine: "/sc:analyze fix the failing suite",
		WorkingDir:  t.TempDir(),
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeNeedsIteration, res.Outcome)
	assert.Equal(t, 1, res.Outcome.ExitCode())
	assert.Equal(t, "test failure rate 60%", res.Assessment.CapReason)
	assert.Equal(t, 40.0, res.Assessment.FinalScore, "bonuses never lift past the cap")
	assert.Equal(t, models.BandIterate, res.Assessment.Band)
	assert.Equal(t, models.TerminationMaxIterations, res.Loop.TerminatedBy)
}

func TestExecuteConsensusReview(t *testing.T) {
	h := newHarness(t, passingStages(models.TestSignals{Total: 10, Failed: 0, Coverage: 85}), `{"answer": "approve"}`, nil)

	res, err := h.exec.Execute(context.Background(), Request{
		CommandLine: "/sc:analyze --consensus audit the auth flow",
		WorkingDir:  t.TempDir(),
	})
	require.NoError(t, err)

	require.NotNil(t, res.Consensus)
	assert.Equal(t, "approve", res.Consensus.WinningVerdict)
	assert.Equal(t, 1.0, res.Consensus.AgreementScore)
	assert.False(t, res.Assessment.Degraded)
	assert.Equal(t, 100.0, res.Assessment.ScoresByDimension[models.DimExternalReview])

	voted := 0
	for _, kind := range h.sink.Kinds() {
		if kind == telemetry.KindConsensusVoted {
			voted++
		}
	}
	assert.Equal(t, len(res.Consensus.Votes), voted)
	assert.FileExists(t, filepath.Join(res.EvidencePath, telemetry.EvidenceConsensusFile))
}

func TestExecuteUntrackedRepo(t *testing.T) {
	h := newHarness(t, passingStages(models.TestSignals{}), "done", nil)

	res, err := h.exec.Execute(context.Background(), Request{
		CommandLine: "/sc:implement add a feature",
		WorkingDir:  t.TempDir(),
	})
	var untracked *UntrackedRepoError
	require.ErrorAs(t, err, &untracked)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Equal(t, 2, res.Outcome.ExitCode())
}

func TestExecuteEvidenceMissing(t *testing.T) {
	repo := initRepo(t)
	h := newHarness(t, passingStages(models.TestSignals{}), "done", nil)

	res, err := h.exec.Execute(context.Background(), Request{
		CommandLine: "/sc:implement add a feature",
		WorkingDir:  repo,
	})
	var missing *EvidenceMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Equal(t, 0.0, res.Assessment.FinalScore)
	assert.Equal(t, models.BandIterate, res.Assessment.Band)
}

func TestExecuteOfflineDegrades(t *testing.T) {
	offline := provider.Registry{}
	for _, name := range []string{"openai", "anthropic", "google", "xai"} {
		offline[name] = &offlineAdapter{name: name}
	}

	t.Run("run completes degraded when no provider answers", func(t *testing.T) {
		h := newHarnessWith(t, passingStages(models.TestSignals{Total: 10, Failed: 0, Coverage: 85}), offline)

		res, err := h.exec.Execute(context.Background(), Request{
			CommandLine: "/sc:analyze improve the parser",
			WorkingDir:  t.TempDir(),
		})
		require.NoError(t, err)

		assert.Equal(t, models.OutcomeOKWithWarnings, res.Outcome)
		assert.Equal(t, 0, res.Outcome.ExitCode())
		assert.True(t, res.Assessment.Degraded)

		var selected map[string]any
		for _, ev := range h.sink.Events() {
			if ev.Kind == telemetry.KindModelSelected {
				selected = ev.Payload
			}
		}
		require.NotNil(t, selected)
		assert.Equal(t, true, selected["degraded"])
	})

	t.Run("evidence command asks for another pass instead of failing", func(t *testing.T) {
		repo := initRepo(t)
		h := newHarnessWith(t, passingStages(models.TestSignals{}), offline)

		res, err := h.exec.Execute(context.Background(), Request{
			CommandLine: "/sc:implement add a feature",
			WorkingDir:  repo,
		})
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeNeedsIteration, res.Outcome)
		assert.Equal(t, 1, res.Outcome.ExitCode())
	})
}

func TestExecuteMergeLandsChanges(t *testing.T) {
	repo := initRepo(t)

	var h *harness
	writeFeature := func() {
		matches, _ := filepath.Glob(filepath.Join(h.metricsDir, ".runs", "*", "worktree"))
		for _, wt := range matches {
			os.WriteFile(filepath.Join(wt, "feature.go"), []byte("package main\n\nfunc Feature() {}\n"), 0o644) //nolint:errcheck
		}
	}
	h = newHarness(t, passingStages(models.TestSignals{Total: 5, Failed: 0, Coverage: 90}), "done", writeFeature)

	res, err := h.exec.Execute(context.Background(), Request{
		CommandLine: "/sc:implement add the feature",
		WorkingDir:  repo,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeOK, res.Outcome)
	assert.Greater(t, res.Diff.TotalAdditions, 0)
	assert.FileExists(t, filepath.Join(repo, "feature.go"))
	assert.False(t, res.WorktreePreserved)
}

func TestExecuteForcedAgent(t *testing.T) {
	h := newHarness(t, passingStages(models.TestSignals{Total: 10, Failed: 0, Coverage: 85}), "done", nil)

	t.Run("unknown agent is a configuration error", func(t *testing.T) {
		res, err := h.exec.Execute(context.Background(), Request{
			CommandLine: "/sc:analyze --agent ghost do things",
			WorkingDir:  t.TempDir(),
		})
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
		assert.Equal(t, models.OutcomeFailed, res.Outcome)
	})

	t.Run("known agent is used verbatim", func(t *testing.T) {
		res, err := h.exec.Execute(context.Background(), Request{
			CommandLine: "/sc:analyze --agent general-purpose do things",
			WorkingDir:  t.TempDir(),
		})
		require.NoError(t, err)
		require.NotEmpty(t, res.Loop.History)
		assert.Equal(t, "general-purpose", res.Loop.History[0].AgentID)
	})
}
