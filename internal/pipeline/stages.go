package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/superclaude/engine/internal/models"
)

// syntaxStage runs the configured compile/vet hook. Failure is fatal: there
// is no point linting or testing code that does not parse.
type syntaxStage struct{}

func (s *syntaxStage) Name() string         { return StageSyntax }
func (s *syntaxStage) Required() bool       { return true }
func (s *syntaxStage) FatalOnFailure() bool { return true }

func (s *syntaxStage) Run(ctx context.Context, in StageInput) (models.StageResult, error) {
	return runHookStage(ctx, in, StageSyntax, in.Hooks.Syntax, models.SeverityCritical, true)
}

// styleStage runs the lint hook. Optional; findings are medium at worst.
type styleStage struct{}

func (s *styleStage) Name() string         { return StageStyle }
func (s *styleStage) Required() bool       { return false }
func (s *styleStage) FatalOnFailure() bool { return false }

func (s *styleStage) Run(ctx context.Context, in StageInput) (models.StageResult, error) {
	return runHookStage(ctx, in, StageStyle, in.Hooks.Lint, models.SeverityMedium, false)
}

// runHookStage is the shared shape of tool-backed stages: run the hook,
// pass on exit 0, otherwise emit one finding carrying the tool output.
func runHookStage(ctx context.Context, in StageInput, stage, hook string, failSeverity models.Severity, fatalOnFail bool) (models.StageResult, error) {
	start := time.Now()
	result := models.StageResult{Stage: stage, Passed: true}

	if hook == "" {
		result.Findings = append(result.Findings, models.Finding{
			Stage: stage, Severity: models.SeverityInfo,
			Message: "no tool configured, stage passed vacuously",
		})
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	toolCtx, cancel := context.WithTimeout(ctx, in.timeout())
	defer cancel()
	out, err := runTool(toolCtx, in.Dir, hook)
	if err != nil {
		return result, fmt.Errorf("%s tool: %w", stage, err)
	}

	switch {
	case out.TimedOut:
		result.Passed = false
		result.Findings = append(result.Findings, models.Finding{
			Stage: stage, Severity: failSeverity, Fatal: fatalOnFail,
			Message: fmt.Sprintf("%s tool timed out after %s", stage, in.timeout()),
		})
	case out.ExitCode != 0:
		result.Passed = false
		result.Findings = append(result.Findings, models.Finding{
			Stage: stage, Severity: failSeverity, Fatal: fatalOnFail,
			Message: fmt.Sprintf("%s failed: %s", stage, firstLines(out.combined(), 10)),
		})
	}
	result.FatalEncountered = fatalOnFail && !result.Passed
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

// testsStage runs the test hook and parses pass/fail counts and coverage.
type testsStage struct{}

func (s *testsStage) Name() string         { return StageTests }
func (s *testsStage) Required() bool       { return true }
func (s *testsStage) FatalOnFailure() bool { return false }

var (
	goTestFailRe   = regexp.MustCompile(`(?m)^--- FAIL: `)
	goTestPassRe   = regexp.MustCompile(`(?m)^--- PASS: `)
	coverageRe     = regexp.MustCompile(`coverage:\s+(\d+(?:\.\d+)?)%`)
	summaryCountRe = regexp.MustCompile(`(\d+)\s+passed.*?(\d+)\s+failed`)
)

func (s *testsStage) Run(ctx context.Context, in StageInput) (models.StageResult, error) {
	start := time.Now()
	result := models.StageResult{Stage: StageTests, Passed: true}

	if in.Hooks.Tests == "" {
		if in.Expectations.ExpectsTests {
			result.Passed = false
			result.Findings = append(result.Findings, models.Finding{
				Stage: StageTests, Severity: models.SeverityHigh,
				Message: "command expects tests but no test runner is configured",
			})
		}
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	toolCtx, cancel := context.WithTimeout(ctx, in.timeout())
	defer cancel()
	out, err := runTool(toolCtx, in.Dir, in.Hooks.Tests)
	if err != nil {
		return result, fmt.Errorf("test runner: %w", err)
	}

	signals := parseTestOutput(out.combined())
	result.Tests = &signals

	switch {
	case out.TimedOut:
		result.Passed = false
		result.Findings = append(result.Findings, models.Finding{
			Stage: StageTests, Severity: models.SeverityHigh,
			Message: "test runner timed out",
		})
	case out.ExitCode != 0 || signals.Failed > 0:
		result.Passed = false
		result.Findings = append(result.Findings, models.Finding{
			Stage: StageTests, Severity: models.SeverityHigh,
			Message: fmt.Sprintf("%d of %d tests failed: %s", signals.Failed, signals.Total, firstLines(out.combined(), 10)),
		})
	}
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

// parseTestOutput extracts counts from go test verbose output or a generic
// "N passed, M failed" summary line.
func parseTestOutput(output string) models.TestSignals {
	var signals models.TestSignals

	passed := len(goTestPassRe.FindAllString(output, -1))
	failed := len(goTestFailRe.FindAllString(output, -1))
	if passed+failed > 0 {
		signals.Total = passed + failed
		signals.Failed = failed
	} else if m := summaryCountRe.FindStringSubmatch(output); m != nil {
		p, _ := strconv.Atoi(m[1])
		f, _ := strconv.Atoi(m[2])
		signals.Total = p + f
		signals.Failed = f
	}

	if m := coverageRe.FindStringSubmatch(output); m != nil {
		if cov, err := strconv.ParseFloat(m[1], 64); err == nil {
			signals.Coverage = cov
		}
	}
	return signals
}

// performanceStage is an optional heuristic pass: it flags very large
// changed files and suspicious allocation patterns inside loops. Advisory
// only.
type performanceStage struct{}

func (s *performanceStage) Name() string         { return StagePerformance }
func (s *performanceStage) Required() bool       { return false }
func (s *performanceStage) FatalOnFailure() bool { return false }

const largeFileBytes = 512 * 1024

var hotLoopRe = regexp.MustCompile(`for\s.*\{[^}]*(?:append\([^)]*\)|fmt\.Sprintf|regexp\.MustCompile)`)

func (s *performanceStage) Run(ctx context.Context, in StageInput) (models.StageResult, error) {
	start := time.Now()
	result := models.StageResult{Stage: StagePerformance, Passed: true}

	for _, rel := range in.ChangedFiles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		path := filepath.Join(in.Dir, rel)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() > largeFileBytes {
			result.Findings = append(result.Findings, models.Finding{
				Stage: StagePerformance, Severity: models.SeverityLow,
				Message:  fmt.Sprintf("large file (%d KB), consider splitting", info.Size()/1024),
				Location: rel,
			})
		}
		if info.Size() < largeFileBytes && isSourceFile(rel) {
			data, err := os.ReadFile(path)
			if err == nil && hotLoopRe.Match(data) {
				result.Findings = append(result.Findings, models.Finding{
					Stage: StagePerformance, Severity: models.SeverityInfo,
					Message:  "possible repeated allocation or compile inside loop",
					Location: rel,
				})
			}
		}
	}
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func isSourceFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go", ".py", ".js", ".ts", ".java", ".rb", ".rs", ".c", ".cpp":
		return true
	}
	return false
}
