package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/superclaude/engine/internal/models"
)

// secretPatterns match credentials that must never land in a diff.
// Critical findings here are fatal for the pipeline.
var secretPatterns = []struct {
	name     string
	re       *regexp.Regexp
	severity models.Severity
}{
	{"aws access key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`), models.SeverityCritical},
	{"private key block", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`), models.SeverityCritical},
	{"api key assignment", regexp.MustCompile(`(?i)(api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*['"][A-Za-z0-9_\-]{16,}['"]`), models.SeverityCritical},
	{"bearer token", regexp.MustCompile(`(?i)authorization:\s*bearer\s+[A-Za-z0-9_\-.]{20,}`), models.SeverityHigh},
	{"password assignment", regexp.MustCompile(`(?i)password\s*[:=]\s*['"][^'"]{8,}['"]`), models.SeverityHigh},
}

// dangerousPatterns flag risky constructs worth a human look.
var dangerousPatterns = []struct {
	name     string
	re       *regexp.Regexp
	severity models.Severity
}{
	{"shell injection risk", regexp.MustCompile(`(?i)(os\.system|subprocess\.call|exec\.Command)\([^)]*\+`), models.SeverityHigh},
	{"eval of dynamic input", regexp.MustCompile(`\beval\s*\(`), models.SeverityHigh},
	{"recursive force remove", regexp.MustCompile(`rm\s+-rf\s+[/~]`), models.SeverityHigh},
	{"insecure tls", regexp.MustCompile(`InsecureSkipVerify:\s*true`), models.SeverityMedium},
}

type securityStage struct{}

func (s *securityStage) Name() string         { return StageSecurity }
func (s *securityStage) Required() bool       { return true }
func (s *securityStage) FatalOnFailure() bool { return true }

// Run scans the changed files for secrets and dangerous patterns, then runs
// the optional security tool hook. Critical findings are fatal.
func (s *securityStage) Run(ctx context.Context, in StageInput) (models.StageResult, error) {
	start := time.Now()
	result := models.StageResult{Stage: StageSecurity, Passed: true}

	for _, rel := range in.ChangedFiles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		findings, err := scanFile(in.Dir, rel)
		if err != nil {
			continue // unreadable file is not a security finding
		}
		result.Findings = append(result.Findings, findings...)
	}

	if in.Hooks.Security != "" {
		toolCtx, cancel := context.WithTimeout(ctx, in.timeout())
		out, err := runTool(toolCtx, in.Dir, in.Hooks.Security)
		cancel()
		if err != nil {
			return result, fmt.Errorf("security tool: %w", err)
		}
		if out.TimedOut {
			result.Findings = append(result.Findings, models.Finding{
				Stage: StageSecurity, Severity: models.SeverityHigh,
				Message: "security tool timed out",
			})
		} else if out.ExitCode != 0 {
			result.Findings = append(result.Findings, models.Finding{
				Stage: StageSecurity, Severity: models.SeverityHigh,
				Message: "security tool reported issues: " + firstLines(out.combined(), 5),
			})
		}
	}

	for i, f := range result.Findings {
		if f.Severity == models.SeverityCritical {
			result.Findings[i].Fatal = true
			result.FatalEncountered = true
		}
	}
	result.Passed = result.CountSeverity(models.SeverityCritical) == 0 && result.CountSeverity(models.SeverityHigh) == 0
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

// scanFile applies the pattern sets to one file, line by line.
func scanFile(dir, rel string) ([]models.Finding, error) {
	data, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		return nil, err
	}
	// Binary files are skipped.
	if strings.ContainsRune(string(data[:min(len(data), 1024)]), 0) {
		return nil, nil
	}

	var findings []models.Finding
	lines := strings.Split(string(data), "\n")
	for lineNo, line := range lines {
		for _, p := range secretPatterns {
			if p.re.MatchString(line) {
				findings = append(findings, models.Finding{
					Stage:    StageSecurity,
					Severity: p.severity,
					Message:  "possible " + p.name,
					Location: fmt.Sprintf("%s:%d", rel, lineNo+1),
				})
			}
		}
		for _, p := range dangerousPatterns {
			if p.re.MatchString(line) {
				findings = append(findings, models.Finding{
					Stage:    StageSecurity,
					Severity: p.severity,
					Message:  p.name,
					Location: fmt.Sprintf("%s:%d", rel, lineNo+1),
				})
			}
		}
	}
	return findings, nil
}
