package models

import "time"

// Outcome is the terminal classification of a run.
type Outcome string

// Run outcomes, mapped to CLI exit codes by the command surface.
const (
	OutcomeOK             Outcome = "ok"
	OutcomeOKWithWarnings Outcome = "ok_with_warnings"
	OutcomeNeedsIteration Outcome = "needs_iteration"
	OutcomeFailed         Outcome = "failed"
)

// ExitCode maps an outcome to the process exit status contract:
// 0 ok / ok_with_warnings, 1 needs_iteration, 2 failed.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeOK, OutcomeOKWithWarnings:
		return 0
	case OutcomeNeedsIteration:
		return 1
	default:
		return 2
	}
}

// Artifact references one file captured as run evidence.
type Artifact struct {
	Kind   string `json:"kind"` // diff, test-log, stage-report, ...
	Path   string `json:"path"`
	Digest string `json:"digest"` // sha256 hex
}

// EvidenceRecord is written exactly once at command completion and never
// mutated afterwards.
type EvidenceRecord struct {
	RunID      string            `json:"run_id"`
	Command    string            `json:"command"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Artifacts  []Artifact        `json:"artifacts"`
	Signals    Signals           `json:"signals"`
	Assessment QualityAssessment `json:"assessment"`
}
