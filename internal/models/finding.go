// Package models defines the shared record types exchanged between the
// engine's components: validation findings, post-execution signals, quality
// assessments, loop records, and evidence. All types are plain data with
// JSON tags; behavior lives in the owning components.
package models

import "fmt"

// Severity classifies how serious a validation finding is.
type Severity string

// Severity levels, ordered from least to most serious.
const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank maps severities to a comparable ordering.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is as severe or more severe than other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Valid reports whether s is a recognized severity level.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Finding is a single issue reported by a validation stage.
type Finding struct {
	Stage    string   `json:"stage"`
	Severity Severity `json:"severity"`
	Fatal    bool     `json:"fatal"`
	Message  string   `json:"message"`
	Location string   `json:"location,omitempty"`
}

// String renders a finding as a one-line summary for logs.
func (f Finding) String() string {
	if f.Location != "" {
		return fmt.Sprintf("[%s/%s] %s (%s)", f.Stage, f.Severity, f.Message, f.Location)
	}
	return fmt.Sprintf("[%s/%s] %s", f.Stage, f.Severity, f.Message)
}

// StageResult captures the outcome of one validation stage.
type StageResult struct {
	Stage            string    `json:"stage"`
	Passed           bool      `json:"passed"`
	FatalEncountered bool      `json:"fatal_encountered"`
	Skipped          bool      `json:"skipped,omitempty"`
	Findings         []Finding `json:"findings"`
	EvidenceRef      string    `json:"evidence_ref,omitempty"`
	DurationMS       int64     `json:"duration_ms"`

	// Tests carries the parsed counts when the stage ran a test suite.
	Tests *TestSignals `json:"tests,omitempty"`
}

// CountSeverity returns how many findings have exactly the given severity.
func (sr StageResult) CountSeverity(sev Severity) int {
	n := 0
	for _, f := range sr.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// MaxSeverity returns the most serious severity present, or SeverityInfo when
// the stage produced no findings.
func (sr StageResult) MaxSeverity() Severity {
	max := SeverityInfo
	for _, f := range sr.Findings {
		if f.Severity.AtLeast(max) {
			max = f.Severity
		}
	}
	return max
}
