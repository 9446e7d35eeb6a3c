package models

// TestSignals summarizes test execution facts collected after a run.
type TestSignals struct {
	Total    int     `json:"total"`
	Failed   int     `json:"failed"`
	Coverage float64 `json:"coverage"` // percentage, 0-100
}

// FailureRate returns the fraction of tests that failed, in [0,1].
// Returns 0 when no tests ran.
func (t TestSignals) FailureRate() float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(t.Failed) / float64(t.Total)
}

// AllPassed reports whether at least one test ran and none failed.
func (t TestSignals) AllPassed() bool {
	return t.Total > 0 && t.Failed == 0
}

// SecuritySignals counts security findings by the severities that drive caps.
type SecuritySignals struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
}

// Clean reports whether no critical or high findings were recorded.
func (s SecuritySignals) Clean() bool {
	return s.Critical == 0 && s.High == 0
}

// Signals are deterministic facts derived from the environment after an
// execution. The scorer consumes them for caps and bonuses; they are
// persisted verbatim as signals.json in the run's evidence directory.
type Signals struct {
	Tests         TestSignals     `json:"tests"`
	LintClean     bool            `json:"lint_clean"`
	TypecheckPass bool            `json:"typecheck_pass"`
	BuildPass     bool            `json:"build_pass"`
	Security      SecuritySignals `json:"security"`
	FilesChanged  int             `json:"files_changed"`
	TestsChanged  int             `json:"tests_changed"`
}

// HasArtifacts reports whether the execution produced any observable output:
// changed files or executed tests. Requires-evidence commands fail without it.
func (s Signals) HasArtifacts() bool {
	return s.FilesChanged > 0 || s.Tests.Total > 0
}
