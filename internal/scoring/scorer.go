// Package scoring computes quality assessments from deterministic signals
// and drives the agentic improvement loop.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/superclaude/engine/internal/models"
)

// QualityTarget is the score at which the loop stops iterating.
const QualityTarget = 90.0

// Deterministic caps. The final base score never exceeds the tightest
// applicable cap.
const (
	capCriticalSecurity = 30.0
	capHighSecurity     = 65.0
	capTestFailMajority = 40.0
	capTestFailSome     = 50.0
	capBuildFailure     = 45.0
)

// Bonus values, summed and clamped.
const (
	bonusCoverage    = 10.0
	bonusLintClean   = 5.0
	bonusTypecheck   = 5.0
	bonusAllTests    = 5.0
	bonusSecurity    = 5.0
	bonusClamp       = 25.0
	coverageBonusMin = 80.0
)

// defaultWeights is the dimension weight table. Weights sum to 1.0.
var defaultWeights = map[models.Dimension]float64{
	models.DimCorrectness:     0.25,
	models.DimCompleteness:    0.20,
	models.DimPerformance:     0.10,
	models.DimMaintainability: 0.10,
	models.DimSecurity:        0.10,
	models.DimScalability:     0.10,
	models.DimTestability:     0.10,
	models.DimExternalReview:  0.10,
	models.DimUsability:       0.05,
}

// defaultThreshold is the per-dimension floor below which an improvement is
// suggested.
const defaultThreshold = 70.0

// improvementHints map dimensions to actionable guidance.
var improvementHints = map[models.Dimension]string{
	models.DimCorrectness:     "fix failing tests and logic errors",
	models.DimCompleteness:    "cover the remaining acceptance criteria",
	models.DimPerformance:     "address flagged hot paths and large files",
	models.DimMaintainability: "reduce lint findings and simplify flagged code",
	models.DimSecurity:        "resolve security findings before anything else",
	models.DimScalability:     "revisit the flagged resource usage",
	models.DimTestability:     "add or extend tests for the changed code",
	models.DimExternalReview:  "address reviewer objections",
	models.DimUsability:       "improve naming and error messages",
}

// Input bundles everything one assessment needs.
type Input struct {
	Signals  models.Signals
	Findings []models.Finding
	// ExternalReview is the consensus reviewer's score in [0,100];
	// negative means unavailable.
	ExternalReview float64
	// Thresholds overrides per-dimension improvement floors.
	Thresholds map[models.Dimension]float64
}

// Scorer computes assessments with a fixed weight table.
type Scorer struct {
	weights map[models.Dimension]float64
}

// NewScorer builds a scorer with the default weight table.
func NewScorer() *Scorer {
	return &Scorer{weights: defaultWeights}
}

// Assess runs the full scoring algorithm: per-dimension heuristics,
// weighted base, caps, bonuses, band, improvements.
func (s *Scorer) Assess(in Input) models.QualityAssessment {
	scores := s.dimensionScores(in)

	weights := s.weights
	degraded := false
	if in.ExternalReview < 0 {
		weights = renormalizeWithout(weights, models.DimExternalReview)
		delete(scores, models.DimExternalReview)
		degraded = true
	}

	base := 0.0
	for dim, w := range weights {
		base += w * scores[dim]
	}

	capped, capReason := applyCaps(base, in.Signals)
	bonus := computeBonus(in.Signals)

	final := clamp(capped+bonus, 0, 100)
	// A triggered cap bounds the final score; bonuses fill up to it, never
	// past it.
	if capReason != "" && final > capped {
		final = capped
	}

	assessment := models.QualityAssessment{
		ScoresByDimension: scores,
		WeightedScore:     round1(base),
		BonusApplied:      bonus,
		FinalScore:        round1(final),
		Band:              models.BandForScore(final),
		Degraded:          degraded,
	}
	if capReason != "" {
		assessment.CapApplied = round1(capped)
		assessment.CapReason = capReason
	}
	assessment.ImprovementsNeeded = s.improvements(scores, in.Thresholds)
	return assessment
}

// dimensionScores derives each dimension from the evidence.
func (s *Scorer) dimensionScores(in Input) map[models.Dimension]float64 {
	sig := in.Signals
	scores := make(map[models.Dimension]float64, len(defaultWeights))

	// correctness: tests and build dominate.
	correctness := 100.0
	if !sig.BuildPass {
		correctness = 20
	} else if sig.Tests.Total > 0 {
		correctness = 100 * (1 - sig.Tests.FailureRate())
	}
	scores[models.DimCorrectness] = correctness

	// completeness: did the run produce what the command expected.
	completeness := 100.0
	if !sig.HasArtifacts() {
		completeness = 30
	}
	scores[models.DimCompleteness] = completeness

	scores[models.DimPerformance] = severityPenalty(in.Findings, "performance")
	scores[models.DimMaintainability] = severityPenalty(in.Findings, "style")

	security := 100.0
	security -= 40 * float64(sig.Security.Critical)
	security -= 15 * float64(sig.Security.High)
	scores[models.DimSecurity] = clamp(security, 0, 100)

	// scalability piggybacks on performance findings until it has its own
	// signal source.
	scores[models.DimScalability] = scores[models.DimPerformance]

	testability := 40.0
	if sig.TestsChanged > 0 {
		testability = 80
	}
	if sig.Tests.Coverage >= coverageBonusMin {
		testability = 100
	} else if sig.Tests.Coverage > 0 {
		testability = math.Max(testability, sig.Tests.Coverage)
	}
	scores[models.DimTestability] = testability

	if in.ExternalReview >= 0 {
		scores[models.DimExternalReview] = clamp(in.ExternalReview, 0, 100)
	}

	usability := 100.0
	if !sig.LintClean {
		usability = 70
	}
	scores[models.DimUsability] = usability

	for dim, v := range scores {
		scores[dim] = round1(v)
	}
	return scores
}

// severityPenalty scores a dimension from that stage's findings: start at
// 100 and subtract per severity.
func severityPenalty(findings []models.Finding, stage string) float64 {
	score := 100.0
	for _, f := range findings {
		if f.Stage != stage {
			continue
		}
		switch f.Severity {
		case models.SeverityCritical:
			score -= 40
		case models.SeverityHigh:
			score -= 20
		case models.SeverityMedium:
			score -= 10
		case models.SeverityLow:
			score -= 5
		case models.SeverityInfo:
			score -= 1
		}
	}
	return clamp(score, 0, 100)
}

// applyCaps returns the capped score and the reason for the tightest cap
// that fired, or ("", base) when none did.
func applyCaps(base float64, sig models.Signals) (float64, string) {
	capped := base
	reason := ""
	apply := func(cap float64, why string) {
		if base > cap && cap < capped {
			capped = cap
			reason = why
		}
	}

	if sig.Security.Critical > 0 {
		apply(capCriticalSecurity, "critical security findings")
	} else if sig.Security.High > 0 {
		apply(capHighSecurity, "high security findings")
	}

	rate := sig.Tests.FailureRate()
	if rate > 0.5 {
		apply(capTestFailMajority, fmt.Sprintf("test failure rate %.0f%%", rate*100))
	} else if rate > 0.2 {
		apply(capTestFailSome, fmt.Sprintf("test failure rate %.0f%%", rate*100))
	}

	if !sig.BuildPass {
		apply(capBuildFailure, "build failure")
	}
	return capped, reason
}

func computeBonus(sig models.Signals) float64 {
	bonus := 0.0
	if sig.Tests.Coverage >= coverageBonusMin {
		bonus += bonusCoverage
	}
	if sig.LintClean {
		bonus += bonusLintClean
	}
	if sig.TypecheckPass {
		bonus += bonusTypecheck
	}
	if sig.Tests.Total > 0 && sig.Tests.AllPassed() {
		bonus += bonusAllTests
	}
	if sig.Security.Clean() {
		bonus += bonusSecurity
	}
	if bonus > bonusClamp {
		bonus = bonusClamp
	}
	return bonus
}

// improvements lists dimensions scoring under their thresholds, most
// important dimension first.
func (s *Scorer) improvements(scores map[models.Dimension]float64, thresholds map[models.Dimension]float64) []models.Improvement {
	var out []models.Improvement
	for dim, score := range scores {
		threshold := defaultThreshold
		if t, ok := thresholds[dim]; ok {
			threshold = t
		}
		if score < threshold {
			out = append(out, models.Improvement{
				Dimension: dim,
				Score:     score,
				Threshold: threshold,
				Hint:      improvementHints[dim],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := s.weights[out[i].Dimension], s.weights[out[j].Dimension]
		if wi != wj {
			return wi > wj
		}
		return out[i].Dimension < out[j].Dimension
	})
	return out
}

// renormalizeWithout removes one dimension and scales the rest back to a
// unit sum.
func renormalizeWithout(weights map[models.Dimension]float64, drop models.Dimension) map[models.Dimension]float64 {
	total := 0.0
	for dim, w := range weights {
		if dim != drop {
			total += w
		}
	}
	out := make(map[models.Dimension]float64, len(weights)-1)
	for dim, w := range weights {
		if dim != drop {
			out[dim] = w / total
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
