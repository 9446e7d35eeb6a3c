package models

// Dimension names one of the nine quality dimensions.
type Dimension string

// The nine quality dimensions scored per assessment.
const (
	DimCorrectness     Dimension = "correctness"
	DimCompleteness    Dimension = "completeness"
	DimPerformance     Dimension = "performance"
	DimMaintainability Dimension = "maintainability"
	DimSecurity        Dimension = "security"
	DimScalability     Dimension = "scalability"
	DimTestability     Dimension = "testability"
	DimExternalReview  Dimension = "external_review"
	DimUsability       Dimension = "usability"
)

// AllDimensions lists every dimension in stable order.
func AllDimensions() []Dimension {
	return []Dimension{
		DimCorrectness,
		DimCompleteness,
		DimPerformance,
		DimMaintainability,
		DimSecurity,
		DimScalability,
		DimTestability,
		DimExternalReview,
		DimUsability,
	}
}

// Band is the coarse quality classification of an assessment.
type Band string

// Quality bands by final score.
const (
	BandProductionReady Band = "production_ready" // >= 90
	BandNeedsAttention  Band = "needs_attention"  // 75-89
	BandIterate         Band = "iterate"          // < 75
)

// BandForScore maps a final score to its band.
func BandForScore(score float64) Band {
	switch {
	case score >= 90:
		return BandProductionReady
	case score >= 75:
		return BandNeedsAttention
	default:
		return BandIterate
	}
}

// Improvement describes one dimension scoring under its threshold, with a
// deterministic suggestion the feedback packet can carry forward.
type Improvement struct {
	Dimension Dimension `json:"dimension"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	Hint      string    `json:"hint,omitempty"`
}

// QualityAssessment is the scorer's full output for one iteration.
type QualityAssessment struct {
	ScoresByDimension  map[Dimension]float64 `json:"scores_by_dimension"`
	WeightedScore      float64               `json:"weighted_score"`
	CapApplied         float64               `json:"cap_applied,omitempty"` // 0 means no cap
	CapReason          string                `json:"cap_reason,omitempty"`
	BonusApplied       float64               `json:"bonus_applied"`
	FinalScore         float64               `json:"final_score"`
	Band               Band                  `json:"band"`
	ImprovementsNeeded []Improvement         `json:"improvements_needed"`
	Degraded           bool                  `json:"degraded,omitempty"` // external review unavailable
}

// Capped reports whether a deterministic cap limited the final score.
func (qa QualityAssessment) Capped() bool {
	return qa.CapApplied > 0
}
