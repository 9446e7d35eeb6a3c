package models

import "time"

// TerminationReason enumerates why the agentic loop stopped.
type TerminationReason string

// Loop termination reasons. Termination is a normal enumerated outcome, not
// an error; errors are reserved for genuine programming faults.
const (
	TerminationQualityMet              TerminationReason = "QUALITY_MET"
	TerminationMaxIterations           TerminationReason = "MAX_ITERATIONS"
	TerminationInsufficientImprovement TerminationReason = "INSUFFICIENT_IMPROVEMENT"
	TerminationOscillation             TerminationReason = "OSCILLATION"
	TerminationStagnation              TerminationReason = "STAGNATION"
	TerminationTimeout                 TerminationReason = "TIMEOUT"
	TerminationError                   TerminationReason = "ERROR"
	TerminationHumanEscalation         TerminationReason = "HUMAN_ESCALATION"
)

// FeedbackPacket is appended to the improver's context between iterations.
// It never replaces the original task prompt.
type FeedbackPacket struct {
	Iteration          int                   `json:"iteration"`
	CurrentScore       float64               `json:"current_score"`
	DimensionScores    map[Dimension]float64 `json:"dimension_scores"`
	ImprovementsNeeded []Improvement         `json:"improvements_needed"`
	NewFindings        []Finding             `json:"new_findings"`
}

// IterationRecord captures one pass through the agentic loop.
type IterationRecord struct {
	Index             int               `json:"index"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
	AgentID           string            `json:"agent_id"`
	FeedbackIn        *FeedbackPacket   `json:"feedback_in,omitempty"`
	OutputDigest      string            `json:"output_digest"`
	Assessment        QualityAssessment `json:"assessment"`
	Signals           Signals           `json:"signals"`
	Degraded          bool              `json:"degraded,omitempty"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
}

// LoopResult is the agentic loop's terminal state.
type LoopResult struct {
	Best         *IterationRecord  `json:"best_record"`
	History      []IterationRecord `json:"history"`
	TerminatedBy TerminationReason `json:"terminated_by"`
}

// IterationsUsed returns how many iterations actually ran.
func (lr LoopResult) IterationsUsed() int {
	return len(lr.History)
}
