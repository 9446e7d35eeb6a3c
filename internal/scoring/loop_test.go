package scoring

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superclaude/engine/internal/models"
)

// scriptedImprover returns outcomes whose signals produce predetermined
// score levels, one per iteration.
type scriptedImprover struct {
	outcomes []IterationOutcome
	errs     []error
	calls    int
	feedback []*models.FeedbackPacket
}

func (s *scriptedImprover) Improve(ctx context.Context, feedback *models.FeedbackPacket) (IterationOutcome, error) {
	s.feedback = append(s.feedback, feedback)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return IterationOutcome{}, s.errs[i]
	}
	if i >= len(s.outcomes) {
		return IterationOutcome{}, errors.New("script exhausted")
	}
	return s.outcomes[i], nil
}

// outcomeScoring builds an outcome that assesses close to the wanted level:
// "high" is a clean run, "low" a broken one.
func cleanOutcome() IterationOutcome {
	return IterationOutcome{
		AgentID:        "backend-architect",
		Signals:        cleanSignals(),
		ExternalReview: 95,
		Output:         "done",
	}
}

func brokenOutcome() IterationOutcome {
	return IterationOutcome{
		AgentID: "backend-architect",
		Signals: models.Signals{
			Tests:     models.TestSignals{Total: 10, Failed: 6},
			BuildPass: true,
		},
		ExternalReview: -1,
		Output:         "attempt",
	}
}

// swingOutcome builds a mid-band outcome whose score moves with the
// external review value and trips no caps, so alternating reviews produce
// a genuine oscillation pattern.
func swingOutcome(review float64) IterationOutcome {
	return IterationOutcome{
		AgentID: "backend-architect",
		Signals: models.Signals{
			Tests:     models.TestSignals{Total: 10, Failed: 2},
			BuildPass: true,
		},
		Findings: []models.Finding{
			{Stage: "performance", Severity: models.SeverityCritical, Message: "hot loop"},
			{Stage: "performance", Severity: models.SeverityHigh, Message: "large allocation"},
		},
		ExternalReview: review,
		Output:         fmt.Sprintf("attempt reviewed at %.0f", review),
	}
}

func TestLoopRun(t *testing.T) {
	loop := NewLoop(NewScorer(), nil)

	t.Run("quality met on first iteration", func(t *testing.T) {
		imp := &scriptedImprover{outcomes: []IterationOutcome{cleanOutcome()}}
		result, err := loop.Run(context.Background(), "run-1", imp, LoopConfig{MaxIterations: 3})
		require.NoError(t, err)

		assert.Equal(t, models.TerminationQualityMet, result.TerminatedBy)
		assert.Equal(t, 1, result.IterationsUsed())
		assert.Nil(t, imp.feedback[0], "first iteration gets no feedback")
		require.NotNil(t, result.Best)
		assert.GreaterOrEqual(t, result.Best.Assessment.FinalScore, 90.0)
	})

	t.Run("max iterations terminates", func(t *testing.T) {
		imp := &scriptedImprover{outcomes: []IterationOutcome{brokenOutcome(), brokenOutcome()}}
		result, err := loop.Run(context.Background(), "run-1", imp, LoopConfig{MaxIterations: 2})
		require.NoError(t, err)

		assert.Equal(t, models.TerminationMaxIterations, result.TerminatedBy)
		assert.Equal(t, 2, result.IterationsUsed())
	})

	t.Run("single iteration budget", func(t *testing.T) {
		imp := &scriptedImprover{outcomes: []IterationOutcome{brokenOutcome()}}
		result, err := loop.Run(context.Background(), "run-1", imp, LoopConfig{MaxIterations: 1})
		require.NoError(t, err)

		assert.Equal(t, models.TerminationMaxIterations, result.TerminatedBy)
		assert.Equal(t, 1, result.IterationsUsed())
	})

	t.Run("flat scores stagnate", func(t *testing.T) {
		imp := &scriptedImprover{outcomes: []IterationOutcome{brokenOutcome(), brokenOutcome(), brokenOutcome()}}
		result, err := loop.Run(context.Background(), "run-1", imp, LoopConfig{MaxIterations: 5})
		require.NoError(t, err)

		assert.Equal(t, models.TerminationStagnation, result.TerminatedBy)
		assert.Equal(t, 3, result.IterationsUsed())
	})

	t.Run("swinging scores oscillate", func(t *testing.T) {
		imp := &scriptedImprover{outcomes: []IterationOutcome{
			swingOutcome(0), swingOutcome(60), swingOutcome(0), swingOutcome(60),
		}}
		result, err := loop.Run(context.Background(), "run-1", imp, LoopConfig{MaxIterations: 5})
		require.NoError(t, err)

		assert.Equal(t, models.TerminationOscillation, result.TerminatedBy)
		assert.Equal(t, 4, result.IterationsUsed())
		require.NotNil(t, result.Best)
		assert.Equal(t, 2, result.Best.Index, "best record is the first high swing")
		assert.InDelta(t, 86.5, result.Best.Assessment.FinalScore, 0.1)
	})

	t.Run("budget clamps to hard ceiling", func(t *testing.T) {
		cfg := LoopConfig{MaxIterations: 50}.normalized()
		assert.Equal(t, models.HardMaxIterations, cfg.MaxIterations)
	})

	t.Run("improver error terminates with ERROR", func(t *testing.T) {
		imp := &scriptedImprover{errs: []error{errors.New("delegation failed")}}
		result, err := loop.Run(context.Background(), "run-1", imp, LoopConfig{MaxIterations: 3})
		require.NoError(t, err)

		assert.Equal(t, models.TerminationError, result.TerminatedBy)
		assert.Equal(t, 1, result.IterationsUsed())
	})

	t.Run("deadline in the past times out", func(t *testing.T) {
		// The broken outcome improves enough between iterations to reach
		// the deadline branch; simpler to assert the decide order directly.
		reason := decide([]float64{50, 60}, 2, LoopConfig{
			MaxIterations: 5,
			Target:        QualityTarget,
			Deadline:      time.Now().Add(-time.Minute),
		})
		assert.Equal(t, models.TerminationTimeout, reason)
	})

	t.Run("feedback packet carries score and improvements", func(t *testing.T) {
		imp := &scriptedImprover{outcomes: []IterationOutcome{brokenOutcome(), cleanOutcome()}}
		result, err := loop.Run(context.Background(), "run-1", imp, LoopConfig{MaxIterations: 5})
		require.NoError(t, err)
		assert.Equal(t, models.TerminationQualityMet, result.TerminatedBy)

		require.Len(t, imp.feedback, 2)
		packet := imp.feedback[1]
		require.NotNil(t, packet)
		assert.Equal(t, 1, packet.Iteration)
		assert.NotEmpty(t, packet.ImprovementsNeeded)
		assert.Greater(t, packet.CurrentScore, 0.0)
	})
}

func TestOscillation(t *testing.T) {
	assert.True(t, oscillating([]float64{60, 72, 64, 73}), "swings larger than delta with alternating sign")
	assert.True(t, oscillating([]float64{90, 50, 60, 50, 60}), "window looks at the last three deltas")
	assert.False(t, oscillating([]float64{50, 60, 70, 80}), "monotonic rise is not oscillation")
	assert.False(t, oscillating([]float64{50, 51, 50, 51}), "small swings are stagnation territory")
	assert.False(t, oscillating([]float64{50, 60, 50}), "window not filled yet")
}

func TestStagnation(t *testing.T) {
	assert.True(t, stagnating([]float64{50, 51, 50.5}))
	assert.True(t, stagnating([]float64{70, 70, 70}))
	assert.False(t, stagnating([]float64{50, 60, 70}))
	assert.False(t, stagnating([]float64{50, 51}), "window not filled yet")
}

func TestDecideOrder(t *testing.T) {
	cfg := LoopConfig{MaxIterations: 5, Target: QualityTarget}

	assert.Equal(t, models.TerminationQualityMet, decide([]float64{95}, 1, cfg))
	assert.Equal(t, models.TerminationMaxIterations, decide([]float64{50, 60, 70, 75, 80}, 5, cfg))
	assert.Equal(t, models.TerminationInsufficientImprovement, decide([]float64{50, 58, 60}, 3, cfg))
	assert.Equal(t, models.TerminationReason(""), decide([]float64{50, 52}, 2, cfg), "small first step waits for the detector window")
	assert.Equal(t, models.TerminationReason(""), decide([]float64{50, 60}, 2, cfg), "healthy improvement continues")
	assert.Equal(t, models.TerminationQualityMet, decide([]float64{50, 92}, 2, cfg), "target beats budget check")
}

func TestDecideOscillationSequence(t *testing.T) {
	cfg := LoopConfig{MaxIterations: 5, Target: QualityTarget}

	var scores []float64
	var reasons []models.TerminationReason
	for i, s := range []float64{60, 72, 64, 73} {
		scores = append(scores, s)
		reasons = append(reasons, decide(scores, i+1, cfg))
	}
	assert.Equal(t, []models.TerminationReason{"", "", "", models.TerminationOscillation}, reasons,
		"the downswing at iteration 3 keeps the loop alive for the detector")
}
