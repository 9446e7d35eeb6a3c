package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/superclaude/engine/internal/logger"
	"github.com/superclaude/engine/internal/models"
)

// Loop tuning constants.
const (
	MinImprovement    = 5.0
	OscillationWindow = 3
	StagnationDelta   = 2.0
)

// Improver runs one iteration of actual work and reports what the
// environment looks like afterwards. feedback is nil on the first
// iteration.
type Improver interface {
	Improve(ctx context.Context, feedback *models.FeedbackPacket) (IterationOutcome, error)
}

// ImproverFunc adapts a function to the Improver interface.
type ImproverFunc func(ctx context.Context, feedback *models.FeedbackPacket) (IterationOutcome, error)

// Improve calls the wrapped function.
func (f ImproverFunc) Improve(ctx context.Context, feedback *models.FeedbackPacket) (IterationOutcome, error) {
	return f(ctx, feedback)
}

// IterationOutcome is what one improver pass produced.
type IterationOutcome struct {
	AgentID        string
	Signals        models.Signals
	Findings       []models.Finding
	Output         string
	ExternalReview float64 // negative when unavailable
	Degraded       bool
}

// LoopConfig bounds one loop run.
type LoopConfig struct {
	// MaxIterations is the user budget, clamped to HardMaxIterations.
	MaxIterations int
	// Target stops the loop once final_score reaches it.
	Target float64
	// Deadline is the wall-clock bound; zero means no deadline.
	Deadline time.Time
	// IterationTimeout bounds a single improver pass.
	IterationTimeout time.Duration
}

func (c LoopConfig) normalized() LoopConfig {
	c.MaxIterations = models.ClampIterations(c.MaxIterations)
	if c.Target <= 0 {
		c.Target = QualityTarget
	}
	if c.IterationTimeout <= 0 || c.IterationTimeout > models.MaxIterationTimeout {
		c.IterationTimeout = models.DefaultIterationTimeout
	}
	return c
}

// Loop drives the execute-score-decide cycle.
type Loop struct {
	scorer *Scorer
	log    logger.Logger
}

// NewLoop builds a loop around a scorer. A nil logger is replaced with the
// no-op one.
func NewLoop(scorer *Scorer, log logger.Logger) *Loop {
	if log == nil {
		log = &logger.NoOpLogger{}
	}
	return &Loop{scorer: scorer, log: log}
}

// Run iterates the improver until quality is met or a termination fires.
// Termination is a normal outcome: the error return is reserved for a nil
// improver and similar misuse.
func (l *Loop) Run(ctx context.Context, runID string, improver Improver, cfg LoopConfig) (models.LoopResult, error) {
	if improver == nil {
		return models.LoopResult{}, fmt.Errorf("nil improver")
	}
	cfg = cfg.normalized()

	result := models.LoopResult{}
	var scores []float64
	var feedback *models.FeedbackPacket
	var prevFindings []models.Finding

	for iteration := 1; ; iteration++ {
		rec := models.IterationRecord{Index: iteration, StartedAt: time.Now(), FeedbackIn: feedback}

		itCtx, cancel := context.WithTimeout(ctx, cfg.IterationTimeout)
		outcome, err := improver.Improve(itCtx, feedback)
		cancel()

		if err != nil {
			reason := models.TerminationError
			if itCtx.Err() == context.DeadlineExceeded || ctx.Err() == context.DeadlineExceeded {
				reason = models.TerminationTimeout
			}
			rec.FinishedAt = time.Now()
			rec.TerminationReason = reason
			result.History = append(result.History, rec)
			result.TerminatedBy = reason
			return result, nil
		}

		rec.AgentID = outcome.AgentID
		rec.Signals = outcome.Signals
		rec.Degraded = outcome.Degraded
		rec.OutputDigest = digest(outcome.Output)
		rec.Assessment = l.scorer.Assess(Input{
			Signals:        outcome.Signals,
			Findings:       outcome.Findings,
			ExternalReview: outcome.ExternalReview,
		})
		rec.FinishedAt = time.Now()

		scores = append(scores, rec.Assessment.FinalScore)
		rec.TerminationReason = decide(scores, iteration, cfg)

		result.History = append(result.History, rec)
		if result.Best == nil || rec.Assessment.FinalScore > result.Best.Assessment.FinalScore {
			result.Best = &result.History[len(result.History)-1]
		}
		l.log.LogIterationFinished(runID, rec)

		if rec.TerminationReason != "" {
			result.TerminatedBy = rec.TerminationReason
			return result, nil
		}

		feedback = buildFeedback(iteration, rec, outcome.Findings, prevFindings)
		prevFindings = outcome.Findings
	}
}

// decide applies the termination branches in contract order. An empty
// reason means: iterate again. Improvement is judged by magnitude, so a
// large downswing feeds the oscillation detector instead of terminating,
// and the improvement check waits for the detector window so flat runs
// terminate as stagnation.
func decide(scores []float64, iteration int, cfg LoopConfig) models.TerminationReason {
	current := scores[len(scores)-1]

	if current >= cfg.Target {
		return models.TerminationQualityMet
	}
	if iteration >= cfg.MaxIterations {
		return models.TerminationMaxIterations
	}
	if oscillating(scores) {
		return models.TerminationOscillation
	}
	if stagnating(scores) {
		return models.TerminationStagnation
	}
	if len(scores) >= OscillationWindow {
		if math.Abs(current-scores[len(scores)-2]) < MinImprovement {
			return models.TerminationInsufficientImprovement
		}
	}
	if !cfg.Deadline.IsZero() && time.Now().After(cfg.Deadline) {
		return models.TerminationTimeout
	}
	return ""
}

// oscillating reports whether the last OscillationWindow deltas swing back
// and forth: each exceeds StagnationDelta in magnitude and successive
// deltas alternate sign.
func oscillating(scores []float64) bool {
	if len(scores) < OscillationWindow+1 {
		return false
	}
	window := scores[len(scores)-(OscillationWindow+1):]

	var deltas []float64
	for i := 1; i < len(window); i++ {
		deltas = append(deltas, window[i]-window[i-1])
	}
	for i, d := range deltas {
		if math.Abs(d) <= StagnationDelta {
			return false
		}
		if i > 0 && (d > 0) == (deltas[i-1] > 0) {
			return false
		}
	}
	return true
}

// stagnating reports whether the last OscillationWindow scores moved by no
// more than StagnationDelta in total.
func stagnating(scores []float64) bool {
	if len(scores) < OscillationWindow {
		return false
	}
	window := scores[len(scores)-OscillationWindow:]
	min, max := window[0], window[0]
	for _, s := range window[1:] {
		min = math.Min(min, s)
		max = math.Max(max, s)
	}
	return max-min <= StagnationDelta
}

// buildFeedback assembles the packet for the next iteration: current
// state plus only the findings that are new since the previous pass.
func buildFeedback(iteration int, rec models.IterationRecord, findings, prevFindings []models.Finding) *models.FeedbackPacket {
	seen := make(map[string]bool, len(prevFindings))
	for _, f := range prevFindings {
		seen[f.String()] = true
	}

	packet := &models.FeedbackPacket{
		Iteration:          iteration,
		CurrentScore:       rec.Assessment.FinalScore,
		DimensionScores:    rec.Assessment.ScoresByDimension,
		ImprovementsNeeded: rec.Assessment.ImprovementsNeeded,
	}
	for _, f := range findings {
		if !seen[f.String()] {
			packet.NewFindings = append(packet.NewFindings, f)
		}
	}
	return packet
}

// digest hashes improver output for the iteration record.
func digest(output string) string {
	sum := sha256.Sum256([]byte(output))
	return hex.EncodeToString(sum[:])
}
