// Package telemetry implements the engine's append-only event log and the
// per-run evidence directory. Events carry per-run monotonic sequence
// numbers; all persisted payloads pass through secret redaction first.
package telemetry

import (
	"encoding/json"
	"time"
)

// Event kinds emitted by the engine.
const (
	KindRunStarted        = "run.started"
	KindRunState          = "run.state"
	KindAgentSelected     = "agent.selected"
	KindModelSelected     = "model.selected"
	KindConsensusVoted    = "consensus.voted"
	KindStageFinished     = "stage.finished"
	KindIterationFinished = "iteration.finished"
	KindAssessmentFinal   = "assessment.final"
	KindRunFinished       = "run.finished"
)

// terminalKinds are never dropped by the bounded buffer, whatever the
// backpressure. Losing them would make a run unauditable.
var terminalKinds = map[string]bool{
	KindAssessmentFinal: true,
	KindRunFinished:     true,
}

// Event is one line of the events.jsonl log. Small, self-describing, with a
// per-run monotonic sequence number.
type Event struct {
	Seq     int64          `json:"seq"`
	RunID   string         `json:"run_id"`
	TS      time.Time      `json:"ts"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Terminal reports whether the event must survive buffer pressure.
func (e Event) Terminal() bool {
	return terminalKinds[e.Kind]
}

// Marshal renders the event as a single JSON line (no trailing newline).
// Timestamps serialize as RFC3339 with nanosecond precision.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
