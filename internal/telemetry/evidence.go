package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/superclaude/engine/internal/filelock"
)

// Evidence file names inside a run directory.
const (
	EvidenceCommandFile    = "command.json"
	EvidenceSignalsFile    = "signals.json"
	EvidenceAssessmentFile = "assessment.json"
	EvidenceConsensusFile  = "consensus.json"
	EvidenceStagesDir      = "stages"
	runsDirName            = ".runs"
)

// EvidenceDir manages one run's on-disk evidence tree:
//
//	<base>/.runs/<run_id>/
//	  command.json, signals.json, assessment.json, consensus.json
//	  stages/<stage>.json
//
// Writes go through redaction and atomic rename; files are written once and
// never mutated afterwards.
type EvidenceDir struct {
	root string
}

// NewEvidenceDir creates the run's evidence directory under base.
func NewEvidenceDir(base, runID string) (*EvidenceDir, error) {
	root := filepath.Join(base, runsDirName, runID)
	if err := os.MkdirAll(filepath.Join(root, EvidenceStagesDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create evidence directory: %w", err)
	}
	return &EvidenceDir{root: root}, nil
}

// Root returns the run's evidence directory path.
func (ed *EvidenceDir) Root() string { return ed.root }

// StagePath returns the evidence file path for a validation stage.
func (ed *EvidenceDir) StagePath(stage string) string {
	return filepath.Join(ed.root, EvidenceStagesDir, stage+".json")
}

// WriteJSON marshals v, redacts denylisted keys, and writes the named file
// atomically. name is relative to the run directory.
func (ed *EvidenceDir) WriteJSON(name string, v any) error {
	redacted, err := redactAny(v)
	if err != nil {
		return fmt.Errorf("failed to prepare %s: %w", name, err)
	}
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	return filelock.AtomicWrite(filepath.Join(ed.root, name), data)
}

// WriteStage persists a stage result to stages/<stage>.json and returns the
// written path for use as the StageResult's evidence ref.
func (ed *EvidenceDir) WriteStage(stage string, v any) (string, error) {
	path := ed.StagePath(stage)
	if err := ed.WriteJSON(filepath.Join(EvidenceStagesDir, stage+".json"), v); err != nil {
		return "", err
	}
	return path, nil
}

// WriteRaw stores an arbitrary artifact (diff text, tool log) and returns
// its path and sha256 digest.
func (ed *EvidenceDir) WriteRaw(name string, data []byte) (path, digest string, err error) {
	path = filepath.Join(ed.root, name)
	if err = filelock.AtomicWrite(path, data); err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(data)
	return path, hex.EncodeToString(sum[:]), nil
}

// redactAny routes any JSON-marshalable value through map redaction by a
// marshal/unmarshal round trip. Slower than walking structs directly, but
// guarantees no secret-bearing field is missed as the record types evolve.
func redactAny(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	if m, ok := generic.(map[string]any); ok {
		return Redact(m), nil
	}
	return redactValue(generic), nil
}
