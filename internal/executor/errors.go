package executor

import (
	"errors"
	"fmt"
)

// ConfigError is a configuration fault detected before real work starts.
// The CLI maps it to exit code 2 with a run record stub.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Message)
}

// EvidenceMissingError marks a requires-evidence command that produced
// neither a diff nor test changes.
type EvidenceMissingError struct {
	RunID string
}

func (e *EvidenceMissingError) Error() string {
	return fmt.Sprintf("run %s: command requires evidence but produced no file changes and no tests", e.RunID)
}

// UntrackedRepoError rejects a requires-evidence command outside a tracked
// repository.
type UntrackedRepoError struct {
	Dir string
}

func (e *UntrackedRepoError) Error() string {
	return fmt.Sprintf("%s is not a tracked repository; evidence-backed commands need one", e.Dir)
}

// IsConfigError reports whether err is a configuration fault.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
