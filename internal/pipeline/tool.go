package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// toolOutput is the captured result of one hook invocation.
type toolOutput struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// runTool executes a hook command line through the shell in dir. A non-zero
// exit is not an error; stages classify it themselves.
func runTool(ctx context.Context, dir, commandLine string) (toolOutput, error) {
	out := toolOutput{Command: commandLine}

	cmd := exec.CommandContext(ctx, "sh", "-c", commandLine)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()

	if ctx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		out.ExitCode = -1
		return out, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err // command not found, permission, ...
	}
	return out, nil
}

// combined joins stdout and stderr for matching.
func (o toolOutput) combined() string {
	return strings.TrimSpace(o.Stdout + "\n" + o.Stderr)
}

// firstLines trims long tool output to something loggable.
func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
