// Package media wraps the external ffprobe and ffmpeg binaries used to measure
// and mix story audio.
package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrToolMissing indicates that a required binary is not on PATH.
var ErrToolMissing = errors.New("media tool not found")

// CommandResult captures one external command invocation.
type CommandResult struct {
	Output   []byte
	ExitCode int
}

// CommandRunner abstracts process execution so tool handling can be tested
// without the real binaries.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command, returning combined stdout and stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	_, lookErr := exec.LookPath(name)
	if lookErr != nil {
		return CommandResult{Output: nil, ExitCode: -1}, fmt.Errorf("%w: %s: %w", ErrToolMissing, name, lookErr)
	}

	// #nosec G204 -- binary names come from configuration, arguments are built internally
	cmd := exec.CommandContext(ctx, name, args...)

	output, err := cmd.CombinedOutput()
	result := CommandResult{Output: output, ExitCode: 0}

	if err != nil {
		result.ExitCode = -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}

		return result, fmt.Errorf("%s exited with code %d: %w", name, result.ExitCode, err)
	}

	return result, nil
}

// MissingTools returns the names from tools that cannot be found on PATH.
func MissingTools(tools ...string) []string {
	var missing []string

	for _, tool := range tools {
		_, err := exec.LookPath(tool)
		if err != nil {
			missing = append(missing, tool)
		}
	}

	return missing
}
