package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnparseableDuration indicates ffprobe output that is not a non-negative number.
var ErrUnparseableDuration = errors.New("unparseable duration")

const errFmtProbeFailed = "ffprobe failed for %s: %w - output: %s"

// FFProbe measures container durations with ffprobe.
type FFProbe struct {
	binary string
	runner CommandRunner
}

// NewFFProbe creates a probe that runs the given ffprobe binary.
func NewFFProbe(binary string, runner CommandRunner) *FFProbe {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &FFProbe{binary: binary, runner: runner}
}

// Probe returns the duration of the audio file at path in seconds.
func (p *FFProbe) Probe(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	result, err := p.runner.Run(ctx, p.binary, args...)
	if err != nil {
		return 0, fmt.Errorf(errFmtProbeFailed, path, err, strings.TrimSpace(string(result.Output)))
	}

	return ParseDuration(string(result.Output))
}

// ParseDuration parses ffprobe's bare duration output.
func ParseDuration(output string) (float64, error) {
	trimmed := strings.TrimSpace(output)

	seconds, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableDuration, trimmed)
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableDuration, trimmed)
	}

	return seconds, nil
}
