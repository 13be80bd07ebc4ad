package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/story-service/internal/core"
)

// Default mix settings.
const (
	DefaultMusicVolume       = 0.15
	DefaultDropoutTransition = 2.0
)

// Validation limits.
const (
	maxMusicVolume       = 1.0
	maxDropoutTransition = 30.0
)

const (
	errFmtVolumeRange     = "%w: music volume must be greater than 0.0 and at most %.1f"
	errFmtDropoutRange    = "%w: dropout transition must be between 0 and %.0f seconds"
	errFmtDurationInvalid = "%w: target duration must be positive, got %f"
	errFmtMixFailed       = "ffmpeg mix failed: %w - output: %s"
)

var (
	// ErrInvalidMixSettings indicates mix settings outside their allowed range.
	ErrInvalidMixSettings = errors.New("invalid mix settings")
	// ErrInvalidMixRequest indicates a request the mixer cannot execute.
	ErrInvalidMixRequest = errors.New("invalid mix request")
)

// MixSettings controls how background music sits under the narration.
type MixSettings struct {
	// MusicVolume scales the music amplitude; 0.15 keeps it well below speech.
	MusicVolume float64
	// DropoutTransition is the amix renormalization time in seconds.
	DropoutTransition float64
}

// NewDefaultMixSettings returns the settings used for every story unless configured.
func NewDefaultMixSettings() MixSettings {
	return MixSettings{
		MusicVolume:       DefaultMusicVolume,
		DropoutTransition: DefaultDropoutTransition,
	}
}

// Validate checks that the settings are within reasonable bounds.
func (s MixSettings) Validate() error {
	if s.MusicVolume <= 0.0 || s.MusicVolume > maxMusicVolume {
		return fmt.Errorf(errFmtVolumeRange, ErrInvalidMixSettings, maxMusicVolume)
	}

	if s.DropoutTransition < 0.0 || s.DropoutTransition > maxDropoutTransition {
		return fmt.Errorf(errFmtDropoutRange, ErrInvalidMixSettings, maxDropoutTransition)
	}

	return nil
}

// FilterGraph returns the ffmpeg filter that attenuates input 1 and mixes it
// under input 0, ending with the speech track.
func (s MixSettings) FilterGraph() string {
	return fmt.Sprintf(
		"[1:a]volume=%s[a1];[0:a][a1]amix=inputs=2:duration=first:dropout_transition=%s",
		formatSeconds(s.MusicVolume),
		formatSeconds(s.DropoutTransition),
	)
}

// FFMixer mixes narration and music with ffmpeg.
type FFMixer struct {
	binary   string
	settings MixSettings
	runner   CommandRunner
}

// NewFFMixer creates a mixer after validating its settings.
func NewFFMixer(binary string, settings MixSettings, runner CommandRunner) (*FFMixer, error) {
	validateErr := settings.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	if runner == nil {
		runner = ExecRunner{}
	}

	return &FFMixer{binary: binary, settings: settings, runner: runner}, nil
}

// Mix loops the music indefinitely, mixes it under the speech from offset 0
// and truncates the result to exactly req.DurationSeconds. An existing output
// is overwritten; a partial output is removed on failure.
func (m *FFMixer) Mix(ctx context.Context, req core.MixRequest) error {
	if req.DurationSeconds <= 0 {
		return fmt.Errorf(errFmtDurationInvalid, ErrInvalidMixRequest, req.DurationSeconds)
	}

	result, err := m.runner.Run(ctx, m.binary, m.Args(req)...)
	if err != nil {
		removeErr := os.Remove(req.OutputPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("failed to remove partial output: %w", removeErr))
		}

		return fmt.Errorf(errFmtMixFailed, err, strings.TrimSpace(string(result.Output)))
	}

	return nil
}

// Args builds the ffmpeg argument list for req.
func (m *FFMixer) Args(req core.MixRequest) []string {
	return []string{
		"-y",
		"-loglevel", "error",
		"-i", req.SpeechPath,
		"-stream_loop", "-1",
		"-i", req.MusicPath,
		"-filter_complex", m.settings.FilterGraph(),
		"-t", formatSeconds(req.DurationSeconds),
		req.OutputPath,
	}
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
