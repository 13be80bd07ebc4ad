// Package media_test tests the ffprobe and ffmpeg wrappers.
package media_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockExit = errors.New("exit status 1")

// mockRunner records the invocation and returns a canned result.
type mockRunner struct {
	runShouldFail bool
	output        string
	name          string
	args          []string
	onRun         func(args []string)
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) (media.CommandResult, error) {
	m.name = name
	m.args = args

	if m.onRun != nil {
		m.onRun(args)
	}

	if m.runShouldFail {
		return media.CommandResult{Output: []byte(m.output), ExitCode: 1}, errMockExit
	}

	return media.CommandResult{Output: []byte(m.output), ExitCode: 0}, nil
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{name: "plain", output: "5.000000\n", want: 5.0},
		{name: "fractional", output: "12.345678", want: 12.345678},
		{name: "zero", output: "0", want: 0},
		{name: "not available", output: "N/A\n", wantErr: true},
		{name: "negative", output: "-1.5", wantErr: true},
		{name: "empty", output: "", wantErr: true},
		{name: "error text", output: "speech.mp3: No such file or directory", wantErr: true},
		{name: "nan", output: "NaN", wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := media.ParseDuration(testCase.output)
			if testCase.wantErr {
				require.ErrorIs(t, err, media.ErrUnparseableDuration)

				return
			}

			require.NoError(t, err)
			assert.InDelta(t, testCase.want, got, 1e-9)
		})
	}
}

func TestFFProbe_Probe(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{output: "5.041633\n"}
	probe := media.NewFFProbe("ffprobe", runner)

	duration, err := probe.Probe(context.Background(), "/tmp/temp_x/speech.mp3")
	require.NoError(t, err)

	assert.InDelta(t, 5.041633, duration, 1e-9)
	assert.Equal(t, "ffprobe", runner.name)
	assert.Equal(t, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"/tmp/temp_x/speech.mp3",
	}, runner.args)
}

func TestFFProbe_ProbeToolFailure(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{runShouldFail: true, output: "Invalid data found when processing input"}
	probe := media.NewFFProbe("ffprobe", runner)

	_, err := probe.Probe(context.Background(), "broken.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, errMockExit)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	probe := media.NewFFProbe("definitely-not-a-real-ffprobe", nil)

	_, err := probe.Probe(context.Background(), "speech.mp3")
	require.ErrorIs(t, err, media.ErrToolMissing)
}

func TestMixSettings_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, media.NewDefaultMixSettings().Validate())

	invalid := []media.MixSettings{
		{MusicVolume: 0, DropoutTransition: 2},
		{MusicVolume: 1.5, DropoutTransition: 2},
		{MusicVolume: 0.15, DropoutTransition: -1},
		{MusicVolume: 0.15, DropoutTransition: 60},
	}

	for _, settings := range invalid {
		require.ErrorIs(t, settings.Validate(), media.ErrInvalidMixSettings)
	}
}

func TestMixSettings_FilterGraph(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"[1:a]volume=0.15[a1];[0:a][a1]amix=inputs=2:duration=first:dropout_transition=2",
		media.NewDefaultMixSettings().FilterGraph(),
	)
}

func TestFFMixer_Args(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	mixer, err := media.NewFFMixer("ffmpeg", media.NewDefaultMixSettings(), runner)
	require.NoError(t, err)

	req := core.MixRequest{
		SpeechPath:      "temp_abc/speech.mp3",
		MusicPath:       "temp_abc/music.mp3",
		DurationSeconds: 12.3,
		OutputPath:      "outputs/abc.mp3",
	}

	require.NoError(t, mixer.Mix(context.Background(), req))

	assert.Equal(t, "ffmpeg", runner.name)
	assert.Equal(t, []string{
		"-y",
		"-loglevel", "error",
		"-i", "temp_abc/speech.mp3",
		"-stream_loop", "-1",
		"-i", "temp_abc/music.mp3",
		"-filter_complex", "[1:a]volume=0.15[a1];[0:a][a1]amix=inputs=2:duration=first:dropout_transition=2",
		"-t", "12.3",
		"outputs/abc.mp3",
	}, runner.args)
}

func TestFFMixer_FailureRemovesPartialOutput(t *testing.T) {
	t.Parallel()

	outputPath := filepath.Join(t.TempDir(), "partial.mp3")
	runner := &mockRunner{
		runShouldFail: true,
		output:        "Conversion failed!",
		onRun: func(_ []string) {
			_ = os.WriteFile(outputPath, []byte("partial"), 0o600)
		},
	}

	mixer, err := media.NewFFMixer("ffmpeg", media.NewDefaultMixSettings(), runner)
	require.NoError(t, err)

	err = mixer.Mix(context.Background(), core.MixRequest{
		SpeechPath:      "speech.mp3",
		MusicPath:       "music.mp3",
		DurationSeconds: 5,
		OutputPath:      outputPath,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Conversion failed!")
	assert.NoFileExists(t, outputPath)
}

func TestFFMixer_RejectsNonPositiveDuration(t *testing.T) {
	t.Parallel()

	mixer, err := media.NewFFMixer("ffmpeg", media.NewDefaultMixSettings(), &mockRunner{})
	require.NoError(t, err)

	err = mixer.Mix(context.Background(), core.MixRequest{DurationSeconds: 0})
	require.ErrorIs(t, err, media.ErrInvalidMixRequest)
}

func TestNewFFMixer_InvalidSettings(t *testing.T) {
	t.Parallel()

	_, err := media.NewFFMixer("ffmpeg", media.MixSettings{MusicVolume: 2}, nil)
	require.ErrorIs(t, err, media.ErrInvalidMixSettings)
}

// TestProbeAndMix_WithFFmpeg runs the real tools when they are installed.
func TestProbeAndMix_WithFFmpeg(t *testing.T) {
	t.Parallel()

	missing := media.MissingTools("ffmpeg", "ffprobe")
	if len(missing) > 0 {
		t.Skipf("media tools not installed: %v", missing)
	}

	dir := t.TempDir()
	speechPath := filepath.Join(dir, "speech.mp3")
	musicPath := filepath.Join(dir, "music.mp3")
	outputPath := filepath.Join(dir, "out.mp3")

	generateTone(t, speechPath, 440, 5)
	generateTone(t, musicPath, 220, 3)

	ctx := context.Background()
	probe := media.NewFFProbe("ffprobe", nil)

	speechDuration, err := probe.Probe(ctx, speechPath)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, speechDuration, 0.1)

	mixer, err := media.NewFFMixer("ffmpeg", media.NewDefaultMixSettings(), nil)
	require.NoError(t, err)

	err = mixer.Mix(ctx, core.MixRequest{
		SpeechPath:      speechPath,
		MusicPath:       musicPath,
		DurationSeconds: 5.0,
		OutputPath:      outputPath,
	})
	require.NoError(t, err)

	mixedDuration, err := probe.Probe(ctx, outputPath)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, mixedDuration, 0.1)
}

func generateTone(t *testing.T, path string, frequency, seconds int) {
	t.Helper()

	source := "sine=frequency=" + strconv.Itoa(frequency) + ":duration=" + strconv.Itoa(seconds)

	// #nosec G204 -- fixed test arguments
	cmd := exec.Command("ffmpeg", "-y", "-loglevel", "error", "-f", "lavfi", "-i", source, path)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, string(output))
}
