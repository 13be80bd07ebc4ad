package story_test

import (
	"strings"
	"testing"

	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/story"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMusicLengthMs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		duration float64
		expected int
	}{
		{duration: 12.3, expected: 14300},
		{duration: 5.0, expected: 7000},
		{duration: 0, expected: 2000},
		{duration: 5.0001, expected: 7001},
		{duration: 61.2345, expected: 63235},
		{duration: 0.1 + 0.2, expected: 2300},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.expected, story.MusicLengthMs(testCase.duration), "duration %v", testCase.duration)
	}
}

func TestStages_Order(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, len(story.Stages()))
	for _, stage := range story.Stages() {
		names = append(names, string(stage))
	}

	assert.Equal(t,
		"generate_story,generate_music_prompt,generate_speech,save_and_get_duration,generate_music,mix_audio",
		strings.Join(names, ","),
	)
}

func TestPhase_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created", story.PhaseCreated.String())
	assert.Equal(t, "duration_known", story.PhaseDurationKnown.String())
	assert.Equal(t, "mixed", story.PhaseMixed.String())
	assert.Equal(t, "phase(42)", story.Phase(42).String())
}

func TestNewState(t *testing.T) {
	t.Parallel()

	state := story.NewState("a fox", core.LengthLong, "id-1")

	assert.Equal(t, story.PhaseCreated, state.Phase)
	assert.Equal(t, "a fox", state.Topic)
	assert.Equal(t, core.LengthLong, state.Length)
	assert.Equal(t, "id-1", state.SessionID)
	assert.Empty(t, state.Story)
	assert.Empty(t, state.OutputPath)
}

func TestStageError(t *testing.T) {
	t.Parallel()

	err := &story.StageError{Stage: story.StageMixAudio, SessionID: "id-9", Err: core.ErrMix}

	assert.Equal(t, "stage mix_audio failed for session id-9: mix error", err.Error())
	require.ErrorIs(t, err, core.ErrMix)

	var nilErr *story.StageError
	assert.Empty(t, nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())

	_, found := story.FailedStage(core.ErrMix)
	assert.False(t, found)
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	req, err := story.ValidateRequest(story.Request{Topic: "a fox"})
	require.NoError(t, err)
	assert.Equal(t, core.LengthMedium, req.Length)

	_, err = story.ValidateRequest(story.Request{Topic: "", Length: core.LengthShort})
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = story.ValidateRequest(story.Request{Topic: "a fox", Length: "Huge"})
	require.ErrorIs(t, err, core.ErrValidation)
}
