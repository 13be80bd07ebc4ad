package story

import (
	"errors"
	"fmt"
	"math"

	"github.com/book-expert/story-service/internal/core"
)

// Phase is the position of a job in the pipeline.
type Phase int

// Pipeline phases in execution order.
const (
	PhaseCreated Phase = iota
	PhaseStoryGenerated
	PhaseMusicPromptGenerated
	PhaseSpeechGenerated
	PhaseDurationKnown
	PhaseMusicGenerated
	PhaseMixed
)

var phaseNames = [...]string{
	PhaseCreated:              "created",
	PhaseStoryGenerated:       "story_generated",
	PhaseMusicPromptGenerated: "music_prompt_generated",
	PhaseSpeechGenerated:      "speech_generated",
	PhaseDurationKnown:        "duration_known",
	PhaseMusicGenerated:       "music_generated",
	PhaseMixed:                "mixed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}

	return phaseNames[p]
}

// Stage names one pipeline step. Names appear in errors and progress events.
type Stage string

// Pipeline stages in execution order.
const (
	StageGenerateStory       Stage = "generate_story"
	StageGenerateMusicPrompt Stage = "generate_music_prompt"
	StageGenerateSpeech      Stage = "generate_speech"
	StageSaveAndGetDuration  Stage = "save_and_get_duration"
	StageGenerateMusic       Stage = "generate_music"
	StageMixAudio            Stage = "mix_audio"
)

// Stages lists every stage in execution order.
func Stages() []Stage {
	return []Stage{
		StageGenerateStory,
		StageGenerateMusicPrompt,
		StageGenerateSpeech,
		StageSaveAndGetDuration,
		StageGenerateMusic,
		StageMixAudio,
	}
}

// StageStatus reports progress of a stage to observers.
type StageStatus string

// Stage progress values.
const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
)

// musicPaddingMs keeps looped music from running short before the mix truncates it.
const musicPaddingMs = 2000

// ErrOutOfOrder indicates a stage invoked on a state its predecessor did not produce.
var ErrOutOfOrder = errors.New("stage invoked out of order")

// State is the per-job record. Stages receive it by value and return a copy
// with only their own fields set and Phase advanced.
type State struct {
	Topic            string
	Length           core.Length
	SessionID        string
	Story            string
	MusicDescription string
	Speech           []byte
	SpeechDuration   float64
	Music            []byte
	OutputPath       string
	Phase            Phase
}

// NewState starts a job record in PhaseCreated.
func NewState(topic string, length core.Length, sessionID string) State {
	return State{
		Topic:     topic,
		Length:    length,
		SessionID: sessionID,
		Phase:     PhaseCreated,
	}
}

func (s State) require(phase Phase) error {
	if s.Phase != phase {
		return fmt.Errorf("%w: requires %s, state is %s", ErrOutOfOrder, phase, s.Phase)
	}

	return nil
}

// Result is the externally visible outcome of a successful run.
type Result struct {
	SessionID             string
	Story                 string
	MusicDescription      string
	SpeechDurationSeconds float64
	OutputPath            string
}

func (s State) result() Result {
	return Result{
		SessionID:             s.SessionID,
		Story:                 s.Story,
		MusicDescription:      s.MusicDescription,
		SpeechDurationSeconds: s.SpeechDuration,
		OutputPath:            s.OutputPath,
	}
}

// MusicLengthMs returns the music length to request for speech lasting
// durationSeconds: the duration in whole milliseconds, rounded up, plus a
// two second pad. The product is rounded to microseconds first so that
// binary float noise does not add a millisecond.
func MusicLengthMs(durationSeconds float64) int {
	micros := math.Round(durationSeconds * 1e6)

	return int(math.Ceil(micros/1e3)) + musicPaddingMs
}
