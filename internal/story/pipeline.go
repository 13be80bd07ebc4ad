// Package story runs the story audio pipeline: story text, music prompt,
// narration, duration probe, background music and the final mix.
package story

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/story/narration"
	"github.com/book-expert/story-service/internal/workspace"
)

const (
	storyField            = "story"
	musicDescriptionField = "music_description"
	storyPreviewLength    = 100
)

// Deps are the capabilities a Pipeline is built from.
type Deps struct {
	Text      core.TextGenerator
	Speech    core.SpeechSynthesizer
	Music     core.MusicSynthesizer
	Probe     core.DurationProbe
	Mixer     core.AudioMixer
	Workspace *workspace.Manager
	Logger    *logger.Logger

	// IDs defaults to random UUIDs.
	IDs core.SessionIDGenerator
	// Sanitizer defaults to narration.NewSanitizer().
	Sanitizer *narration.Sanitizer
	// Archive, when set, receives a copy of every finished output.
	Archive core.ObjectStore

	SpeechVoice  string
	SpeechModel  string
	SpeechFormat string

	// KeepFailedWorkspaces leaves the session directory on disk when a run fails.
	KeepFailedWorkspaces bool
}

// Pipeline sequences the six stages of one job.
type Pipeline struct {
	text       core.TextGenerator
	speech     core.SpeechSynthesizer
	music      core.MusicSynthesizer
	probe      core.DurationProbe
	mixer      core.AudioMixer
	ids        core.SessionIDGenerator
	workspace  *workspace.Manager
	sanitizer  *narration.Sanitizer
	archive    core.ObjectStore
	log        *logger.Logger
	voice      core.SpeechRequest
	keepFailed bool
}

// Request is one job submission.
type Request struct {
	Topic  string
	Length core.Length
	// OnStage, if set, is called synchronously when each stage starts and completes.
	OnStage func(stage Stage, status StageStatus)
}

type step struct {
	stage Stage
	run   func(ctx context.Context, state State) (State, error)
}

// New creates a Pipeline after checking that every required capability is present.
func New(deps Deps) (*Pipeline, error) {
	missing := missingDeps(deps)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}

	pipeline := &Pipeline{
		text:      deps.Text,
		speech:    deps.Speech,
		music:     deps.Music,
		probe:     deps.Probe,
		mixer:     deps.Mixer,
		ids:       deps.IDs,
		workspace: deps.Workspace,
		sanitizer: deps.Sanitizer,
		archive:   deps.Archive,
		log:       deps.Logger,
		voice: core.SpeechRequest{
			VoiceID:      deps.SpeechVoice,
			ModelID:      deps.SpeechModel,
			OutputFormat: deps.SpeechFormat,
		},
		keepFailed: deps.KeepFailedWorkspaces,
	}

	if pipeline.ids == nil {
		pipeline.ids = UUIDGenerator{}
	}

	if pipeline.sanitizer == nil {
		pipeline.sanitizer = narration.NewSanitizer()
	}

	return pipeline, nil
}

func missingDeps(deps Deps) []string {
	var missing []string

	checks := []struct {
		name    string
		present bool
	}{
		{"text generator", deps.Text != nil},
		{"speech synthesizer", deps.Speech != nil},
		{"music synthesizer", deps.Music != nil},
		{"duration probe", deps.Probe != nil},
		{"audio mixer", deps.Mixer != nil},
		{"workspace", deps.Workspace != nil},
		{"logger", deps.Logger != nil},
	}

	for _, check := range checks {
		if !check.present {
			missing = append(missing, check.name)
		}
	}

	return missing
}

// ValidateRequest normalizes req and rejects it before any work starts.
// An empty length selects core.DefaultLength.
func ValidateRequest(req Request) (Request, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return req, fmt.Errorf("%w: topic cannot be empty", core.ErrValidation)
	}

	if req.Length == "" {
		req.Length = core.DefaultLength
	}

	if !req.Length.Valid() {
		return req, fmt.Errorf("%w: length must be Short, Medium, or Long", core.ErrValidation)
	}

	return req, nil
}

// Run executes every stage in order for a new session. A stage failure
// aborts the run and is returned as a *StageError. The session workspace is
// removed on every exit path unless failed workspaces are kept.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	req, validateErr := ValidateRequest(req)
	if validateErr != nil {
		return Result{}, validateErr
	}

	state := NewState(req.Topic, req.Length, p.ids.NewSessionID())
	p.log.Info("Starting story generation for session %s (topic: %q, length: %s)", state.SessionID, state.Topic, state.Length)

	failed := true
	defer func() {
		p.cleanup(state.SessionID, failed)
	}()

	for _, current := range p.steps() {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return Result{}, p.fail(current.stage, state.SessionID, ctxErr)
		}

		notify(req.OnStage, current.stage, StageStarted)

		next, stepErr := current.run(ctx, state)
		if stepErr != nil {
			return Result{}, p.fail(current.stage, state.SessionID, stepErr)
		}

		state = next

		notify(req.OnStage, current.stage, StageCompleted)
	}

	failed = false

	p.archiveOutput(ctx, state)
	p.log.Info("Story generation completed for session %s: %s (%.2f seconds)", state.SessionID, state.OutputPath, state.SpeechDuration)

	return state.result(), nil
}

func (p *Pipeline) steps() []step {
	return []step{
		{StageGenerateStory, p.generateStory},
		{StageGenerateMusicPrompt, p.generateMusicPrompt},
		{StageGenerateSpeech, p.generateSpeech},
		{StageSaveAndGetDuration, p.saveAndGetDuration},
		{StageGenerateMusic, p.generateMusic},
		{StageMixAudio, p.mixAudio},
	}
}

func (p *Pipeline) fail(stage Stage, sessionID string, err error) error {
	stageErr := &StageError{Stage: stage, SessionID: sessionID, Err: err}
	p.log.Error("Story generation failed: %v", stageErr)

	return stageErr
}

func notify(onStage func(Stage, StageStatus), stage Stage, status StageStatus) {
	if onStage != nil {
		onStage(stage, status)
	}
}

func (p *Pipeline) cleanup(sessionID string, failed bool) {
	if failed && p.keepFailed {
		p.log.Warn("Keeping workspace %s of failed session", p.workspace.SessionDir(sessionID))

		return
	}

	removeErr := p.workspace.RemoveSession(sessionID)
	if removeErr != nil {
		p.log.Warn("Failed to clean up workspace for session %s: %v", sessionID, removeErr)
	}
}

func (p *Pipeline) generateStory(ctx context.Context, state State) (State, error) {
	orderErr := state.require(PhaseCreated)
	if orderErr != nil {
		return state, orderErr
	}

	result, genErr := p.text.Generate(ctx, StoryPrompt(state.Topic, state.Length), core.StorySchema)
	if genErr != nil {
		return state, categorize(core.ErrGeneration, genErr)
	}

	raw := result[storyField]
	if narration.HasAnnotations(raw) {
		p.log.Warn("Session %s: removing stage directions from generated story", state.SessionID)
	}

	story := p.sanitizer.Clean(raw)
	if story == "" {
		return state, categorize(core.ErrGeneration, ErrEmptyStory)
	}

	p.log.Info("Session %s: story generated: %s", state.SessionID, preview(story))

	state.Story = story
	state.Phase = PhaseStoryGenerated

	return state, nil
}

func (p *Pipeline) generateMusicPrompt(ctx context.Context, state State) (State, error) {
	orderErr := state.require(PhaseStoryGenerated)
	if orderErr != nil {
		return state, orderErr
	}

	result, genErr := p.text.Generate(ctx, MusicPrompt(state.Story), core.MusicPromptSchema)
	if genErr != nil {
		return state, categorize(core.ErrGeneration, genErr)
	}

	description := strings.TrimSpace(result[musicDescriptionField])
	if description == "" {
		return state, categorize(core.ErrGeneration, ErrEmptyMusicDescription)
	}

	p.log.Info("Session %s: music prompt generated: %s", state.SessionID, description)

	state.MusicDescription = description
	state.Phase = PhaseMusicPromptGenerated

	return state, nil
}

func (p *Pipeline) generateSpeech(ctx context.Context, state State) (State, error) {
	orderErr := state.require(PhaseMusicPromptGenerated)
	if orderErr != nil {
		return state, orderErr
	}

	req := p.voice
	req.Text = state.Story

	stream, synthErr := p.speech.Synthesize(ctx, req)
	if synthErr != nil {
		return state, categorize(core.ErrSynthesis, synthErr)
	}

	audio, readErr := readAudio(stream)
	if readErr != nil {
		return state, categorize(core.ErrSynthesis, readErr)
	}

	p.log.Info("Session %s: speech generated (%d bytes)", state.SessionID, len(audio))

	state.Speech = audio
	state.Phase = PhaseSpeechGenerated

	return state, nil
}

func (p *Pipeline) saveAndGetDuration(ctx context.Context, state State) (State, error) {
	orderErr := state.require(PhaseSpeechGenerated)
	if orderErr != nil {
		return state, orderErr
	}

	session, openErr := p.workspace.Open(state.SessionID)
	if openErr != nil {
		return state, categorize(core.ErrWorkspace, openErr)
	}

	p.log.Info("Session %s: workspace ready at %s", session.ID(), session.Dir())

	speechPath, writeErr := session.WriteFile(workspace.SpeechFile, state.Speech)
	if writeErr != nil {
		return state, categorize(core.ErrWorkspace, writeErr)
	}

	duration, probeErr := p.probe.Probe(ctx, speechPath)
	if probeErr != nil {
		return state, categorize(core.ErrProbe, probeErr)
	}

	p.log.Info("Session %s: speech duration %.2f seconds", state.SessionID, duration)

	state.SpeechDuration = duration
	state.Phase = PhaseDurationKnown

	return state, nil
}

func (p *Pipeline) generateMusic(ctx context.Context, state State) (State, error) {
	orderErr := state.require(PhaseDurationKnown)
	if orderErr != nil {
		return state, orderErr
	}

	stream, composeErr := p.music.Compose(ctx, core.MusicRequest{
		Prompt:   state.MusicDescription,
		LengthMs: MusicLengthMs(state.SpeechDuration),
	})
	if composeErr != nil {
		return state, categorize(core.ErrSynthesis, composeErr)
	}

	audio, readErr := readAudio(stream)
	if readErr != nil {
		return state, categorize(core.ErrSynthesis, readErr)
	}

	p.log.Info("Session %s: music generated (%d bytes)", state.SessionID, len(audio))

	state.Music = audio
	state.Phase = PhaseMusicGenerated

	return state, nil
}

func (p *Pipeline) mixAudio(ctx context.Context, state State) (State, error) {
	orderErr := state.require(PhaseMusicGenerated)
	if orderErr != nil {
		return state, orderErr
	}

	session, openErr := p.workspace.Open(state.SessionID)
	if openErr != nil {
		return state, categorize(core.ErrWorkspace, openErr)
	}

	musicPath, writeErr := session.WriteFile(workspace.MusicFile, state.Music)
	if writeErr != nil {
		return state, categorize(core.ErrWorkspace, writeErr)
	}

	outputErr := p.workspace.EnsureOutputDir()
	if outputErr != nil {
		return state, categorize(core.ErrWorkspace, outputErr)
	}

	outputPath := p.workspace.OutputPath(state.SessionID)

	mixErr := p.mixer.Mix(ctx, core.MixRequest{
		SpeechPath:      session.Path(workspace.SpeechFile),
		MusicPath:       musicPath,
		DurationSeconds: state.SpeechDuration,
		OutputPath:      outputPath,
	})
	if mixErr != nil {
		return state, categorize(core.ErrMix, mixErr)
	}

	state.OutputPath = outputPath
	state.Phase = PhaseMixed

	return state, nil
}

// archiveOutput mirrors the finished file to the archive store. Failures are logged only.
func (p *Pipeline) archiveOutput(ctx context.Context, state State) {
	if p.archive == nil {
		return
	}

	data, readErr := os.ReadFile(state.OutputPath)
	if readErr != nil {
		p.log.Warn("Session %s: failed to read output for archiving: %v", state.SessionID, readErr)

		return
	}

	uploadErr := p.archive.Upload(ctx, ArchiveKey(state.SessionID), data)
	if uploadErr != nil {
		p.log.Warn("Session %s: failed to archive output: %v", state.SessionID, uploadErr)

		return
	}

	p.log.Info("Session %s: archived output as %s", state.SessionID, ArchiveKey(state.SessionID))
}

// ArchiveKey is the object store key of a session's output.
func ArchiveKey(sessionID string) string {
	return sessionID + ".mp3"
}

func readAudio(stream io.ReadCloser) ([]byte, error) {
	if stream == nil {
		return nil, ErrEmptyAudio
	}
	defer stream.Close()

	var buffer bytes.Buffer

	_, copyErr := io.Copy(&buffer, stream)
	if copyErr != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", copyErr)
	}

	if buffer.Len() == 0 {
		return nil, ErrEmptyAudio
	}

	return buffer.Bytes(), nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= storyPreviewLength {
		return text
	}

	return string(runes[:storyPreviewLength]) + "..."
}
