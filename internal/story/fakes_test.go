package story_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/story"
	"github.com/book-expert/story-service/internal/workspace"
	"github.com/stretchr/testify/require"
)

var (
	errMockGenerate   = errors.New("mock generate error")
	errMockSynthesize = errors.New("mock synthesize error")
	errMockCompose    = errors.New("mock compose error")
	errMockProbe      = errors.New("mock probe error")
	errMockMix        = errors.New("mock mix error")
	errMockUpload     = errors.New("mock upload error")
)

const (
	fixedStory       = "The lighthouse keeper lit the lamp one final time."
	fixedDescription = "Slow ambient strings and soft piano, melancholic and calm. NO LYRICS, instrumental only, without vocals."
)

// mockTextGenerator answers story and music prompt requests with fixed text.
type mockTextGenerator struct {
	mu                sync.Mutex
	story             string
	description       string
	storyShouldFail   bool
	musicShouldFail   bool
	storyPrompts      []string
	musicPrompts      []string
	musicPromptSchema core.Schema
}

func (m *mockTextGenerator) Generate(_ context.Context, prompt string, schema core.Schema) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if schema.Name == core.StorySchema.Name {
		m.storyPrompts = append(m.storyPrompts, prompt)
		if m.storyShouldFail {
			return nil, errMockGenerate
		}

		return map[string]string{"story": m.story}, nil
	}

	m.musicPrompts = append(m.musicPrompts, prompt)
	m.musicPromptSchema = schema

	if m.musicShouldFail {
		return nil, errMockGenerate
	}

	return map[string]string{"music_description": m.description}, nil
}

// mockSpeech returns fixed audio for any text.
type mockSpeech struct {
	mu         sync.Mutex
	audio      []byte
	shouldFail bool
	requests   []core.SpeechRequest
}

func (m *mockSpeech) Synthesize(_ context.Context, req core.SpeechRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.shouldFail {
		return nil, errMockSynthesize
	}

	return io.NopCloser(bytes.NewReader(m.audio)), nil
}

// mockMusic returns fixed audio and records requested lengths. With
// nilStream set it returns neither audio nor an error.
type mockMusic struct {
	mu         sync.Mutex
	audio      []byte
	shouldFail bool
	nilStream  bool
	requests   []core.MusicRequest
}

func (m *mockMusic) Compose(_ context.Context, req core.MusicRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.shouldFail {
		return nil, errMockCompose
	}

	if m.nilStream {
		return nil, nil
	}

	return io.NopCloser(bytes.NewReader(m.audio)), nil
}

// mockProbe reports a fixed duration and records the file contents it was pointed at.
type mockProbe struct {
	mu         sync.Mutex
	duration   float64
	shouldFail bool
	paths      []string
	contents   [][]byte
}

func (m *mockProbe) Probe(_ context.Context, path string) (float64, error) {
	data, readErr := os.ReadFile(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.paths = append(m.paths, path)
	m.contents = append(m.contents, data)

	if m.shouldFail {
		return 0, errMockProbe
	}

	if readErr != nil {
		return 0, readErr
	}

	return m.duration, nil
}

// mockMixer writes speech followed by music to the output path.
type mockMixer struct {
	mu         sync.Mutex
	shouldFail bool
	requests   []core.MixRequest
}

func (m *mockMixer) Mix(_ context.Context, req core.MixRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.shouldFail {
		return errMockMix
	}

	speech, err := os.ReadFile(req.SpeechPath)
	if err != nil {
		return err
	}

	music, err := os.ReadFile(req.MusicPath)
	if err != nil {
		return err
	}

	return os.WriteFile(req.OutputPath, append(speech, music...), 0o600)
}

// mockArchive records uploads and serves them back.
type mockArchive struct {
	mu               sync.Mutex
	uploadShouldFail bool
	objects          map[string][]byte
}

func (m *mockArchive) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, found := m.objects[key]
	if !found {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}

	return data, nil
}

func (m *mockArchive) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadShouldFail {
		return errMockUpload
	}

	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}

	m.objects[key] = data

	return nil
}

// sequenceIDs hands out the configured ids in order.
type sequenceIDs struct {
	mu  sync.Mutex
	ids []string
}

func (s *sequenceIDs) NewSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.ids[0]
	s.ids = s.ids[1:]

	return id
}

type testHarness struct {
	pipeline  *story.Pipeline
	text      *mockTextGenerator
	speech    *mockSpeech
	music     *mockMusic
	probe     *mockProbe
	mixer     *mockMixer
	archive   *mockArchive
	workspace *workspace.Manager
	workDir   string
	outputDir string
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "story-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testLogger.Close()
	})

	return testLogger
}

func newHarness(t *testing.T, ids ...string) *testHarness {
	t.Helper()

	harness := &testHarness{
		text:      &mockTextGenerator{story: fixedStory, description: fixedDescription},
		speech:    &mockSpeech{audio: []byte("speech-audio")},
		music:     &mockMusic{audio: []byte("music-audio")},
		probe:     &mockProbe{duration: 5.0},
		mixer:     &mockMixer{},
		archive:   &mockArchive{},
		workDir:   t.TempDir(),
		outputDir: t.TempDir(),
	}

	harness.workspace = workspace.NewManager(harness.workDir, harness.outputDir)

	var idGenerator core.SessionIDGenerator
	if len(ids) > 0 {
		idGenerator = &sequenceIDs{ids: ids}
	}

	pipeline, err := story.New(story.Deps{
		Text:         harness.text,
		Speech:       harness.speech,
		Music:        harness.music,
		Probe:        harness.probe,
		Mixer:        harness.mixer,
		Workspace:    harness.workspace,
		Logger:       newTestLogger(t),
		IDs:          idGenerator,
		Archive:      harness.archive,
		SpeechVoice:  "voice-1",
		SpeechModel:  "model-1",
		SpeechFormat: "mp3_44100_128",
	})
	require.NoError(t, err)

	harness.pipeline = pipeline

	return harness
}
