// Package app wires configuration into the story pipeline and its collaborators.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/config"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/llm"
	"github.com/book-expert/story-service/internal/media"
	"github.com/book-expert/story-service/internal/music"
	"github.com/book-expert/story-service/internal/story"
	"github.com/book-expert/story-service/internal/tts"
	"github.com/book-expert/story-service/internal/workspace"
)

const providerCheckTimeout = 10 * time.Second

// Components are the long-lived collaborators built from configuration.
type Components struct {
	Pipeline  *story.Pipeline
	Retriever *story.Retriever
	Workspace *workspace.Manager
	Speech    *tts.HTTPClient
}

// Build creates the provider clients, media tools and pipeline. archive may be nil.
func Build(cfg *config.Config, log *logger.Logger, archive core.ObjectStore) (*Components, error) {
	mixer, err := media.NewFFMixer(cfg.Media.FFmpegPath, media.MixSettings{
		MusicVolume:       cfg.Media.MusicVolume,
		DropoutTransition: cfg.Media.DropoutTransitionSeconds,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mixer: %w", err)
	}

	manager := workspace.NewManager(cfg.Paths.WorkDir, cfg.Paths.OutputDir)
	speech := tts.NewHTTPClient(cfg.TTS.BaseURL, cfg.TTS.APIKey(), cfg.TTS.Timeout())

	pipeline, err := story.New(story.Deps{
		Text: llm.NewClient(llm.Options{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey(),
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout(),
		}),
		Speech:               speech,
		Music:                music.NewClient(cfg.Music.BaseURL, cfg.Music.APIKey(), cfg.Music.Timeout()),
		Probe:                media.NewFFProbe(cfg.Media.FFprobePath, nil),
		Mixer:                mixer,
		Workspace:            manager,
		Logger:               log,
		Archive:              archive,
		SpeechVoice:          cfg.TTS.VoiceID,
		SpeechModel:          cfg.TTS.ModelID,
		SpeechFormat:         cfg.TTS.OutputFormat,
		KeepFailedWorkspaces: cfg.Paths.KeepFailedWorkspaces,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	return &Components{
		Pipeline:  pipeline,
		Retriever: story.NewRetriever(manager, archive, log),
		Workspace: manager,
		Speech:    speech,
	}, nil
}

// CheckProviders verifies that the speech provider accepts the configured key.
func (c *Components) CheckProviders(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()

	healthErr := c.Speech.HealthCheck(ctx)
	if healthErr != nil {
		return fmt.Errorf("speech provider check failed: %w", healthErr)
	}

	return nil
}

// WarnMissing logs configuration that will make jobs fail at runtime.
func WarnMissing(cfg *config.Config, log *logger.Logger) {
	for _, tool := range media.MissingTools(cfg.Media.FFmpegPath, cfg.Media.FFprobePath) {
		log.Warn("Media tool %s not found in PATH; audio stages will fail", tool)
	}

	keys := map[string]string{
		"llm":   cfg.LLM.APIKeyEnv,
		"tts":   cfg.TTS.APIKeyEnv,
		"music": cfg.Music.APIKeyEnv,
	}

	for section, env := range keys {
		if env != "" && os.Getenv(env) == "" {
			log.Warn("API key variable %s for [%s] is not set", env, section)
		}
	}
}
