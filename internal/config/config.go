// Package config provides the configuration structure for the story-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Default values applied to fields left empty in the project file.
const (
	defaultServerHost     = "0.0.0.0"
	defaultServerPort     = 8000
	defaultStorySubject   = "story.requested"
	defaultJobTimeout     = 600
	defaultLLMBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultLLMModel       = "gemini-2.5-pro"
	defaultLLMKeyEnv      = "GOOGLE_API_KEY"
	defaultLLMTimeout     = 120
	defaultAudioBaseURL   = "https://api.elevenlabs.io"
	defaultAudioKeyEnv    = "ELEVENLABS_API_KEY"
	defaultVoiceID        = "kdmDKE6EkgrWrrykO9Qt"
	defaultTTSModelID     = "eleven_multilingual_v2"
	defaultOutputFormat   = "mp3_44100_128"
	defaultTTSTimeout     = 180
	defaultMusicTimeout   = 300
	defaultFFmpegPath     = "ffmpeg"
	defaultFFprobePath    = "ffprobe"
	defaultMusicVolume    = 0.15
	defaultDropoutSeconds = 2
	defaultWorkDir        = "."
	defaultOutputDir      = "outputs"
)

// ErrInvalidPort indicates a server port outside the TCP range.
var ErrInvalidPort = errors.New("server port must be between 1 and 65535")

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	AllowedOrigin string `toml:"allowed_origin"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                     string `toml:"url"`
	StoryRequestedSubject   string `toml:"story_requested_subject"`
	OutputObjectStoreBucket string `toml:"output_object_store_bucket"`
	JobTimeoutSeconds       int    `toml:"job_timeout_seconds"`
}

// LLMConfig holds the text generation provider configuration.
type LLMConfig struct {
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	APIKeyEnv      string  `toml:"api_key_env"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// TTSConfig holds the speech synthesis provider configuration.
type TTSConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	VoiceID        string `toml:"voice_id"`
	ModelID        string `toml:"model_id"`
	OutputFormat   string `toml:"output_format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MusicConfig holds the music generation provider configuration.
type MusicConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MediaConfig holds the external media tool configuration.
type MediaConfig struct {
	FFmpegPath               string  `toml:"ffmpeg_path"`
	FFprobePath              string  `toml:"ffprobe_path"`
	MusicVolume              float64 `toml:"music_volume"`
	DropoutTransitionSeconds float64 `toml:"dropout_transition_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir          string `toml:"base_logs_dir"`
	WorkDir              string `toml:"work_dir"`
	OutputDir            string `toml:"output_dir"`
	KeepFailedWorkspaces bool   `toml:"keep_failed_workspaces"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server"`
	NATS   NATSConfig   `toml:"nats"`
	LLM    LLMConfig    `toml:"llm"`
	TTS    TTSConfig    `toml:"tts"`
	Music  MusicConfig  `toml:"music"`
	Media  MediaConfig  `toml:"media"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration for the story-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// LoadFile decodes the TOML file at path instead of searching for the project file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	var cfg Config

	decodeErr := toml.Unmarshal(data, &cfg)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode configuration file %s: %w", path, decodeErr)
	}

	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Host, defaultServerHost)
	setInt(&c.Server.Port, defaultServerPort)

	setString(&c.NATS.StoryRequestedSubject, defaultStorySubject)
	setInt(&c.NATS.JobTimeoutSeconds, defaultJobTimeout)

	setString(&c.LLM.BaseURL, defaultLLMBaseURL)
	setString(&c.LLM.Model, defaultLLMModel)
	setString(&c.LLM.APIKeyEnv, defaultLLMKeyEnv)
	setInt(&c.LLM.TimeoutSeconds, defaultLLMTimeout)

	setString(&c.TTS.BaseURL, defaultAudioBaseURL)
	setString(&c.TTS.APIKeyEnv, defaultAudioKeyEnv)
	setString(&c.TTS.VoiceID, defaultVoiceID)
	setString(&c.TTS.ModelID, defaultTTSModelID)
	setString(&c.TTS.OutputFormat, defaultOutputFormat)
	setInt(&c.TTS.TimeoutSeconds, defaultTTSTimeout)

	setString(&c.Music.BaseURL, defaultAudioBaseURL)
	setString(&c.Music.APIKeyEnv, defaultAudioKeyEnv)
	setInt(&c.Music.TimeoutSeconds, defaultMusicTimeout)

	setString(&c.Media.FFmpegPath, defaultFFmpegPath)
	setString(&c.Media.FFprobePath, defaultFFprobePath)

	if c.Media.MusicVolume == 0 {
		c.Media.MusicVolume = defaultMusicVolume
	}

	if c.Media.DropoutTransitionSeconds == 0 {
		c.Media.DropoutTransitionSeconds = defaultDropoutSeconds
	}

	setString(&c.Paths.BaseLogsDir, os.TempDir())
	setString(&c.Paths.WorkDir, defaultWorkDir)
	setString(&c.Paths.OutputDir, defaultOutputDir)
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	return nil
}

// Address returns the host:port pair the HTTP server listens on.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APIKey reads the provider key from the configured environment variable.
func (l LLMConfig) APIKey() string {
	return os.Getenv(l.APIKeyEnv)
}

// Timeout returns the per-request timeout.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// APIKey reads the provider key from the configured environment variable.
func (t TTSConfig) APIKey() string {
	return os.Getenv(t.APIKeyEnv)
}

// Timeout returns the per-request timeout.
func (t TTSConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// APIKey reads the provider key from the configured environment variable.
func (m MusicConfig) APIKey() string {
	return os.Getenv(m.APIKeyEnv)
}

// Timeout returns the per-request timeout.
func (m MusicConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// JobTimeout bounds one pipeline run started from a NATS message.
func (n NATSConfig) JobTimeout() time.Duration {
	return time.Duration(n.JobTimeoutSeconds) * time.Second
}

func setString(field *string, fallback string) {
	if *field == "" {
		*field = fallback
	}
}

func setInt(field *int, fallback int) {
	if *field == 0 {
		*field = fallback
	}
}
