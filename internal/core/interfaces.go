// Package core defines the core business types and capability interfaces for the story service.
package core

import (
	"context"
	"io"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// SchemaField is one named string field of a structured generation result.
type SchemaField struct {
	Name        string
	Description string
}

// Schema constrains a text generation result to a fixed set of named fields.
type Schema struct {
	Name   string
	Fields []SchemaField
}

// StorySchema is the structured result of story generation.
var StorySchema = Schema{
	Name: "story_schema",
	Fields: []SchemaField{
		{Name: "story", Description: "engaging story based on the topic and length"},
	},
}

// MusicPromptSchema is the structured result of music prompt generation.
var MusicPromptSchema = Schema{
	Name: "music_prompt_schema",
	Fields: []SchemaField{
		{Name: "music_description", Description: "detailed music description based on the generated story"},
	},
}

// TextGenerator produces a structured result whose keys are the schema field names.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, schema Schema) (map[string]string, error)
}

// SpeechRequest holds the parameters of a single speech synthesis call.
type SpeechRequest struct {
	Text         string
	VoiceID      string
	ModelID      string
	OutputFormat string
}

// SpeechSynthesizer converts text into narrated audio. The caller closes the stream.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (io.ReadCloser, error)
}

// MusicRequest holds the parameters of a single music generation call.
type MusicRequest struct {
	Prompt   string
	LengthMs int
}

// MusicSynthesizer produces instrumental audio. The caller closes the stream.
type MusicSynthesizer interface {
	Compose(ctx context.Context, req MusicRequest) (io.ReadCloser, error)
}

// DurationProbe reports the container-level duration of a local audio file in seconds.
type DurationProbe interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// MixRequest describes one speech and music mix.
type MixRequest struct {
	SpeechPath      string
	MusicPath       string
	DurationSeconds float64
	OutputPath      string
}

// AudioMixer combines narration with attenuated, looped background music.
type AudioMixer interface {
	Mix(ctx context.Context, req MixRequest) error
}

// SessionIDGenerator hands out collision-resistant session identifiers.
// Identifiers double as public retrieval tokens and file-system namespaces.
type SessionIDGenerator interface {
	NewSessionID() string
}
