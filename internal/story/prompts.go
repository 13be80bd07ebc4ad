package story

import (
	"fmt"
	"strings"

	"github.com/book-expert/story-service/internal/core"
)

var lengthGuidelines = map[core.Length]string{
	core.LengthShort:  "1-2 minutes when narrated aloud (approximately 150-300 words)",
	core.LengthMedium: "3-4 minutes when narrated aloud (approximately 350-600 words)",
	core.LengthLong:   "5-6 minutes when narrated aloud (approximately 750-900 words)",
}

const storyPromptTemplate = `Generate an engaging story based on the following topic: %s.

Length requirement: %s - %s

The story should be:
- Emotionally immersive and vivid in imagery
- Have a clear beginning, middle, and end
- Strong emotional pacing suitable for audio storytelling
- Written in a natural narrative style with dialogue when appropriate
- Use varied sentence structure and punctuation for natural speech rhythm
- Appropriate for the specified length

CRITICAL RULES:
- Write ONLY the pure story text - no stage directions, no sound effect descriptions
- Do NOT include any parenthetical notes like (Pause), (Footsteps), (Music begins), etc.
- Do NOT include any brackets or special formatting
- Just write clean, flowing narrative text that will be read aloud

Write only the story text, nothing else.
`

const musicPromptTemplate = `Based on the following story, generate a detailed prompt for background music that complements the mood, tone, and pacing of the story.

Story:
%s

The music prompt should describe:
- The emotional atmosphere (e.g., mysterious, joyful, melancholic, suspenseful, adventurous, dreamy)
- Tempo and rhythm (e.g., slow and gentle, upbeat, dramatic, flowing, pulsing)
- Instrumentation (e.g., gentle piano, cinematic strings, ambient synths, orchestral tones, acoustic guitar, soft pads, cellos)
- Overall mood and energy level
- Any specific musical elements that would enhance the storytelling atmosphere

CRITICAL REQUIREMENTS:
- The music MUST contain NO LYRICS or vocals - only instrumental elements
- Must explicitly state "no lyrics", "instrumental only", or "without vocals"
- Should be suitable as background music that doesn't overpower narration

Write a concise but descriptive music prompt (2-4 sentences) for an instrumental music generation model.
`

// Guideline returns the narration length guideline for length.
// Unknown categories fall back to the Medium guideline.
func Guideline(length core.Length) string {
	guideline, found := lengthGuidelines[length]
	if !found {
		return lengthGuidelines[core.DefaultLength]
	}

	return guideline
}

// StoryPrompt builds the story generation instruction.
func StoryPrompt(topic string, length core.Length) string {
	return fmt.Sprintf(storyPromptTemplate, strings.TrimSpace(topic), length, Guideline(length))
}

// MusicPrompt builds the instruction that derives an instrumental music description from story.
func MusicPrompt(story string) string {
	return fmt.Sprintf(musicPromptTemplate, story)
}
