package core

import "errors"

// Error categories surfaced by the story pipeline and its entry points.
var (
	// ErrValidation indicates a request rejected before the pipeline starts.
	ErrValidation = errors.New("validation error")
	// ErrGeneration indicates a text generation failure or malformed structured output.
	ErrGeneration = errors.New("generation error")
	// ErrSynthesis indicates a speech or music engine failure.
	ErrSynthesis = errors.New("synthesis error")
	// ErrProbe indicates the duration tool is missing or produced unusable output.
	ErrProbe = errors.New("probe error")
	// ErrMix indicates the mixing tool failed.
	ErrMix = errors.New("mix error")
	// ErrWorkspace indicates a session workspace file-system failure.
	ErrWorkspace = errors.New("workspace error")
	// ErrNotFound indicates that no output exists for a session.
	ErrNotFound = errors.New("not found")
)
