package story

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyStory indicates generated text with nothing narratable left.
	ErrEmptyStory = errors.New("generated story is empty")
	// ErrEmptyMusicDescription indicates a blank music description.
	ErrEmptyMusicDescription = errors.New("generated music description is empty")
	// ErrEmptyAudio indicates a synthesis call that produced no bytes.
	ErrEmptyAudio = errors.New("synthesized audio is empty")
	// ErrMissingDependency indicates a pipeline constructed without a required capability.
	ErrMissingDependency = errors.New("missing pipeline dependency")
)

// StageError reports the stage a job failed in. Err wraps one of the core
// error categories and the underlying cause.
type StageError struct {
	Stage     Stage
	SessionID string
	Err       error
}

// Error formats the failure for logs and callers.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}

	return fmt.Sprintf("stage %s failed for session %s: %v", e.Stage, e.SessionID, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// FailedStage returns the stage named by a *StageError anywhere in err's chain.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}

	return "", false
}

func categorize(category, cause error) error {
	return fmt.Errorf("%w: %w", category, cause)
}
