package story

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/book-expert/logger"
	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/workspace"
	"github.com/google/uuid"
)

// UUIDGenerator issues random (version 4) UUID session ids.
type UUIDGenerator struct{}

// NewSessionID returns a new random UUID string.
func (UUIDGenerator) NewSessionID() string {
	return uuid.NewString()
}

// Retriever serves finished outputs by session id.
type Retriever struct {
	workspace *workspace.Manager
	archive   core.ObjectStore
	log       *logger.Logger
}

// NewRetriever creates a Retriever. archive may be nil.
func NewRetriever(manager *workspace.Manager, archive core.ObjectStore, log *logger.Logger) *Retriever {
	return &Retriever{workspace: manager, archive: archive, log: log}
}

// Open returns the MP3 stream for sessionID. Ids that are not UUIDs and
// sessions without output yield an error wrapping core.ErrNotFound.
func (r *Retriever) Open(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	id, idErr := CanonicalSessionID(sessionID)
	if idErr != nil {
		return nil, idErr
	}

	file, openErr := r.workspace.OpenOutput(id)
	if openErr == nil {
		return file, nil
	}

	if !errors.Is(openErr, fs.ErrNotExist) {
		return nil, openErr
	}

	if r.archive != nil {
		data, downloadErr := r.archive.Download(ctx, ArchiveKey(id))
		if downloadErr == nil {
			return io.NopCloser(bytes.NewReader(data)), nil
		}

		if !errors.Is(downloadErr, core.ErrNotFound) {
			r.log.Warn("Failed to fetch archived output for session %s: %v", id, downloadErr)
		}
	}

	return nil, fmt.Errorf("%w: audio file for session %s", core.ErrNotFound, id)
}

// CanonicalSessionID returns sessionID in the lowercase hyphenated form used
// for file names. Ids that are not UUIDs yield an error wrapping core.ErrNotFound.
func CanonicalSessionID(sessionID string) (string, error) {
	parsed, parseErr := uuid.Parse(sessionID)
	if parseErr != nil {
		return "", fmt.Errorf("%w: invalid session id %q", core.ErrNotFound, sessionID)
	}

	return parsed.String(), nil
}
