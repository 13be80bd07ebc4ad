package story_test

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/book-expert/story-service/internal/core"
	"github.com/book-expert/story-service/internal/story"
	"github.com/book-expert/story-service/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetriever_Open(t *testing.T) {
	t.Parallel()

	manager := workspace.NewManager(t.TempDir(), t.TempDir())
	require.NoError(t, manager.EnsureOutputDir())
	require.NoError(t, os.WriteFile(manager.OutputPath(sessionA), []byte("mixed-audio"), 0o600))

	retriever := story.NewRetriever(manager, nil, newTestLogger(t))

	stream, err := retriever.Open(context.Background(), sessionA)
	require.NoError(t, err)

	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "mixed-audio", string(data))
}

func TestRetriever_Open_NotFound(t *testing.T) {
	t.Parallel()

	manager := workspace.NewManager(t.TempDir(), t.TempDir())
	retriever := story.NewRetriever(manager, &mockArchive{}, newTestLogger(t))

	tests := []string{
		sessionB,
		"not-a-uuid",
		"../../etc/passwd",
		"",
	}

	for _, sessionID := range tests {
		_, err := retriever.Open(context.Background(), sessionID)
		require.ErrorIs(t, err, core.ErrNotFound, "session id %q", sessionID)
	}
}

func TestRetriever_Open_FallsBackToArchive(t *testing.T) {
	t.Parallel()

	archive := &mockArchive{objects: map[string][]byte{sessionB + ".mp3": []byte("archived-audio")}}
	retriever := story.NewRetriever(workspace.NewManager(t.TempDir(), t.TempDir()), archive, newTestLogger(t))

	stream, err := retriever.Open(context.Background(), sessionB)
	require.NoError(t, err)

	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "archived-audio", string(data))
}

func TestArchiveKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sessionA+".mp3", story.ArchiveKey(sessionA))
}

func TestCanonicalSessionID(t *testing.T) {
	t.Parallel()

	for _, input := range []string{sessionA, "urn:uuid:" + sessionA, "{" + sessionA + "}", strings.ToUpper(sessionA)} {
		id, err := story.CanonicalSessionID(input)
		require.NoError(t, err, input)
		assert.Equal(t, sessionA, id, input)
	}

	_, err := story.CanonicalSessionID("../" + sessionA)
	require.ErrorIs(t, err, core.ErrNotFound)
}
