package workspace_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/story-service/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_OpenWriteRemove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	manager := workspace.NewManager(root, filepath.Join(root, "outputs"))

	session, err := manager.Open("abc")
	require.NoError(t, err)

	assert.Equal(t, "abc", session.ID())
	assert.Equal(t, filepath.Join(root, "temp_abc"), session.Dir())
	assert.DirExists(t, session.Dir())

	path, err := session.WriteFile(workspace.SpeechFile, []byte("speech"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "temp_abc", "speech.mp3"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("speech"), data)

	require.NoError(t, session.Remove())
	assert.NoDirExists(t, session.Dir())
}

func TestManager_OpenIsIdempotent(t *testing.T) {
	t.Parallel()

	manager := workspace.NewManager(t.TempDir(), t.TempDir())

	first, err := manager.Open("same")
	require.NoError(t, err)

	_, err = first.WriteFile(workspace.MusicFile, []byte("music"))
	require.NoError(t, err)

	second, err := manager.Open("same")
	require.NoError(t, err)

	assert.Equal(t, first.Dir(), second.Dir())
	assert.FileExists(t, second.Path(workspace.MusicFile))
}

func TestManager_RejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	manager := workspace.NewManager(t.TempDir(), t.TempDir())

	_, err := manager.Open("")
	require.ErrorIs(t, err, workspace.ErrSessionIDEmpty)

	_, err = manager.Open("../escape")
	require.ErrorIs(t, err, workspace.ErrInvalidName)

	session, err := manager.Open("ok")
	require.NoError(t, err)

	_, err = session.WriteFile("../outside.mp3", []byte("x"))
	require.ErrorIs(t, err, workspace.ErrInvalidName)

	_, err = manager.OpenOutput("..")
	require.ErrorIs(t, err, workspace.ErrInvalidName)
}

func TestManager_Outputs(t *testing.T) {
	t.Parallel()

	outputDir := filepath.Join(t.TempDir(), "nested", "outputs")
	manager := workspace.NewManager(t.TempDir(), outputDir)

	assert.Equal(t, filepath.Join(outputDir, "abc.mp3"), manager.OutputPath("abc"))

	require.NoError(t, manager.EnsureOutputDir())
	require.NoError(t, manager.EnsureOutputDir())
	require.NoError(t, os.WriteFile(manager.OutputPath("abc"), []byte("mixed"), 0o600))

	file, err := manager.OpenOutput("abc")
	require.NoError(t, err)

	defer file.Close()

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, []byte("mixed"), data)

	_, err = manager.OpenOutput("missing")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestManager_RemoveSession(t *testing.T) {
	t.Parallel()

	manager := workspace.NewManager(t.TempDir(), t.TempDir())

	require.NoError(t, manager.RemoveSession("never-opened"))

	session, err := manager.Open("session-x")
	require.NoError(t, err)

	_, err = session.WriteFile(workspace.MusicFile, []byte("music"))
	require.NoError(t, err)

	require.NoError(t, manager.RemoveSession("session-x"))
	assert.NoDirExists(t, session.Dir())

	require.ErrorIs(t, manager.RemoveSession("../escape"), workspace.ErrInvalidName)
}
