// Package workspace manages per-session temporary directories and the
// durable output files addressed by session id.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// File layout.
const (
	sessionDirPrefix = "temp_"
	outputExtension  = ".mp3"
	// SpeechFile is the narration file inside a session directory.
	SpeechFile = "speech.mp3"
	// MusicFile is the background music file inside a session directory.
	MusicFile = "music.mp3"
)

var (
	// ErrSessionIDEmpty indicates that no session id was supplied.
	ErrSessionIDEmpty = errors.New("session id cannot be empty")
	// ErrInvalidName indicates a session id or file name that would escape its directory.
	ErrInvalidName = errors.New("name must be a single path element")
)

// Manager places session directories under workDir and outputs under outputDir.
type Manager struct {
	workDir   string
	outputDir string
}

// NewManager creates a workspace manager. Directories are created lazily.
func NewManager(workDir, outputDir string) *Manager {
	return &Manager{workDir: workDir, outputDir: outputDir}
}

// Session is one job's isolated temporary directory.
type Session struct {
	id  string
	dir string
}

// SessionDir returns the temporary directory path for sessionID without creating it.
func (m *Manager) SessionDir(sessionID string) string {
	return filepath.Join(m.workDir, sessionDirPrefix+sessionID)
}

// Open creates the session directory, succeeding if it already exists.
func (m *Manager) Open(sessionID string) (*Session, error) {
	nameErr := validateName(sessionID)
	if nameErr != nil {
		return nil, nameErr
	}

	dir := m.SessionDir(sessionID)

	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, mkdirErr)
	}

	return &Session{id: sessionID, dir: dir}, nil
}

// RemoveSession deletes the session directory for sessionID. A missing directory is not an error.
func (m *Manager) RemoveSession(sessionID string) error {
	nameErr := validateName(sessionID)
	if nameErr != nil {
		return nameErr
	}

	session := Session{id: sessionID, dir: m.SessionDir(sessionID)}

	return session.Remove()
}

// OutputPath returns the durable output file path for sessionID.
func (m *Manager) OutputPath(sessionID string) string {
	return filepath.Join(m.outputDir, sessionID+outputExtension)
}

// EnsureOutputDir creates the output directory if absent.
func (m *Manager) EnsureOutputDir() error {
	mkdirErr := os.MkdirAll(m.outputDir, dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create output directory %s: %w", m.outputDir, mkdirErr)
	}

	return nil
}

// OpenOutput opens the output file for sessionID for reading.
func (m *Manager) OpenOutput(sessionID string) (*os.File, error) {
	nameErr := validateName(sessionID)
	if nameErr != nil {
		return nil, nameErr
	}

	file, err := os.Open(m.OutputPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to open output for session %s: %w", sessionID, err)
	}

	return file, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Dir returns the session directory path.
func (s *Session) Dir() string {
	return s.dir
}

// Path returns the path of name inside the session directory.
func (s *Session) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// WriteFile writes data to name inside the session directory and returns its path.
func (s *Session) WriteFile(name string, data []byte) (string, error) {
	nameErr := validateName(name)
	if nameErr != nil {
		return "", nameErr
	}

	path := s.Path(name)

	writeErr := os.WriteFile(path, data, filePermissions)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, writeErr)
	}

	return path, nil
}

// Remove deletes the session directory and everything in it.
func (s *Session) Remove() error {
	removeErr := os.RemoveAll(s.dir)
	if removeErr != nil {
		return fmt.Errorf("failed to remove session directory %s: %w", s.dir, removeErr)
	}

	return nil
}

func validateName(name string) error {
	if name == "" {
		return ErrSessionIDEmpty
	}

	if name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}
