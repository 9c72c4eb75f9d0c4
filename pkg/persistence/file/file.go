// Package file provides file-based checkpoint storage, one JSON
// document per session.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/persistence"
)

// Store implements persistence.CheckpointStore on the file system.
type Store struct {
	root string
}

// NewStore creates a checkpoint store rooted at the given directory.
// A "file://" prefix on the root is stripped.
func NewStore(root string) persistence.CheckpointStore {
	return &Store{root: strings.Replace(root, "file://", "", 1)}
}

func (s *Store) SaveState(_ context.Context, state *models.WorkflowState) error {
	if err := validSessionID(state.SessionID); err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID, err)
	}

	if err := os.MkdirAll(s.sessionsDir(), 0750); err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID,
			fmt.Errorf("failed to create sessions directory: %w", err))
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID, err)
	}

	if err := os.WriteFile(s.sessionPath(state.SessionID), data, 0600); err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID, err)
	}

	return nil
}

func (s *Store) LoadState(_ context.Context, sessionID string) (*models.WorkflowState, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, persistence.NewSessionError("LoadState", sessionID, err)
	}

	body, err := os.ReadFile(s.sessionPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewSessionError("LoadState", sessionID, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("LoadState", sessionID, err)
	}

	var state models.WorkflowState

	if err := json.Unmarshal(body, &state); err != nil {
		return nil, persistence.NewSessionError("LoadState", sessionID,
			fmt.Errorf("%w: %w", persistence.ErrCorruptCheckpoint, err))
	}

	return &state, nil
}

func (s *Store) DeleteState(_ context.Context, sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		return persistence.NewSessionError("DeleteState", sessionID, err)
	}

	err := os.Remove(s.sessionPath(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewSessionError("DeleteState", sessionID, err)
	}

	return nil
}

func (s *Store) ListSessions(_ context.Context) ([]string, error) {
	jsonFiles, err := fs.Glob(os.DirFS(s.sessionsDir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}

	sessions := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		sessions = append(sessions, strings.TrimSuffix(file, ".json"))
	}

	return sessions, nil
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based storage, there is nothing to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) sessionsDir() string {
	return path.Join(s.root, "sessions")
}

func (s *Store) sessionPath(sessionID string) string {
	return filepath.Clean(path.Join(s.sessionsDir(), sessionID+".json"))
}

// validSessionID rejects ids unusable as file names.
func validSessionID(sessionID string) error {
	if sessionID == "" || strings.ContainsAny(sessionID, "/\\") || strings.Contains(sessionID, "..") {
		return persistence.ErrInvalidSessionID
	}

	return nil
}
