// Package persistence defines the checkpoint store contract and its
// shared error types. Implementations live in the file, postgresql and
// redis subpackages.
package persistence

import (
	"context"

	"github.com/quantarc/finflow/pkg/models"
)

// CheckpointStore persists workflow state keyed by session id. The
// engine saves after every step, so a crashed or abandoned session can
// be resumed from the last committed step.
type CheckpointStore interface {
	// SaveState writes the full state snapshot, replacing any existing
	// checkpoint for the session.
	SaveState(ctx context.Context, state *models.WorkflowState) error

	// LoadState returns the checkpoint for the session, or
	// ErrSessionNotFound.
	LoadState(ctx context.Context, sessionID string) (*models.WorkflowState, error)

	// DeleteState removes the checkpoint. Deleting a missing session is
	// not an error.
	DeleteState(ctx context.Context, sessionID string) error

	// ListSessions returns the session ids with a stored checkpoint.
	ListSessions(ctx context.Context) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
