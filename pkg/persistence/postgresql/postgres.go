// Package postgresql provides PostgreSQL checkpoint storage.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/persistence"
	"github.com/quantarc/finflow/pkg/persistence/sqlbase"
)

// Store implements persistence.CheckpointStore on PostgreSQL. State
// snapshots are stored as one JSONB document per session; the columns
// beside it exist for querying sessions without decoding the document.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects, runs migrations and returns the checkpoint store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: database, logger: logger}, nil
}

func (s *Store) SaveState(ctx context.Context, state *models.WorkflowState) error {
	if state.SessionID == "" {
		return persistence.NewSessionError("SaveState", state.SessionID, persistence.ErrInvalidSessionID)
	}

	document, err := json.Marshal(state)
	if err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, query, complexity, final_answer, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			complexity = EXCLUDED.complexity,
			final_answer = EXCLUDED.final_answer,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, state.SessionID, state.OriginalQuery, string(state.Complexity),
		state.FinalAnswer, document, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID, err)
	}

	return nil
}

func (s *Store) LoadState(ctx context.Context, sessionID string) (*models.WorkflowState, error) {
	var document []byte

	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM sessions WHERE session_id = $1", sessionID).Scan(&document)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, persistence.NewSessionError("LoadState", sessionID, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("LoadState", sessionID, err)
	}

	var state models.WorkflowState

	if err := json.Unmarshal(document, &state); err != nil {
		return nil, persistence.NewSessionError("LoadState", sessionID,
			fmt.Errorf("%w: %w", persistence.ErrCorruptCheckpoint, err))
	}

	return &state, nil
}

func (s *Store) DeleteState(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = $1", sessionID)
	if err != nil {
		return persistence.NewSessionError("DeleteState", sessionID, err)
	}

	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT session_id FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]string, 0)

	for rows.Next() {
		var sessionID string

		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	return sessions, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
