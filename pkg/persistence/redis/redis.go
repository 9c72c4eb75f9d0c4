// Package redis provides Redis checkpoint storage, suited to
// short-lived sessions where checkpoints may expire.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/persistence"
)

const keyPrefix = "finflow:session:"

// Store implements persistence.CheckpointStore on Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to the Redis instance described by the URL. A zero
// ttl keeps checkpoints until deleted.
func NewStore(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{client: client, ttl: ttl}, nil
}

func (s *Store) SaveState(ctx context.Context, state *models.WorkflowState) error {
	if state.SessionID == "" {
		return persistence.NewSessionError("SaveState", state.SessionID, persistence.ErrInvalidSessionID)
	}

	document, err := json.Marshal(state)
	if err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID, err)
	}

	err = s.client.Set(ctx, keyPrefix+state.SessionID, document, s.ttl).Err()
	if err != nil {
		return persistence.NewSessionError("SaveState", state.SessionID, err)
	}

	return nil
}

func (s *Store) LoadState(ctx context.Context, sessionID string) (*models.WorkflowState, error) {
	document, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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
	err := s.client.Del(ctx, keyPrefix+sessionID).Err()
	if err != nil {
		return persistence.NewSessionError("DeleteState", sessionID, err)
	}

	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	sessions := make([]string, 0)
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()

	for iter.Next(ctx) {
		sessions = append(sessions, iter.Val()[len(keyPrefix):])
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return sessions, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
