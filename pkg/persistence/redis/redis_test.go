package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/quantarc/finflow/pkg/models"
	"github.com/quantarc/finflow/pkg/persistence"
	"github.com/quantarc/finflow/pkg/persistence/redis"
)

var redisContainer *tcredis.RedisContainer

func setupTestStore(t *testing.T, ttl time.Duration) (*redis.Store, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if redisContainer == nil || !redisContainer.IsRunning() {
		var err error

		redisContainer, err = tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err)
	}

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := redis.NewStore(ctx, redisURL, ttl)
	require.NoError(t, err)

	t.Cleanup(func() {
		sessions, err := store.ListSessions(ctx)
		require.NoError(t, err)

		for _, sessionID := range sessions {
			require.NoError(t, store.DeleteState(ctx, sessionID))
		}

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx
}

func sampleState(t *testing.T) *models.WorkflowState {
	t.Helper()

	state := models.NewWorkflowState("Latest news for TSLA", uuid.New().String())
	state.Complexity = models.ComplexitySimple
	state.Tasks = []*models.Task{
		{TaskID: "direct_task_1", Agent: "knowledge", Tool: "knowledge_query", Inputs: map[string]any{"query": "Latest news for TSLA"}, Status: models.TaskStatusPending},
	}

	return state
}

func TestNewStore_InvalidURL(t *testing.T) {
	_, err := redis.NewStore(context.Background(), "not-a-redis-url", 0)
	assert.Error(t, err)
}

func TestStore_SaveAndLoadState(t *testing.T) {
	store, ctx := setupTestStore(t, 0)

	state := sampleState(t)

	err := store.SaveState(ctx, state)
	require.NoError(t, err)

	loaded, err := store.LoadState(ctx, state.SessionID)
	require.NoError(t, err)

	assert.Equal(t, state.SessionID, loaded.SessionID)
	assert.Equal(t, state.OriginalQuery, loaded.OriginalQuery)
	assert.Equal(t, models.ComplexitySimple, loaded.Complexity)
	require.Len(t, loaded.Tasks, 1)
	assert.Equal(t, "direct_task_1", loaded.Tasks[0].TaskID)
}

func TestStore_SaveState_EmptySessionID(t *testing.T) {
	store, ctx := setupTestStore(t, 0)

	state := sampleState(t)
	state.SessionID = ""

	err := store.SaveState(ctx, state)
	assert.ErrorIs(t, err, persistence.ErrInvalidSessionID)
}

func TestStore_LoadState_NotFound(t *testing.T) {
	store, ctx := setupTestStore(t, 0)

	_, err := store.LoadState(ctx, uuid.New().String())
	assert.ErrorIs(t, err, persistence.ErrSessionNotFound)
}

func TestStore_DeleteState(t *testing.T) {
	store, ctx := setupTestStore(t, 0)

	state := sampleState(t)

	require.NoError(t, store.SaveState(ctx, state))
	require.NoError(t, store.DeleteState(ctx, state.SessionID))

	_, err := store.LoadState(ctx, state.SessionID)
	assert.ErrorIs(t, err, persistence.ErrSessionNotFound)

	err = store.DeleteState(ctx, state.SessionID)
	assert.NoError(t, err)
}

func TestStore_ListSessions(t *testing.T) {
	store, ctx := setupTestStore(t, 0)

	first := sampleState(t)
	second := sampleState(t)

	require.NoError(t, store.SaveState(ctx, first))
	require.NoError(t, store.SaveState(ctx, second))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Contains(t, sessions, first.SessionID)
	assert.Contains(t, sessions, second.SessionID)
}

func TestStore_TTLExpiry(t *testing.T) {
	store, ctx := setupTestStore(t, time.Second)

	state := sampleState(t)

	require.NoError(t, store.SaveState(ctx, state))

	assert.Eventually(t, func() bool {
		_, err := store.LoadState(ctx, state.SessionID)

		return err != nil
	}, 5*time.Second, 250*time.Millisecond)
}

func TestStore_HealthCheck(t *testing.T) {
	store, ctx := setupTestStore(t, 0)

	err := store.HealthCheck(ctx)
	assert.NoError(t, err)
}
