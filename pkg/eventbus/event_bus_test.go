package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantarc/finflow/pkg/channels/gochannel"
	"github.com/quantarc/finflow/pkg/eventbus"
	"github.com/quantarc/finflow/pkg/events"
	"github.com/quantarc/finflow/pkg/models"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		err := bus.Close()
		require.NoError(t, err)
	})

	return bus
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *events.QueryRouted, 1)

	err := bus.Handle(events.QueryRoutedEvent, func(ctx context.Context, event any) error {
		routed, ok := event.(*events.QueryRouted)
		require.True(t, ok)

		received <- routed

		return nil
	})
	require.NoError(t, err)

	err = bus.Subscribe(ctx)
	require.NoError(t, err)

	published := &events.QueryRouted{
		BaseEvent:  events.NewBaseEvent(events.QueryRoutedEvent, "session-1"),
		Query:      "Analyze AAPL fundamentals",
		Complexity: models.ComplexityComplex,
	}

	err = bus.Publish(ctx, "session-1", published)
	require.NoError(t, err)

	select {
	case routed := <-received:
		assert.Equal(t, "session-1", routed.SessionID)
		assert.Equal(t, "Analyze AAPL fundamentals", routed.Query)
		assert.Equal(t, models.ComplexityComplex, routed.Complexity)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBus_UnhandledEventIsAcked(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *events.SessionCompleted, 1)

	err := bus.Handle(events.SessionCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.SessionCompleted)
		require.True(t, ok)

		received <- completed

		return nil
	})
	require.NoError(t, err)

	err = bus.Subscribe(ctx)
	require.NoError(t, err)

	// No handler registered for task events; they must not block the stream.
	err = bus.Publish(ctx, "session-2", &events.TaskCompleted{
		BaseEvent: events.NewBaseEvent(events.TaskCompletedEvent, "session-2"),
		TaskID:    "task_1",
		Agent:     "stock",
		Tool:      "stock_info",
	})
	require.NoError(t, err)

	err = bus.Publish(ctx, "session-2", &events.SessionCompleted{
		BaseEvent:      events.NewBaseEvent(events.SessionCompletedEvent, "session-2"),
		TasksCompleted: 1,
	})
	require.NoError(t, err)

	select {
	case completed := <-received:
		assert.Equal(t, "session-2", completed.SessionID)
		assert.Equal(t, 1, completed.TasksCompleted)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
