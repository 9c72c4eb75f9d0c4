// Package eventbus provides event-driven notification infrastructure
// for session orchestration.
package eventbus

import (
	"context"
	"errors"

	"github.com/quantarc/finflow/pkg/events"
)

// ErrUnknownEventType is returned when a message carries an event type
// no decoder is registered for.
var ErrUnknownEventType = errors.New("unknown event type")

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
