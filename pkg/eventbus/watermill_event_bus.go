package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quantarc/finflow/pkg/events"
)

// decoders maps an event type to a constructor for its concrete type.
var decoders = map[events.EventType]func() any{
	events.QueryRoutedEvent:        func() any { return &events.QueryRouted{} },
	events.PlanCreatedEvent:        func() any { return &events.PlanCreated{} },
	events.TaskCompletedEvent:      func() any { return &events.TaskCompleted{} },
	events.TaskFailedEvent:         func() any { return &events.TaskFailed{} },
	events.RemediationDecidedEvent: func() any { return &events.RemediationDecided{} },
	events.SessionCompletedEvent:   func() any { return &events.SessionCompleted{} },
	events.SessionFallbackEvent:    func() any { return &events.SessionFallback{} },
}

// WatermillEventBus carries session lifecycle events over any watermill
// publisher/subscriber pair.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go eb.consume(ctx, messages)

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		eb.mu.RLock()
		handler, subscribed := eb.subscriptions[eventType]
		eb.mu.RUnlock()

		if !subscribed {
			msg.Ack()

			continue
		}

		event, err := eb.decode(eventType, msg.Payload)
		if err != nil {
			msg.Nack()

			continue
		}

		if err := handler(ctx, event); err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) decode(eventType events.EventType, payload message.Payload) (any, error) {
	construct, known := decoders[eventType]
	if !known {
		return nil, ErrUnknownEventType
	}

	event := construct()
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, err
	}

	return event, nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return err
	}

	return eb.subscriber.Close()
}
