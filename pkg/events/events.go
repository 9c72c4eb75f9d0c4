// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantarc/finflow/pkg/models"
)

type EventType string

// Topic is the event stream all session lifecycle events publish to.
const Topic = "finflow.sessions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Session lifecycle events.
	QueryRoutedEvent      EventType = "query.routed"
	PlanCreatedEvent      EventType = "plan.created"
	SessionCompletedEvent EventType = "session.completed"
	SessionFallbackEvent  EventType = "session.fallback"

	// Task dispatch events.
	TaskCompletedEvent EventType = "task.completed"
	TaskFailedEvent    EventType = "task.failed"

	// Remediation events.
	RemediationDecidedEvent EventType = "remediation.decided"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type QueryRouted struct {
	BaseEvent

	Query      string            `json:"query"`
	Complexity models.Complexity `json:"complexity"`
}

func (q QueryRouted) GetType() EventType {
	return QueryRoutedEvent
}

type PlanCreated struct {
	BaseEvent

	TaskCount int      `json:"task_count"`
	TaskIDs   []string `json:"task_ids"`
	Replan    bool     `json:"replan"`
}

func (p PlanCreated) GetType() EventType {
	return PlanCreatedEvent
}

type TaskCompleted struct {
	BaseEvent

	TaskID     string `json:"task_id"`
	Agent      string `json:"agent"`
	Tool       string `json:"tool"`
	DurationMs int64  `json:"duration_ms"`
	Result     any    `json:"result,omitempty"`
}

func (t TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskFailed struct {
	BaseEvent

	TaskID    string           `json:"task_id"`
	Agent     string           `json:"agent"`
	Tool      string           `json:"tool"`
	ErrorType models.ErrorType `json:"error_type"`
	Error     string           `json:"error"`
}

func (t TaskFailed) GetType() EventType {
	return TaskFailedEvent
}

type RemediationDecided struct {
	BaseEvent

	TaskID     string           `json:"task_id"`
	ErrorType  models.ErrorType `json:"error_type"`
	Decision   string           `json:"decision"`
	RetryCount int              `json:"retry_count"`
}

func (r RemediationDecided) GetType() EventType {
	return RemediationDecidedEvent
}

type SessionCompleted struct {
	BaseEvent

	TasksCompleted int   `json:"tasks_completed"`
	TasksFailed    int   `json:"tasks_failed"`
	DurationMs     int64 `json:"duration_ms"`
}

func (s SessionCompleted) GetType() EventType {
	return SessionCompletedEvent
}

type SessionFallback struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (s SessionFallback) GetType() EventType {
	return SessionFallbackEvent
}

func NewBaseEvent(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Metadata:  make(map[string]any),
	}
}
