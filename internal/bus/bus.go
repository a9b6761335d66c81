// Package bus provides event bus implementations for evaluation pipeline
// notifications.
package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations. Pipeline events
// are one-way notifications; there is no request/response exchange.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, matching the topic it is published on.
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix seconds).
	Timestamp int64 `json:"timestamp"`

	// Language is the language tag the event refers to, if any.
	Language string `json:"language,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics for evaluation pipeline lifecycle events.
const (
	TopicRunStarted          = "eval.run.started"
	TopicInferenceCompleted  = "eval.inference.completed"
	TopicInferenceFailed     = "eval.inference.failed"
	TopicValidationCompleted = "eval.validation.completed"
	TopicRunCompleted        = "eval.run.completed"
)

var eventSeq atomic.Uint64

// NewEvent creates an event with a fresh ID and current timestamp.
func NewEvent(eventType, source, language string, payload any) Event {
	return Event{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixNano(), eventSeq.Add(1)),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().Unix(),
		Language:  language,
		Payload:   payload,
	}
}
