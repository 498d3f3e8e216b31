package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a run or step lifecycle notification.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run id, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Step is the associated step name, if applicable.
	Step string `json:"step,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`
}

// Event type constants.
const (
	EventTypeRunStarted    = "run.started"
	EventTypeRunCompleted  = "run.completed"
	EventTypeStepStarted   = "step.started"
	EventTypeStepCompleted = "step.completed"
	EventTypeStepSkipped   = "step.skipped"
	EventTypeWatchSkipped  = "watch.cycle_skipped"
)

// Event severity constants.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events. Subscribers are
// invoked synchronously on the publishing goroutine and must be fast.
type EventSubscriber func(event Event)

// EventPublisher fans events out to subscribers. A disabled publisher is
// a safe no-op. Methods are safe for concurrent use.
type EventPublisher struct {
	config      EventsConfig
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventPublisher creates an event publisher with the given config.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	return &EventPublisher{config: cfg}
}

// Subscribe registers a subscriber for all future events.
func (ep *EventPublisher) Subscribe(sub EventSubscriber) {
	if sub == nil {
		return
	}
	ep.mu.Lock()
	ep.subscribers = append(ep.subscribers, sub)
	ep.mu.Unlock()
}

// Publish delivers the event to all subscribers, filling in id and
// timestamp when unset.
func (ep *EventPublisher) Publish(event Event) {
	if ep == nil || !ep.config.Enabled {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	subs := append([]EventSubscriber(nil), ep.subscribers...)
	ep.mu.RUnlock()
	for _, sub := range subs {
		sub(event)
	}
}
