package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"shiftbook/internal/domain"
)

// Event types double as AMQP routing keys.
const (
	EventBookingCreated   = "booking.created"
	EventBookingCanceled  = "booking.canceled"
	EventBlockCompleted   = "block.completed"
	EventClosedDayAdded   = "closed_day.added"
	EventClosedDayRemoved = "closed_day.removed"
	EventSessionChanged   = "session.changed"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
	ActorID   string `json:"actor_id,omitempty"`
}

// BlockEventPayload summarizes an admin block run.
type BlockEventPayload struct {
	UserID    string   `json:"user_id"`
	ActorID   string   `json:"actor_id"`
	Requested int      `json:"requested"`
	Booked    int      `json:"booked"`
	Months    []string `json:"months"`
}

type ClosedDayEventPayload struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

// SessionEventPayload is sent on sign-in (SignedIn) and sign-out.
type SessionEventPayload struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	SignedIn bool   `json:"signed_in"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

var _ domain.EventPublisher = (*EventBus)(nil)

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to every handler of its type and joins their
// errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&ev)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// Fanout publishes to several publishers; nil entries are skipped.
type Fanout []domain.EventPublisher

func (f Fanout) PublishJSON(eventType string, payload interface{}) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishJSON(eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
