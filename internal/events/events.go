// Package events is the in-process pub/sub used to fan appointment changes out
// to notifiers and mirrors after they are stored.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rentview/internal/models"
)

const (
	TypeAppointmentCreated      = "appointment.created"
	TypeAppointmentTransitioned = "appointment.transitioned"
	TypeAppointmentRemoved      = "appointment.removed"
)

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// AppointmentChange is the payload of every appointment event.
type AppointmentChange struct {
	Appointment    models.Appointment `json:"appointment"`
	Action         models.Action      `json:"action,omitempty"`
	PreviousStatus models.Status      `json:"previous_status,omitempty"`
	ActorRef       string             `json:"actor_ref,omitempty"`
	ActorRole      models.Role        `json:"actor_role,omitempty"`
}

// NewAppointmentEvent builds an event carrying change.
func NewAppointmentEvent(eventType string, change AppointmentChange) (Event, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}, nil
}

// DecodeChange reads the appointment payload of e.
func DecodeChange(e Event) (AppointmentChange, error) {
	var c AppointmentChange
	err := json.Unmarshal(e.Payload, &c)
	return c, err
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Publisher is what stores need to announce changes.
type Publisher interface {
	Publish(event Event) error
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish runs every subscriber of the event type synchronously.
// A failing or panicking handler does not stop the others; all failures are returned joined.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := b.run(handler, event); err != nil {
			b.logger.Warn().Err(err).Str("event_id", event.ID).Str("type", event.Type).Msg("event handler failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *EventBus) run(handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return handler(event)
}
