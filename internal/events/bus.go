// Package events provides the in-process event bus used to fan out domain
// notifications (value writes, metric edits, feature toggles, price syncs).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a kind of event.
type EventType string

const (
	MetricValueRecorded     EventType = "METRIC_VALUE_RECORDED"
	MetricDefinitionChanged EventType = "METRIC_DEFINITION_CHANGED"
	FeatureToggled          EventType = "FEATURE_TOGGLED"
	PricesSynced            EventType = "PRICES_SYNCED"
)

// AllTypes lists every event type the bus carries.
var AllTypes = []EventType{
	MetricValueRecorded,
	MetricDefinitionChanged,
	FeatureToggled,
	PricesSynced,
}

// Event is a single published notification.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
	Type      EventType `json:"type"`
	Module    string    `json:"module"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(event *Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]subscription
	nextID uint64
	log    zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for eventType and returns a function that removes it.
func (b *Bus) Subscribe(eventType EventType, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit publishes typed data to every subscriber of its event type.
// A panicking handler is logged and does not affect other handlers.
func (b *Bus) Emit(module string, data EventData) {
	if b == nil || data == nil {
		return
	}
	event := &Event{
		Timestamp: time.Now(),
		Data:      data,
		Type:      data.EventType(),
		Module:    module,
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event.Type]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(s.handler, event)
	}
}

func (b *Bus) dispatch(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	handler(event)
}

// SubscriberCount returns the number of handlers registered for eventType.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
