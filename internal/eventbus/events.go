package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of engine event carried on the bus.
type EventType string

const (
	EventStateTransitioned EventType = "state.transitioned"
	EventLeaseAcquired     EventType = "lease.acquired"
	EventLeaseReleased     EventType = "lease.released"
	EventLeaseConflict     EventType = "lease.conflict"
	EventLeaseRenewed      EventType = "lease.renewed"
	EventHeartbeatFailed   EventType = "heartbeat.failed"
	EventAgentCrashed      EventType = "agent.crashed"
	EventModeChanged       EventType = "mode.changed"
	EventHealthChange      EventType = "health.change"
)

// Event is a single typed occurrence broadcast to subscribers. Payload
// holds the event-specific detail (a *types.Transition, a lease path, a
// mode string, ...); consumers type-assert on EventType.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
	Payload   interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Bus is a single-producer-many-consumer event bus: the state machine and
// lease manager publish to it, the sync coordinator and agent registry
// consume from it (§9 "Cross-component events"). Non-blocking publish via
// a buffered channel; slow subscribers drop events rather than stall
// publishers.
type Bus struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the bus's distribution loop.
func (b *Bus) Start() {
	go b.run()
}

// Stop stops the bus.
func (b *Bus) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Bus) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish broadcasts an event to all subscribers. Never blocks the caller
// past the bus's own buffer.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Bus) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip rather than block the bus.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
