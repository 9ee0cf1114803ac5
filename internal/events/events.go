// Package events provides the in-process event bus that feeds websocket
// subscribers and decouples the scan pipeline from notification fan-out.
package events

import (
	"sync"
	"time"
)

// EventType names an event family.
type EventType string

const (
	EventMetadataItemUpdated EventType = "metadata.item.updated"
	EventMetadataItemCreated EventType = "metadata.item.created"
	EventMetadataItemDeleted EventType = "metadata.item.deleted"

	EventJobNotification EventType = "job.notification"

	EventScanStarted   EventType = "scan.started"
	EventScanCompleted EventType = "scan.completed"
	EventScanFailed    EventType = "scan.failed"

	EventSessionRevoked EventType = "session.revoked"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	UserID    uint        `json:"user_id,omitempty"` // 0 broadcasts to all users
	Payload   interface{} `json:"payload,omitempty"`
}

// Bus fans events out to subscribers. Subscriber channels are buffered; a
// full channel drops the event for that subscriber rather than blocking the
// publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	ch     chan Event
	types  map[EventType]bool
	userID uint
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers the event to every matching subscriber.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if len(sub.types) > 0 && !sub.types[evt.Type] {
			continue
		}
		if evt.UserID != 0 && sub.userID != 0 && sub.userID != evt.UserID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribe registers a subscriber for the given event types (all types when
// empty), scoped to userID (0 for all users). The returned cancel func must
// be called to release the subscription; the channel is closed by cancel.
func (b *Bus) Subscribe(userID uint, types ...EventType) (<-chan Event, func()) {
	sub := &subscription{
		ch:     make(chan Event, 64),
		types:  make(map[EventType]bool, len(types)),
		userID: userID,
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Close drops all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
