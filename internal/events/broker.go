package events

import (
	"log/slog"
	"sync"
)

// defaultSubscriberBuffer is the channel buffer for each subscription.
// A subscriber that falls this far behind starts losing events, which is
// acceptable under the at-most-once contract.
const defaultSubscriberBuffer = 16

// Broker is an in-memory Publisher with dynamic per-room subscriptions.
// The real-time delivery layer subscribes to rooms and forwards events
// to clients; slow subscribers drop events rather than block the
// pipeline.
type Broker struct {
	mu     sync.RWMutex
	rooms  map[string]map[int]chan Event
	nextID int
	logger *slog.Logger
}

// NewBroker creates a new in-memory event broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		rooms:  make(map[string]map[int]chan Event),
		logger: logger.With("component", "event_broker"),
	}
}

// Subscribe registers a consumer for the given room and returns the
// event channel plus an unsubscribe function. Unsubscribe is idempotent
// and closes the channel.
func (b *Broker) Subscribe(room string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, defaultSubscriberBuffer)
	if b.rooms[room] == nil {
		b.rooms[room] = make(map[int]chan Event)
	}
	b.rooms[room][id] = ch

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.rooms[room]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.rooms, room)
				}
			}
			close(ch)
		})
	}

	return ch, unsubscribe
}

// Publish delivers the event to the job room and the owner's user room.
// Delivery is non-blocking: a full subscriber buffer drops the event for
// that subscriber.
func (b *Broker) Publish(event Event) {
	b.deliver(JobRoom(event.JobID), event)
	b.deliver(UserRoom(event.OwnerUserID), event)
}

func (b *Broker) deliver(room string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.rooms[room] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				"room", room,
				"event_type", event.Type,
				"job_id", event.JobID)
		}
	}
}

// Ensure Broker implements Publisher
var _ Publisher = (*Broker)(nil)
