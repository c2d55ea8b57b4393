package operations

import (
	"sync"
	"time"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/metrics"
)

// Feed event types.
const (
	EventSubmitted = "operation.submitted"
	EventConfirmed = "operation.confirmed"
	EventFailed    = "operation.failed"
)

// Event is one entry on the live operation feed.
type Event struct {
	Type   string           `json:"type"`
	Record operation.Record `json:"record"`
	At     time.Time        `json:"at"`
}

// Feed fans operation status changes out to subscribers. Slow subscribers
// drop events rather than block publishers.
type Feed struct {
	mu    sync.Mutex
	next  int
	subs  map[int]chan Event
	depth int
}

// NewFeed creates a feed hub.
func NewFeed() *Feed {
	return &Feed{
		subs:  make(map[int]chan Event),
		depth: 64,
	}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// when the subscriber goes away.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan Event, f.depth)
	f.subs[id] = ch
	metrics.SetFeedSubscribers(len(f.subs))

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if existing, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(existing)
			metrics.SetFeedSubscribers(len(f.subs))
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber that has buffer room.
func (f *Feed) Publish(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// eventForStatus maps a terminal operation status to its feed event type.
func eventForStatus(status operation.Status) string {
	switch status {
	case operation.StatusConfirmed:
		return EventConfirmed
	case operation.StatusFailed:
		return EventFailed
	default:
		return EventSubmitted
	}
}
