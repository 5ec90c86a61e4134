package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
)

// Event types delivered to UI subscribers.
const (
	TypeMessage     = "message"
	TypeRoomCleared = "room_cleared"
	TypeRoomDeleted = "room_deleted"
)

// Event is a single notification about room activity.
type Event struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id"`
	Message *models.Message `json:"message,omitempty"`
}

// Broadcaster fans room events out to subscribers. Slow subscribers
// are skipped rather than blocking the engine.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger *logrus.Logger
}

// NewBroadcaster creates an event broadcaster.
func NewBroadcaster(logger *logrus.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a subscriber and returns its channel plus an
// unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.WithField("type", event.Type).Debug("Subscriber channel full, dropping event")
		}
	}
}

// PublishMessage delivers a new-message event.
func (b *Broadcaster) PublishMessage(roomID string, msg *models.Message) {
	b.Publish(Event{Type: TypeMessage, RoomID: roomID, Message: msg})
}
