package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/events"
	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/cache"
	"github.com/parleychat/parley/internal/services/recordstore"
	"github.com/parleychat/parley/pkg/textutil"
)

// dedupWindow is how close in time two identical messages from the
// same author must be to count as one.
const dedupWindow = time.Second

// MessageStore keeps per-room append-only message logs with duplicate
// rejection and dual persistence: a synchronous write to the local
// cache and a best-effort asynchronous write to the remote record
// store.
type MessageStore struct {
	mu      sync.Mutex
	logs    map[string][]models.Message
	local   *cache.Local
	remote  recordstore.Store
	events  *events.Broadcaster
	metrics *middleware.Metrics
	logger  *logrus.Logger

	// Now is the clock source; replaceable in tests.
	Now func() time.Time
}

// NewMessageStore creates a message store. remote may be nil when no
// remote backend is configured.
func NewMessageStore(local *cache.Local, remote recordstore.Store, broadcaster *events.Broadcaster, metrics *middleware.Metrics, logger *logrus.Logger) *MessageStore {
	return &MessageStore{
		logs:    make(map[string][]models.Message),
		local:   local,
		remote:  remote,
		events:  broadcaster,
		metrics: metrics,
		logger:  logger,
		Now:     time.Now,
	}
}

// Append normalizes and appends a message to a room's log. It returns
// nil without writing when the message duplicates an existing entry by
// author and text within one second. The local cache write happens
// before Append returns; the remote write runs in the background and
// its failure is only logged. Safe for concurrent use; fan-out timers
// append from their own goroutines.
func (s *MessageStore) Append(ctx context.Context, roomID string, msg models.Message) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Text == "" {
		return nil
	}

	msg.Text = textutil.Clean(msg.Text)
	now := s.Now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.ID == "" {
		msg.ID = "msg_" + uuid.NewString()
	}
	msg.TokenCount = textutil.EstimateTokens(msg.Text)

	for _, existing := range s.logs[roomID] {
		if existing.Author == msg.Author && existing.Text == msg.Text && absDuration(now.Sub(existing.Timestamp)) < dedupWindow {
			s.metrics.RecordDuplicateDropped()
			s.logger.WithFields(logrus.Fields{
				"room_id": roomID,
				"author":  msg.Author,
			}).Debug("Dropping duplicate message")
			return nil
		}
	}

	s.logs[roomID] = append(s.logs[roomID], msg)
	s.local.SaveMessages(roomID, s.logs[roomID])
	s.metrics.RecordMessagePosted(authorType(&msg))
	s.metrics.SetActiveRooms(float64(len(s.logs)))
	s.persistRemote(ctx)

	if s.events != nil {
		s.events.PublishMessage(roomID, &msg)
	}
	return &msg
}

// Load reads a room's log, preferring the remote record store and
// falling back to the local cache when it is unreachable. Entries
// missing an id get one assigned, duplicates by id collapse to the
// last write, and the result is sorted by timestamp ascending.
func (s *MessageStore) Load(ctx context.Context, roomID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []models.Message
	var loadErr error

	if s.remote != nil {
		record, err := s.remote.Load(ctx)
		if err == nil {
			messages = record.Messages[roomID]
			s.metrics.RecordStoreOperation("load_remote", "success")
		} else {
			loadErr = err
			s.metrics.RecordStoreOperation("load_remote", "error")
			s.logger.WithError(err).WithField("room_id", roomID).Warn("Remote load failed, falling back to local cache")
		}
	}

	if messages == nil {
		if cached, ok := s.local.Messages(roomID); ok {
			messages = cached
			loadErr = nil
		}
	}
	if messages == nil && loadErr != nil {
		return nil, loadErr
	}

	cleaned := dedupByID(messages)
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Timestamp.Before(cleaned[j].Timestamp)
	})

	s.logs[roomID] = cleaned
	s.local.SaveMessages(roomID, cleaned)
	s.metrics.SetActiveRooms(float64(len(s.logs)))
	return append([]models.Message(nil), cleaned...), nil
}

// Messages returns a copy of a room's in-memory log.
func (s *MessageStore) Messages(roomID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.Message(nil), s.logs[roomID]...)
}

// Recent returns the last n messages of a room's log.
func (s *MessageStore) Recent(roomID string, n int) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[roomID]
	if len(log) > n {
		log = log[len(log)-n:]
	}
	return append([]models.Message(nil), log...)
}

// Clear empties a room's log in memory and in both backends.
func (s *MessageStore) Clear(ctx context.Context, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[roomID] = nil
	s.local.SaveMessages(roomID, nil)
	s.persistRemote(ctx)
	if s.events != nil {
		s.events.Publish(events.Event{Type: events.TypeRoomCleared, RoomID: roomID})
	}
}

// Delete removes a room's log entirely; used when the room itself is
// deleted.
func (s *MessageStore) Delete(ctx context.Context, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.logs, roomID)
	s.local.DeleteMessages(roomID)
	s.metrics.SetActiveRooms(float64(len(s.logs)))
	s.persistRemote(ctx)
	if s.events != nil {
		s.events.Publish(events.Event{Type: events.TypeRoomDeleted, RoomID: roomID})
	}
}

// Snapshot builds the full record from the in-memory logs.
func (s *MessageStore) Snapshot() *models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *MessageStore) snapshotLocked() *models.Record {
	record := models.NewRecord()
	for roomID, log := range s.logs {
		record.Messages[roomID] = append([]models.Message(nil), log...)
	}
	return record
}

// persistRemote pushes the full record to the remote store in the
// background. Failures are logged and swallowed; the synchronous local
// write already succeeded.
func (s *MessageStore) persistRemote(ctx context.Context) {
	if s.remote == nil {
		return
	}
	record := s.snapshotLocked()
	go func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := s.remote.Save(saveCtx, record); err != nil {
			s.metrics.RecordStoreOperation("save_remote", "error")
			s.logger.WithError(err).Warn("Remote save failed, local cache still holds the log")
			return
		}
		s.metrics.RecordStoreOperation("save_remote", "success")
	}()
}

func dedupByID(messages []models.Message) []models.Message {
	byID := make(map[string]int, len(messages))
	var out []models.Message
	for _, msg := range messages {
		if msg.ID == "" {
			msg.ID = "msg_" + uuid.NewString()
		}
		if idx, seen := byID[msg.ID]; seen {
			out[idx] = msg // last write per id wins
			continue
		}
		byID[msg.ID] = len(out)
		out = append(out, msg)
	}
	return out
}

func authorType(msg *models.Message) string {
	switch {
	case msg.IsUser:
		return "user"
	case msg.IsSystem():
		return "system"
	default:
		return "agent"
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
