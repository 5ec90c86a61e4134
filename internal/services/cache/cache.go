package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/parleychat/parley/internal/models"
)

// Keys mirror the identifiers the record layers share: per-room message
// arrays, the contact list, the room list, the settings blob and
// per-agent welcome metadata.
const (
	keyContacts = "aiContacts"
	keyRooms    = "aiGroups"
	keySettings = "chatSettings"
)

func messagesKey(roomID string) string { return fmt.Sprintf("group_%s_messages", roomID) }
func historyKey(agentID string) string { return fmt.Sprintf("chat_%s_history", agentID) }
func welcomeKey(agentID string) string { return fmt.Sprintf("welcome_%s", agentID) }

// Local is the synchronous fast path of the dual-write persistence
// scheme. Values live in an in-process cache keyed by stable string
// identifiers scoped by room or agent id.
type Local struct {
	cache *gocache.Cache
}

// NewLocal creates the local cache.
func NewLocal() *Local {
	return &Local{cache: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

// SaveMessages stores a room's full message array.
func (l *Local) SaveMessages(roomID string, messages []models.Message) {
	l.cache.Set(messagesKey(roomID), append([]models.Message(nil), messages...), gocache.NoExpiration)
}

// Messages returns a room's cached message array.
func (l *Local) Messages(roomID string) ([]models.Message, bool) {
	if val, found := l.cache.Get(messagesKey(roomID)); found {
		return val.([]models.Message), true
	}
	return nil, false
}

// DeleteMessages removes a room's cached message array.
func (l *Local) DeleteMessages(roomID string) {
	l.cache.Delete(messagesKey(roomID))
}

// SaveContacts stores the global contact list.
func (l *Local) SaveContacts(contacts []*models.Agent) {
	l.cache.Set(keyContacts, contacts, gocache.NoExpiration)
}

// Contacts returns the global contact list.
func (l *Local) Contacts() ([]*models.Agent, bool) {
	if val, found := l.cache.Get(keyContacts); found {
		return val.([]*models.Agent), true
	}
	return nil, false
}

// SaveRooms stores the room list.
func (l *Local) SaveRooms(rooms []*models.Room) {
	l.cache.Set(keyRooms, rooms, gocache.NoExpiration)
}

// Rooms returns the room list.
func (l *Local) Rooms() ([]*models.Room, bool) {
	if val, found := l.cache.Get(keyRooms); found {
		return val.([]*models.Room), true
	}
	return nil, false
}

// SaveSettings stores the settings blob.
func (l *Local) SaveSettings(settings *models.ChatSettings) {
	l.cache.Set(keySettings, settings, gocache.NoExpiration)
}

// Settings returns the settings blob.
func (l *Local) Settings() (*models.ChatSettings, bool) {
	if val, found := l.cache.Get(keySettings); found {
		return val.(*models.ChatSettings), true
	}
	return nil, false
}

// SaveHistory stores a one-on-one chat history for a contact.
func (l *Local) SaveHistory(agentID string, messages []models.Message) {
	l.cache.Set(historyKey(agentID), append([]models.Message(nil), messages...), gocache.NoExpiration)
}

// History returns a contact's one-on-one chat history.
func (l *Local) History(agentID string) ([]models.Message, bool) {
	if val, found := l.cache.Get(historyKey(agentID)); found {
		return val.([]models.Message), true
	}
	return nil, false
}

// DeleteHistory removes a contact's one-on-one chat history.
func (l *Local) DeleteHistory(agentID string) {
	l.cache.Delete(historyKey(agentID))
}

// SaveWelcome stores per-contact welcome metadata.
func (l *Local) SaveWelcome(w *models.Welcome) {
	l.cache.Set(welcomeKey(w.ContactID), w, gocache.NoExpiration)
}

// Welcome returns per-contact welcome metadata.
func (l *Local) Welcome(agentID string) (*models.Welcome, bool) {
	if val, found := l.cache.Get(welcomeKey(agentID)); found {
		return val.(*models.Welcome), true
	}
	return nil, false
}
