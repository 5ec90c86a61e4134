// Package roster manages the global contact list and the rooms built
// from it.
package roster

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/cache"
)

// Roster holds agents and rooms, persisted through the local cache.
// RoomDeleted, when set, is invoked after a room is removed so the
// message log and any running scheduler can be torn down.
type Roster struct {
	mu       sync.Mutex
	contacts []*models.Agent
	rooms    []*models.Room

	local  *cache.Local
	logger *logrus.Logger

	RoomDeleted func(roomID string)
}

func New(local *cache.Local, logger *logrus.Logger) *Roster {
	r := &Roster{local: local, logger: logger}
	if contacts, ok := local.Contacts(); ok {
		r.contacts = contacts
	}
	if rooms, ok := local.Rooms(); ok {
		r.rooms = rooms
	}
	return r
}

// Contacts returns the agent list in insertion order.
func (r *Roster) Contacts() []*models.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Agent(nil), r.contacts...)
}

// ContactByID finds an agent, or nil.
func (r *Roster) ContactByID(id string) *models.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contactLocked(id)
}

func (r *Roster) contactLocked(id string) *models.Agent {
	for _, c := range r.contacts {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// AddContact registers an agent, assigning an id when missing.
func (r *Roster) AddContact(agent *models.Agent) (*models.Agent, error) {
	if agent.Name == "" {
		return nil, fmt.Errorf("contact name is required")
	}
	if agent.Endpoint == "" {
		return nil, fmt.Errorf("contact endpoint is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if agent.ID == "" {
		agent.ID = "contact_" + uuid.NewString()
	}
	if r.contactLocked(agent.ID) != nil {
		return nil, fmt.Errorf("contact %s already exists", agent.ID)
	}
	r.contacts = append(r.contacts, agent)
	r.local.SaveContacts(r.contacts)
	r.logger.WithFields(logrus.Fields{
		"contact_id": agent.ID,
		"name":       agent.Name,
	}).Info("Contact added")
	return agent, nil
}

// UpdateContact replaces an existing agent's definition in place.
func (r *Roster) UpdateContact(agent *models.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.contacts {
		if c.ID == agent.ID {
			r.contacts[i] = agent
			r.local.SaveContacts(r.contacts)
			return nil
		}
	}
	return fmt.Errorf("contact %s not found", agent.ID)
}

// RemoveContact drops an agent and removes it from every room. Rooms
// left without members are deleted with the usual cascade.
func (r *Roster) RemoveContact(id string) error {
	r.mu.Lock()
	found := false
	for i, c := range r.contacts {
		if c.ID == id {
			r.contacts = append(r.contacts[:i], r.contacts[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return fmt.Errorf("contact %s not found", id)
	}
	r.local.SaveContacts(r.contacts)

	var emptied []string
	for _, room := range r.rooms {
		members := room.Members[:0]
		for _, m := range room.Members {
			if m != id {
				members = append(members, m)
			}
		}
		room.Members = members
		if len(members) == 0 {
			emptied = append(emptied, room.ID)
		}
	}
	r.local.SaveRooms(r.rooms)
	r.mu.Unlock()

	for _, roomID := range emptied {
		if err := r.DeleteRoom(roomID); err != nil {
			r.logger.WithError(err).WithField("room_id", roomID).Warn("Cascade delete failed")
		}
	}
	return nil
}

// Rooms returns the room list in insertion order.
func (r *Roster) Rooms() []*models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Room(nil), r.rooms...)
}

// RoomByID finds a room, or nil.
func (r *Roster) RoomByID(id string) *models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.ID == id {
			return room
		}
	}
	return nil
}

// CreateRoom validates and registers a room. The name must be
// non-empty and every member id must resolve to a known contact.
func (r *Roster) CreateRoom(name, description string, memberIDs []string) (*models.Room, error) {
	if name == "" {
		return nil, fmt.Errorf("room name is required")
	}
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("room needs at least one member")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range memberIDs {
		if r.contactLocked(id) == nil {
			return nil, fmt.Errorf("unknown member %s", id)
		}
	}

	room := &models.Room{
		ID:          "room_" + uuid.NewString(),
		Name:        name,
		Description: description,
		Members:     append([]string(nil), memberIDs...),
		CreatedAt:   time.Now(),
	}
	r.rooms = append(r.rooms, room)
	r.local.SaveRooms(r.rooms)
	r.logger.WithFields(logrus.Fields{
		"room_id": room.ID,
		"name":    room.Name,
		"members": len(room.Members),
	}).Info("Room created")
	return room, nil
}

// DeleteRoom removes a room and fires the cascade hook.
func (r *Roster) DeleteRoom(id string) error {
	r.mu.Lock()
	found := false
	for i, room := range r.rooms {
		if room.ID == id {
			r.rooms = append(r.rooms[:i], r.rooms[i+1:]...)
			found = true
			break
		}
	}
	if found {
		r.local.SaveRooms(r.rooms)
	}
	r.mu.Unlock()

	if !found {
		return fmt.Errorf("room %s not found", id)
	}
	if r.RoomDeleted != nil {
		r.RoomDeleted(id)
	}
	r.logger.WithField("room_id", id).Info("Room deleted")
	return nil
}

// Members resolves a room's member ids to agents, skipping any that no
// longer exist.
func (r *Roster) Members(room *models.Room) []*models.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]*models.Agent, 0, len(room.Members))
	for _, id := range room.Members {
		if agent := r.contactLocked(id); agent != nil {
			members = append(members, agent)
		}
	}
	return members
}
