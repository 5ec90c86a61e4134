package roster

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/cache"
)

func newRoster() *Roster {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(cache.NewLocal(), logger)
}

func addContact(t *testing.T, r *Roster, name string) *models.Agent {
	t.Helper()
	agent, err := r.AddContact(&models.Agent{
		Name:     name,
		Endpoint: "https://api.example.com/v1",
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("AddContact(%s): %v", name, err)
	}
	return agent
}

func TestAddContactAssignsID(t *testing.T) {
	r := newRoster()
	agent := addContact(t, r, "Ada")
	if agent.ID == "" {
		t.Error("no id assigned")
	}
	if got := r.ContactByID(agent.ID); got == nil || got.Name != "Ada" {
		t.Errorf("lookup = %+v", got)
	}
}

func TestAddContactValidation(t *testing.T) {
	r := newRoster()
	if _, err := r.AddContact(&models.Agent{Endpoint: "https://x"}); err == nil {
		t.Error("nameless contact accepted")
	}
	if _, err := r.AddContact(&models.Agent{Name: "Ada"}); err == nil {
		t.Error("endpointless contact accepted")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	r := newRoster()
	ada := addContact(t, r, "Ada")

	if _, err := r.CreateRoom("", "", []string{ada.ID}); err == nil {
		t.Error("nameless room accepted")
	}
	if _, err := r.CreateRoom("lab", "", nil); err == nil {
		t.Error("memberless room accepted")
	}
	if _, err := r.CreateRoom("lab", "", []string{"ghost"}); err == nil {
		t.Error("room with unknown member accepted")
	}

	room, err := r.CreateRoom("lab", "research chat", []string{ada.ID})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID == "" || len(room.Members) != 1 {
		t.Errorf("room = %+v", room)
	}
}

func TestDeleteRoomFiresCascade(t *testing.T) {
	r := newRoster()
	ada := addContact(t, r, "Ada")
	room, err := r.CreateRoom("lab", "", []string{ada.ID})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	var cascaded []string
	r.RoomDeleted = func(roomID string) { cascaded = append(cascaded, roomID) }

	if err := r.DeleteRoom(room.ID); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if len(cascaded) != 1 || cascaded[0] != room.ID {
		t.Errorf("cascade = %v", cascaded)
	}
	if r.RoomByID(room.ID) != nil {
		t.Error("room still present after delete")
	}
	if err := r.DeleteRoom(room.ID); err == nil {
		t.Error("second delete succeeded")
	}
}

func TestRemoveContactCascades(t *testing.T) {
	r := newRoster()
	ada := addContact(t, r, "Ada")
	grace := addContact(t, r, "Grace")

	solo, _ := r.CreateRoom("solo", "", []string{ada.ID})
	pair, _ := r.CreateRoom("pair", "", []string{ada.ID, grace.ID})

	var cascaded []string
	r.RoomDeleted = func(roomID string) { cascaded = append(cascaded, roomID) }

	if err := r.RemoveContact(ada.ID); err != nil {
		t.Fatalf("RemoveContact: %v", err)
	}

	// The solo room lost its only member and goes away; the pair room
	// just shrinks.
	if len(cascaded) != 1 || cascaded[0] != solo.ID {
		t.Errorf("cascade = %v", cascaded)
	}
	kept := r.RoomByID(pair.ID)
	if kept == nil || len(kept.Members) != 1 || kept.Members[0] != grace.ID {
		t.Errorf("pair room = %+v", kept)
	}
}

func TestMembersSkipsMissing(t *testing.T) {
	r := newRoster()
	ada := addContact(t, r, "Ada")
	room := &models.Room{Members: []string{ada.ID, "ghost"}}
	if got := r.Members(room); len(got) != 1 || got[0].Name != "Ada" {
		t.Errorf("members = %v", got)
	}
}

func TestRosterReloadsFromCache(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	local := cache.NewLocal()

	first := New(local, logger)
	ada, err := first.AddContact(&models.Agent{Name: "Ada", Endpoint: "https://x", Model: "m"})
	if err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if _, err := first.CreateRoom("lab", "", []string{ada.ID}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	second := New(local, logger)
	if got := second.Contacts(); len(got) != 1 || got[0].Name != "Ada" {
		t.Errorf("contacts after reload = %v", got)
	}
	if got := second.Rooms(); len(got) != 1 || got[0].Name != "lab" {
		t.Errorf("rooms after reload = %v", got)
	}
}
