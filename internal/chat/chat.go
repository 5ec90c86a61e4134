// Package chat implements one-on-one conversations with a single
// contact, separate from the group scheduler: per-contact history, a
// single cancellable in-flight request slot and welcome metadata.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/i18n"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/ai"
	"github.com/parleychat/parley/internal/services/cache"
	"github.com/parleychat/parley/pkg/textutil"
)

// historyTurns is how many prior messages travel with each request.
const historyTurns = 5

// ErrAborted is returned when a newer message or a contact switch
// cancels a pending request.
var ErrAborted = errors.New("chat: request aborted")

// Session holds the state of all one-on-one chats. At most one request
// per contact is ever in flight; sending again or switching contacts
// aborts the previous one.
type Session struct {
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	history  map[string][]models.Message

	local     *cache.Local
	generator *ai.Generator
	settings  *models.ChatSettings
	localizer *i18n.Localizer
	logger    *logrus.Logger

	Now func() time.Time
}

func NewSession(local *cache.Local, generator *ai.Generator, settings *models.ChatSettings, localizer *i18n.Localizer, logger *logrus.Logger) *Session {
	return &Session{
		inflight:  make(map[string]context.CancelFunc),
		history:   make(map[string][]models.Message),
		local:     local,
		generator: generator,
		settings:  settings,
		localizer: localizer,
		logger:    logger,
		Now:       time.Now,
	}
}

// Open loads a contact's history from the cache and records welcome
// metadata on first contact. It returns the history and the welcome.
func (s *Session) Open(contact *models.Agent) ([]models.Message, *models.Welcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.history[contact.ID]; !ok {
		if cached, ok := s.local.History(contact.ID); ok {
			s.history[contact.ID] = cached
		}
	}

	welcome, ok := s.local.Welcome(contact.ID)
	if !ok {
		welcome = &models.Welcome{
			ContactID: contact.ID,
			Text: s.localizer.Default(i18n.MsgWelcome, map[string]interface{}{
				"Members": contact.Name,
			}),
			CreatedAt: s.Now(),
		}
		s.local.SaveWelcome(welcome)
	}

	return append([]models.Message(nil), s.history[contact.ID]...), welcome
}

// Send submits a user message and returns the contact's reply. Any
// request already in flight for this contact is aborted first; if this
// request itself is aborted by a later Send, ErrAborted comes back and
// nothing is recorded.
func (s *Session) Send(ctx context.Context, contact *models.Agent, text string) (*models.Message, error) {
	text = textutil.Clean(text)
	if text == "" {
		return nil, nil
	}

	reqCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if abort, ok := s.inflight[contact.ID]; ok {
		abort()
	}
	s.inflight[contact.ID] = cancel
	recent := s.history[contact.ID]
	if len(recent) > historyTurns {
		recent = recent[len(recent)-historyTurns:]
	}
	turns := make([]models.ChatMessage, 0, len(recent))
	for _, msg := range recent {
		role := "assistant"
		if msg.IsUser {
			role = "user"
		}
		turns = append(turns, models.ChatMessage{Role: role, Content: msg.Text})
	}
	limit := s.settings.TokenLimitFor(contact)
	s.mu.Unlock()

	reply, err := s.generator.GenerateDirect(reqCtx, contact, turns, text, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if reqCtx.Err() != nil {
		// A newer request or a contact switch took the slot.
		return nil, ErrAborted
	}
	delete(s.inflight, contact.ID)
	cancel()
	if err != nil {
		return nil, err
	}

	now := s.Now()
	s.history[contact.ID] = append(s.history[contact.ID],
		models.Message{Text: text, Author: models.AuthorUser, IsUser: true, Timestamp: now, TokenCount: textutil.EstimateTokens(text)},
	)
	replyMsg := models.Message{
		Text:       textutil.StripSpeakerPrefix(reply),
		Author:     contact.Name,
		Timestamp:  now,
		TokenCount: textutil.EstimateTokens(reply),
	}
	s.history[contact.ID] = append(s.history[contact.ID], replyMsg)
	s.local.SaveHistory(contact.ID, s.history[contact.ID])
	return &replyMsg, nil
}

// Switch aborts whatever is pending for a contact, used when the user
// navigates away mid-request.
func (s *Session) Switch(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if abort, ok := s.inflight[contactID]; ok {
		abort()
		delete(s.inflight, contactID)
	}
}

// History returns a copy of a contact's chat history.
func (s *Session) History(contactID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.history[contactID]; !ok {
		if cached, ok := s.local.History(contactID); ok {
			s.history[contactID] = cached
		}
	}
	return append([]models.Message(nil), s.history[contactID]...)
}

// Clear wipes a contact's history in memory and in the cache. The
// welcome metadata survives so reopening the chat still greets.
func (s *Session) Clear(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, contactID)
	s.local.DeleteHistory(contactID)
}
