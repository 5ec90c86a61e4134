// Package scheduler drives the autonomous group conversation loop:
// arming rounds, selecting speakers, fanning out candidate responses
// on independent timers and cancelling all of it exhaustively when
// auto-chat turns off or the room changes.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/convo"
	"github.com/parleychat/parley/internal/i18n"
	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/ai"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/pkg/textutil"
)

// State of the auto-chat loop.
type State string

const (
	StateIdle          State = "idle"
	StateArmed         State = "armed"
	StateRoundInFlight State = "round_in_flight"
)

// noResponse is the sentinel an agent emits to sit a round out.
const noResponse = "NO_RESPONSE"

// defaultPacing spaces sequential replies to a direct user message.
const defaultPacing = 500 * time.Millisecond

// Scheduler owns one room's auto-chat loop. All state transitions go
// through the mutex; in-flight completions carry the generation they
// started under and re-check it immediately before posting, so a
// cancellation can never leak a late message into the log.
type Scheduler struct {
	mu       sync.Mutex
	enabled  bool
	state    State
	gen      int
	roundSeq int
	pending  int

	room    *models.Room
	members []*models.Agent

	settings      *models.ChatSettings
	contextWindow int
	pacing        time.Duration

	convoCtx  *convo.Context
	tasks     *taskGroup
	clock     Clock
	rng       *rand.Rand
	store     *store.MessageStore
	generator *ai.Generator
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// New creates a scheduler with no room selected.
func New(msgStore *store.MessageStore, generator *ai.Generator, localizer *i18n.Localizer, settings *models.ChatSettings, contextWindow int, clock Clock, rng *rand.Rand, metrics *middleware.Metrics, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		state:         StateIdle,
		settings:      settings,
		contextWindow: contextWindow,
		pacing:        defaultPacing,
		convoCtx:      convo.NewContext(),
		tasks:         newTaskGroup(clock),
		clock:         clock,
		rng:           rng,
		store:         msgStore,
		generator:     generator,
		localizer:     localizer,
		metrics:       metrics,
		logger:        logger,
	}
}

// SetRoom switches the active room. Any running loop is cancelled and
// the conversation state starts over.
func (s *Scheduler) SetRoom(room *models.Room, members []*models.Agent) {
	s.mu.Lock()
	s.gen++
	s.enabled = false
	s.state = StateIdle
	s.room = room
	s.members = members
	s.convoCtx.Reset()
	s.mu.Unlock()
	s.tasks.CancelAll()
}

// RoomDeleted cancels the loop if the deleted room is the active one.
func (s *Scheduler) RoomDeleted(roomID string) {
	s.mu.Lock()
	if s.room == nil || s.room.ID != roomID {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.SetRoom(nil, nil)
}

// Enable turns auto-chat on, posts the system announcement and begins
// round zero immediately.
func (s *Scheduler) Enable(ctx context.Context) error {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return fmt.Errorf("no room selected")
	}
	if s.enabled {
		s.mu.Unlock()
		return nil
	}
	s.enabled = true
	s.gen++
	gen := s.gen
	s.state = StateArmed
	roomID := s.room.ID
	names := s.memberNamesLocked()
	s.mu.Unlock()

	s.tasks.CancelAll()
	s.postSystem(ctx, roomID, s.localizer.Default(i18n.MsgAutoChatEnabled, map[string]interface{}{
		"Participants": strings.Join(names, ", "),
	}))

	s.logger.WithFields(logrus.Fields{
		"room_id":      roomID,
		"participants": len(names),
	}).Info("Auto-chat enabled")

	s.tasks.Schedule(0, func() { s.runRound(ctx, gen) })
	return nil
}

// Disable turns auto-chat off. Every pending timer is cancelled and
// in-flight completions are discarded via the generation check.
func (s *Scheduler) Disable(ctx context.Context) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	s.gen++
	s.state = StateIdle
	roomID := s.room.ID
	s.mu.Unlock()

	s.tasks.CancelAll()
	s.metrics.RecordCancellation()
	s.postSystem(ctx, roomID, s.localizer.Default(i18n.MsgAutoChatDisabled, nil))
	s.logger.WithField("room_id", roomID).Info("Auto-chat disabled")
}

// Toggle flips the auto-chat state.
func (s *Scheduler) Toggle(ctx context.Context) error {
	if s.Enabled() {
		s.Disable(ctx)
		return nil
	}
	return s.Enable(ctx)
}

func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingTasks is the number of armed timers, exposed for inspection.
func (s *Scheduler) PendingTasks() int {
	return s.tasks.Pending()
}

// UpdateSettings applies new chat settings, clamping the intervals to
// sane bounds. If a loop is running its timers restart so the new
// pacing takes effect immediately.
func (s *Scheduler) UpdateSettings(ctx context.Context, updated models.ChatSettings) models.ChatSettings {
	updated = updated.Clamped()

	s.mu.Lock()
	*s.settings = updated
	restart := s.enabled
	gen := s.gen
	s.mu.Unlock()

	if restart {
		s.tasks.CancelAll()
		s.tasks.Schedule(0, func() { s.runRound(ctx, gen) })
	}
	return updated
}

// UserMessage handles the user addressing the room directly. Auto-chat
// turns off first; then the message posts as the user and every member
// answers once, in roster order.
func (s *Scheduler) UserMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return fmt.Errorf("no room selected")
	}
	roomID := s.room.ID
	members := s.members
	s.mu.Unlock()

	if s.Enabled() {
		s.Disable(ctx)
	}

	if msg := s.store.Append(ctx, roomID, models.Message{
		Text:   text,
		Author: models.AuthorUser,
		IsUser: true,
	}); msg != nil {
		s.convoCtx.Observe(msg.Author, msg.Text, msg.Timestamp)
	}

	// Context snapshot taken once; every member answers the same view.
	recent := s.recentLines(roomID, false)

	for _, member := range members {
		prompt := singleTurnPrompt(member, recent, text)
		reply, err := s.generator.Generate(ctx, member, prompt, nil, s.tokenLimit(member))
		if err != nil {
			s.logger.WithError(err).WithField("agent", member.Name).Error("Reply to user message failed")
			s.post(ctx, roomID, member.Name, s.localizer.Default(i18n.MsgAgentApology, nil))
			continue
		}
		if clean := textutil.StripSpeakerPrefix(reply); clean != "" {
			s.post(ctx, roomID, member.Name, clean)
		}
		if s.pacing > 0 {
			time.Sleep(s.pacing)
		}
	}
	return nil
}

// runRound executes one conversation round for the given generation.
func (s *Scheduler) runRound(ctx context.Context, gen int) {
	s.mu.Lock()
	if !s.aliveLocked(gen) {
		s.mu.Unlock()
		return
	}
	s.state = StateRoundInFlight
	roomID := s.room.ID
	members := s.members
	s.mu.Unlock()

	s.metrics.RecordRound()

	// A fresh stage opens with an announced topic framed as a question.
	if s.convoCtx.Stage() == convo.StageIdle {
		topic := pickTopic(s.rng)
		announcer := convo.PickWeighted(members, s.convoCtx.RecentAuthors(10), s.rng)
		if announcer != nil {
			s.convoCtx.SetTopic(topic)
			s.convoCtx.SetStage(convo.StageActive)
			s.post(ctx, roomID, announcer.Name, s.localizer.Default(i18n.MsgTopicOpener, map[string]interface{}{
				"Topic": topic,
			}))
		}
	}

	initiator := convo.PickInitiator(members, s.convoCtx)
	if initiator == nil {
		return
	}

	recent := s.recentLines(roomID, true)
	prompt := initiatorPrompt(initiator, members, recent, s.rng)
	reply, err := s.generator.Generate(ctx, initiator, prompt, recent, s.tokenLimit(initiator))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"agent":   initiator.Name,
		}).Error("Round initiation failed")
		s.armNextRound(ctx, gen, 0)
		return
	}

	if !s.alive(gen) {
		return
	}

	clean := textutil.StripSpeakerPrefix(reply)
	if clean == "" || strings.Contains(clean, noResponse) {
		s.armNextRound(ctx, gen, 0)
		return
	}
	s.post(ctx, roomID, initiator.Name, clean)
	s.fanOut(ctx, gen, roomID, initiator, clean)
}

// fanOut gives every other member a chance to respond on its own
// timer. When the last scheduled responder resolves the next round is
// armed.
func (s *Scheduler) fanOut(ctx context.Context, gen int, roomID string, initiator *models.Agent, message string) {
	sig := convo.Analyze(message)
	now := s.clock.Now()

	type picked struct {
		member *models.Agent
		delay  time.Duration
	}
	var responders []picked

	s.mu.Lock()
	members := s.members
	for _, member := range members {
		if member.ID == initiator.ID {
			continue
		}
		if !convo.ShouldRespond(member, s.settings.ResponseChance, message, sig, s.convoCtx, s.rng) {
			continue
		}
		responders = append(responders, picked{
			member: member,
			delay:  convo.Delay(member, s.settings, message, sig, s.convoCtx, now, s.rng),
		})
	}
	s.roundSeq++
	seq := s.roundSeq
	s.pending = len(responders)
	s.mu.Unlock()

	if len(responders) == 0 {
		s.finishRound(ctx, gen)
		return
	}

	for _, p := range responders {
		member := p.member
		s.tasks.Schedule(p.delay, func() {
			s.respondAs(ctx, gen, roomID, member, message)
			s.responderDone(ctx, gen, seq)
		})
	}
}

// respondAs generates one fan-out response. The generation is checked
// again after the completion returns so a reply finished after
// cancellation is dropped, not posted.
func (s *Scheduler) respondAs(ctx context.Context, gen int, roomID string, member *models.Agent, message string) {
	if !s.alive(gen) {
		return
	}

	recent := s.recentLines(roomID, true)
	prompt := responderPrompt(member, recent)
	reply, err := s.generator.Generate(ctx, member, prompt, recent, s.tokenLimit(member))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"agent":   member.Name,
		}).Warn("Fan-out response failed")
		return
	}

	if !s.alive(gen) {
		s.logger.WithField("agent", member.Name).Debug("Discarding response finished after cancellation")
		return
	}
	if strings.Contains(reply, noResponse) {
		return
	}

	if clean := textutil.StripSpeakerPrefix(reply); clean != "" {
		s.post(ctx, roomID, member.Name, clean)
		s.convoCtx.Warm()
	}
}

func (s *Scheduler) responderDone(ctx context.Context, gen, seq int) {
	s.mu.Lock()
	if seq != s.roundSeq {
		s.mu.Unlock()
		return
	}
	s.pending--
	last := s.pending == 0
	s.mu.Unlock()

	if last {
		s.finishRound(ctx, gen)
	}
}

// finishRound closes a round: heat decays and the next round timer
// arms.
func (s *Scheduler) finishRound(ctx context.Context, gen int) {
	if !s.alive(gen) {
		return
	}
	s.convoCtx.Cool()

	s.mu.Lock()
	s.state = StateArmed
	memberCount := len(s.members)
	settings := *s.settings
	s.mu.Unlock()

	delay := convo.NextRoundDelay(&settings, memberCount-1, s.rng)
	s.tasks.Schedule(delay, func() {
		if !s.alive(gen) {
			return
		}
		// A conversation that lost its momentum restarts from a fresh
		// topic instead of dragging the old one on.
		if !s.convoCtx.ShouldContinue(s.clock.Now()) {
			s.convoCtx.SetStage(convo.StageIdle)
		}
		s.runRound(ctx, gen)
	})
}

// post appends an agent or user message and folds it into the
// conversation context.
func (s *Scheduler) post(ctx context.Context, roomID, author, text string) {
	msg := s.store.Append(ctx, roomID, models.Message{
		Text:   text,
		Author: author,
		IsUser: author == models.AuthorUser,
	})
	if msg != nil {
		s.convoCtx.Observe(msg.Author, msg.Text, msg.Timestamp)
	}
}

// postSystem appends a system notice; not part of conversation state.
func (s *Scheduler) postSystem(ctx context.Context, roomID, text string) {
	s.store.Append(ctx, roomID, models.Message{
		Text:   text,
		Author: models.AuthorSystem,
	})
}

// recentLines formats the room's recent log for prompt inclusion.
func (s *Scheduler) recentLines(roomID string, withAuthor bool) []string {
	recent := s.store.Recent(roomID, s.contextWindow)
	lines := make([]string, 0, len(recent))
	for _, msg := range recent {
		if withAuthor {
			lines = append(lines, fmt.Sprintf("%s: %s", msg.Author, msg.Text))
		} else {
			lines = append(lines, msg.Text)
		}
	}
	return lines
}

func (s *Scheduler) armNextRound(ctx context.Context, gen, responders int) {
	s.mu.Lock()
	s.state = StateArmed
	settings := *s.settings
	s.mu.Unlock()

	delay := convo.NextRoundDelay(&settings, responders, s.rng)
	s.tasks.Schedule(delay, func() { s.runRound(ctx, gen) })
}

func (s *Scheduler) tokenLimit(agent *models.Agent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.TokenLimitFor(agent)
}

func (s *Scheduler) alive(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked(gen)
}

func (s *Scheduler) aliveLocked(gen int) bool {
	return s.enabled && s.gen == gen
}

func (s *Scheduler) memberNamesLocked() []string {
	names := make([]string, 0, len(s.members))
	for _, m := range s.members {
		names = append(names, m.Name)
	}
	return names
}
