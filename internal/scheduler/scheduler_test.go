package scheduler

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/i18n"
	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
	"github.com/parleychat/parley/internal/services/ai"
	"github.com/parleychat/parley/internal/services/cache"
	"github.com/parleychat/parley/internal/store"
)

// fakeClock drives the scheduler deterministically. Advance moves
// virtual time forward and fires due timers in order on the calling
// goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	t := &fakeTimer{when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.when.After(c.now) {
			c.now = next.when
		}
		next.fired = true
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
}

// scriptedClient answers every completion with a per-agent line.
type scriptedClient struct {
	mu      sync.Mutex
	replies map[string]string
	calls   []string
}

func (c *scriptedClient) Complete(ctx context.Context, agent *models.Agent, messages []models.ChatMessage, maxTokens int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, agent.Name)
	if reply, ok := c.replies[agent.Name]; ok {
		return reply, nil
	}
	// Unique per call so the store's duplicate rejection never kicks in
	// while virtual time stands still.
	return fmt.Sprintf("remark %d from %s", len(c.calls), agent.Name), nil
}

type harness struct {
	sched  *Scheduler
	clock  *fakeClock
	store  *store.MessageStore
	client *scriptedClient
	room   *models.Room
}

func newHarness(t *testing.T, members []*models.Agent, settings *models.ChatSettings) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	metrics := middleware.NewMetrics()

	clock := newFakeClock()
	client := &scriptedClient{replies: make(map[string]string)}
	generator := ai.NewGenerator(client, ai.NewSummarizer(client, metrics, logger), logger)

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}

	msgStore := store.NewMessageStore(cache.NewLocal(), nil, nil, metrics, logger)
	msgStore.Now = clock.Now

	sched := New(msgStore, generator, localizer, settings, 5, clock, rand.New(rand.NewSource(7)), metrics, logger)
	sched.pacing = 0

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}
	room := &models.Room{ID: "room1", Name: "lab", Members: memberIDs}
	sched.SetRoom(room, members)

	return &harness{sched: sched, clock: clock, store: msgStore, client: client, room: room}
}

func defaultSettings() *models.ChatSettings {
	return &models.ChatSettings{
		MinInterval:    3 * time.Second,
		MaxInterval:    6 * time.Second,
		ResponseChance: 1.0,
	}
}

func members() []*models.Agent {
	return []*models.Agent{
		{ID: "a1", Name: "Ada", Personality: "You are Ada, a systems engineer.", TokenLimit: 200},
		{ID: "a2", Name: "Grace", Personality: "You are Grace, a language designer.", TokenLimit: 200},
	}
}

func authorsOf(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Author
	}
	return out
}

func TestEnablePostsAnnouncementAndRunsRound(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())

	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	log := h.store.Messages("room1")
	if len(log) != 1 || !log[0].IsSystem() {
		t.Fatalf("log after enable = %v", authorsOf(log))
	}
	if !strings.Contains(log[0].Text, "Ada, Grace") {
		t.Errorf("announcement = %q, want participant names", log[0].Text)
	}
	if got := h.sched.State(); got != StateArmed {
		t.Errorf("state = %q, want armed", got)
	}

	// Round zero runs immediately: topic opener plus initiator message.
	h.clock.Advance(0)
	log = h.store.Messages("room1")
	agentPosts := 0
	for _, m := range log {
		if !m.IsSystem() {
			agentPosts++
		}
	}
	if agentPosts < 1 {
		t.Fatalf("no agent message after round zero; log = %v", authorsOf(log))
	}
	if got := h.sched.State(); got != StateRoundInFlight {
		t.Errorf("state = %q, want round in flight", got)
	}
}

func TestFanOutEveryoneElseResponds(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())

	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clock.Advance(0)

	// Fan-out delays top out around ten seconds; fire them all but stay
	// short of the next round timer.
	h.clock.Advance(12 * time.Second)

	log := h.store.Messages("room1")
	adaPosts, gracePosts := 0, 0
	for _, m := range log {
		switch m.Author {
		case "Ada":
			adaPosts++
		case "Grace":
			gracePosts++
		}
	}
	// With chance 1.0 both the initiator and the other member have
	// spoken at least once.
	if adaPosts == 0 || gracePosts == 0 {
		t.Fatalf("posts: Ada=%d Grace=%d; log=%v", adaPosts, gracePosts, authorsOf(log))
	}
	if got := h.sched.State(); got != StateArmed {
		t.Errorf("state = %q, want armed for the next round", got)
	}
	if h.sched.PendingTasks() != 1 {
		t.Errorf("pending timers = %d, want just the next round", h.sched.PendingTasks())
	}
}

func TestDisableCancelsEverything(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())

	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clock.Advance(0)
	before := len(h.store.Messages("room1"))

	h.sched.Disable(context.Background())
	if h.sched.PendingTasks() != 0 {
		t.Fatalf("pending timers after disable = %d", h.sched.PendingTasks())
	}

	// A long advance fires nothing; only the disabled notice appears.
	h.clock.Advance(10 * time.Minute)
	log := h.store.Messages("room1")
	if len(log) != before+1 {
		t.Fatalf("log grew after disable: %v", authorsOf(log))
	}
	last := log[len(log)-1]
	if !last.IsSystem() || !strings.Contains(last.Text, "disabled") {
		t.Errorf("last message = %+v, want the disabled notice", last)
	}
	if got := h.sched.State(); got != StateIdle {
		t.Errorf("state = %q, want idle", got)
	}
}

func TestNoResponseSentinelSuppressed(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())
	h.client.replies["Grace"] = "NO_RESPONSE"

	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clock.Advance(0)
	h.clock.Advance(12 * time.Second)

	for _, m := range h.store.Messages("room1") {
		if m.Author == "Grace" && !m.IsSystem() {
			// Grace may only appear as the topic announcer, whose text
			// is fixed, never with the sentinel.
			if strings.Contains(m.Text, "NO_RESPONSE") {
				t.Fatalf("sentinel was posted: %q", m.Text)
			}
		}
	}
}

func TestUserMessageForcesAutoChatOff(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())

	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clock.Advance(0)

	if err := h.sched.UserMessage(context.Background(), "What is everyone working on?"); err != nil {
		t.Fatalf("UserMessage: %v", err)
	}

	if h.sched.Enabled() {
		t.Fatal("auto-chat still enabled after a user message")
	}

	log := h.store.Messages("room1")
	var sawDisabled, sawUser bool
	userIdx, replyIdx := -1, -1
	replies := map[string]bool{}
	for i, m := range log {
		if m.IsSystem() && strings.Contains(m.Text, "disabled") {
			sawDisabled = true
		}
		if m.IsUser {
			sawUser = true
			userIdx = i
		}
		if !m.IsSystem() && !m.IsUser && userIdx != -1 && i > userIdx {
			replies[m.Author] = true
			if replyIdx == -1 {
				replyIdx = i
			}
		}
	}
	if !sawDisabled || !sawUser {
		t.Fatalf("disabled=%v user=%v; log=%v", sawDisabled, sawUser, authorsOf(log))
	}
	// Every member answered the user.
	want := []string{"Ada", "Grace"}
	got := make([]string, 0, len(replies))
	for name := range replies {
		got = append(got, name)
	}
	sort.Strings(got)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("responders = %v, want %v", got, want)
	}
}

func TestUpdateSettingsClampsIntervals(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())

	updated := h.sched.UpdateSettings(context.Background(), models.ChatSettings{
		MinInterval:    100 * time.Millisecond,
		MaxInterval:    200 * time.Millisecond,
		ResponseChance: 0.7,
	})
	if updated.MinInterval != 500*time.Millisecond {
		t.Errorf("min = %v, want clamped to 500ms", updated.MinInterval)
	}
	if updated.MaxInterval != time.Second {
		t.Errorf("max = %v, want min+500ms", updated.MaxInterval)
	}
}

func TestUpdateSettingsRestartsRunningLoop(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())

	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clock.Advance(0)
	h.clock.Advance(12 * time.Second)

	// The armed next-round timer is replaced by an immediate restart.
	h.sched.UpdateSettings(context.Background(), models.ChatSettings{
		MinInterval:    2 * time.Second,
		MaxInterval:    4 * time.Second,
		ResponseChance: 1.0,
	})
	before := len(h.store.Messages("room1"))
	h.clock.Advance(0)
	if got := len(h.store.Messages("room1")); got <= before {
		t.Errorf("no round ran after settings restart; log stayed at %d", got)
	}
}

func TestSetRoomCancelsLoop(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())

	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	h.clock.Advance(0)

	other := &models.Room{ID: "room2", Name: "other", Members: []string{"a1"}}
	h.sched.SetRoom(other, members()[:1])

	if h.sched.Enabled() {
		t.Fatal("auto-chat survived a room switch")
	}
	if h.sched.PendingTasks() != 0 {
		t.Fatalf("pending timers after room switch = %d", h.sched.PendingTasks())
	}

	before := len(h.store.Messages("room1"))
	h.clock.Advance(10 * time.Minute)
	if got := len(h.store.Messages("room1")); got != before {
		t.Errorf("old room's log grew after switch")
	}
}

func TestEnableWithoutRoomFails(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())
	h.sched.SetRoom(nil, nil)
	if err := h.sched.Enable(context.Background()); err == nil {
		t.Fatal("expected an error with no room selected")
	}
}

func TestRoomDeletedStopsOnlyMatchingRoom(t *testing.T) {
	h := newHarness(t, members(), defaultSettings())
	if err := h.sched.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	h.sched.RoomDeleted("some-other-room")
	if !h.sched.Enabled() {
		t.Fatal("unrelated room deletion disabled the loop")
	}

	h.sched.RoomDeleted("room1")
	if h.sched.Enabled() {
		t.Fatal("deleting the active room did not disable the loop")
	}
}
