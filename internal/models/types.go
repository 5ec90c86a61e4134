package models

import (
	"time"
)

// Author names reserved for non-agent messages.
const (
	AuthorUser   = "You"
	AuthorSystem = "System"
)

// Agent represents a configured chat persona backed by an external
// completion endpoint. Agents are shared by reference across rooms and
// owned by the global contact list.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality"` // free text, doubles as a trait signal source
	Provider    string `json:"provider,omitempty"`
	Endpoint    string `json:"endpoint"`
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
	TokenLimit  int    `json:"token_limit"`
}

// Room is a named set of agents sharing one message log and one
// scheduler state.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Members     []string  `json:"members"` // ordered agent ids, at least one
	CreatedAt   time.Time `json:"created_at"`
}

// Message is a single entry of a room's append-only log.
type Message struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Author     string    `json:"author"`
	IsUser     bool      `json:"isUser"`
	Timestamp  time.Time `json:"timestamp"`
	TokenCount int       `json:"tokenCount"`
}

// IsSystem reports whether the message was produced by the engine
// itself rather than a user or agent.
func (m *Message) IsSystem() bool {
	return m.Author == AuthorSystem
}

// ChatMessage is one role-tagged entry of a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is the full remote record store payload. Writes always
// replace the whole record; there are no partial updates.
type Record struct {
	Messages   map[string][]Message `json:"messages"`
	LastUpdate string               `json:"lastUpdate"`
}

// NewRecord returns an empty record with an initialized message map.
func NewRecord() *Record {
	return &Record{Messages: make(map[string][]Message)}
}

// Interval floors applied wherever new settings are accepted.
const (
	MinIntervalFloor = 500 * time.Millisecond
	IntervalGap      = 500 * time.Millisecond
)

// ChatSettings are the process-wide conversation tunables.
type ChatSettings struct {
	MinInterval      time.Duration  `json:"min_interval"`
	MaxInterval      time.Duration  `json:"max_interval"`
	ResponseChance   float64        `json:"response_chance"`
	OverridesEnabled bool           `json:"overrides_enabled"`
	TokenOverrides   map[string]int `json:"token_overrides,omitempty"` // agent id -> limit
}

// Clamped returns the settings with the intervals raised to their
// floors: min at least 500ms, max at least min+500ms.
func (s ChatSettings) Clamped() ChatSettings {
	if s.MinInterval < MinIntervalFloor {
		s.MinInterval = MinIntervalFloor
	}
	if s.MaxInterval < s.MinInterval+IntervalGap {
		s.MaxInterval = s.MinInterval + IntervalGap
	}
	return s
}

// TokenLimitFor resolves the effective token limit for an agent,
// honoring per-agent overrides when enabled.
func (s *ChatSettings) TokenLimitFor(agent *Agent) int {
	limit := agent.TokenLimit
	if limit <= 0 {
		limit = 200
	}
	if s.OverridesEnabled {
		if v, ok := s.TokenOverrides[agent.ID]; ok && v > 0 {
			limit = v
		}
	}
	return limit
}

// Welcome is the per-contact welcome metadata shown when a one-on-one
// chat is opened for the first time.
type Welcome struct {
	ContactID string    `json:"contact_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
