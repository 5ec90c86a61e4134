package convo

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Conversation stages.
const (
	StageIdle        = "idle"
	StageActive      = "active"
	StageWindingDown = "winding-down"
)

// contextWindow is the number of recent messages kept for context.
const contextWindow = 10

// activityWindow is how recently something must have happened for the
// conversation to count as active.
const activityWindow = 4 * time.Second

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "to": true, "of": true, "in": true, "on": true,
	"is": true, "are": true, "was": true, "it": true, "that": true,
	"this": true, "i": true, "you": true, "we": true, "they": true,
	"be": true, "have": true, "has": true, "with": true, "for": true,
	"at": true, "as": true, "do": true, "not": true, "so": true,
}

// Line is one entry of the rolling context window.
type Line struct {
	Author    string
	Text      string
	Topic     string
	Sentiment Sentiment
	Thread    string
	At        time.Time
}

// Context tracks the evolving state of one room's conversation: a
// rolling window of recent lines, topic and sentiment history,
// participation balance, discussion threads and the overall heat.
// Safe for concurrent use; fan-out timers observe and warm it from
// their own goroutines.
type Context struct {
	mu            sync.Mutex
	window        []Line
	topics        []string
	emotional     map[string]Sentiment
	participation map[string]int
	threads       map[string][]Line
	threadOrder   []string

	stage        string
	heat         float64
	lastActivity time.Time
}

func NewContext() *Context {
	return &Context{
		emotional:     make(map[string]Sentiment),
		participation: make(map[string]int),
		threads:       make(map[string][]Line),
		stage:         StageIdle,
	}
}

// Observe folds a posted message into the context.
func (c *Context) Observe(author, text string, at time.Time) Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := Line{
		Author:    author,
		Text:      text,
		Topic:     ClassifyTopic(text),
		Sentiment: ClassifySentiment(text),
		At:        at,
	}
	line.Thread = c.assignThread(line)

	c.window = append(c.window, line)
	if len(c.window) > contextWindow {
		c.window = c.window[len(c.window)-contextWindow:]
	}

	if len(c.topics) == 0 || c.topics[len(c.topics)-1] != line.Topic {
		c.topics = append(c.topics, line.Topic)
	}
	c.emotional[author] = line.Sentiment
	c.participation[author]++
	c.lastActivity = at
	return line
}

// assignThread joins the line to the newest thread sharing at least
// two meaningful tokens with that thread's last line, or opens a new
// one.
func (c *Context) assignThread(line Line) string {
	words := meaningfulWords(line.Text)
	for i := len(c.threadOrder) - 1; i >= 0; i-- {
		id := c.threadOrder[i]
		lines := c.threads[id]
		last := lines[len(lines)-1]
		if sharedWords(words, meaningfulWords(last.Text)) >= 2 {
			c.threads[id] = append(lines, line)
			return id
		}
	}
	id := fmt.Sprintf("thread_%d", len(c.threadOrder)+1)
	c.threads[id] = []Line{line}
	c.threadOrder = append(c.threadOrder, id)
	return id
}

// Recent returns the last n context lines.
func (c *Context) Recent(n int) []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	window := c.window
	if len(window) > n {
		window = window[len(window)-n:]
	}
	return append([]Line(nil), window...)
}

// RecentAuthors returns the authors of the last n lines, oldest first.
func (c *Context) RecentAuthors(n int) []string {
	authors := make([]string, 0, n)
	for _, line := range c.Recent(n) {
		authors = append(authors, line.Author)
	}
	return authors
}

// CurrentTopic is the most recent topic label, or empty before any
// message.
func (c *Context) CurrentTopic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.topics) == 0 {
		return ""
	}
	return c.topics[len(c.topics)-1]
}

// SetTopic records an announced discussion topic.
func (c *Context) SetTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
}

// Participation is how many lines the author has contributed.
func (c *Context) Participation(author string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participation[author]
}

// Mood is the author's last observed sentiment.
func (c *Context) Mood(author string) Sentiment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.emotional[author]; ok {
		return s
	}
	return Sentiment{Type: SentimentNeutral, Strength: 0.5}
}

func (c *Context) Stage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

func (c *Context) SetStage(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stage = s
}

func (c *Context) Heat() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heat
}

func (c *Context) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Warm bumps the conversation heat after a posted response.
func (c *Context) Warm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heat += 0.2
	if c.heat > 1 {
		c.heat = 1
	}
}

// Cool decays the heat at the end of a round.
func (c *Context) Cool() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heat -= 0.1
	if c.heat < 0 {
		c.heat = 0
	}
}

// ShouldContinue reports whether the conversation still has momentum:
// either recent activity or enough residual heat.
func (c *Context) ShouldContinue(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastActivity.IsZero() && now.Sub(c.lastActivity) < activityWindow {
		return true
	}
	return c.heat > 0.3
}

// Reset clears all conversation state, used on room switch and clear.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = nil
	c.topics = nil
	c.emotional = make(map[string]Sentiment)
	c.participation = make(map[string]int)
	c.threads = make(map[string][]Line)
	c.threadOrder = nil
	c.stage = StageIdle
	c.heat = 0
	c.lastActivity = time.Time{}
}

func meaningfulWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if !stopwords[w] {
			words[w] = true
		}
	}
	return words
}

func sharedWords(a, b map[string]bool) int {
	count := 0
	for w := range a {
		if b[w] {
			count++
		}
	}
	return count
}
