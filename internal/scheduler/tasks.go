package scheduler

import (
	"sync"
	"time"
)

// taskGroup tracks every outstanding timer so cancellation can be
// exhaustive: CancelAll stops all pending timers and no callback fires
// afterward.
type taskGroup struct {
	mu     sync.Mutex
	clock  Clock
	timers map[int]Timer
	next   int
}

func newTaskGroup(clock Clock) *taskGroup {
	return &taskGroup{
		clock:  clock,
		timers: make(map[int]Timer),
	}
}

// Schedule arms a timer that removes itself from the group before
// running f.
func (g *taskGroup) Schedule(d time.Duration, f func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.next
	g.next++
	g.timers[id] = g.clock.AfterFunc(d, func() {
		g.mu.Lock()
		_, live := g.timers[id]
		delete(g.timers, id)
		g.mu.Unlock()
		if live {
			f()
		}
	})
}

// CancelAll stops every pending timer. A timer whose callback is
// racing the cancel sees itself removed and does not run.
func (g *taskGroup) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, timer := range g.timers {
		timer.Stop()
		delete(g.timers, id)
	}
}

// Pending is the number of armed timers.
func (g *taskGroup) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}
