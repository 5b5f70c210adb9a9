package refresh

import "sync"

// Guard collapses overlapping refreshes into one execution. The first caller
// of Begin becomes the leader; later callers get the channel that closes
// when the leader calls Finish.
type Guard struct {
	mu      sync.Mutex
	running bool
	waiting int
	done    chan struct{}
	last    *Summary
}

// NewGuard creates an idle guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Begin atomically claims the guard. leader is false when a refresh is
// already running; done closes when that refresh finishes.
func (g *Guard) Begin() (done <-chan struct{}, leader bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.waiting++
		return g.done, false
	}
	g.running = true
	g.done = make(chan struct{})
	return g.done, true
}

// Finish stores the summary, releases the guard and wakes every joiner.
func (g *Guard) Finish(s *Summary) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.last = s
	g.running = false
	g.waiting = 0
	close(g.done)
}

// Last returns a copy of the most recent summary, nil before the first run.
func (g *Guard) Last() *Summary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last.clone()
}

// Running reports whether a refresh is in flight.
func (g *Guard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Waiting returns how many callers joined the refresh in flight.
func (g *Guard) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}
