package stats

import (
	"sync"
	"time"

	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// Engine owns one ViewState per actively-subscribed view key and routes
// each incoming TrafficEvent to every view it belongs to.
type Engine struct {
	mu    sync.RWMutex
	views map[string]View
	state map[string]*ViewState
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		views: make(map[string]View),
		state: make(map[string]*ViewState),
	}
}

// Subscribe registers a view (idempotent) and returns its ViewState,
// creating one if this is the first subscriber for that key.
func (e *Engine) Subscribe(v View) *ViewState {
	key := v.Key()

	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.state[key]; ok {
		return s
	}
	s := NewViewState()
	e.views[key] = v
	e.state[key] = s
	return s
}

// Unsubscribe drops a view's accumulated state once no client references it.
func (e *Engine) Unsubscribe(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.views, key)
	delete(e.state, key)
}

// AddEvent folds e into every currently-subscribed view whose node
// selection contains e.NodeName.
func (e *Engine) AddEvent(ev model.TrafficEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for key, v := range e.views {
		if v.Contains(ev.NodeName) {
			e.state[key].AddEvent(ev)
		}
	}
}

// Get returns the ViewState for a view key, if subscribed.
func (e *Engine) Get(key string) (*ViewState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.state[key]
	return s, ok
}

// Keys returns every currently-subscribed view key.
func (e *Engine) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.state))
	for k := range e.state {
		out = append(out, k)
	}
	return out
}

// SeedFromSnapshot folds every event in events into the view identified by
// key, used when a new subscriber needs its ViewState backfilled from a
// NodeState snapshot rather than waiting for fresh events.
func (e *Engine) SeedFromSnapshot(key string, events []model.TrafficEvent) {
	e.mu.RLock()
	s, ok := e.state[key]
	e.mu.RUnlock()
	if !ok {
		return
	}
	for _, ev := range events {
		s.AddEvent(ev)
	}
}

// Touch is a convenience for the stats ticker: it calls UpdateLiveStats(now)
// on every subscribed view so each one's 60s recent-event window stays
// trimmed even on views that otherwise saw no new events this tick.
func (e *Engine) Touch(now time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.state {
		s.UpdateLiveStats(now)
	}
}
