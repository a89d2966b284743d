// Package events is the in-process pub/sub bus. Long-running work (backtest
// runs, optimizations, data syncs, backups) publishes lifecycle events here;
// the websocket stream and job triggers subscribe.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies one kind of event.
type EventType string

const (
	// RunQueued through RunCancelled trace an async job's lifecycle.
	RunQueued    EventType = "run_queued"
	RunStarted   EventType = "run_started"
	RunProgress  EventType = "run_progress"
	RunCompleted EventType = "run_completed"
	RunFailed    EventType = "run_failed"
	RunCancelled EventType = "run_cancelled"

	// MarginCall fires when a backtest detects a maintenance breach.
	MarginCall EventType = "margin_call"

	// BarsSynced fires after a provider sync lands new bars.
	BarsSynced EventType = "bars_synced"

	// SignalsEvaluated fires after the accuracy tracker grades outcomes.
	SignalsEvaluated EventType = "signals_evaluated"

	// BackupCompleted fires after a successful R2 upload.
	BackupCompleted EventType = "backup_completed"
)

// Event is one published occurrence. Data is event-specific and must be
// JSON-serializable so the websocket stream can forward it verbatim.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(*Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus fans events out to subscribers. Subscribe-all handlers (the
// websocket stream) see every event after the typed handlers.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[EventType][]subscription
	all      []subscription
	log      zerolog.Logger
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type. The returned function
// removes it.
func (b *Bus) Subscribe(t EventType, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[t] = remove(b.handlers[t], id)
	}
}

// SubscribeAll registers a handler for every event type. The returned
// function removes it.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

func remove(subs []subscription, id int) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Publish dispatches the event to typed subscribers, then catch-all ones.
// A nil Data map is allocated so handlers can rely on it.
func (b *Bus) Publish(t EventType, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	ev := &Event{Type: t, Timestamp: time.Now().UTC(), Data: data}

	b.mu.RLock()
	typed := append([]subscription(nil), b.handlers[t]...)
	all := append([]subscription(nil), b.all...)
	b.mu.RUnlock()

	for _, s := range typed {
		s.handler(ev)
	}
	for _, s := range all {
		s.handler(ev)
	}

	b.log.Trace().Str("type", string(t)).Int("handlers", len(typed)+len(all)).Msg("Event published")
}
