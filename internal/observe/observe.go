// Package observe carries turn events from the core to whatever records them.
package observe

import (
	"sync"
	"time"
)

type EventType string

const (
	EventInteraction EventType = "user_interaction"
	EventLLM         EventType = "llm_response"
	EventError       EventType = "error"
	EventConflict    EventType = "scheduling_conflict"
	EventSystem      EventType = "system"
)

// Error kinds reported on EventError.
const (
	KindParseFailure       = "parse_failure"
	KindLLMUnavailable     = "llm_unavailable"
	KindStorageUnavailable = "storage_unavailable"
	KindCalendarLink       = "calendar_link"
)

// Event is one observable step of a turn.
type Event struct {
	Type      EventType
	UserID    string
	Component string
	Message   string
	Kind      string // error kind, set on EventError
	Err       error
	Duration  time.Duration
	Fields    map[string]any
}

type Observer interface {
	Observe(Event)
}

// Func adapts a function to Observer.
type Func func(Event)

func (f Func) Observe(e Event) { f(e) }

// Nop discards every event.
var Nop Observer = Func(func(Event) {})

// Multi fans events out to several observers.
func Multi(obs ...Observer) Observer {
	return Func(func(e Event) {
		for _, o := range obs {
			if o != nil {
				o.Observe(e)
			}
		}
	})
}

// Recorder keeps events in memory. It is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Of returns the recorded events of type t.
func (r *Recorder) Of(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
