package application

import (
	"log/slog"
	"sync"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
)

// EventName identifies a polling-core event stream.
type EventName string

// Event names.
const (
	EventStatusChange   EventName = "status:change"
	EventPollComplete   EventName = "poll:complete"
	EventPollError      EventName = "poll:error"
	EventServiceStarted EventName = "service:started"
	EventServiceStopped EventName = "service:stopped"
)

// Event is one emitted occurrence. Result is set on poll:complete and
// poll:error, Change on status:change; Err carries the sanitized error
// message on poll:error.
type Event struct {
	Name        EventName
	ServiceID   string
	ServiceName string
	Result      *model.PollResult
	Change      *model.StatusChange
	Err         string
}

// EventListener consumes events. Listeners are best-effort: the core never
// blocks on their reactions, and a panicking listener is recovered and
// logged.
type EventListener func(Event)

// EventEmitter dispatches named events to registered listeners in-process.
// Delivery is best-effort within the process; consumers must not assume
// delivery across restarts.
type EventEmitter struct {
	mu        sync.RWMutex
	listeners map[EventName][]EventListener
}

// NewEventEmitter creates an emitter with no listeners.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{listeners: make(map[EventName][]EventListener)}
}

// On registers a listener for the named event.
func (e *EventEmitter) On(name EventName, fn EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], fn)
}

// Emit delivers the event to every listener registered for its name.
func (e *EventEmitter) Emit(ev Event) {
	e.mu.RLock()
	listeners := e.listeners[ev.Name]
	e.mu.RUnlock()

	for _, fn := range listeners {
		e.dispatch(ev, fn)
	}
}

func (e *EventEmitter) dispatch(ev Event, fn EventListener) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked", "event", string(ev.Name), "service_id", ev.ServiceID, "panic", r)
		}
	}()
	fn(ev)
}

// RemoveAll drops every registered listener.
func (e *EventEmitter) RemoveAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[EventName][]EventListener)
}
