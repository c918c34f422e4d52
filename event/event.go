// Package event defines the inert Event record shared by every queue,
// watcher, and loop primitive in mqloop.
package event

import "github.com/nvimrt/mqloop/internal/metrics"

// Argc is the fixed number of argv slots an Event carries, matching the
// reference implementation's EVENT_HANDLER_MAX_ARGC.
const Argc = 10

// Handler is invoked with an Event's argv when the event is dispatched.
// Handlers must return quickly: nothing preempts them, and the loop that
// dispatched the event is blocked on the call until it returns.
type Handler func(argv [Argc]any)

// Event is a copyable record: a handler plus its arguments. It owns no
// resources of its own; argv elements are opaque and the pusher must
// guarantee they outlive the handler invocation.
type Event struct {
	Handler Handler
	Argv    [Argc]any
}

// Nil is the event with no handler. Dispatching it is a no-op.
var Nil = Event{}

// IsNil reports whether e has no handler, i.e. is the zero Event.
func (e Event) IsNil() bool {
	return e.Handler == nil
}

// New builds an Event from a handler and up to Argc arguments. Extra
// arguments beyond Argc are silently dropped; callers should not rely on
// that behavior and instead keep within Argc slots.
func New(h Handler, args ...any) Event {
	var ev Event
	ev.Handler = h
	n := len(args)
	if n > Argc {
		n = Argc
	}
	copy(ev.Argv[:n], args[:n])
	return ev
}

// Dispatch invokes the event's handler if set, timing it into
// metrics.DispatchDuration. Dispatching Nil is a no-op and is not timed.
func Dispatch(ev Event) {
	if ev.Handler == nil {
		return
	}
	timer := metrics.NewTimer()
	ev.Handler(ev.Argv)
	timer.ObserveDuration(metrics.DispatchDuration)
}
