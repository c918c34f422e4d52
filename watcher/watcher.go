// Package watcher implements the source adapters spec.md §4.4 calls
// watchers: small state machines that turn OS readiness (a stream ready to
// read, a signal delivered, a timer firing, a process exiting) into Events
// pushed onto a MultiQueue.
//
// Every watcher here does its blocking OS work on a dedicated goroutine —
// Go has no portable non-blocking read over an arbitrary io.ReadCloser —
// and hands the result to the reactor goroutine through a small mailbox
// channel, drained via loop.Pump. The MultiQueue itself is still touched
// from exactly one goroutine, preserving spec.md §5's single-threaded
// core; only the OS-facing edge is concurrent, the same shape the teacher
// uses for its ticker-driven background loops.
package watcher

// State is a watcher's lifecycle position, per spec.md §4.4.
type State int32

const (
	// Inactive is the state right after construction: bound to a reactor
	// handle but not yet registered.
	Inactive State = iota
	// Active means registered and producing events.
	Active
	// Stopping means deregistered: no new events will be produced, but
	// events already pushed onto a queue remain valid.
	Stopping
	// Closed means the reactor has fired its close callback and the
	// watcher's resources may be freed.
	Closed
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
