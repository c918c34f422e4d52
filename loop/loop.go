// Package loop implements the reactor that pumps a MultiQueue tree: a
// single poll primitive plus the two drain helpers built on top of it, per
// spec.md §4.3. Timers are backed by time.Timer/time.Ticker the way the
// teacher's scheduler/reconciler/health-monitor loops drive their own
// ticker-and-select reactors; here the ticking is internal to Poll instead
// of being inlined at every call site.
package loop

import (
	"time"

	"github.com/nvimrt/mqloop/event"
)

// Pump is implemented by watchers that accept OS events on a background
// goroutine and must hand them off to a MultiQueue from the single
// goroutine driving this Loop. Register a watcher once; Drain is called
// after every Poll so mailboxed events are pushed in the order the
// watcher received them.
type Pump interface {
	Drain()
}

// Loop is the libuv-style reactor. It has no I/O sources of its own — all
// sources (streams, signals, timers, RPC channels) are watchers that wake
// the loop through the PutCallback returned by WakeupCallback, and that
// register themselves as a Pump so Poll can move their mailboxed events
// onto the right queue.
type Loop struct {
	wake  chan struct{}
	pumps []Pump
}

// New creates a Loop ready to drive event queues.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Register adds p to the set of pumps drained after every Poll. Call this
// only from the goroutine that will go on to drive the loop; it is not
// safe to register a pump concurrently with a Poll in flight.
func (l *Loop) Register(p Pump) {
	l.pumps = append(l.pumps, p)
}

func (l *Loop) drainPumps() {
	for _, p := range l.pumps {
		p.Drain()
	}
}

// WakeupCallback returns a PutCallback suitable for event.NewParent: every
// push anywhere in the tree rooted at that parent nudges this loop out of
// a blocking Poll. This is the "wake-up watcher" named in spec.md §5.
func (l *Loop) WakeupCallback() event.PutCallback {
	return func(q *event.MultiQueue, data any) {
		l.wakeup()
	}
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Wake nudges a blocked Poll without going through a MultiQueue push.
// Watchers whose background goroutine only mailboxes data (rather than
// calling PutEvent directly) must call this after every mailbox send, or
// a Poll(-1) blocked on I/O that never touches the queue's PutCallback
// would never wake to drain them.
func (l *Loop) Wake() {
	l.wakeup()
}

// Poll services a single pass of the reactor. timeoutMs < 0 blocks
// indefinitely until some watcher wakes the loop; timeoutMs == 0 is a
// non-blocking probe; otherwise it waits up to timeoutMs milliseconds.
func (l *Loop) Poll(timeoutMs int) {
	switch {
	case timeoutMs < 0:
		<-l.wake
	case timeoutMs == 0:
		select {
		case <-l.wake:
		default:
		}
	default:
		select {
		case <-l.wake:
		case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		}
	}
	l.drainPumps()
}

// ProcessEvents drains q synchronously if it already holds events;
// otherwise it polls once. Preferring the drain over the poll keeps
// handler delivery in order and avoids ceding control to the reactor
// while work is already pending.
func (l *Loop) ProcessEvents(q *event.MultiQueue, timeoutMs int) {
	if !q.Empty() {
		q.ProcessEvents()
		return
	}
	l.Poll(timeoutMs)
}

// ProcessEventsUntil repeatedly calls ProcessEvents until cond reports
// true or timeoutMs elapses. cond is checked before every pass. timeoutMs
// < 0 waits forever (modulo cond); timeoutMs == 0 makes at most one
// non-blocking pass, and none if cond is already true.
func (l *Loop) ProcessEventsUntil(q *event.MultiQueue, timeoutMs int, cond func() bool) {
	remaining := timeoutMs
	var before time.Time
	if remaining > 0 {
		before = time.Now()
	}

	for !cond() {
		l.ProcessEvents(q, remaining)

		if remaining == 0 {
			break
		}
		if remaining > 0 {
			now := time.Now()
			remaining -= int(now.Sub(before).Milliseconds())
			before = now
			if remaining <= 0 {
				break
			}
		}
	}
}
